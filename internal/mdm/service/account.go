package service

import (
	"context"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/pkg/cryptox"
	"github.com/aussiebroadwan/mdm/pkg/idx"
)

type AccountService struct {
	Store store.Store
}

func (s *AccountService) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	return s.Store.Accounts().GetAccountByID(ctx, id)
}

func (s *AccountService) GetAccountByUsername(ctx context.Context, username string) (domain.Account, error) {
	return s.Store.Accounts().GetAccountByUsername(ctx, username)
}

// CreateAccount hashes the password and inserts a new account.
func (s *AccountService) CreateAccount(ctx context.Context, username, password string) (domain.Account, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Account{}, err
	}

	account := domain.Account{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

// ChangePassword sets a new password hash and revokes every live token of the
// account so old sessions cannot outlive the credential change.
func (s *AccountService) ChangePassword(ctx context.Context, accountID, newPassword string) error {
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Accounts().UpdatePasswordHash(ctx, accountID, hash); err != nil {
			return err
		}
		return tx.Tokens().RevokeAllAccountTokens(ctx, accountID)
	})
}
