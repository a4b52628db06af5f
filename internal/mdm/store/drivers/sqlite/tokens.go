package sqlite

import (
	"context"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
)

type tokensRepo struct {
	db dbtx
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.IssuedToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO issued_tokens (id, account_id, expires_at, revoked) VALUES (?, ?, ?, ?)`,
		t.ID, t.AccountID, t.ExpiresAt, t.Revoked)
	return err
}

func (r *tokensRepo) GetTokenByID(ctx context.Context, id string) (domain.IssuedToken, error) {
	var t domain.IssuedToken
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, expires_at, revoked, created_at
		   FROM issued_tokens WHERE id = ?`, id).
		Scan(&t.ID, &t.AccountID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return domain.IssuedToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *tokensRepo) RevokeToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE issued_tokens SET revoked = 1 WHERE id = ?`, id)
	return err
}

func (r *tokensRepo) RevokeAllAccountTokens(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE issued_tokens SET revoked = 1 WHERE account_id = ?`, accountID)
	return err
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM issued_tokens WHERE expires_at < CURRENT_TIMESTAMP`)
	return err
}
