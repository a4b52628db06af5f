package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/mdm/internal/mdm/domain"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/pkg/cryptox"
	"github.com/aussiebroadwan/mdm/pkg/idx"
	"github.com/aussiebroadwan/mdm/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrInvalidToken       = errors.New("invalid_token")
)

// TokenService mints and validates session tokens. A token is an HS256 JWT
// whose jti is tracked in the issued_tokens table so it can be revoked before
// its natural expiry.
type TokenService struct {
	Store      store.Store
	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration
}

// Issue exchanges a username/password pair for a fresh session token.
func (s *TokenService) Issue(ctx context.Context, username, password string) (domain.Session, error) {
	l := slogx.FromContext(ctx)

	account, err := s.Store.Accounts().GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, ErrInvalidCredentials
		}
		return domain.Session{}, err
	}

	if err := cryptox.VerifyPassword(password, account.PasswordHash); err != nil {
		l.Info("password verification failed", slog.String("username", username))
		return domain.Session{}, ErrInvalidCredentials
	}

	return s.mint(ctx, s.Store, account.ID)
}

// VerifyToken parses and validates a raw bearer token, returning the account
// ID and token ID. It satisfies httpx.TokenVerifier.
func (s *TokenService) VerifyToken(ctx context.Context, raw string) (subject, tokenID string, err error) {
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.SigningKey, nil
	}, jwt.WithIssuer(s.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", ErrInvalidToken
	}

	// Signature and expiry check out; the row carries revocation state.
	rec, err := s.Store.Tokens().GetTokenByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrInvalidToken
		}
		return "", "", err
	}
	if rec.Revoked || time.Now().After(rec.ExpiresAt) {
		return "", "", ErrInvalidToken
	}

	return claims.Subject, claims.ID, nil
}

// KeepAlive rotates a session: it mints a replacement token and revokes the
// presented one in a single transaction, extending the session's life.
func (s *TokenService) KeepAlive(ctx context.Context, accountID, tokenID string) (domain.Session, error) {
	var session domain.Session
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		minted, err := s.mint(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := tx.Tokens().RevokeToken(ctx, tokenID); err != nil {
			return err
		}
		session = minted
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// Revoke marks a token as revoked. The JWT stays structurally valid until its
// exp but VerifyToken rejects it from the moment the row flips.
func (s *TokenService) Revoke(ctx context.Context, tokenID string) error {
	return s.Store.Tokens().RevokeToken(ctx, tokenID)
}

// RevokeAllForAccount bulk-revokes every live token of an account.
func (s *TokenService) RevokeAllForAccount(ctx context.Context, accountID string) error {
	return s.Store.Tokens().RevokeAllAccountTokens(ctx, accountID)
}

func (s *TokenService) mint(ctx context.Context, st store.Store, accountID string) (domain.Session, error) {
	now := time.Now()
	expires := now.Add(s.TokenTTL)
	jti := idx.New().String()

	claims := jwt.RegisteredClaims{
		ID:        jti,
		Subject:   accountID,
		Issuer:    s.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.SigningKey)
	if err != nil {
		return domain.Session{}, err
	}

	if err := st.Tokens().CreateToken(ctx, domain.IssuedToken{
		ID:        jti,
		AccountID: accountID,
		ExpiresAt: expires,
	}); err != nil {
		return domain.Session{}, err
	}

	return domain.Session{Token: signed, Expires: expires}, nil
}
