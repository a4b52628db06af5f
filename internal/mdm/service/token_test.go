package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/internal/mdm/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"

	s, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTokenService(t *testing.T) (*TokenService, *AccountService) {
	t.Helper()
	st := newTestStore(t)
	return &TokenService{
		Store:      st,
		SigningKey: []byte("test-signing-key-32-bytes-long!!"),
		Issuer:     "mdm-test",
		TokenTTL:   30 * time.Minute,
	}, &AccountService{Store: st}
}

func TestTokenIssueAndVerify(t *testing.T) {
	t.Parallel()
	svc, accounts := newTokenService(t)
	ctx := context.Background()

	account, err := accounts.CreateAccount(ctx, "operator", "correct horse")
	require.NoError(t, err)

	session, err := svc.Issue(ctx, "operator", "correct horse")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.WithinDuration(t, time.Now().Add(svc.TokenTTL), session.Expires, 5*time.Second)

	subject, tokenID, err := svc.VerifyToken(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, account.ID, subject)
	require.NotEmpty(t, tokenID)
}

func TestTokenIssueBadCredentials(t *testing.T) {
	t.Parallel()
	svc, accounts := newTokenService(t)
	ctx := context.Background()

	_, err := accounts.CreateAccount(ctx, "operator", "correct horse")
	require.NoError(t, err)

	_, err = svc.Issue(ctx, "operator", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Issue(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()
	svc, _ := newTokenService(t)

	_, _, err := svc.VerifyToken(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenVerifyRejectsForeignSignature(t *testing.T) {
	t.Parallel()
	svc, accounts := newTokenService(t)
	ctx := context.Background()

	_, err := accounts.CreateAccount(ctx, "operator", "correct horse")
	require.NoError(t, err)
	session, err := svc.Issue(ctx, "operator", "correct horse")
	require.NoError(t, err)

	// Same token, different key: signature check must fail.
	other := &TokenService{
		Store:      svc.Store,
		SigningKey: []byte("another-key-entirely-32-bytes!!!"),
		Issuer:     svc.Issuer,
		TokenTTL:   svc.TokenTTL,
	}
	_, _, err = other.VerifyToken(ctx, session.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenKeepAliveRotates(t *testing.T) {
	t.Parallel()
	svc, accounts := newTokenService(t)
	ctx := context.Background()

	account, err := accounts.CreateAccount(ctx, "operator", "correct horse")
	require.NoError(t, err)
	session, err := svc.Issue(ctx, "operator", "correct horse")
	require.NoError(t, err)

	_, oldID, err := svc.VerifyToken(ctx, session.Token)
	require.NoError(t, err)

	rotated, err := svc.KeepAlive(ctx, account.ID, oldID)
	require.NoError(t, err)
	require.NotEqual(t, session.Token, rotated.Token)

	// The replacement verifies; the original is revoked.
	_, _, err = svc.VerifyToken(ctx, rotated.Token)
	require.NoError(t, err)
	_, _, err = svc.VerifyToken(ctx, session.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRevoke(t *testing.T) {
	t.Parallel()
	svc, accounts := newTokenService(t)
	ctx := context.Background()

	_, err := accounts.CreateAccount(ctx, "operator", "correct horse")
	require.NoError(t, err)
	session, err := svc.Issue(ctx, "operator", "correct horse")
	require.NoError(t, err)

	_, tokenID, err := svc.VerifyToken(ctx, session.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, tokenID))
	_, _, err = svc.VerifyToken(ctx, session.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	t.Parallel()
	svc, accounts := newTokenService(t)
	ctx := context.Background()

	account, err := accounts.CreateAccount(ctx, "operator", "correct horse")
	require.NoError(t, err)
	session, err := svc.Issue(ctx, "operator", "correct horse")
	require.NoError(t, err)

	require.NoError(t, accounts.ChangePassword(ctx, account.ID, "new phrase"))

	_, _, err = svc.VerifyToken(ctx, session.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Issue(ctx, "operator", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Issue(ctx, "operator", "new phrase")
	require.NoError(t, err)
}
