package mdmsdk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireTokenPassword(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)

	tok := f.acquire(t)

	require.Equal(t, f.user, tok.User())
	require.False(t, tok.Expired())
	require.Greater(t, tok.Remaining(), 25*time.Minute)
	require.WithinDuration(t, time.Now(), tok.Issued(), 5*time.Second)
	require.Equal(t, f.apiBase(), tok.BaseURL())
	require.Equal(t, BearerPrefix+"tok-1", tok.AuthorizationHeader())
}

func TestAcquireTokenBadCredentials(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)

	_, err := AcquireToken(context.Background(), TokenParams{
		BaseURL:  f.apiBase(),
		User:     f.user,
		Password: "wrong",
		TLS:      insecureTLS(),
	})

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, 401, authErr.StatusCode)
}

func TestAcquireTokenMissingParams(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var missing *MissingDataError

	_, err := AcquireToken(ctx, TokenParams{User: "u", Password: "p"})
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "base url", missing.Field)

	_, err = AcquireToken(ctx, TokenParams{BaseURL: "https://x/api", Password: "p"})
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "user", missing.Field)

	_, err = AcquireToken(ctx, TokenParams{BaseURL: "https://x/api", User: "u"})
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "password", missing.Field)
}

func TestAcquireTokenAdoptString(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	f.seed("external-tok", time.Hour)

	// The Bearer prefix is accepted and stripped, and the adopted string is
	// traded in immediately so the expiry is known.
	tok, err := AcquireToken(context.Background(), TokenParams{
		BaseURL:     f.apiBase(),
		TokenString: BearerPrefix + "external-tok",
		TLS:         insecureTLS(),
	})
	require.NoError(t, err)

	require.Equal(t, f.user, tok.User())
	require.False(t, tok.Expires().IsZero())
	require.NotEqual(t, BearerPrefix+"external-tok", tok.AuthorizationHeader())

	_, refreshes, _ := f.counts()
	require.Equal(t, 1, refreshes)
}

func TestAcquireTokenAdoptRejectedString(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)

	_, err := AcquireToken(context.Background(), TokenParams{
		BaseURL:     f.apiBase(),
		TokenString: "never-issued",
		TLS:         insecureTLS(),
	})

	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
}

func TestAcquireTokenAdoptEmptyString(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)

	_, err := AcquireToken(context.Background(), TokenParams{
		BaseURL:     f.apiBase(),
		TokenString: BearerPrefix,
		TLS:         insecureTLS(),
	})

	var invalid *InvalidDataError
	require.ErrorAs(t, err, &invalid)
}

func TestTokenRefresh(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	tok := f.acquire(t)

	before := tok.AuthorizationHeader()
	expires, err := tok.Refresh(context.Background())
	require.NoError(t, err)

	require.NotEqual(t, before, tok.AuthorizationHeader())
	require.Equal(t, expires, tok.Expires())
	require.False(t, tok.Expired())
}

func TestTokenRefreshExpiredFailsFast(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	f.ttl = -time.Minute // already expired at issue time
	tok := f.acquire(t)

	require.True(t, tok.Expired())
	require.Negative(t, tok.Remaining())

	_, refreshesBefore, _ := f.counts()
	_, err := tok.Refresh(context.Background())
	require.ErrorIs(t, err, ErrTokenExpired)

	// The fast-fail happens locally, no keep-alive round trip.
	_, refreshesAfter, _ := f.counts()
	require.Equal(t, refreshesBefore, refreshesAfter)
}

func TestTokenRefreshAfterInvalidate(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	tok := f.acquire(t)

	require.NoError(t, tok.Invalidate(context.Background()))

	_, err := tok.Refresh(context.Background())
	require.ErrorIs(t, err, ErrTokenInvalidated)
}

func TestTokenValid(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	tok := f.acquire(t)
	ctx := context.Background()

	require.True(t, tok.Valid(ctx))

	// Server-side revocation: local state still looks fine, the live probe
	// catches it.
	f.mu.Lock()
	for k := range f.expiries {
		f.revoked[k] = true
	}
	f.mu.Unlock()

	require.False(t, tok.Expired())
	require.False(t, tok.Valid(ctx))
}

func TestTokenValidExpiredLocally(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	f.ttl = -time.Minute
	tok := f.acquire(t)

	// Local expiry short-circuits before any network traffic.
	require.False(t, tok.Valid(context.Background()))
}

func TestTokenInvalidate(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	tok := f.acquire(t)
	ctx := context.Background()

	require.NoError(t, tok.Invalidate(ctx))
	require.False(t, tok.Valid(ctx))

	_, _, revokes := f.counts()
	require.Equal(t, 1, revokes)

	// Idempotent: a second call is a local no-op.
	require.NoError(t, tok.Invalidate(ctx))
	_, _, revokes = f.counts()
	require.Equal(t, 1, revokes)
}

func TestTokenInvalidateMarksLocallyOnServerError(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	tok := f.acquire(t)
	ctx := context.Background()

	// Revoke the token server-side so the invalidate call itself 401s.
	f.mu.Lock()
	for k := range f.expiries {
		f.revoked[k] = true
	}
	f.mu.Unlock()

	err := tok.Invalidate(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)

	// Despite the network failure the token must never be reused.
	_, refreshErr := tok.Refresh(ctx)
	require.ErrorIs(t, refreshErr, ErrTokenInvalidated)
}

func TestTokenAPIVersion(t *testing.T) {
	t.Parallel()
	f := newFakeServer(t)
	tok := f.acquire(t)

	version, err := tok.APIVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.5.0", version)
}

func TestTokenRemainingUnknownExpiry(t *testing.T) {
	t.Parallel()

	tok := &Token{}
	require.Zero(t, tok.Remaining())
	require.False(t, tok.Expired())
}
