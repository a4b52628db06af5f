package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	mw := RateLimitByIP(RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, do("10.0.0.1:1234").Code)
	require.Equal(t, http.StatusNoContent, do("10.0.0.1:1234").Code)

	rec := do("10.0.0.1:1234")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	// A different client gets its own bucket.
	require.Equal(t, http.StatusNoContent, do("10.0.0.2:1234").Code)
}

func TestRateLimitForwardedFor(t *testing.T) {
	t.Parallel()

	mw := RateLimitByIP(RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
		req.RemoteAddr = "127.0.0.1:9999"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, do("203.0.113.7, 10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, do("203.0.113.7, 10.0.0.1").Code)
	require.Equal(t, http.StatusNoContent, do("203.0.113.8").Code)
}

func TestParseRateLimitFromEnv(t *testing.T) {
	t.Setenv("RATELIMIT_TEST_REQUESTS", "42")
	t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
	t.Setenv("RATELIMIT_TEST_BURST", "7")

	cfg := ParseRateLimitFromEnv("TEST", RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	})
	require.Equal(t, 42, cfg.RequestsPerWindow)
	require.Equal(t, 30*time.Second, cfg.Window)
	require.Equal(t, 7, cfg.Burst)
}
