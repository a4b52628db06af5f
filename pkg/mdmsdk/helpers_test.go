package mdmsdk

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeServer is an in-process device-management server covering the auth
// surface plus whatever data-plane routes a test mounts on extra. It serves
// TLS with a self-signed certificate, so clients connect with certificate
// verification off.
type fakeServer struct {
	t   *testing.T
	srv *httptest.Server

	user     string
	password string
	version  string
	ttl      time.Duration

	mu        sync.Mutex
	seq       int
	expiries  map[string]time.Time
	revoked   map[string]bool
	issues    int
	refreshes int
	revokes   int

	extra http.Handler
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{
		t:        t,
		user:     "svc-account",
		password: "hunter2",
		version:  "1.5.0",
		ttl:      30 * time.Minute,
		expiries: map[string]time.Time{},
		revoked:  map[string]bool{},
	}
	f.srv = httptest.NewTLSServer(http.HandlerFunc(f.route))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/auth/tokens":
		f.handleIssue(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/auth":
		f.handleAuthInfo(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/auth/keepAlive":
		f.handleKeepAlive(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/auth/invalidateToken":
		f.handleInvalidate(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1":
		f.handleVersion(w, r)
	default:
		if f.extra != nil {
			if !f.authorize(w, r) {
				return
			}
			f.extra.ServeHTTP(w, r)
			return
		}
		writeFakeError(w, http.StatusNotFound, "not_found", "no such endpoint")
	}
}

func (f *fakeServer) handleIssue(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != f.user || pass != f.password {
		writeFakeError(w, http.StatusUnauthorized, "invalid_credentials", "username or password incorrect")
		return
	}

	f.mu.Lock()
	f.issues++
	tok, expires := f.mintLocked()
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires": expires})
}

func (f *fakeServer) handleAuthInfo(w http.ResponseWriter, r *http.Request) {
	if !f.authorize(w, r) {
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]any{
		"account": map[string]string{"id": "acct-1", "username": f.user},
		"version": f.version,
	})
}

func (f *fakeServer) handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	if !f.authorize(w, r) {
		return
	}

	f.mu.Lock()
	f.refreshes++
	f.revoked[bearerOf(r)] = true
	tok, expires := f.mintLocked()
	f.mu.Unlock()

	writeFakeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires": expires})
}

func (f *fakeServer) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if !f.authorize(w, r) {
		return
	}

	f.mu.Lock()
	f.revokes++
	f.revoked[bearerOf(r)] = true
	f.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !f.authorize(w, r) {
		return
	}
	writeFakeJSON(w, http.StatusOK, map[string]string{"version": f.version})
}

// mintLocked issues a fresh token. Callers hold f.mu.
func (f *fakeServer) mintLocked() (string, time.Time) {
	f.seq++
	tok := fmt.Sprintf("tok-%d", f.seq)
	expires := time.Now().Add(f.ttl).UTC().Truncate(time.Second)
	f.expiries[tok] = expires
	return tok, expires
}

func (f *fakeServer) authorize(w http.ResponseWriter, r *http.Request) bool {
	tok := bearerOf(r)

	f.mu.Lock()
	expires, live := f.expiries[tok]
	revoked := f.revoked[tok]
	f.mu.Unlock()

	if tok == "" || !live || revoked || time.Now().After(expires) {
		writeFakeError(w, http.StatusUnauthorized, "invalid_token", "token missing, revoked or expired")
		return false
	}
	return true
}

// seed registers a pre-existing live token without going through the issue
// endpoint, for adopted-token tests.
func (f *fakeServer) seed(tok string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiries[tok] = time.Now().Add(ttl)
}

func (f *fakeServer) counts() (issues, refreshes, revokes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issues, f.refreshes, f.revokes
}

func (f *fakeServer) hostPort() (string, int) {
	u, err := url.Parse(f.srv.URL)
	require.NoError(f.t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(f.t, err)
	return u.Hostname(), port
}

func (f *fakeServer) apiBase() string { return f.srv.URL + "/api" }

func insecureTLS() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}

func bearerOf(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), BearerPrefix)
}

func writeFakeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFakeError(w http.ResponseWriter, code int, errCode, message string) {
	writeFakeJSON(w, code, map[string]string{"error": errCode, "message": message})
}

// isolateEnv points the external defaults layer at an absent config file and
// clears the MDM_* variables, so tests resolve only what they set themselves.
// Uses t.Setenv, so callers must not be parallel.
func isolateEnv(t *testing.T) {
	t.Setenv("MDM_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	for _, key := range []string{
		"MDM_HOST", "MDM_USER", "MDM_PORT", "MDM_VERIFY_CERT",
		"MDM_TIMEOUT", "MDM_OPEN_TIMEOUT", "MDM_KEEPALIVE_INTERVAL", "MDM_REFRESH_BUFFER",
	} {
		t.Setenv(key, "")
	}
}

// connect dials the fake server with password credentials and keep-alive off.
func (f *fakeServer) connect(t *testing.T) *Client {
	isolateEnv(t)
	host, port := f.hostPort()
	verify := false

	c := New()
	err := c.Connect(context.Background(), "", Params{
		Host:             host,
		Port:             port,
		User:             f.user,
		Password:         StaticPassword(f.password),
		VerifyCert:       &verify,
		DisableKeepAlive: true,
	})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

// acquire performs a plain password exchange against the fake server.
func (f *fakeServer) acquire(t *testing.T) *Token {
	tok, err := AcquireToken(context.Background(), TokenParams{
		BaseURL:  f.apiBase(),
		User:     f.user,
		Password: f.password,
		TLS:      insecureTLS(),
	})
	require.NoError(t, err)
	return tok
}
