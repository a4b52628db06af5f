package mdmsdk

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// BearerPrefix is the fixed Authorization header prefix for API tokens.
const BearerPrefix = "Bearer "

// Auth endpoint paths, relative to the API base URL.
const (
	tokensPath     = "/v1/auth/tokens"
	authCheckPath  = "/v1/auth"
	keepAlivePath  = "/v1/auth/keepAlive"
	invalidatePath = "/v1/auth/invalidateToken"
	versionPath    = "/v1"
)

// TokenParams are the inputs for acquiring a Token directly, outside of a
// Client.Connect handshake.
type TokenParams struct {
	// BaseURL is the API root, e.g. "https://mdm.example.com:8443/api".
	BaseURL string

	// User and Password drive the password exchange. Ignored when
	// TokenString is set.
	User     string
	Password string

	// TokenString adopts an externally supplied token instead of a password
	// exchange. The "Bearer " prefix is accepted and stripped. The string is
	// validated against the server and immediately refreshed so the expiry
	// is known.
	TokenString string

	Timeout     time.Duration
	OpenTimeout time.Duration
	TLS         *tls.Config
	Logger      *slog.Logger
}

// Token owns one bearer credential and its lifecycle. All methods are safe
// for concurrent use; refreshes are serialized so overlapping refreshes
// cannot corrupt the token string/expiry pair.
type Token struct {
	httpc   *http.Client
	baseURL string
	logger  *slog.Logger

	mu      sync.RWMutex
	user    string
	token   string
	expires time.Time
	issued  time.Time
	valid   bool
}

// tokenResponse is the body of both the token-issue and keep-alive endpoints.
type tokenResponse struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// authInfo is the body of the authenticated GET v1/auth probe.
type authInfo struct {
	Account struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"account"`
	Version string `json:"version"`
}

// AcquireToken exchanges credentials for a signed bearer token.
//
// With User+Password it performs the password exchange and returns
// *AuthenticationError on a 401. With TokenString it normalizes the string,
// probes the auth endpoint to validate it and learn the owning user
// (*InvalidDataError on rejection), then refreshes once so the expiry is
// known; a bare externally supplied token may have unknown remaining life.
func AcquireToken(ctx context.Context, p TokenParams) (*Token, error) {
	if p.BaseURL == "" {
		return nil, &MissingDataError{Field: "base url"}
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Token{
		httpc:   newHTTPClient(p.Timeout, p.OpenTimeout, p.TLS),
		baseURL: strings.TrimSuffix(p.BaseURL, "/"),
		logger:  logger,
	}

	if p.TokenString != "" {
		if err := t.adopt(ctx, p.TokenString); err != nil {
			return nil, err
		}
		return t, nil
	}

	if p.User == "" {
		return nil, &MissingDataError{Field: "user"}
	}
	if p.Password == "" {
		return nil, &MissingDataError{Field: "password"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+tokensPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(p.User, p.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthenticationError{
			StatusCode: resp.StatusCode,
			Message:    "credentials rejected for user " + p.User,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(http.MethodPost, tokensPath, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	now := time.Now()
	t.user = p.User
	t.token = tr.Token
	t.expires = tr.Expires
	t.issued = now
	t.valid = true

	return t, nil
}

// adopt wraps an externally supplied token string: validate against the
// server, learn the owning user, then refresh for a known expiry.
func (t *Token) adopt(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, BearerPrefix)
	if raw == "" {
		return &InvalidDataError{Message: "empty token string"}
	}

	t.token = raw
	t.valid = true

	info, err := t.fetchAuthInfo(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return &InvalidDataError{Message: "token string rejected by server"}
		}
		return err
	}
	t.user = info.Account.Username
	t.issued = time.Now()

	// The supplied string has unknown remaining life; trade it in so the
	// expiry is known.
	if _, err := t.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh adopted token: %w", err)
	}
	return nil
}

// Refresh calls the keep-alive endpoint and replaces the stored token string,
// expiry and issue time. It fails fast with ErrTokenExpired when the token is
// already expired. Refreshes on one Token are serialized.
func (t *Token) Refresh(ctx context.Context) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid {
		return time.Time{}, ErrTokenInvalidated
	}
	if t.expiredLocked() {
		return time.Time{}, ErrTokenExpired
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+keepAlivePath, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", BearerPrefix+t.token)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to send keep-alive request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read keep-alive response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return time.Time{}, newAPIError(http.MethodPost, keepAlivePath, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode keep-alive response: %w", err)
	}

	t.token = tr.Token
	t.expires = tr.Expires
	t.issued = time.Now()

	return t.expires, nil
}

// Valid reports whether the token is usable right now. It returns false
// immediately when the token is locally absent, invalidated or expired;
// otherwise it performs a live server probe. This is the authoritative check,
// as opposed to the cheap local Expired.
func (t *Token) Valid(ctx context.Context) bool {
	t.mu.RLock()
	usable := t.valid && t.token != "" && !t.expiredLocked()
	t.mu.RUnlock()
	if !usable {
		return false
	}

	_, err := t.fetchAuthInfo(ctx)
	return err == nil
}

// Expired reports whether the expiry has passed, by local clock only. A token
// with unknown expiry is not considered expired.
func (t *Token) Expired() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiredLocked()
}

func (t *Token) expiredLocked() bool {
	return !t.expires.IsZero() && !time.Now().Before(t.expires)
}

// Remaining returns the life left on the token, negative once expired and
// zero when the expiry is unknown.
func (t *Token) Remaining() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.expires.IsZero() {
		return 0
	}
	return time.Until(t.expires)
}

// Invalidate revokes the token server-side and marks it invalid locally. The
// local mark happens regardless of the network outcome: once a caller asks to
// stop using a credential it must never be reused, even if the server-side
// revoke failed. The returned error reports that case.
func (t *Token) Invalidate(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.valid {
		return nil
	}
	raw := t.token
	t.valid = false

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+invalidatePath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", BearerPrefix+raw)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send invalidate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return newAPIError(http.MethodPost, invalidatePath, resp.StatusCode, body)
	}
	return nil
}

// APIVersion queries the server root with the current token and returns the
// reported API version.
func (t *Token) APIVersion(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := t.get(ctx, versionPath, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// User returns the identifier of the account the token was issued to.
func (t *Token) User() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.user
}

// Expires returns the current expiry, zero when unknown.
func (t *Token) Expires() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expires
}

// Issued returns when the current token string was obtained.
func (t *Token) Issued() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.issued
}

// BaseURL returns the API root this token authenticates against.
func (t *Token) BaseURL() string { return t.baseURL }

// AuthorizationHeader returns the ready-to-send header value, the fixed
// prefix concatenated with the current raw token string.
func (t *Token) AuthorizationHeader() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return BearerPrefix + t.token
}

func (t *Token) fetchAuthInfo(ctx context.Context) (authInfo, error) {
	var info authInfo
	if err := t.get(ctx, authCheckPath, &info); err != nil {
		return authInfo{}, err
	}
	return info, nil
}

// get issues an authenticated GET on the token's own channel and decodes the
// JSON body into out.
func (t *Token) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", t.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(http.MethodGet, path, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newHTTPClient builds an HTTP channel with the connect (open) timeout on the
// dialer and the response timeout on the whole round trip.
func newHTTPClient(timeout, openTimeout time.Duration, tlsCfg *tls.Config) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: openTimeout}).DialContext
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
