package mdmsdk

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Params are the connection parameters for Connect. Explicit values always
// win over URL components, which win over the external defaults layer
// (MDM_* environment variables and the config file), which wins over the
// built-in constants.
type Params struct {
	Host string
	Port int
	User string

	// Password is resolved lazily, only when the handshake actually needs a
	// password exchange. Ignored when Token or TokenString is supplied.
	Password PasswordSource

	// TokenString supplies an existing raw token instead of credentials; it
	// is validated against the server and refreshed to learn its expiry.
	TokenString string

	// Token supplies an existing Token object to adopt. It must be valid
	// and have at least TokenReuseMinLife remaining.
	Token *Token

	Timeout     time.Duration
	OpenTimeout time.Duration

	// VerifyCert toggles server certificate verification; nil means verify.
	VerifyCert    *bool
	TLSMinVersion uint16

	// DisableKeepAlive leaves the background refresh task stopped; the
	// caller then owns token freshness.
	DisableKeepAlive  bool
	KeepAliveInterval time.Duration
	RefreshBuffer     time.Duration

	Logger *slog.Logger
}

// Client is one authenticated connection to a device-management server. It
// owns exactly one Token, the verb surface, the keep-alive task and the
// per-connection caches. The zero value is not usable; call New.
//
// A Client is either fully connected or fully disconnected: Connect succeeds
// completely or fails and leaves the client disconnected.
type Client struct {
	logger *slog.Logger

	mu          sync.RWMutex
	host        string
	port        int
	user        string
	baseURL     string
	timeout     time.Duration
	openTimeout time.Duration
	tlsConfig   *tls.Config
	token       *Token
	httpc       *http.Client
	connected   bool
	loginTime   time.Time

	kaInterval    time.Duration
	refreshBuffer time.Duration
	keepAlive     *keepAliveTask

	listCache      map[string]any
	singletonCache map[string]any
	extAttrCache   map[string]any
}

// New returns a disconnected Client.
func New() *Client {
	return &Client{
		logger:         slog.Default(),
		listCache:      map[string]any{},
		singletonCache: map[string]any{},
		extAttrCache:   map[string]any{},
	}
}

// Connect performs the full handshake: reset, parameter resolution, token
// acquisition, channel setup, API version gate, keep-alive start. rawURL may
// be empty when Params carries the target; when given it must use the https
// scheme and may embed host, port, user and password, none of which override
// explicitly supplied Params.
func (c *Client) Connect(ctx context.Context, rawURL string, p Params) error {
	c.Disconnect()

	if p.Logger != nil {
		c.logger = p.Logger
	}

	// Adopt a supplied Token object. The expiry and minimum-remaining-life
	// checks are local and run before any network traffic.
	adopted := p.Token
	if adopted != nil {
		if adopted.Expired() {
			return &InvalidDataError{Message: "supplied token is expired"}
		}
		if adopted.Remaining() < TokenReuseMinLife {
			return &InvalidDataError{Message: fmt.Sprintf(
				"supplied token expires in %s, need at least %s to reuse",
				adopted.Remaining().Round(time.Second), TokenReuseMinLife)}
		}
		if !adopted.Valid(ctx) {
			return &InvalidDataError{Message: "supplied token rejected by server"}
		}
		host, port, err := splitBaseURL(adopted.BaseURL())
		if err != nil {
			return &InvalidDataError{Message: "supplied token has malformed base url: " + err.Error()}
		}
		if p.Host == "" {
			p.Host = host
		}
		if p.Port == 0 {
			p.Port = port
		}
		if p.User == "" {
			p.User = adopted.User()
		}
	}

	if rawURL != "" {
		if err := applyURL(&p, rawURL); err != nil {
			return err
		}
	}

	// External defaults layer: config file + environment.
	d, err := loadConnDefaults()
	if err != nil {
		return err
	}
	if p.Host == "" {
		p.Host = d.Host
	}
	if p.User == "" {
		p.User = d.User
	}
	if p.Port == 0 {
		p.Port = d.Port
	}
	if p.Timeout == 0 {
		p.Timeout = d.Timeout
	}
	if p.OpenTimeout == 0 {
		p.OpenTimeout = d.OpenTimeout
	}
	if p.VerifyCert == nil {
		p.VerifyCert = d.VerifyCert
	}
	if p.KeepAliveInterval == 0 {
		p.KeepAliveInterval = d.KeepAliveInterval
	}
	if p.RefreshBuffer == 0 {
		p.RefreshBuffer = d.RefreshBuffer
	}

	// Built-in defaults.
	if p.Port == 0 {
		p.Port = defaultPortFor(p.Host)
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.OpenTimeout == 0 {
		p.OpenTimeout = DefaultOpenTimeout
	}
	if p.KeepAliveInterval == 0 {
		p.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if p.RefreshBuffer == 0 {
		p.RefreshBuffer = DefaultRefreshBuffer
	}

	// Required fields: host always; user+password unless a token came in.
	if p.Host == "" {
		return &MissingDataError{Field: "host"}
	}
	if adopted == nil && p.TokenString == "" {
		if p.User == "" {
			return &MissingDataError{Field: "user"}
		}
		if p.Password == nil {
			return &MissingDataError{Field: "password"}
		}
	}

	tlsConfig := &tls.Config{MinVersion: p.TLSMinVersion}
	if p.VerifyCert != nil && !*p.VerifyCert {
		tlsConfig.InsecureSkipVerify = true
	}

	baseURL := "https://" + net.JoinHostPort(p.Host, strconv.Itoa(p.Port)) + apiRootPath

	tok := adopted
	if tok == nil {
		tp := TokenParams{
			BaseURL:     baseURL,
			User:        p.User,
			TokenString: p.TokenString,
			Timeout:     p.Timeout,
			OpenTimeout: p.OpenTimeout,
			TLS:         tlsConfig,
			Logger:      c.logger,
		}
		if p.TokenString == "" {
			pw, err := p.Password.Password()
			if err != nil {
				return fmt.Errorf("failed to resolve password: %w", err)
			}
			tp.Password = pw
		}
		if tok, err = AcquireToken(ctx, tp); err != nil {
			return err
		}
	}

	// The token is the source of truth for the final base URL and user.
	version, err := tok.APIVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read server API version: %w", err)
	}
	if !versionAtLeast(version, MinAPIVersion) {
		return &InvalidConnectionError{Reason: fmt.Sprintf(
			"server API version %s below minimum supported %s", version, MinAPIVersion)}
	}

	c.mu.Lock()
	c.host = p.Host
	c.port = p.Port
	c.user = tok.User()
	c.baseURL = tok.BaseURL()
	c.timeout = p.Timeout
	c.openTimeout = p.OpenTimeout
	c.tlsConfig = tlsConfig
	c.token = tok
	c.httpc = newHTTPClient(p.Timeout, p.OpenTimeout, tlsConfig)
	c.loginTime = tok.Issued()
	c.kaInterval = p.KeepAliveInterval
	c.refreshBuffer = p.RefreshBuffer
	c.connected = true
	c.mu.Unlock()

	c.logger.Debug("connected",
		"host", p.Host, "port", p.Port, "user", tok.User(), "api_version", version)

	if !p.DisableKeepAlive {
		c.StartKeepAlive()
	}
	return nil
}

// Disconnect tears down the token reference, HTTP channel, TLS options and
// keep-alive task and empties all caches. It is idempotent and safe on a
// client that never connected.
func (c *Client) Disconnect() {
	c.StopKeepAlive()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = ""
	c.port = 0
	c.user = ""
	c.baseURL = ""
	c.tlsConfig = nil
	c.token = nil
	c.httpc = nil
	c.connected = false
	c.loginTime = time.Time{}
	c.flushAllLocked()
}

// Logout revokes the token server-side, then disconnects. The client ends up
// disconnected even when the revoke fails; the error reports that case.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.RLock()
	tok := c.token
	c.mu.RUnlock()

	var err error
	if tok != nil {
		err = tok.Invalidate(ctx)
	}
	c.Disconnect()
	return err
}

// Connected reports whether the client holds an authenticated channel.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Token returns the connection's Token, nil when disconnected.
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Host returns the connected host.
func (c *Client) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// Port returns the connected port.
func (c *Client) Port() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.port
}

// User returns the authenticated user.
func (c *Client) User() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// BaseURL returns the API root URL, empty when disconnected.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// LoginTime returns when the current session's token was issued.
func (c *Client) LoginTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loginTime
}

// channel returns the pieces a data-plane call needs, or ErrNotConnected.
func (c *Client) channel() (*http.Client, *Token, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.token == nil || c.httpc == nil {
		return nil, nil, "", ErrNotConnected
	}
	return c.httpc, c.token, c.baseURL, nil
}

// applyURL folds the URL's components into p without overriding anything the
// caller set explicitly. Only the https scheme is accepted.
func applyURL(p *Params, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &InvalidArgumentError{Message: "malformed url: " + err.Error()}
	}
	if u.Scheme != "https" {
		return &InvalidArgumentError{Message: fmt.Sprintf(
			"unsupported scheme %q: only https connections are allowed", u.Scheme)}
	}

	if p.Host == "" {
		p.Host = u.Hostname()
	}
	if p.Port == 0 && u.Port() != "" {
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return &InvalidArgumentError{Message: "malformed port in url: " + u.Port()}
		}
		p.Port = port
	}
	if u.User != nil {
		if p.User == "" {
			p.User = u.User.Username()
		}
		if p.Password == nil {
			if pw, ok := u.User.Password(); ok {
				p.Password = StaticPassword(pw)
			}
		}
	}
	return nil
}

// splitBaseURL extracts host and port from an API base URL.
func splitBaseURL(baseURL string) (string, int, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", 0, err
	}
	port := 0
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return "", 0, err
		}
	}
	return u.Hostname(), port, nil
}
