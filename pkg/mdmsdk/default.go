package mdmsdk

import "sync"

// Process-wide default client, for programs that hold exactly one
// connection. It is an explicit registry: nothing in this package reaches
// for it implicitly.

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide default client, lazily constructing a
// disconnected one on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New()
	}
	return defaultClient
}

// SetDefault replaces the process-wide default client.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient = c
}
