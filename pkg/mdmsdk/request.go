package mdmsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Do issues an HTTP call on the shared authenticated channel. body, when
// non-nil, is JSON-encoded. On a 2xx response the raw body is returned; on
// anything else the call fails with *APIError. Requires a connected client.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	httpc, token, baseURL, err := c.channel()
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, joinPath(baseURL, path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(method, path, resp.StatusCode, respBody)
	}
	if len(respBody) == 0 {
		return nil, nil
	}
	return json.RawMessage(respBody), nil
}

// DoJSON is Do plus decoding of the response body into out. A nil out or an
// empty response body skips decoding.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Get issues a GET on the shared channel.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch issues a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete issues a DELETE on the shared channel.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Download issues a GET through a separate one-off channel without the JSON
// codec, for raw or binary payloads. The caller owns closing the returned
// reader.
func (c *Client) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	c.mu.RLock()
	if !c.connected || c.token == nil {
		c.mu.RUnlock()
		return nil, ErrNotConnected
	}
	token := c.token
	baseURL := c.baseURL
	timeout := c.timeout
	openTimeout := c.openTimeout
	tlsConfig := c.tlsConfig
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, joinPath(baseURL, path), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", token.AuthorizationHeader())

	resp, err := newHTTPClient(timeout, openTimeout, tlsConfig).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send download request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, newAPIError(http.MethodGet, path, resp.StatusCode, body)
	}
	return resp.Body, nil
}

func joinPath(baseURL, path string) string {
	return baseURL + "/" + strings.TrimPrefix(path, "/")
}
