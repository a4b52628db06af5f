package mdmsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTokenExpired is returned when an operation needs a live token but
	// the token's expiry has already passed. Refresh cannot resurrect an
	// expired token, only extend a live one.
	ErrTokenExpired = errors.New("mdmsdk: token has expired")

	// ErrTokenInvalidated is returned when a token that has been revoked via
	// Invalidate is used again.
	ErrTokenInvalidated = errors.New("mdmsdk: token has been invalidated")

	// ErrNotConnected is returned by data-plane operations on a client that
	// is not connected.
	ErrNotConnected = &InvalidConnectionError{Reason: "not connected"}
)

// MissingDataError reports a required connection parameter that could not be
// resolved from explicit params, the environment, or defaults.
type MissingDataError struct {
	Field string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("mdmsdk: missing required value: %s", e.Field)
}

// InvalidConnectionError reports an operation attempted on an unusable
// connection: disconnected, or a server below the minimum API version.
type InvalidConnectionError struct {
	Reason string
}

func (e *InvalidConnectionError) Error() string {
	return "mdmsdk: invalid connection: " + e.Reason
}

// AuthenticationError reports a rejected credential exchange (HTTP 401 on
// password login).
type AuthenticationError struct {
	StatusCode int
	Message    string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("mdmsdk: authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// InvalidDataError reports a supplied token (string or object) the server or
// the reuse rules rejected.
type InvalidDataError struct {
	Message string
}

func (e *InvalidDataError) Error() string {
	return "mdmsdk: invalid data: " + e.Message
}

// InvalidArgumentError reports malformed caller input, such as a page size
// outside the allowed range.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "mdmsdk: invalid argument: " + e.Message
}

// APIError is any non-success HTTP response on a data-plane call. It carries
// the response for caller inspection; the SDK performs no retries.
type APIError struct {
	StatusCode int
	Method     string
	Path       string

	// Code and Message are parsed from the server's JSON error body when
	// present. Body always holds the raw response.
	Code    string
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("mdmsdk: %s %s failed (status %d): %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("mdmsdk: %s %s failed (status %d): %s",
		e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// errorBody is the error shape the device-management server responds with.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// newAPIError builds an *APIError from a non-2xx response, parsing the
// server's error body when it is the expected JSON shape.
func newAPIError(method, path string, status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Method:     method,
		Path:       path,
		Body:       body,
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Code = eb.Error
		apiErr.Message = eb.Message
	}

	return apiErr
}
