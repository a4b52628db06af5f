package mdm_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/aussiebroadwan/mdm/internal/mdm/app"
	"github.com/aussiebroadwan/mdm/pkg/mdmsdk"
	"github.com/stretchr/testify/require"
)

/*
 * Common helpers for MDM service end-to-end tests. The full application is
 * wired with a temp-dir SQLite database and mounted on an in-process TLS
 * server; the SDK then connects to it like any remote instance.
 */

const (
	adminUsername = "admin"
	adminPassword = "Admin123!"
)

// startServer boots the full application and serves it over TLS in-process.
func startServer(t *testing.T) (host string, port int) {
	t.Helper()

	application, err := app.New(app.Config{
		Issuer:        "mdm-e2e",
		TokenTTL:      30 * time.Minute,
		DatabaseFile:  filepath.Join(t.TempDir(), "e2e.db"),
		AdminUser:     adminUsername,
		AdminPassword: adminPassword,
		LogLevel:      "error",
		LogFormat:     "text",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	srv := httptest.NewTLSServer(application.Handler())
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err = strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

// isolateEnv keeps the SDK's external defaults layer out of the test.
func isolateEnv(t *testing.T) {
	t.Setenv("MDM_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	for _, key := range []string{
		"MDM_HOST", "MDM_USER", "MDM_PORT", "MDM_VERIFY_CERT",
		"MDM_TIMEOUT", "MDM_OPEN_TIMEOUT", "MDM_KEEPALIVE_INTERVAL", "MDM_REFRESH_BUFFER",
	} {
		t.Setenv(key, "")
	}
}

// connect dials the in-process server with the seeded admin credentials.
func connect(t *testing.T) *mdmsdk.Client {
	t.Helper()
	isolateEnv(t)

	host, port := startServer(t)
	verify := false

	c := mdmsdk.New()
	err := c.Connect(context.Background(), "", mdmsdk.Params{
		Host:             host,
		Port:             port,
		User:             adminUsername,
		Password:         mdmsdk.StaticPassword(adminPassword),
		VerifyCert:       &verify,
		DisableKeepAlive: true,
	})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}
