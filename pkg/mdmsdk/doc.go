/*
Package mdmsdk provides a client SDK for the device-management API.

# Overview

The mdmsdk package manages an authenticated HTTP session against a
device-management server: it acquires a bearer token, keeps it fresh with a
background keep-alive task, and exposes a thin verb surface
(Get/Post/Put/Patch/Delete) plus pagination helpers for list endpoints.

The package is organized around three types:

  - Token: the bearer credential, its expiry, and its lifecycle operations
    (acquire, refresh, validate, invalidate)
  - Client: one authenticated connection (host/port/base URL/TLS), owning
    exactly one Token, the verb methods, the keep-alive task, and small
    per-connection caches
  - Pager: a stateful helper for walking a paged collection, or fetching it
    whole

# Connecting

Connect performs the full handshake: it layers explicit parameters over
environment/config-file defaults, exchanges credentials for a token, opens the
authenticated channel, gates on the server's minimum API version, and starts
the keep-alive task:

	c := mdmsdk.New()
	err := c.Connect(ctx, "https://mdm.example.com:8443", mdmsdk.Params{
		User:     "api-user",
		Password: mdmsdk.StaticPassword("secret"),
	})

Either fully succeeds, or fails and leaves the client disconnected. An
existing token string or *Token may be supplied instead of credentials:

	err := c.Connect(ctx, "", mdmsdk.Params{
		Host:        "mdm.example.com",
		TokenString: raw,
	})

# Requests

Verb methods require a connected client and return the raw JSON body; the SDK
deliberately does no business-object modeling:

	body, err := c.Get(ctx, "v1/devices/"+id)

Non-2xx responses surface as *APIError carrying the status, method, path and
response body. Download retrieves raw payloads through a one-off channel
without the JSON codec.

# Pagination

List endpoints serve {"results": [...], "totalCount": N} pages addressed by a
zero-based page index. A Pager walks them manually or in bulk:

	p, err := mdmsdk.NewPager(c, "v1/devices", mdmsdk.PageOptions{Size: 100})
	page, err := p.FirstPage(ctx)
	for len(page.Results) > 0 {
		page, err = p.NextPage(ctx)
	}

	all, err := mdmsdk.FetchAll(ctx, c, "v1/devices", mdmsdk.PageOptions{})

# Keep-alive

While connected, a single background task wakes on a fixed interval and
refreshes the token whenever its remaining life drops below the refresh
buffer. The task is cancelled deterministically by StopKeepAlive, Disconnect
or Logout. A failed background refresh ends the task; it is not restarted,
and the next foreground call surfaces the real error.

# Thread safety

A Client and its Token are safe for concurrent use. Token refreshes are
serialized, so a manual Refresh racing the keep-alive task cannot lose an
update. A Pager supports one paging session at a time; concurrent sessions
need distinct Pagers.
*/
package mdmsdk
