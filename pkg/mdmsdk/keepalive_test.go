package mdmsdk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// connectKeepAlive dials with the keep-alive task enabled on a tight interval
// so tests can observe refreshes quickly.
func connectKeepAlive(t *testing.T, f *fakeServer, buffer time.Duration) *Client {
	isolateEnv(t)
	host, port := f.hostPort()
	verify := false

	c := New()
	err := c.Connect(context.Background(), "", Params{
		Host:              host,
		Port:              port,
		User:              f.user,
		Password:          StaticPassword(f.password),
		VerifyCert:        &verify,
		KeepAliveInterval: 20 * time.Millisecond,
		RefreshBuffer:     buffer,
	})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

func TestKeepAliveStartsOnConnect(t *testing.T) {
	f := newFakeServer(t)
	c := connectKeepAlive(t, f, time.Minute)

	require.True(t, c.KeepAliveRunning())

	c.Disconnect()
	require.False(t, c.KeepAliveRunning())
}

func TestKeepAliveDisabled(t *testing.T) {
	f := newFakeServer(t)
	c := f.connect(t)

	require.False(t, c.KeepAliveRunning())
}

func TestKeepAliveRefreshesNearExpiry(t *testing.T) {
	f := newFakeServer(t)
	// Buffer above the token TTL, so every tick sees the token as near
	// expiry and refreshes it.
	c := connectKeepAlive(t, f, f.ttl*2)

	require.Eventually(t, func() bool {
		_, refreshes, _ := f.counts()
		return refreshes >= 2
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, c.KeepAliveRunning())
}

func TestKeepAliveSkipsFreshToken(t *testing.T) {
	f := newFakeServer(t)
	// Buffer well below the token's remaining life: ticks come and go
	// without refreshing.
	c := connectKeepAlive(t, f, time.Second)

	time.Sleep(200 * time.Millisecond)
	_, refreshes, _ := f.counts()
	require.Zero(t, refreshes)
	require.True(t, c.KeepAliveRunning())
}

func TestKeepAliveFailureStopsTask(t *testing.T) {
	f := newFakeServer(t)
	c := connectKeepAlive(t, f, f.ttl*2)

	// Revoke everything server-side; the next refresh fails and the task
	// terminates for good instead of retrying.
	f.mu.Lock()
	for k := range f.expiries {
		f.revoked[k] = true
	}
	f.mu.Unlock()

	require.Eventually(t, func() bool {
		return !c.KeepAliveRunning()
	}, 5*time.Second, 10*time.Millisecond)

	_, refreshesSettled, _ := f.counts()
	time.Sleep(100 * time.Millisecond)
	_, refreshesLater, _ := f.counts()
	require.Equal(t, refreshesSettled, refreshesLater)
}

func TestKeepAliveConcurrentManualRefresh(t *testing.T) {
	f := newFakeServer(t)
	// Buffer above the TTL keeps the background task refreshing on every
	// tick while foreground goroutines hammer Refresh directly.
	c := connectKeepAlive(t, f, f.ttl*2)
	tok := c.Token()
	ctx := context.Background()

	const workers = 4
	const rounds = 25

	var (
		mu     sync.Mutex
		latest time.Time
		wg     sync.WaitGroup
	)
	errs := make(chan error, workers*rounds)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				expires, err := tok.Refresh(ctx)
				if err != nil {
					errs <- err
					return
				}
				mu.Lock()
				if expires.After(latest) {
					latest = expires
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	c.StopKeepAlive()

	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// No refresh result was lost: the token holds the newest expiry any
	// completed call returned, and the surviving credential still works.
	require.False(t, tok.Expires().Before(latest))
	require.True(t, tok.Valid(ctx))

	_, refreshes, _ := f.counts()
	require.GreaterOrEqual(t, refreshes, workers*rounds)
}

func TestStopKeepAliveIdempotent(t *testing.T) {
	t.Parallel()
	c := New()

	// No task running, never connected: all safe.
	c.StopKeepAlive()
	c.StopKeepAlive()
	c.StartKeepAlive()
	require.False(t, c.KeepAliveRunning())
}
