package mdmsdk

import (
	"context"
	"time"
)

// keepAliveTask is the handle for the background refresh loop. At most one
// exists per Client.
type keepAliveTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartKeepAlive starts the background keep-alive task: a single goroutine
// that wakes on the configured interval and refreshes the token when its
// remaining life drops below the refresh buffer. Starting while a task is
// already running, or while disconnected, is a no-op.
func (c *Client) StartKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keepAlive != nil || c.token == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &keepAliveTask{cancel: cancel, done: make(chan struct{})}
	c.keepAlive = task

	go c.keepAliveLoop(ctx, task, c.token, c.kaInterval, c.refreshBuffer)
	c.logger.Debug("keep-alive task started", "interval", c.kaInterval, "refresh_buffer", c.refreshBuffer)
}

// StopKeepAlive cancels the task and waits for it to exit. Safe to call when
// no task is running, and repeatedly.
func (c *Client) StopKeepAlive() {
	c.mu.Lock()
	task := c.keepAlive
	c.keepAlive = nil
	c.mu.Unlock()

	if task == nil {
		return
	}
	task.cancel()
	<-task.done
	c.logger.Debug("keep-alive task stopped")
}

// KeepAliveRunning reports whether the background task is active.
func (c *Client) KeepAliveRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keepAlive != nil
}

func (c *Client) keepAliveLoop(ctx context.Context, task *keepAliveTask, tok *Token, interval, buffer time.Duration) {
	defer close(task.done)

	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	if buffer <= 0 {
		buffer = DefaultRefreshBuffer
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if tok.Remaining() >= buffer {
				continue
			}
			expires, err := tok.Refresh(ctx)
			if err != nil {
				// Fatal for this task: no restart, no retry. The next
				// foreground call surfaces the real error.
				c.logger.Error("keep-alive refresh failed, task stopping", "error", err)
				c.clearKeepAliveHandle(task)
				return
			}
			c.logger.Debug("keep-alive refreshed token", "expires", expires)
		}
	}
}

// clearKeepAliveHandle detaches a self-terminated task so a later
// StartKeepAlive is not refused by a dead handle.
func (c *Client) clearKeepAliveHandle(task *keepAliveTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAlive == task {
		c.keepAlive = nil
	}
}
