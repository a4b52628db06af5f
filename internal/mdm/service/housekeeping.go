package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/mdm/internal/mdm/store"
)

// HousekeepingService periodically deletes expired token records to prevent
// unbounded growth of the issued_tokens table.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Non-blocking; call Stop() to shut the worker down.
func (s *HousekeepingService) Start() {
	s.started = true
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until the worker
// has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	if !s.started {
		return
	}
	s.started = false
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) cleanup() {
	ctx := context.Background()

	if err := s.Store.Tokens().DeleteExpiredTokens(ctx); err != nil {
		s.Logger.Error("failed to delete expired tokens", "error", err)
		return
	}
	s.Logger.Debug("deleted expired tokens")
}
