package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/jonboulle/clockwork"
)

// DefaultHousekeepingTimeout bounds one background cleanup pass.
const DefaultHousekeepingTimeout = 30 * time.Second

// HousekeepingService periodically clears MFA candidate secrets that were
// never confirmed, so an abandoned enrollment does not linger forever.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Interval time.Duration

	// MaxPendingAge is how long a candidate secret may wait for
	// confirmation before it is dropped.
	MaxPendingAge time.Duration

	// Timeout bounds each pass the background worker runs. A pass that
	// overruns is abandoned and retried on the next tick.
	Timeout time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour. A non-positive maxPendingAge
// defaults to 24 hours.
func NewHousekeepingService(
	store store.Store,
	logger *slog.Logger,
	clock clockwork.Clock,
	interval, maxPendingAge time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if maxPendingAge <= 0 {
		maxPendingAge = 24 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &HousekeepingService{
		Store:         store,
		Logger:        logger,
		Clock:         clock,
		Interval:      interval,
		MaxPendingAge: maxPendingAge,
		Timeout:       DefaultHousekeepingTimeout,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "max_pending_age", s.MaxPendingAge)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := s.Clock.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.pass()

	for {
		select {
		case <-ticker.Chan():
			s.pass()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) pass() {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultHousekeepingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.Cleanup(ctx)
}

// Cleanup runs one pass and returns how many candidates were cleared.
func (s *HousekeepingService) Cleanup(ctx context.Context) int64 {
	cutoff := s.Clock.Now().Add(-s.MaxPendingAge)

	n, err := s.Store.Users().ClearStaleEnrollments(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to clear stale mfa enrollments", "error", err)
		return 0
	}

	s.Logger.Info("housekeeping cleanup completed", "cleared_enrollments", n)
	return n
}
