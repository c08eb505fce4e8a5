package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/sitaware/internal/domain"
	"github.com/couchcryptid/sitaware/internal/observability"
)

// FeedRefresher refreshes a single feed.
type FeedRefresher interface {
	RefreshFeed(ctx context.Context, kind domain.FeedKind) (Snapshot, error)
}

// Scheduler runs one independent ticker per feed. A slow or failing feed
// never delays another feed's ticks.
type Scheduler struct {
	refresher FeedRefresher
	intervals map[domain.FeedKind]time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a stopped scheduler. Feeds with a non-positive
// interval are not scheduled.
func NewScheduler(r FeedRefresher, intervals map[domain.FeedKind]time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		refresher: r,
		intervals: intervals,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Start launches the per-feed loops. They run until ctx is cancelled or Stop
// is called. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, kind := range domain.FeedKinds {
		interval := s.intervals[kind]
		if interval <= 0 {
			s.logger.Warn("feed not scheduled", "feed", kind, "interval", interval)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, kind, interval)
	}
	s.metrics.SchedulerRunning.Set(1)
	s.logger.Info("scheduler started")
}

// Stop cancels future ticks and waits for the loops to exit. A refresh that
// is already in flight runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.metrics.SchedulerRunning.Set(0)
	s.logger.Info("scheduler stopped")
}

// Shutdown is Stop bounded by ctx. When ctx ends first it returns the context
// error; refreshes still in flight are abandoned to finish in the background.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(ctx context.Context, kind domain.FeedKind, interval time.Duration) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.logger.Debug("scheduled refresh", "feed", kind)
			// Teardown stops ticking but does not abort a request already sent.
			if _, err := s.refresher.RefreshFeed(context.WithoutCancel(ctx), kind); err != nil {
				s.logger.Debug("scheduled refresh failed", "feed", kind, "error", err)
			}
		}
	}
}
