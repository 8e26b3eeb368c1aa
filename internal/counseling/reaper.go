package counseling

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tetonam/counseling-system/internal/lock"
	"github.com/tetonam/counseling-system/internal/metrics"
)

// SweepLockKey is the fixed lock key guarding reaper sweeps when multiple
// service instances run. The OPEN -> CLOSED transition is idempotent, so
// duplicate sweeps are harmless; the lock only avoids wasted work.
const SweepLockKey = "counseling:reaper:sweep"

// Reaper periodically transitions overdue OPEN sessions to CLOSED.
// A session is overdue once its reservation time is older than now minus
// the grace window.
type Reaper struct {
	store    Store
	interval time.Duration
	grace    time.Duration
	logger   zerolog.Logger

	sweepLocker lock.Locker // optional

	stopCh chan struct{}
	doneCh chan struct{}
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithSweepLock makes each sweep take a short-lived distributed lock so that
// concurrent instances don't sweep redundantly. A contended sweep is skipped.
func WithSweepLock(locker lock.Locker) ReaperOption {
	return func(r *Reaper) {
		r.sweepLocker = locker
	}
}

// NewReaper creates a reaper that sweeps every interval, closing OPEN
// sessions older than now minus grace.
func NewReaper(store Store, interval, grace time.Duration, logger zerolog.Logger, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		store:    store,
		interval: interval,
		grace:    grace,
		logger:   logger.With().Str("component", "reaper").Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins the sweep loop in a background goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop signals the reaper to stop and waits for the loop to finish.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) run() {
	defer close(r.doneCh)

	// Run an initial sweep
	r.runSweep()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.logger.Info().Msg("reaper stopped")
			return
		case <-ticker.C:
			r.runSweep()
		}
	}
}

func (r *Reaper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx = r.logger.WithContext(ctx)

	if r.sweepLocker == nil {
		r.sweep(ctx)
		return
	}

	// No wait: if another instance is mid-sweep, this run is redundant.
	err := lock.WithLock(ctx, r.sweepLocker, SweepLockKey, 0, r.interval, func(ctx context.Context) error {
		r.sweep(ctx)
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		metrics.RecordReaperSweep("skipped", 0)
		r.logger.Debug().Msg("sweep already running elsewhere, skipped")
	} else if err != nil {
		metrics.RecordReaperSweep("error", 0)
		r.logger.Error().Err(err).Msg("failed to take sweep lock")
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	threshold := time.Now().Add(-r.grace)

	closed, err := r.store.CloseOverdue(ctx, threshold)
	if err != nil {
		metrics.RecordReaperSweep("error", 0)
		r.logger.Error().Err(err).Msg("failed to close overdue counselings")
		return
	}

	metrics.RecordReaperSweep("ok", closed)
	if closed > 0 {
		r.logger.Info().
			Int64("closedCount", closed).
			Time("threshold", threshold).
			Msg("closed overdue counselings")
	}
}
