package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/metrics"
)

// CycleRunner runs one poll cycle. *Controller satisfies it.
type CycleRunner interface {
	RunCycle(ctx context.Context, seen *SeenSet) CycleOutcome
}

// Scheduler drives a CycleRunner on a fixed cadence until its context ends.
// The wait is measured from the end of one cycle to the start of the next,
// so cycles never overlap.
type Scheduler struct {
	runner   CycleRunner
	store    SeenStore
	interval time.Duration
	clock    Clock
	logger   *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner CycleRunner, store SeenStore, interval time.Duration, clock Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run loads the seen set once and blocks, running cycles until ctx is
// canceled. Cancellation is the normal way to stop and returns nil; no state
// is flushed on the way out because every cycle commits its own batch.
func (s *Scheduler) Run(ctx context.Context) error {
	seen := s.store.Load(ctx)
	metrics.SetSeenIDs(seen.Len())
	s.logger.Info("loaded previously seen updates", zap.Int("count", seen.Len()))

	for {
		if ctx.Err() != nil {
			s.logger.Info("monitor stopped")
			return nil
		}
		s.runner.RunCycle(ctx, seen)

		next := s.clock.Now().Add(s.interval)
		s.logger.Info("waiting until next check",
			zap.Duration("interval", s.interval),
			zap.String("next_check", next.Local().Format("15:04:05")),
		)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("monitor stopped")
			return nil
		case <-timer.C:
		}
	}
}
