package scheduler

import (
	"context"

	"github.com/MrSnakeDoc/showcase/internal/logger"
)

// Sweepable is a store view that can repair drift between its items and its keys.
type Sweepable interface {
	Sweep(ctx context.Context) error
}

// Sweeper periodically removes stray item keys and rewrites a drifted order,
// the leftovers of a crash between two writes.
type Sweeper struct {
	target Sweepable
	logger logger.Logger
	job    *periodic
}

func NewSweeper(target Sweepable, log logger.Logger, schedule string) *Sweeper {
	s := &Sweeper{target: target, logger: log}
	s.job = newPeriodic("consistency_sweep", schedule, log, s.Run)
	return s
}

// Start sweeps once, then on schedule.
func (s *Sweeper) Start(ctx context.Context) error {
	return s.job.start(ctx)
}

func (s *Sweeper) Stop() {
	s.job.stop()
}

// Run performs a single sweep.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Debug("running storage consistency sweep")
	return s.target.Sweep(ctx)
}
