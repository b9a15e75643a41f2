package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/MrSnakeDoc/showcase/internal/logger"
)

// periodic runs one job on a cron schedule. A run still in progress when the
// next one is due makes the next one skip.
type periodic struct {
	name   string
	spec   string
	run    func(ctx context.Context) error
	logger logger.Logger
	cron   *cron.Cron
	cancel context.CancelFunc
}

func newPeriodic(name, spec string, log logger.Logger, run func(ctx context.Context) error) *periodic {
	return &periodic{
		name:   name,
		spec:   spec,
		run:    run,
		logger: log,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// start runs the job once, then on schedule until stop or ctx is cancelled.
func (p *periodic) start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	if err := p.run(ctx); err != nil {
		p.logger.Warn("initial run failed",
			logger.String("job", p.name),
			logger.Error(err))
	}

	_, err := p.cron.AddFunc(p.spec, func() {
		if err := p.run(ctx); err != nil {
			p.logger.Error("scheduled run failed",
				logger.String("job", p.name),
				logger.Error(err))
		}
	})
	if err != nil {
		p.cancel()
		return fmt.Errorf("invalid schedule %q for %s: %w", p.spec, p.name, err)
	}

	p.cron.Start()
	p.logger.Info("scheduled job started",
		logger.String("job", p.name),
		logger.String("schedule", p.spec))
	return nil
}

// stop waits for a running job to finish.
func (p *periodic) stop() {
	<-p.cron.Stop().Done()
	if p.cancel != nil {
		p.cancel()
	}
}
