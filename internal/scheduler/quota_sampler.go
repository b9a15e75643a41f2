package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/quota"
)

// Refresher re-reads the storage usage.
type Refresher interface {
	Refresh(ctx context.Context) quota.Status
}

// QuotaSampler keeps the usage estimate warm so requests rarely pay for a probe,
// and logs whenever storage turns critical.
type QuotaSampler struct {
	estimator Refresher
	logger    logger.Logger
	job       *periodic
	critical  bool
}

// NewQuotaSampler samples every interval.
func NewQuotaSampler(estimator Refresher, log logger.Logger, interval time.Duration) *QuotaSampler {
	q := &QuotaSampler{estimator: estimator, logger: log}
	q.job = newPeriodic("quota_sample", fmt.Sprintf("@every %s", interval), log, q.Run)
	return q
}

func (q *QuotaSampler) Start(ctx context.Context) error {
	return q.job.start(ctx)
}

func (q *QuotaSampler) Stop() {
	q.job.stop()
}

// Run takes one sample. Transitions into and out of the critical state are logged once.
func (q *QuotaSampler) Run(ctx context.Context) error {
	st := q.estimator.Refresh(ctx)
	if !st.Known {
		return nil
	}
	switch {
	case st.Critical && !q.critical:
		q.logger.Warn("storage is critical, new writes may fail",
			logger.Float64("percent", st.Percent))
	case !st.Critical && q.critical:
		q.logger.Info("storage back under the warning threshold",
			logger.Float64("percent", st.Percent))
	}
	q.critical = st.Critical
	return nil
}
