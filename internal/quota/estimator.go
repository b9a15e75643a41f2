// Package quota estimates how full the durable store is.
package quota

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/store"
)

const sampleKey = "usage"

// Prober is implemented by stores that can report their fill level.
type Prober interface {
	Usage(ctx context.Context) (store.Usage, error)
}

// Status is an advisory snapshot. Writes are attempted whatever it says.
type Status struct {
	Known     bool      `json:"known"`
	Used      uint64    `json:"used"`
	Quota     uint64    `json:"quota"`
	Percent   float64   `json:"percent"`
	Critical  bool      `json:"critical"`
	SampledAt time.Time `json:"sampledAt"`
}

// Estimator samples a Prober at most once per TTL.
type Estimator struct {
	prober    Prober
	warnRatio float64
	samples   *cache.Cache
	log       logger.Logger
	now       func() time.Time
}

// NewEstimator returns an Estimator. A nil prober always yields an unknown status.
func NewEstimator(prober Prober, warnRatio float64, ttl time.Duration, log logger.Logger) *Estimator {
	return &Estimator{
		prober:    prober,
		warnRatio: warnRatio,
		samples:   cache.New(ttl, 2*ttl),
		log:       log,
		now:       time.Now,
	}
}

// Estimate returns the cached status, probing the store when the sample expired.
func (e *Estimator) Estimate(ctx context.Context) Status {
	if cached, found := e.samples.Get(sampleKey); found {
		if st, ok := cached.(Status); ok {
			return st
		}
	}
	return e.Refresh(ctx)
}

// Refresh probes the store now and replaces the cached sample. A failed probe
// caches an unknown status so an unreachable store is asked again only after the TTL.
func (e *Estimator) Refresh(ctx context.Context) Status {
	if e.prober == nil {
		return Status{}
	}
	u, err := e.prober.Usage(ctx)
	if err != nil {
		e.log.Warn("storage usage probe failed", logger.Error(err))
		st := Status{SampledAt: e.now()}
		e.samples.Set(sampleKey, st, cache.DefaultExpiration)
		return st
	}

	st := Evaluate(u, e.warnRatio)
	st.SampledAt = e.now()
	e.samples.Set(sampleKey, st, cache.DefaultExpiration)

	if st.Critical {
		e.log.Warn("storage almost full",
			logger.Uint64("used", st.Used),
			logger.Uint64("quota", st.Quota),
			logger.Float64("percent", st.Percent))
	}
	return st
}

// Evaluate turns a raw usage reading into a status. A zero quota means the
// limit is unknown: the reading is reported but never critical.
func Evaluate(u store.Usage, warnRatio float64) Status {
	st := Status{Known: true, Used: u.Used, Quota: u.Quota}
	if u.Quota == 0 {
		return st
	}
	ratio := float64(u.Used) / float64(u.Quota)
	st.Percent = ratio * 100
	st.Critical = ratio > warnRatio || u.Used >= u.Quota
	return st
}
