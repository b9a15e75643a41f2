package gallery

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"

	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/store"
)

// Repeater repeats a failed function.
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// NewRepeater retries up to attempts times with exponential backoff starting at delay.
func NewRepeater(attempts int, delay time.Duration) Repeater {
	return repeater.New(&strategy.Backoff{
		Repeats:  attempts,
		Duration: delay,
		Factor:   2,
		Jitter:   true,
	})
}

// Effect is one persistence step queued after an in-memory mutation.
type Effect struct {
	Name   string
	ItemID int64 // 0 when the effect is not about a single item
	Run    func(ctx context.Context) error

	// OnFailure runs after the last attempt failed.
	OnFailure func(err error)

	barrier chan struct{}
}

// Effects runs queued effects one at a time, in the order they were enqueued.
// Enqueue never blocks, so it is safe to call while holding the gallery lock.
type Effects struct {
	mu      sync.Mutex
	pending []Effect
	wake    chan struct{}

	repeater  Repeater
	onFailure func(Effect, error)
	log       logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewEffects creates the queue. onFailure is called for every effect that failed for good.
func NewEffects(rptr Repeater, log logger.Logger, onFailure func(Effect, error)) *Effects {
	if rptr == nil {
		rptr = NewRepeater(1, time.Millisecond)
	}
	return &Effects{
		wake:      make(chan struct{}, 1),
		repeater:  rptr,
		onFailure: onFailure,
		log:       log,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Enqueue appends effects to the queue.
func (e *Effects) Enqueue(effects ...Effect) {
	if len(effects) == 0 {
		return
	}
	e.mu.Lock()
	e.pending = append(e.pending, effects...)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of effects waiting to run.
func (e *Effects) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Start launches the worker. Effects keep running after ctx is cancelled
// until Stop drains the queue, so shutdown does not drop accepted edits.
func (e *Effects) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.run(context.WithoutCancel(ctx))
	})
}

// Stop drains the queue and waits for the worker, or for ctx.
func (e *Effects) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		e.log.Warn("effect queue not drained before shutdown", logger.Int("pending", e.Pending()))
		return ctx.Err()
	}
}

// Flush waits until every effect enqueued before the call has run.
func (e *Effects) Flush(ctx context.Context) error {
	done := make(chan struct{})
	e.Enqueue(Effect{Name: "barrier", barrier: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Effects) run(ctx context.Context) {
	defer close(e.doneCh)
	for {
		if eff, ok := e.next(); ok {
			e.execute(ctx, eff)
			continue
		}
		select {
		case <-e.wake:
		case <-e.stopCh:
			for {
				eff, ok := e.next()
				if !ok {
					return
				}
				e.execute(ctx, eff)
			}
		}
	}
}

func (e *Effects) next() (Effect, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return Effect{}, false
	}
	eff := e.pending[0]
	e.pending[0] = Effect{}
	e.pending = e.pending[1:]
	return eff, true
}

// execute runs eff with retries. A full store is not a transient condition:
// it is reported on the first attempt.
func (e *Effects) execute(ctx context.Context, eff Effect) {
	if eff.barrier != nil {
		close(eff.barrier)
		return
	}

	var quotaErr error
	err := e.repeater.Do(ctx, func() error {
		err := eff.Run(ctx)
		if store.IsQuotaExceeded(err) {
			quotaErr = err
			return nil
		}
		return err
	})
	if quotaErr != nil {
		err = quotaErr
	}
	if err == nil {
		return
	}

	e.log.Error("persistence effect failed",
		logger.String("effect", eff.Name),
		logger.Int64("item_id", eff.ItemID),
		logger.Bool("quota_exceeded", quotaErr != nil),
		logger.Error(err))

	if eff.OnFailure != nil {
		eff.OnFailure(err)
	}
	if e.onFailure != nil {
		e.onFailure(eff, err)
	}
}
