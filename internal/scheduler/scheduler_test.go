package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/migrate"
	"github.com/MrSnakeDoc/showcase/internal/quota"
)

type countingSweep struct {
	calls atomic.Int32
	err   error
}

func (c *countingSweep) Sweep(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestSweeperRunsImmediatelyAndOnSchedule(t *testing.T) {
	target := &countingSweep{}
	s := NewSweeper(target, logger.NewNop(), "@every 1s")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := target.calls.Load(); got != 1 {
		t.Fatalf("expected an immediate sweep, got %d calls", got)
	}

	deadline := time.Now().Add(5 * time.Second)
	for target.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop()

	if got := target.calls.Load(); got < 2 {
		t.Errorf("expected a scheduled sweep, got %d calls", got)
	}
}

func TestSweeperInitialFailureDoesNotStopScheduling(t *testing.T) {
	target := &countingSweep{err: errors.New("redis down")}
	s := NewSweeper(target, logger.NewNop(), "@every 1h")

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
}

func TestSweeperInvalidSchedule(t *testing.T) {
	s := NewSweeper(&countingSweep{}, logger.NewNop(), "every tuesday")
	if err := s.Start(context.Background()); err == nil {
		t.Error("Start() with an invalid schedule should fail")
	}
}

type fixedRefresher struct {
	statuses []quota.Status
	calls    int
}

func (f *fixedRefresher) Refresh(context.Context) quota.Status {
	st := f.statuses[min(f.calls, len(f.statuses)-1)]
	f.calls++
	return st
}

func TestQuotaSamplerTracksCriticalState(t *testing.T) {
	r := &fixedRefresher{statuses: []quota.Status{
		{Known: true, Percent: 50},
		{Known: true, Percent: 95, Critical: true},
		{Known: false},
		{Known: true, Percent: 10},
	}}
	q := NewQuotaSampler(r, logger.NewNop(), time.Minute)
	ctx := context.Background()

	wantCritical := []bool{false, true, true, false}
	for i, want := range wantCritical {
		if err := q.Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if q.critical != want {
			t.Errorf("after sample %d critical = %v, want %v", i, q.critical, want)
		}
	}
}

type stubMigrator struct {
	out migrate.Outcome
	err error
}

func (s stubMigrator) Run(context.Context) (migrate.Outcome, error) { return s.out, s.err }

type recordingTarget struct {
	loaded []migrate.Outcome
}

func (r *recordingTarget) Load(out migrate.Outcome) { r.loaded = append(r.loaded, out) }

func TestStartupLoader(t *testing.T) {
	want := migrate.Outcome{Generation: migrate.Gen2, Items: []domain.Item{{ID: 1}}, Persisted: true}
	target := &recordingTarget{}

	out, err := NewStartupLoader(stubMigrator{out: want}, target, logger.NewNop()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out.Generation != migrate.Gen2 || len(target.loaded) != 1 {
		t.Errorf("Load() = %+v, loaded %d outcomes", out, len(target.loaded))
	}
}

func TestStartupLoaderFailure(t *testing.T) {
	target := &recordingTarget{}
	_, err := NewStartupLoader(stubMigrator{err: errors.New("i/o timeout")}, target, logger.NewNop()).Load(context.Background())
	if err == nil {
		t.Fatal("Load() should fail when the migration cannot read storage")
	}
	if len(target.loaded) != 0 {
		t.Error("nothing must be loaded after a failed migration")
	}
}
