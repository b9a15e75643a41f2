package migrate

import (
	"context"
	"fmt"
	"sort"

	"github.com/MrSnakeDoc/showcase/internal/catalog"
	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/store"
)

// LegacyStore is the synchronous key/value API of the oldest generation.
type LegacyStore = catalog.Legacy

// fanOut writes items in the current layout and then retires every older generation,
// not only the one migrated: a stale Gen 0 blob behind a Gen 1 blob must not come back.
// The old keys survive any failure before every item and the order are written.
func fanOut(ctx context.Context, repo *catalog.Repository, gen Generation, items []domain.Item, log logger.Logger) Outcome {
	retire := repo.RetireLegacy
	out := Outcome{Generation: gen, Items: items, Retire: retire}

	if err := repo.SaveAll(ctx, items); err != nil {
		log.Error("migration write failed, keeping old generation",
			logger.String("generation", gen.String()),
			logger.Error(err))
		return out
	}
	out.Persisted = true
	out.Migrated = true

	if err := retire(ctx); err != nil {
		log.Warn("migrated data written but old key not removed",
			logger.String("generation", gen.String()),
			logger.Error(err))
		return out
	}
	out.Retire = nil
	return out
}

// Gen1Step migrates the whole-array blob kept in the durable store.
type Gen1Step struct {
	KV   store.KV
	Repo *catalog.Repository
	Log  logger.Logger
}

func (s Gen1Step) Name() string { return "gen1" }

func (s Gen1Step) Detect(ctx context.Context) (bool, error) {
	_, ok, err := s.KV.Get(ctx, catalog.LegacyKey)
	return ok, err
}

func (s Gen1Step) Migrate(ctx context.Context) (Outcome, error) {
	raw, ok, err := s.KV.Get(ctx, catalog.LegacyKey)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s vanished", ErrMalformedPayload, catalog.LegacyKey)
	}

	items, dropped, err := parseBlob(raw)
	if err != nil {
		// only this blob: an older generation may still hold usable data
		discard(ctx, s.Log, func(ctx context.Context) error {
			return s.KV.Delete(ctx, catalog.LegacyKey)
		})
		return Outcome{}, err
	}
	if dropped > 0 {
		s.Log.Warn("dropped invalid items during migration", logger.Int("dropped", dropped))
	}
	return fanOut(ctx, s.Repo, Gen1, items, s.Log), nil
}

// Gen2Step loads the current layout and repairs the order key when it points at
// missing items or repeats ids.
type Gen2Step struct {
	Repo *catalog.Repository
	Log  logger.Logger
}

func (s Gen2Step) Name() string { return "gen2" }

func (s Gen2Step) Detect(ctx context.Context) (bool, error) {
	_, ok, err := s.Repo.KV().Get(ctx, catalog.OrderKey)
	return ok, err
}

func (s Gen2Step) Migrate(ctx context.Context) (Outcome, error) {
	stored, _, err := s.Repo.LoadOrder(ctx)
	rebuilt := false
	if err != nil {
		stored, err = s.rebuildOrder(ctx, err)
		if err != nil {
			return Outcome{}, err
		}
		rebuilt = true
	}

	order := domain.Reconcile(stored, stored)
	items, effective, err := s.Repo.LoadItems(ctx, order)
	if err != nil {
		return Outcome{}, err
	}

	if rebuilt || !effective.Equal(stored) {
		s.Log.Warn("repairing order key",
			logger.Int("stored", len(stored)),
			logger.Int("effective", len(effective)))
		if err := s.Repo.SaveOrder(ctx, effective); err != nil {
			// the next load repairs it again
			s.Log.Warn("order repair failed", logger.Error(err))
		}
	}

	out := Outcome{Generation: Gen2, Items: items, Persisted: true}
	// A legacy blob left behind by an earlier run would win again after a reset.
	present, err := s.Repo.LegacyPresent(ctx)
	if err != nil {
		s.Log.Warn("could not check legacy store", logger.Error(err))
	} else if present {
		out.Retire = s.Repo.RetireLegacy
	}
	return out, nil
}

// rebuildOrder recovers from an undecodable order key by listing item keys.
// Ids are creation timestamps, so ascending id is creation order.
func (s Gen2Step) rebuildOrder(ctx context.Context, cause error) (domain.Order, error) {
	keys, ok, err := s.Repo.ItemKeys(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, cause)
	}

	order := make(domain.Order, 0, len(keys))
	for _, k := range keys {
		if id, ok := catalog.ParseItemKey(k); ok {
			order = append(order, id)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	s.Log.Warn("order key unreadable, rebuilt from item keys",
		logger.Int("items", len(order)),
		logger.Error(cause))
	return order, nil
}

// Gen0Step migrates the blob kept in the legacy store. A nil Legacy disables it.
type Gen0Step struct {
	Legacy LegacyStore
	Repo   *catalog.Repository
	Log    logger.Logger
}

func (s Gen0Step) Name() string { return "gen0" }

func (s Gen0Step) Detect(ctx context.Context) (bool, error) {
	if s.Legacy == nil {
		return false, nil
	}
	_, ok, err := s.Legacy.GetItem(ctx, catalog.LegacyKey)
	return ok, err
}

func (s Gen0Step) Migrate(ctx context.Context) (Outcome, error) {
	raw, ok, err := s.Legacy.GetItem(ctx, catalog.LegacyKey)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s vanished", ErrMalformedPayload, catalog.LegacyKey)
	}

	items, dropped, err := parseBlob([]byte(raw))
	if err != nil {
		discard(ctx, s.Log, func(ctx context.Context) error {
			return s.Legacy.RemoveItem(ctx, catalog.LegacyKey)
		})
		return Outcome{}, err
	}
	if dropped > 0 {
		s.Log.Warn("dropped invalid items during migration", logger.Int("dropped", dropped))
	}
	return fanOut(ctx, s.Repo, Gen0, items, s.Log), nil
}

// discard removes a malformed blob so it is not reported again on every start.
func discard(ctx context.Context, log logger.Logger, retire func(context.Context) error) {
	if err := retire(ctx); err != nil {
		log.Warn("failed to remove malformed data", logger.Error(err))
	}
}

// Steps returns the steps in the order they must be evaluated.
// legacy may be nil when no legacy store is configured; otherwise repo retires it too.
func Steps(kv store.KV, repo *catalog.Repository, legacy LegacyStore, log logger.Logger) []Step {
	if legacy != nil {
		repo.WithLegacy(legacy)
	}
	steps := []Step{
		Gen1Step{KV: kv, Repo: repo, Log: log},
		Gen2Step{Repo: repo, Log: log},
	}
	if legacy != nil {
		steps = append(steps, Gen0Step{Legacy: legacy, Repo: repo, Log: log})
	}
	return steps
}
