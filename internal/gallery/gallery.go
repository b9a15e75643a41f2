// Package gallery holds the showcase in memory and persists every change through
// an ordered queue of effects.
//
// Mutations update the in-memory state first and return immediately. The effects
// they enqueue reach the store later; a failed effect is reported as a notice and
// the in-memory change stays.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/MrSnakeDoc/showcase/internal/catalog"
	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/migrate"
)

var (
	ErrNotFound     = errors.New("item not found")
	ErrInvalidOrder = errors.New("order must list every item exactly once")
)

// ImageNormalizer turns an uploaded image into a storable data URI.
type ImageNormalizer interface {
	Normalize(r io.Reader) (string, error)
}

type Options struct {
	Repo     *catalog.Repository
	Images   ImageNormalizer
	Defaults []domain.Item
	Clock    *domain.Clock // nil => wall clock
	Repeater Repeater      // nil => single attempt
	Notices  int           // notice ring capacity, 0 => DefaultNoticeCapacity
	Log      logger.Logger
}

// Gallery is the ordered list of items the showcase displays.
type Gallery struct {
	mu    sync.RWMutex
	items map[int64]domain.Item
	order domain.Order

	// materialized is false while the items only exist in memory (defaults, or a
	// migration that could not be written). The next mutation then writes everything.
	materialized bool
	generation   migrate.Generation
	retire       func(ctx context.Context) error

	defaults []domain.Item
	repo     *catalog.Repository
	images   ImageNormalizer
	clock    *domain.Clock
	effects  *Effects
	notices  *Notices
	log      logger.Logger
}

func New(opts Options) *Gallery {
	clock := opts.Clock
	if clock == nil {
		clock = domain.NewClock(nil)
	}
	notices := NewNotices(opts.Notices)

	g := &Gallery{
		items:      make(map[int64]domain.Item),
		generation: migrate.GenNone,
		defaults:   cloneItems(opts.Defaults),
		repo:       opts.Repo,
		images:     opts.Images,
		clock:      clock,
		notices:    notices,
		log:        opts.Log,
	}
	g.effects = NewEffects(opts.Repeater, opts.Log, func(eff Effect, err error) {
		notices.Push(KindStorageWrite, fmt.Sprintf("%s failed: %v", eff.Name, err))
	})
	g.install(g.defaults)
	return g
}

// Start runs the effect worker.
func (g *Gallery) Start(ctx context.Context) { g.effects.Start(ctx) }

// Stop drains pending effects.
func (g *Gallery) Stop(ctx context.Context) error { return g.effects.Stop(ctx) }

// Flush waits for every effect enqueued so far.
func (g *Gallery) Flush(ctx context.Context) error { return g.effects.Flush(ctx) }

func (g *Gallery) Notices() *Notices { return g.notices }

// Load installs the result of the startup migration.
func (g *Gallery) Load(out migrate.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.generation = out.Generation
	if out.Generation == migrate.GenNone {
		g.install(g.defaults)
		g.materialized = false
		g.retire = nil
		return
	}

	g.install(out.Items)
	g.materialized = out.Persisted
	g.retire = out.Retire

	if !out.Persisted {
		g.notices.Push(KindMigration, fmt.Sprintf(
			"stored %s data could not be moved to the current layout, it will be retried on the next edit",
			out.Generation))
	}
	if out.Persisted && out.Retire != nil {
		g.effects.Enqueue(Effect{Name: "retire_" + out.Generation.String(), Run: out.Retire})
		g.retire = nil
	}
}

// Status describes the gallery for diagnostics.
type Status struct {
	Generation   string `json:"generation"`
	Materialized bool   `json:"materialized"`
	Items        int    `json:"items"`
	Pending      int    `json:"pendingEffects"`
}

func (g *Gallery) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		Generation:   g.generation.String(),
		Materialized: g.materialized,
		Items:        len(g.order),
		Pending:      g.effects.Pending(),
	}
}

// Items returns a copy of the items in display order.
func (g *Gallery) Items() []domain.Item {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

// Order returns a copy of the display order.
func (g *Gallery) Order() domain.Order {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append(domain.Order{}, g.order...)
}

func (g *Gallery) Get(id int64) (domain.Item, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	it, ok := g.items[id]
	return it, ok
}

// Add creates an item with the placeholder fields, overridden by tmpl, and appends it.
// The returned copy carries IsNew.
func (g *Gallery) Add(tmpl domain.Patch) domain.Item {
	g.mu.Lock()
	defer g.mu.Unlock()

	it := domain.NewItem(g.clock.NextID())
	tmpl.Apply(&it)
	g.addLocked(it)
	return it
}

func (g *Gallery) addLocked(it domain.Item) {
	g.items[it.ID] = it.Persistable()
	g.order = g.order.Append(it.ID)

	g.persistLocked(g.saveItemEffect(it), g.saveOrderEffect())
}

// Update applies patch to the item with id.
func (g *Gallery) Update(id int64, patch domain.Patch) (domain.Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	it, ok := g.items[id]
	if !ok {
		return domain.Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if patch.IsEmpty() {
		return it, nil
	}
	patch.Apply(&it)
	g.items[id] = it

	g.persistLocked(g.saveItemEffect(it))
	return it, nil
}

// Delete removes the item with id. Deleting an unknown id is a no-op and reports false.
func (g *Gallery) Delete(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.items[id]; !ok {
		return false
	}
	delete(g.items, id)
	g.order = g.order.Remove(id)

	g.persistLocked(g.saveOrderEffect(), g.deleteItemEffect(id))
	return true
}

// Reorder replaces the display order. ids must be a permutation of the current ids.
func (g *Gallery) Reorder(ids domain.Order) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !ids.IsPermutationOf(g.order) {
		return ErrInvalidOrder
	}
	if ids.Equal(g.order) {
		return nil
	}
	g.order = append(domain.Order{}, ids...)

	g.persistLocked(g.saveOrderEffect())
	return nil
}

// Paste creates an item from an image. The image is normalized before anything
// changes, so a decode failure leaves the gallery untouched.
func (g *Gallery) Paste(ctx context.Context, r io.Reader) (domain.Item, error) {
	uri, err := g.normalize(ctx, r)
	if err != nil {
		return domain.Item{}, err
	}
	desc := domain.PastedDescription
	return g.Add(domain.Patch{Description: &desc, Image: &uri}), nil
}

// ReplaceImage normalizes an image and stores it on the item with id.
func (g *Gallery) ReplaceImage(ctx context.Context, id int64, r io.Reader) (domain.Item, error) {
	if _, ok := g.Get(id); !ok {
		return domain.Item{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	uri, err := g.normalize(ctx, r)
	if err != nil {
		return domain.Item{}, err
	}
	return g.Update(id, domain.Patch{Image: &uri})
}

func (g *Gallery) normalize(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	uri, err := g.images.Normalize(r)
	if err != nil {
		g.log.Warn("image rejected", logger.Error(err))
		return "", err
	}
	return uri, nil
}

// Reset wipes every persisted key and goes back to the defaults, which are not
// written until the next edit. It waits for the wipe to run.
func (g *Gallery) Reset(ctx context.Context) error {
	g.mu.Lock()
	known := append(domain.Order{}, g.order...)
	retire := g.retire

	g.install(g.defaults)
	g.materialized = false
	g.retire = nil
	g.generation = migrate.GenNone

	g.effects.Enqueue(Effect{
		Name: "wipe",
		Run: func(ctx context.Context) error {
			if err := g.repo.Wipe(ctx, known); err != nil {
				return err
			}
			if retire != nil {
				return retire(ctx)
			}
			return nil
		},
	})
	g.mu.Unlock()

	g.log.Info("gallery reset to defaults", logger.Int("items", len(g.defaults)))
	return g.effects.Flush(ctx)
}

// Export returns the pretty-printed document of the current items.
func (g *Gallery) Export() ([]byte, error) {
	return domain.Export(g.Items())
}

// Sweep removes item keys that no longer belong to the gallery and rewrites the
// order when it drifted. It runs in the effect queue and waits for it.
func (g *Gallery) Sweep(ctx context.Context) error {
	g.mu.RLock()
	if !g.materialized {
		g.mu.RUnlock()
		return nil
	}
	order := append(domain.Order{}, g.order...)
	g.effects.Enqueue(Effect{
		Name: "sweep",
		Run: func(ctx context.Context) error {
			return g.sweep(ctx, order)
		},
	})
	g.mu.RUnlock()

	return g.effects.Flush(ctx)
}

func (g *Gallery) sweep(ctx context.Context, order domain.Order) error {
	keys, ok, err := g.repo.ItemKeys(ctx)
	if err != nil {
		return err
	}
	removed := 0
	if ok {
		for _, k := range keys {
			id, valid := catalog.ParseItemKey(k)
			if valid && order.Contains(id) {
				continue
			}
			if err := g.repo.KV().Delete(ctx, k); err != nil {
				return fmt.Errorf("failed to delete stray key %s: %w", k, err)
			}
			removed++
		}
	}

	stored, _, err := g.repo.LoadOrder(ctx)
	rewritten := false
	if err != nil || !stored.Equal(order) {
		if err := g.repo.SaveOrder(ctx, order); err != nil {
			return err
		}
		rewritten = true
	}

	if removed > 0 || rewritten {
		g.log.Info("storage sweep repaired drift",
			logger.Int("stray_keys", removed),
			logger.Bool("order_rewritten", rewritten))
	}
	return nil
}

// persistLocked enqueues effects for a mutation. While unmaterialized it writes
// every item and the order first, then retires the old generation.
func (g *Gallery) persistLocked(effects ...Effect) {
	if !g.materialized {
		effects = append(g.materializeLocked(), effects...)
	}
	g.effects.Enqueue(effects...)
}

func (g *Gallery) materializeLocked() []Effect {
	items := g.snapshotLocked()
	retire := g.retire
	g.materialized = true
	g.retire = nil

	var written atomic.Bool
	effects := []Effect{{
		Name: "save_all",
		Run: func(ctx context.Context) error {
			if err := g.repo.SaveAll(ctx, items); err != nil {
				return err
			}
			written.Store(true)
			return nil
		},
		OnFailure: func(error) {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.materialized = false
			if g.retire == nil {
				g.retire = retire
			}
		},
	}}
	if retire != nil {
		effects = append(effects, Effect{
			Name: "retire_" + g.generation.String(),
			Run: func(ctx context.Context) error {
				if !written.Load() {
					return nil
				}
				return retire(ctx)
			},
		})
	}
	return effects
}

func (g *Gallery) saveItemEffect(it domain.Item) Effect {
	it = it.Persistable()
	return Effect{
		Name:   "save_item",
		ItemID: it.ID,
		Run:    func(ctx context.Context) error { return g.repo.SaveItem(ctx, it) },
	}
}

func (g *Gallery) saveOrderEffect() Effect {
	order := append(domain.Order{}, g.order...)
	return Effect{
		Name: "save_order",
		Run:  func(ctx context.Context) error { return g.repo.SaveOrder(ctx, order) },
	}
}

func (g *Gallery) deleteItemEffect(id int64) Effect {
	return Effect{
		Name:   "delete_item",
		ItemID: id,
		Run:    func(ctx context.Context) error { return g.repo.DeleteItem(ctx, id) },
	}
}

// install replaces the state with items. Caller holds the lock or owns g.
func (g *Gallery) install(items []domain.Item) {
	g.items = make(map[int64]domain.Item, len(items))
	g.order = make(domain.Order, 0, len(items))
	for _, it := range items {
		if _, dup := g.items[it.ID]; dup || it.ID <= 0 {
			continue
		}
		g.items[it.ID] = it.Persistable()
		g.order = append(g.order, it.ID)
		g.clock.Observe(it.ID)
	}
}

func (g *Gallery) snapshotLocked() []domain.Item {
	out := make([]domain.Item, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.items[id])
	}
	return out
}

func cloneItems(in []domain.Item) []domain.Item {
	return append([]domain.Item(nil), in...)
}
