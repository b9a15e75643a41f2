// Package catalog maps items and their order onto granular keys of a store.KV.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/store"
)

// Repository reads and writes the current storage generation:
// one key per item plus an order key.
type Repository struct {
	kv     store.KV
	legacy Legacy
	log    logger.Logger
}

// Legacy is the synchronous key/value store of the oldest generation.
type Legacy interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	RemoveItem(ctx context.Context, key string) error
}

func NewRepository(kv store.KV, log logger.Logger) *Repository {
	return &Repository{kv: kv, log: log}
}

// WithLegacy makes retire and wipe also clear the legacy store. A nil l is ignored.
func (r *Repository) WithLegacy(l Legacy) *Repository {
	r.legacy = l
	return r
}

// KV exposes the underlying store for callers that need capabilities (ping, usage).
func (r *Repository) KV() store.KV {
	return r.kv
}

// LoadOrder returns the stored order and whether the order key exists.
func (r *Repository) LoadOrder(ctx context.Context) (domain.Order, bool, error) {
	raw, ok, err := r.kv.Get(ctx, OrderKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", OrderKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	var order domain.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, true, fmt.Errorf("failed to decode %s: %w", OrderKey, err)
	}
	return order, true, nil
}

func (r *Repository) SaveOrder(ctx context.Context, order domain.Order) error {
	entry, err := orderEntry(order)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, entry.Key, entry.Value); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// SaveItem writes the persistable form of it.
func (r *Repository) SaveItem(ctx context.Context, it domain.Item) error {
	entry, err := itemEntry(it)
	if err != nil {
		return err
	}
	if err := r.kv.Set(ctx, entry.Key, entry.Value); err != nil {
		return fmt.Errorf("failed to save item %d: %w", it.ID, err)
	}
	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	if err := r.kv.Delete(ctx, ItemKey(id)); err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	return nil
}

// LoadItems fetches the items named by order. Missing and undecodable entries are
// skipped; the returned order lists exactly the ids that were loaded.
func (r *Repository) LoadItems(ctx context.Context, order domain.Order) ([]domain.Item, domain.Order, error) {
	if len(order) == 0 {
		return []domain.Item{}, domain.Order{}, nil
	}

	keys := make([]string, len(order))
	for i, id := range order {
		keys[i] = ItemKey(id)
	}
	raws, err := r.kv.GetMany(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read items: %w", err)
	}

	items := make([]domain.Item, 0, len(order))
	effective := make(domain.Order, 0, len(order))
	for i, raw := range raws {
		if raw == nil {
			r.log.Warn("dropping orphaned id from order", logger.Int64("id", order[i]))
			continue
		}
		var it domain.Item
		if err := json.Unmarshal(raw, &it); err != nil {
			r.log.Warn("dropping undecodable item",
				logger.String("key", keys[i]),
				logger.Error(err))
			continue
		}
		if it.ID != order[i] {
			r.log.Warn("item id does not match its key, using key id",
				logger.String("key", keys[i]),
				logger.Int64("stored_id", it.ID))
			it.ID = order[i]
		}
		items = append(items, it.Persistable())
		effective = append(effective, it.ID)
	}
	return items, effective, nil
}

// SaveAll writes every item, then the order. The order is written last so a
// partial failure never leaves it pointing at keys that were not written.
func (r *Repository) SaveAll(ctx context.Context, items []domain.Item) error {
	entries := make([]store.Entry, 0, len(items))
	for _, it := range items {
		e, err := itemEntry(it)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	if err := store.SetAll(ctx, r.kv, entries); err != nil {
		return fmt.Errorf("failed to save items: %w", err)
	}
	return r.SaveOrder(ctx, domain.IDs(items))
}

// ItemKeys lists every item key in the store, or false when the backend cannot enumerate.
func (r *Repository) ItemKeys(ctx context.Context) ([]string, bool, error) {
	sc, ok := r.kv.(store.Scanner)
	if !ok {
		return nil, false, nil
	}
	keys, err := sc.Keys(ctx, itemPrefix)
	if err != nil {
		return nil, true, fmt.Errorf("failed to list item keys: %w", err)
	}
	return keys, true, nil
}

// Wipe removes the order, the items in known and, when the backend can list keys,
// every other item key. Older generations are retired too.
func (r *Repository) Wipe(ctx context.Context, known domain.Order) error {
	keys := []string{OrderKey}
	for _, id := range known {
		keys = append(keys, ItemKey(id))
	}
	listed, _, err := r.ItemKeys(ctx)
	if err != nil {
		return err
	}
	keys = append(keys, listed...)

	for _, k := range keys {
		if err := r.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", k, err)
		}
	}
	return r.RetireLegacy(ctx)
}

// RetireLegacy removes the whole-array blobs of every older generation: the one in
// the durable store and, when configured, the one in the legacy store.
func (r *Repository) RetireLegacy(ctx context.Context) error {
	if err := r.kv.Delete(ctx, LegacyKey); err != nil {
		return fmt.Errorf("failed to remove %s: %w", LegacyKey, err)
	}
	if r.legacy == nil {
		return nil
	}
	if err := r.legacy.RemoveItem(ctx, LegacyKey); err != nil {
		return fmt.Errorf("failed to remove legacy %s: %w", LegacyKey, err)
	}
	return nil
}

// LegacyPresent reports whether the legacy store still holds a blob.
func (r *Repository) LegacyPresent(ctx context.Context) (bool, error) {
	if r.legacy == nil {
		return false, nil
	}
	_, ok, err := r.legacy.GetItem(ctx, LegacyKey)
	if err != nil {
		return false, fmt.Errorf("failed to read legacy %s: %w", LegacyKey, err)
	}
	return ok, nil
}

func itemEntry(it domain.Item) (store.Entry, error) {
	if err := it.Validate(); err != nil {
		return store.Entry{}, err
	}
	data, err := json.Marshal(it.Persistable())
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to encode item %d: %w", it.ID, err)
	}
	return store.Entry{Key: ItemKey(it.ID), Value: data}, nil
}

func orderEntry(order domain.Order) (store.Entry, error) {
	if order == nil {
		order = domain.Order{}
	}
	data, err := json.Marshal(order)
	if err != nil {
		return store.Entry{}, fmt.Errorf("failed to encode order: %w", err)
	}
	return store.Entry{Key: OrderKey, Value: data}, nil
}
