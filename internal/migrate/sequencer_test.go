package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/showcase/internal/catalog"
	"github.com/MrSnakeDoc/showcase/internal/domain"
	"github.com/MrSnakeDoc/showcase/internal/logger"
	"github.com/MrSnakeDoc/showcase/internal/store/legacy"
	"github.com/MrSnakeDoc/showcase/internal/store/memory"
)

// flakyKV fails writes to one key until healed.
type flakyKV struct {
	*memory.KV
	failKey string
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	if key == f.failKey {
		return errors.New("connection reset by peer")
	}
	return f.KV.Set(ctx, key, value)
}

type brokenReadKV struct{ *memory.KV }

func (b brokenReadKV) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("i/o timeout")
}

func sampleItems() []domain.Item {
	return []domain.Item{
		{ID: 1, Name: "Pen", Description: "Blue pen", Image: "/p/pen.png"},
		{ID: 2, Name: "Tea", Description: "Ginko tea", Image: "https://placehold.co/800x800/png?text=Tea", Price: "4 EUR", IsNew: true},
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func snapshot(t *testing.T, kv *memory.KV) map[string]string {
	t.Helper()
	ctx := context.Background()
	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v, _, err := kv.Get(ctx, k)
		require.NoError(t, err)
		out[k] = string(v)
	}
	return out
}

func newSequencer(kv *memory.KV, lg LegacyStore) *Sequencer {
	log := logger.NewNop()
	return NewSequencer(log, Steps(kv, catalog.NewRepository(kv, log), lg, log)...)
}

func openLegacy(t *testing.T) *legacy.Store {
	t.Helper()
	s, err := legacy.Open(context.Background(), filepath.Join(t.TempDir(), "legacy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGen1FanOut(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	require.NoError(t, kv.Set(ctx, catalog.LegacyKey, mustJSON(t, sampleItems())))

	out, err := newSequencer(kv, nil).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Gen1, out.Generation)
	assert.True(t, out.Migrated)
	assert.True(t, out.Persisted)
	assert.Nil(t, out.Retire)

	snap := snapshot(t, kv)
	assert.Contains(t, snap, "item_1")
	assert.Contains(t, snap, "item_2")
	assert.Equal(t, "[1,2]", snap[catalog.OrderKey])
	assert.NotContains(t, snap, catalog.LegacyKey)
	assert.NotContains(t, snap["item_2"], "isNew")
}

func TestGen0RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	lg := openLegacy(t)
	require.NoError(t, lg.SetItem(ctx, catalog.LegacyKey, string(mustJSON(t, sampleItems()))))

	out, err := newSequencer(kv, lg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen0, out.Generation)

	_, ok, err := lg.GetItem(ctx, catalog.LegacyKey)
	require.NoError(t, err)
	assert.False(t, ok, "legacy key must be removed")

	repo := catalog.NewRepository(kv, logger.NewNop())
	order, ok, err := repo.LoadOrder(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	items, _, err := repo.LoadItems(ctx, order)
	require.NoError(t, err)

	want := sampleItems()
	want[1].IsNew = false
	assert.Equal(t, want, items)
}

func TestGen1WinsOverGen0(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	lg := openLegacy(t)
	require.NoError(t, kv.Set(ctx, catalog.LegacyKey, mustJSON(t, sampleItems()[:1])))
	require.NoError(t, lg.SetItem(ctx, catalog.LegacyKey, string(mustJSON(t, sampleItems()))))

	out, err := newSequencer(kv, lg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen1, out.Generation)
	assert.Len(t, out.Items, 1)
	assert.Nil(t, out.Retire)

	_, ok, err := lg.GetItem(ctx, catalog.LegacyKey)
	require.NoError(t, err)
	assert.False(t, ok, "older legacy blob must be retired with the Gen 1 blob")

	out, err = newSequencer(kv, lg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen2, out.Generation)
	assert.Len(t, out.Items, 1)
}

func TestGen2RetiresLeftoverLegacyBlob(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	lg := openLegacy(t)
	repo := catalog.NewRepository(kv, logger.NewNop())
	require.NoError(t, repo.SaveAll(ctx, sampleItems()))
	require.NoError(t, lg.SetItem(ctx, catalog.LegacyKey, `[{"id":7,"name":"stale"}]`))

	out, err := newSequencer(kv, lg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen2, out.Generation)
	assert.True(t, out.Persisted)
	require.NotNil(t, out.Retire)

	require.NoError(t, out.Retire(ctx))
	_, ok, err := lg.GetItem(ctx, catalog.LegacyKey)
	require.NoError(t, err)
	assert.False(t, ok)

	out, err = newSequencer(kv, lg).Run(ctx)
	require.NoError(t, err)
	assert.Nil(t, out.Retire)
}

func TestMalformedGen1KeepsGen0(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	lg := openLegacy(t)
	require.NoError(t, kv.Set(ctx, catalog.LegacyKey, []byte("{broken")))
	require.NoError(t, lg.SetItem(ctx, catalog.LegacyKey, string(mustJSON(t, sampleItems()))))

	out, err := newSequencer(kv, lg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen0, out.Generation)
	assert.Len(t, out.Items, 2)
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	require.NoError(t, kv.Set(ctx, catalog.LegacyKey, mustJSON(t, sampleItems())))

	seq := newSequencer(kv, nil)
	first, err := seq.Run(ctx)
	require.NoError(t, err)
	after := snapshot(t, kv)

	second, err := seq.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, after, snapshot(t, kv))
	assert.Equal(t, Gen2, second.Generation)
	assert.False(t, second.Migrated)
	assert.Equal(t, first.Items, second.Items)
}

func TestFailedMigrationKeepsOldKey(t *testing.T) {
	ctx := context.Background()
	mem := memory.New(0)
	blob := mustJSON(t, sampleItems())
	require.NoError(t, mem.Set(ctx, catalog.LegacyKey, blob))

	kv := &flakyKV{KV: mem, failKey: catalog.OrderKey}
	log := logger.NewNop()
	repo := catalog.NewRepository(kv, log)
	seq := NewSequencer(log, Steps(kv, repo, nil, log)...)

	out, err := seq.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen1, out.Generation)
	assert.False(t, out.Persisted)
	require.NotNil(t, out.Retire)
	assert.Len(t, out.Items, 2, "parsed items are still served")

	v, ok, err := mem.Get(ctx, catalog.LegacyKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, blob, v)

	// next start, backend healthy again
	kv.failKey = ""
	out, err = seq.Run(ctx)
	require.NoError(t, err)
	assert.True(t, out.Persisted)
	assert.True(t, out.Migrated)
	_, ok, err = mem.Get(ctx, catalog.LegacyKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMalformedBlobIsDiscarded(t *testing.T) {
	for _, payload := range []string{"not json", `{"id":1}`, "[]", "null", `[{"id":0}]`} {
		t.Run(payload, func(t *testing.T) {
			ctx := context.Background()
			kv := memory.New(0)
			require.NoError(t, kv.Set(ctx, catalog.LegacyKey, []byte(payload)))

			out, err := newSequencer(kv, nil).Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, GenNone, out.Generation)
			assert.Empty(t, snapshot(t, kv))
		})
	}
}

func TestMalformedBlobFallsThroughToGen2(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	repo := catalog.NewRepository(kv, logger.NewNop())
	require.NoError(t, repo.SaveAll(ctx, sampleItems()))
	require.NoError(t, kv.Set(ctx, catalog.LegacyKey, []byte("{broken")))

	out, err := newSequencer(kv, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen2, out.Generation)
	assert.Len(t, out.Items, 2)
}

func TestGen2RepairsOrder(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	repo := catalog.NewRepository(kv, logger.NewNop())
	require.NoError(t, repo.SaveItem(ctx, domain.Item{ID: 1, Name: "A"}))
	require.NoError(t, repo.SaveItem(ctx, domain.Item{ID: 3, Name: "C"}))
	require.NoError(t, repo.SaveOrder(ctx, domain.Order{1, 2, 3, 3}))

	out, err := newSequencer(kv, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Order{1, 3}, domain.IDs(out.Items))

	order, _, err := repo.LoadOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Order{1, 3}, order)
}

func TestGen2RebuildsUnreadableOrder(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	repo := catalog.NewRepository(kv, logger.NewNop())
	require.NoError(t, repo.SaveItem(ctx, domain.Item{ID: 20, Name: "B"}))
	require.NoError(t, repo.SaveItem(ctx, domain.Item{ID: 10, Name: "A"}))
	require.NoError(t, kv.Set(ctx, catalog.OrderKey, []byte("garbage")))

	out, err := newSequencer(kv, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen2, out.Generation)
	assert.Equal(t, domain.Order{10, 20}, domain.IDs(out.Items))

	order, _, err := repo.LoadOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Order{10, 20}, order)
}

func TestEmptyGen2IsKept(t *testing.T) {
	ctx := context.Background()
	kv := memory.New(0)
	require.NoError(t, kv.Set(ctx, catalog.OrderKey, []byte("[]")))

	out, err := newSequencer(kv, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Gen2, out.Generation)
	assert.Empty(t, out.Items)
	assert.True(t, out.Persisted)
}

func TestNothingPersisted(t *testing.T) {
	kv := memory.New(0)
	out, err := newSequencer(kv, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GenNone, out.Generation)
	assert.False(t, out.Persisted)
	assert.Empty(t, snapshot(t, kv), "defaults are never written at startup")
}

func TestDetectFailureAborts(t *testing.T) {
	kv := brokenReadKV{memory.New(0)}
	log := logger.NewNop()
	seq := NewSequencer(log, Steps(kv, catalog.NewRepository(kv, log), nil, log)...)

	_, err := seq.Run(context.Background())
	assert.Error(t, err)
}

func TestGenerationString(t *testing.T) {
	assert.Equal(t, "none", GenNone.String())
	assert.Equal(t, "gen0", Gen0.String())
	assert.Equal(t, "gen1", Gen1.String())
	assert.Equal(t, "gen2", Gen2.String())
}
