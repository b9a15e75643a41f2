// Package store defines the key-value contract the showcase persists through.
package store

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned (wrapped) when a backend refuses a write for lack of space.
// The refused write leaves every previously stored key untouched.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// KV is a durable key-value store with granular reads and writes.
type KV interface {
	// Get returns the value and true, or nil and false when the key was never written.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Delete succeeds when the key is absent.
	Delete(ctx context.Context, key string) error
	// GetMany returns one slot per key, in key order. Missing keys yield nil.
	GetMany(ctx context.Context, keys []string) ([][]byte, error)
}

// Entry is one key/value pair of a batch write.
type Entry struct {
	Key   string
	Value []byte
}

// BatchSetter is implemented by backends that can write several keys in one round trip.
type BatchSetter interface {
	SetMany(ctx context.Context, entries []Entry) error
}

// Scanner is implemented by backends that can enumerate keys by prefix.
type Scanner interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Pinger is implemented by backends with a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetAll writes entries through SetMany when kv supports it, one by one otherwise.
// It stops at the first failure.
func SetAll(ctx context.Context, kv KV, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if bs, ok := kv.(BatchSetter); ok {
		return bs.SetMany(ctx, entries)
	}
	for _, e := range entries {
		if err := kv.Set(ctx, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// IsQuotaExceeded reports whether err was caused by a full backend.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// Usage is a best-effort measure of how much of the backend is in use.
// Quota is 0 when the backend reports no limit and no fallback was found.
type Usage struct {
	Used  uint64
	Quota uint64
}

// UsageReporter is implemented by backends that can estimate their fill level.
type UsageReporter interface {
	Usage(ctx context.Context) (Usage, error)
}
