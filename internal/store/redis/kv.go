package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/showcase/internal/store"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 200

// KV implements store.KV on a Redis database. Keys never expire.
type KV struct {
	client *redis.Client
}

// NewKV creates a new Redis-backed KV
func NewKV(client *redis.Client) *KV {
	return &KV{
		client: client,
	}
}

// Get retrieves a value. A missing key is not an error.
func (s *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores a value without TTL
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, mapWriteErr(err))
	}
	return nil
}

// SetMany writes all entries inside MULTI/EXEC so a refused write discards the batch
func (s *KV) SetMany(ctx context.Context, entries []store.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.Key, e.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %d keys: %w", len(entries), mapWriteErr(err))
	}
	return nil
}

// Delete removes a key
func (s *KV) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// GetMany retrieves several keys with MGET. Missing keys come back as nil.
func (s *KV) GetMany(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return [][]byte{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %d keys: %w", len(keys), err)
	}

	out := make([][]byte, len(keys))
	for i, v := range vals {
		switch val := v.(type) {
		case string:
			out[i] = []byte(val)
		case []byte:
			out[i] = val
		}
	}
	return out, nil
}

// Keys lists the keys starting with prefix using SCAN
func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s*: %w", prefix, err)
	}
	return keys, nil
}

// Ping checks the connection
func (s *KV) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// mapWriteErr tags out-of-memory refusals so callers can tell them from transient failures.
func mapWriteErr(err error) error {
	if redis.IsOOMError(err) {
		return fmt.Errorf("%w: %v", store.ErrQuotaExceeded, err)
	}
	return err
}
