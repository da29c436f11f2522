package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryStore is the in-process fallback backend used when no Redis URL is
// configured. Entries carry per-insert TTLs and cost proportional to value
// size so a long-running relay cannot grow without bound.
type MemoryStore struct {
	cache   *ristretto.Cache[string, string]
	flushes atomic.Int64
}

// NewMemoryStore builds the ristretto-backed store. The cache admits up to
// 64MB of resolved URLs and metadata blobs, which is far more than a single
// relay instance ever accumulates within one TTL window.
func NewMemoryStore() (*MemoryStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 100_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	val, found := s.cache.Get(key)
	return val, found, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	// ristretto admits writes asynchronously; wait so a subsequent lookup
	// within the same request chain observes the entry
	s.cache.Wait()
	return nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[string]any, error) {
	m := s.cache.Metrics
	hits := m.Hits()
	misses := m.Misses()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	return map[string]any{
		"backend":         "memory",
		"keyspace_hits":   hits,
		"keyspace_misses": misses,
		"hit_rate":        hitRate,
		"keys_added":      m.KeysAdded(),
		"cost_added":      m.CostAdded(),
		"flushes":         s.flushes.Load(),
	}, nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.cache.Clear()
	s.flushes.Add(1)
	return nil
}

func (s *MemoryStore) Close() error {
	s.cache.Close()
	return nil
}
