package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"vidrelay/work/logger"
	"vidrelay/work/metrics"
)

// Cache namespaces. Resolved playback URLs expire upstream on their own
// schedule, so their TTL is kept short; metadata changes far less often.
const (
	NamespaceStreamURL = "stream-url"
	NamespaceMetadata  = "metadata"
)

// Store is the volatile key-value backend behind the resolved-stream cache.
// Implementations must treat expired entries as absent.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Stats(ctx context.Context) (map[string]any, error)
	Flush(ctx context.Context) error
	Close() error
}

// Cache maps content identifiers to previously resolved values with bounded
// TTLs. Backend failures are absorbed: every operation degrades to calling the
// resolver directly, and a broken cache is never visible to clients.
type Cache struct {
	store    Store
	enabled  bool
	inflight *xsync.MapOf[string, *flight]
}

// flight tracks one in-progress resolution so concurrent misses for the same
// key can share its result. This is a performance optimization only; the
// resolver may still run more than once for a key across miss windows.
type flight struct {
	wg  sync.WaitGroup
	val string
	err error
}

// New wires a cache around the given store. A nil store yields a disabled
// cache whose GetOrResolve always calls the resolver directly.
func New(store Store, enabled bool) *Cache {
	return &Cache{
		store:    store,
		enabled:  enabled && store != nil,
		inflight: xsync.NewMapOf[string, *flight](),
	}
}

// Enabled reports whether a backend is configured and active.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// Key computes the stable cache key for a (namespace, identifier) pair:
// the namespace joined with a collision-resistant digest of the identifier.
func Key(namespace, id string) string {
	sum := sha256.Sum256([]byte(id))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// GetOrResolve returns the cached value for (namespace, id) when present and
// unexpired, otherwise invokes resolve and stores a successful result under
// the namespace TTL. The second return value reports whether the value came
// from cache. Store errors are logged and absorbed.
func (c *Cache) GetOrResolve(ctx context.Context, namespace, id string, ttl time.Duration, resolve func(context.Context) (string, error)) (string, bool, error) {
	if !c.Enabled() {
		v, err := resolve(ctx)
		return v, false, err
	}

	key := Key(namespace, id)

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		logger.Warn("{cache - GetOrResolve} Cache get failed, degrading to direct resolution: %v", err)
		metrics.CacheErrors.WithLabelValues(namespace, "get").Inc()
	} else if ok {
		logger.Debug("{cache - GetOrResolve} Cache HIT: %s", key)
		metrics.CacheLookups.WithLabelValues(namespace, "hit").Inc()
		return v, true, nil
	} else {
		logger.Debug("{cache - GetOrResolve} Cache MISS: %s", key)
		metrics.CacheLookups.WithLabelValues(namespace, "miss").Inc()
	}

	// coalesce concurrent misses for the same key into a single resolver call
	f := &flight{}
	f.wg.Add(1)
	if shared, loaded := c.inflight.LoadOrStore(key, f); loaded {
		shared.wg.Wait()
		return shared.val, false, shared.err
	}
	defer c.inflight.Delete(key)

	f.val, f.err = resolve(ctx)
	if f.err == nil {
		if err := c.store.Set(ctx, key, f.val, ttl); err != nil {
			logger.Warn("{cache - GetOrResolve} Cache set failed: %v", err)
			metrics.CacheErrors.WithLabelValues(namespace, "set").Inc()
		}
	}
	f.wg.Done()

	return f.val, false, f.err
}

// Stats returns backend statistics for the admin surface. A disabled cache
// reports only its enablement state.
func (c *Cache) Stats(ctx context.Context) map[string]any {
	if !c.Enabled() {
		return map[string]any{"enabled": false}
	}
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return map[string]any{"enabled": true, "error": err.Error()}
	}
	stats["enabled"] = true
	return stats
}

// Flush clears the whole backend. Unlike read/write paths this error is
// surfaced, since flushing is an explicit admin operation.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Flush(ctx)
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}
