package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"vidrelay/work/logger"
)

// RedisStore backs the resolved-stream cache with a Redis instance so multiple
// relay replicas share resolved URLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis instance described by a redis:// URL.
// The initial ping is advisory: an unreachable backend is logged but not
// fatal, since every cache operation degrades gracefully at request time.
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts.MaxRetries = 2
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("{cache/redis - NewRedisStore} Redis ping failed, cache will degrade until reachable: %v", err)
	} else {
		logger.Info("{cache/redis - NewRedisStore} Redis cache connected: %s", opts.Addr)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.SetEx(ctx, key, value, ttl).Err()
}

// Stats reports the subset of Redis INFO fields useful for cache monitoring,
// including the computed keyspace hit rate.
func (s *RedisStore) Stats(ctx context.Context) (map[string]any, error) {
	info, err := s.client.Info(ctx, "clients", "memory", "stats").Result()
	if err != nil {
		return nil, err
	}

	fields := parseInfo(info)
	hits := fields.intOr("keyspace_hits", 0)
	misses := fields.intOr("keyspace_misses", 0)
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return map[string]any{
		"backend":           "redis",
		"connected_clients": fields.intOr("connected_clients", 0),
		"used_memory_human": fields["used_memory_human"],
		"keyspace_hits":     hits,
		"keyspace_misses":   misses,
		"hit_rate":          hitRate,
	}, nil
}

func (s *RedisStore) Flush(ctx context.Context) error {
	return s.client.FlushDB(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type infoFields map[string]string

func (f infoFields) intOr(key string, def int64) int64 {
	if v, ok := f[key]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// parseInfo flattens a Redis INFO reply ("key:value" lines, "#" section
// headers) into a lookup map.
func parseInfo(info string) infoFields {
	fields := make(infoFields)
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.Index(line, ":"); idx > 0 {
			fields[line[:idx]] = line[idx+1:]
		}
	}
	return fields
}
