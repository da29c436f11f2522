package relay

import (
	"context"
	"encoding/json"

	"github.com/panjf2000/ants/v2"

	"vidrelay/work/cache"
	"vidrelay/work/client"
	"vidrelay/work/config"
	"vidrelay/work/errs"
	"vidrelay/work/logger"
	"vidrelay/work/metrics"
	"vidrelay/work/resolver"
)

// Service ties the relay engine, the resolver and the resolved-stream cache
// together behind the operations the HTTP surface exposes. Resolver calls run
// on a bounded worker pool so a burst of lookups cannot spawn an unbounded
// number of concurrent extraction requests.
type Service struct {
	cfg      *config.Config
	engine   *Engine
	cache    *cache.Cache
	resolver resolver.Resolver
	pool     *ants.Pool
}

// NewService builds the relay service and its resolver worker pool.
func NewService(cfg *config.Config, hsc *client.HeaderSettingClient, c *cache.Cache, r resolver.Resolver) (*Service, error) {
	pool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:      cfg,
		engine:   NewEngine(cfg, hsc),
		cache:    c,
		resolver: r,
		pool:     pool,
	}, nil
}

// Proxy relays one upstream fetch. See Engine.Proxy.
func (s *Service) Proxy(ctx context.Context, rawURL string) (*Response, error) {
	return s.engine.Proxy(ctx, rawURL)
}

// Cache exposes the resolved-stream cache for the admin surface.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// ResolveStream returns a playable upstream URL for a content identifier.
// The cache is consulted only when useCache is set and the lookup is
// on-demand; live playlist URLs rotate too quickly to reuse regardless of the
// flag. The boolean reports whether the URL came from cache; failures are
// classified *errs.StreamError values.
func (s *Service) ResolveStream(ctx context.Context, id string, kind errs.RequestKind, useCache bool) (string, bool, error) {
	opts := resolver.Options{
		Format:           s.cfg.Resolver.FormatPreference,
		FlattenPlaylists: s.cfg.Resolver.FlattenPlaylists,
		Quiet:            s.cfg.Resolver.Quiet,
	}
	if kind == errs.KindLive {
		opts.Format = s.cfg.Resolver.LiveFormat
		opts.Live = true
	}

	resolve := func(ctx context.Context) (string, error) {
		var rs *resolver.ResolvedStream
		err := s.run(ctx, func() (innerErr error) {
			rs, innerErr = s.resolver.ResolveStream(ctx, id, opts)
			return
		})
		if err != nil {
			return "", err
		}
		return rs.URL, nil
	}

	var (
		streamURL string
		cached    bool
		err       error
	)
	if kind == errs.KindLive || !useCache {
		streamURL, err = resolve(ctx)
	} else {
		streamURL, cached, err = s.cache.GetOrResolve(ctx, cache.NamespaceStreamURL, id, s.cfg.CacheTTL, resolve)
	}
	if err != nil {
		return "", false, s.classified(err, kind, id)
	}
	return streamURL, cached, nil
}

// ResolveInfo returns metadata for an identifier, cached under the metadata
// namespace as a JSON blob.
func (s *Service) ResolveInfo(ctx context.Context, id string) (*resolver.MediaInfo, bool, error) {
	resolve := func(ctx context.Context) (string, error) {
		var info *resolver.MediaInfo
		err := s.run(ctx, func() (innerErr error) {
			info, innerErr = s.resolver.ResolveInfo(ctx, id)
			return
		})
		if err != nil {
			return "", err
		}
		blob, err := json.Marshal(info)
		if err != nil {
			return "", err
		}
		return string(blob), nil
	}

	blob, cached, err := s.cache.GetOrResolve(ctx, cache.NamespaceMetadata, id, s.cfg.MetadataCacheTTL, resolve)
	if err != nil {
		return nil, false, s.classified(err, errs.KindOnDemand, id)
	}

	var info resolver.MediaInfo
	if err := json.Unmarshal([]byte(blob), &info); err != nil {
		// a corrupt cache entry degrades to direct resolution
		logger.Warn("{relay - ResolveInfo} Discarding unreadable cached metadata for %s: %v", id, err)
		fresh, err := resolve(ctx)
		if err != nil {
			return nil, false, s.classified(err, errs.KindOnDemand, id)
		}
		if err := json.Unmarshal([]byte(fresh), &info); err != nil {
			return nil, false, s.classified(err, errs.KindOnDemand, id)
		}
		return &info, false, nil
	}
	return &info, cached, nil
}

// Search queries the extraction service for matching media.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]resolver.MediaInfo, error) {
	var results []resolver.MediaInfo
	err := s.run(ctx, func() (innerErr error) {
		results, innerErr = s.resolver.Search(ctx, query, limit)
		return
	})
	if err != nil {
		return nil, s.classified(err, errs.KindOnDemand, query)
	}
	return results, nil
}

// run executes fn on the bounded worker pool and waits for it or for ctx.
func (s *Service) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := s.pool.Submit(func() {
		done <- fn()
	}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classified maps a resolver failure onto the stable taxonomy exactly once and
// records it.
func (s *Service) classified(err error, kind errs.RequestKind, subject string) *errs.StreamError {
	se := errs.Classify(err, kind)
	logger.Warn("{relay - classified} Resolution failed for %q: %s", subject, se.Error())
	metrics.ResolverFailures.WithLabelValues(se.Code).Inc()
	return se
}

// Shutdown releases the worker pool and the cache backend.
func (s *Service) Shutdown() {
	s.pool.Release()
	if err := s.cache.Close(); err != nil {
		logger.Warn("{relay - Shutdown} Cache close failed: %v", err)
	}
}
