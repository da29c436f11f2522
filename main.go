package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidrelay/work/cache"
	"vidrelay/work/client"
	"vidrelay/work/config"
	"vidrelay/work/handlers"
	"vidrelay/work/logger"
	"vidrelay/work/middleware"
	"vidrelay/work/relay"
	"vidrelay/work/resolver"
)

var (
	Version = "v0.1.0" // default version
)

// our main app worker
func main() {

	// load our config
	cfg := config.Load()
	logger.SetLogLevel(cfg.LogLevel)

	// shared upstream client with the spoofed browser identity
	httpClient := client.New(cfg)

	// resolved-stream cache backend
	cacheInstance := cache.New(buildCacheStore(cfg), cfg.CacheEnabled)

	// extraction service collaborator
	res := resolver.NewHTTP(cfg)

	// relay service with its bounded resolver pool
	svc, err := relay.NewService(cfg, httpClient, cacheInstance, res)
	if err != nil {
		log.Fatalf("Failed to create relay service: %v", err)
	}
	defer svc.Shutdown()

	h := handlers.New(cfg, svc)
	policy := middleware.NewCORSPolicy(cfg.CORSOrigin)

	// Setup HTTP routes
	router := mux.NewRouter()
	root := router
	if cfg.RootPath != "" {
		root = router.PathPrefix(cfg.RootPath).Subrouter()
	}

	// health check
	root.HandleFunc("/", h.HandleHealth).Methods("GET")

	// media routes; segments dominate /proxy traffic and are already
	// entropy-coded, so no gzip there
	root.HandleFunc("/proxy", h.HandleProxy).Methods("GET")
	root.HandleFunc("/live/{id}", middleware.Gzip(h.HandleLive)).Methods("GET")
	root.HandleFunc("/video/{id}", h.HandleVideo).Methods("GET")
	root.HandleFunc("/api/stream/video/{id}", h.HandleStreamVideo).Methods("GET")

	// JSON API surface
	root.HandleFunc("/search", middleware.CORS(policy, middleware.Gzip(h.HandleSearch))).Methods("GET", "OPTIONS")
	root.HandleFunc("/info/{id}", middleware.CORS(policy, middleware.Gzip(h.HandleInfo))).Methods("GET", "OPTIONS")
	root.HandleFunc("/api/stream/info/{id}", middleware.CORS(policy, middleware.Gzip(h.HandleStreamInfo))).Methods("GET", "OPTIONS")

	// Metrics handler
	root.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// add the admin routes
	setupAdminRoutes(root, policy, svc)

	addr := fmt.Sprintf(":%d", cfg.Port)

	// show info
	logger.Info("Starting VidRelay %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Root Path: %q", cfg.RootPath)
	logger.Info("  - Resolver URL: %s", cfg.ResolverURL)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Upstream Timeout: %s", cfg.UpstreamTimeout)
	logger.Info("  - Upstream Rate: %d req/s per host", cfg.UpstreamRate)
	logger.Info("  - Cache Enabled: %v", cfg.CacheEnabled)
	logger.Info("  - Cache TTL: %s", cfg.CacheTTL)
	logger.Info("  - Metadata Cache TTL: %s", cfg.MetadataCacheTTL)
	logger.Info("  - Log Level: %s", logger.GetLogLevel())
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// drain in-flight relays on SIGINT/SIGTERM before exiting
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs

		logger.Info("Shutdown requested, draining connections...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error: %v", err)
		}
	}()

	// fire us up
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// buildCacheStore selects the cache backend: Redis when a URL is configured
// and reachable enough to construct a client, otherwise the in-process store.
// Returns nil when caching is disabled outright.
func buildCacheStore(cfg *config.Config) cache.Store {
	if !cfg.CacheEnabled {
		logger.Info("Cache disabled, every lookup goes to the resolver")
		return nil
	}

	if cfg.CacheURL != "" {
		store, err := cache.NewRedisStore(cfg.CacheURL)
		if err == nil {
			return store
		}
		logger.Warn("Redis cache unavailable (%v), falling back to in-process cache", err)
	}

	store, err := cache.NewMemoryStore()
	if err != nil {
		logger.Warn("In-process cache unavailable (%v), caching disabled", err)
		return nil
	}
	return store
}
