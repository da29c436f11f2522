package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration values for the stream relay server.
// It covers the HTTP listener, the upstream fetch policy, the resolver collaborator,
// and the resolved-stream cache backends.
type Config struct {
	Port       int      // HTTP listen port
	RootPath   string   // Optional path prefix when deployed behind a reverse proxy (e.g. "/player")
	BaseURL    string   // Base URL advertised in generated links (defaults to http://localhost:<port>)
	Debug      bool     // Enable debug logging
	LogLevel   string   // Log level: DEBUG, INFO, WARN, ERROR
	CORSOrigin []string // Origins allowed on the JSON API surface

	// Upstream fetch policy. Media origins frequently reject requests lacking a
	// browser-like identity, so these are sent on every outbound fetch.
	UserAgent       string        // Spoofed User-Agent header
	ReqOrigin       string        // Origin header matching the media source site
	ReqReferrer     string        // Referer header matching the media source site
	UpstreamTimeout time.Duration // Upper bound on total relay fetch duration
	UpstreamRate    int           // Max outbound requests per second per upstream host

	// Resolver collaborator (external extraction service).
	ResolverURL     string        // Base URL of the extraction service
	ResolverTimeout time.Duration // Deadline per resolver call
	WorkerThreads   int           // Bounded pool size for concurrent resolver calls
	Resolver        ResolverOptions

	// Resolved-stream cache. CacheTTL must stay below a conservative estimate of
	// upstream URL lifetime, otherwise expired redirects get served from cache.
	CacheEnabled     bool          // Whether the cache layer is active at all
	CacheURL         string        // Redis URL; empty selects the in-process backend
	CacheTTL         time.Duration // TTL for resolved stream URLs
	MetadataCacheTTL time.Duration // TTL for metadata lookups (metadata changes far less often)

	ObfuscateUrls bool // Obfuscate URLs in logs
}

// ResolverOptions enumerates the recognized extraction options and their effects,
// replacing the loosely-typed option dictionaries the extraction service accepts natively.
type ResolverOptions struct {
	FormatPreference string // Format selector, e.g. "best[height<=720][ext=mp4]/best"
	LiveFormat       string // Format selector used for live lookups (prefers HLS renditions)
	FlattenPlaylists bool   // Resolve playlist entries shallowly instead of recursing
	Quiet            bool   // Suppress extraction service diagnostics
}

// Load reads the configuration from the environment, applying validated defaults
// for anything unset. It never fails: a missing or malformed variable falls back
// to its default so the relay can always start.
func Load() *Config {
	cfg := &Config{
		Port:             envInt("PORT", 8000),
		RootPath:         strings.TrimSuffix(os.Getenv("ROOT_PATH"), "/"),
		BaseURL:          os.Getenv("BASE_URL"),
		Debug:            envBool("DEBUG", false),
		LogLevel:         envString("LOG_LEVEL", "INFO"),
		CORSOrigin:       splitList(envString("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")),
		UserAgent:        envString("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),
		ReqOrigin:        envString("REQ_ORIGIN", "https://www.youtube.com"),
		ReqReferrer:      envString("REQ_REFERRER", "https://www.youtube.com/"),
		UpstreamTimeout:  envDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		UpstreamRate:     envInt("UPSTREAM_RATE", 20),
		ResolverURL:      envString("RESOLVER_URL", "http://localhost:9000"),
		ResolverTimeout:  envDuration("RESOLVER_TIMEOUT", 60*time.Second),
		WorkerThreads:    envInt("WORKER_THREADS", 8),
		CacheEnabled:     envBool("CACHE_ENABLED", true),
		CacheURL:         os.Getenv("CACHE_URL"),
		CacheTTL:         envDuration("CACHE_TTL", time.Hour),
		MetadataCacheTTL: envDuration("METADATA_CACHE_TTL", 24*time.Hour),
		ObfuscateUrls:    envBool("OBFUSCATE_URLS", false),
		Resolver: ResolverOptions{
			FormatPreference: envString("RESOLVER_FORMAT", "best[height<=720][ext=mp4]/best[height<=720]/best[ext=mp4]/best"),
			LiveFormat:       envString("RESOLVER_LIVE_FORMAT", "95/96/best[height<=720]/best"),
			FlattenPlaylists: envBool("RESOLVER_FLATTEN", true),
			Quiet:            envBool("RESOLVER_QUIET", true),
		},
	}

	validateAndSetDefaults(cfg)
	return cfg
}

// validateAndSetDefaults ensures all config values are usable,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(cfg *Config) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = 8000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 30 * time.Second
	}
	if cfg.UpstreamRate <= 0 {
		cfg.UpstreamRate = 20
	}
	if cfg.ResolverTimeout <= 0 {
		cfg.ResolverTimeout = 60 * time.Second
	}
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 8
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.MetadataCacheTTL <= 0 {
		cfg.MetadataCacheTTL = 24 * time.Hour
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	}
	if len(cfg.CORSOrigin) == 0 {
		cfg.CORSOrigin = []string{"*"}
	}
	if cfg.Debug {
		cfg.LogLevel = "DEBUG"
	}
}

// ProxyBasePath returns the path of the relay endpoint including the configured
// root prefix. Manifest rewriting uses this as the wrapper prefix, so it must be
// stable across requests.
func (c *Config) ProxyBasePath() string {
	if c.RootPath != "" {
		return c.RootPath + "/proxy"
	}
	return "/proxy"
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

// envDuration accepts Go duration strings ("30s", "1h") and, for compatibility
// with earlier deployments, bare integers meaning seconds.
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ObfuscateURL masks sensitive parts of a URL for logging. Resolved media URLs
// carry short-lived access tokens in their query strings, so raw URLs never go
// to the logs unless explicitly enabled.
//
// Example:
//
//	Input:  "https://origin.example/secret/seg0.ts?token=abc"
//	Output: "https://origin.example/***?***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}

// LogURL returns either the original URL or an obfuscated version for logging.
func (c *Config) LogURL(url string) string {
	if c.ObfuscateUrls {
		return ObfuscateURL(url)
	}
	return url
}
