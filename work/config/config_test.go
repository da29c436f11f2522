package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.MetadataCacheTTL)
	assert.Equal(t, "https://www.youtube.com", cfg.ReqOrigin)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, "/proxy", cfg.ProxyBasePath())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ROOT_PATH", "/player/")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("CORS_ORIGINS", "https://app.example, https://admin.example")
	t.Setenv("UPSTREAM_TIMEOUT", "10s")

	cfg := Load()

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "/player", cfg.RootPath)
	assert.Equal(t, "/player/proxy", cfg.ProxyBasePath())
	assert.False(t, cfg.CacheEnabled)
	assert.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.CORSOrigin)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "99999")
	t.Setenv("UPSTREAM_TIMEOUT", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout)
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("CACHE_TTL", "45")
	cfg := Load()
	assert.Equal(t, 45*time.Second, cfg.CacheTTL)
}

func TestDebugForcesDebugLevel(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_LEVEL", "ERROR")
	cfg := Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestObfuscateURL(t *testing.T) {
	got := ObfuscateURL("https://origin.example/secret/seg0.ts?token=abc")
	assert.Equal(t, "https://origin.example/***?***", got)

	assert.Equal(t, "", ObfuscateURL(""))
	assert.Equal(t, "https://origin.example", ObfuscateURL("https://origin.example"))
}

func TestLogURLRespectsToggle(t *testing.T) {
	cfg := &Config{ObfuscateUrls: false}
	assert.Equal(t, "https://a/b.ts", cfg.LogURL("https://a/b.ts"))

	cfg.ObfuscateUrls = true
	assert.NotContains(t, cfg.LogURL("https://a/b.ts?k=v"), "b.ts")
}
