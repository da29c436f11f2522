package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"

	"vidrelay/work/classify"
	"vidrelay/work/client"
	"vidrelay/work/config"
	"vidrelay/work/errs"
	"vidrelay/work/logger"
	"vidrelay/work/metrics"
	"vidrelay/work/rewrite"
)

// Cache-Control values by content class. Rewritten manifests must never be
// cached because live playlists change between fetches and the rewrite embeds
// request-relative proxy paths; segments are immutable once published.
const (
	manifestCacheControl = "no-cache"
	segmentCacheControl  = "public, max-age=3600"
)

// Response is a fully fetched and post-processed upstream payload ready to be
// written to the requesting player.
type Response struct {
	Body         []byte
	MediaType    string
	CacheControl string
	ManifestType string // "master", "media" or "unknown" for manifests, "" otherwise
}

// Engine fetches upstream media on behalf of players, rewriting HLS manifests
// so every embedded reference routes back through the relay and passing
// segments through byte-exact.
type Engine struct {
	cfg      *config.Config
	client   *client.HeaderSettingClient
	limiters *xsync.MapOf[string, ratelimit.Limiter]
}

// NewEngine builds the relay engine around the shared header-setting client.
func NewEngine(cfg *config.Config, hsc *client.HeaderSettingClient) *Engine {
	return &Engine{
		cfg:      cfg,
		client:   hsc,
		limiters: xsync.NewMapOf[string, ratelimit.Limiter](),
	}
}

// Proxy fetches rawURL upstream and returns the relayed payload. Manifest
// responses come back rewritten; everything else is returned byte-for-byte
// with a corrected media type. All failures are *errs.StreamError.
func (e *Engine) Proxy(ctx context.Context, rawURL string) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, errs.New(errs.CodeStreamError, http.StatusBadRequest, "Invalid stream URL")
	}

	content := contentClass(rawURL)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.UpstreamTimeout)
	defer cancel()

	// one token-bucket limiter per upstream host, created on first contact.
	// Waiting for a token must not outlive the request deadline or a client
	// that already went away.
	limiter, _ := e.limiters.LoadOrCompute(target.Host, func() ratelimit.Limiter {
		return ratelimit.New(e.cfg.UpstreamRate)
	})
	tokenReady := make(chan struct{})
	go func() {
		limiter.Take()
		close(tokenReady)
	}()
	select {
	case <-tokenReady:
	case <-ctx.Done():
		logger.Warn("{relay - Proxy} Gave up waiting for a rate-limit token: %s", e.cfg.LogURL(rawURL))
		metrics.ProxyRequests.WithLabelValues(content, "timeout").Inc()
		return nil, errs.UpstreamTimeout()
	}

	start := time.Now()
	resp, err := e.fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			logger.Warn("{relay - Proxy} Upstream fetch timed out: %s", e.cfg.LogURL(rawURL))
			metrics.ProxyRequests.WithLabelValues(content, "timeout").Inc()
			return nil, errs.UpstreamTimeout()
		}
		logger.Error("{relay - Proxy} Upstream fetch failed for %s: %v", e.cfg.LogURL(rawURL), err)
		metrics.ProxyRequests.WithLabelValues(content, "error").Inc()
		return nil, errs.New(errs.CodeStreamError, http.StatusInternalServerError, "Proxy error")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn("{relay - Proxy} Upstream returned %d for %s", resp.StatusCode, e.cfg.LogURL(rawURL))
		metrics.ProxyRequests.WithLabelValues(content, "upstream_error").Inc()
		return nil, errs.UpstreamHTTP(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			metrics.ProxyRequests.WithLabelValues(content, "timeout").Inc()
			return nil, errs.UpstreamTimeout()
		}
		metrics.ProxyRequests.WithLabelValues(content, "error").Inc()
		return nil, errs.New(errs.CodeStreamError, http.StatusInternalServerError, "Proxy error")
	}
	metrics.UpstreamDuration.WithLabelValues(content).Observe(time.Since(start).Seconds())

	declaredType := resp.Header.Get("Content-Type")
	if classify.IsManifestURL(rawURL) || classify.IsManifestContentType(declaredType) {
		out := e.relayManifest(rawURL, body)
		metrics.ProxyRequests.WithLabelValues("manifest", "ok").Inc()
		return out, nil
	}

	metrics.ProxyRequests.WithLabelValues(content, "ok").Inc()
	return relayPassthrough(rawURL, declaredType, body), nil
}

func (e *Engine) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return e.client.Do(req)
}

// relayManifest rewrites playlist text so embedded references route back
// through the relay, and forces the canonical HLS media type regardless of
// what the origin declared.
func (e *Engine) relayManifest(rawURL string, body []byte) *Response {
	text := string(body)
	rewritten := rewrite.Rewrite(text, rewrite.BaseOf(rawURL), e.cfg.ProxyBasePath())

	listType := rewrite.DetectType(text)
	logger.Debug("{relay - relayManifest} Relayed %s playlist (%d -> %d bytes): %s",
		listType, len(text), len(rewritten), e.cfg.LogURL(rawURL))

	return &Response{
		Body:         []byte(rewritten),
		MediaType:    classify.MediaTypeHLS,
		CacheControl: manifestCacheControl,
		ManifestType: listType,
	}
}

// relayPassthrough returns the body untouched, correcting only the declared
// media type when the payload is a mislabeled transport-stream segment.
func relayPassthrough(rawURL, declaredType string, body []byte) *Response {
	if declaredType == "" {
		declaredType = "application/octet-stream"
	}
	mediaType := declaredType
	if len(body) > 0 {
		mediaType = classify.Classify(body[0], declaredType, rawURL)
	}

	return &Response{
		Body:         body,
		MediaType:    mediaType,
		CacheControl: segmentCacheControl,
	}
}

// contentClass buckets a URL for metrics before the body is available.
func contentClass(rawURL string) string {
	switch {
	case classify.IsManifestURL(rawURL):
		return "manifest"
	case classify.IsSegmentURL(rawURL):
		return "segment"
	default:
		return "passthrough"
	}
}
