package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vidrelay/work/config"
	"vidrelay/work/logger"
)

// ResolvedStream is a playable upstream URL produced by the extraction
// service. The URL may carry an upstream-imposed expiry the relay does not
// control; cache TTLs must stay below that lifetime.
type ResolvedStream struct {
	URL        string    `json:"url"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// MediaInfo is the metadata the extraction service reports for an identifier.
type MediaInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  int64  `json:"duration"`
	Author    string `json:"author"`
}

// Options selects how the extraction service should resolve an identifier.
// This is the explicit, enumerated replacement for the service's native
// dictionary-shaped option bag.
type Options struct {
	Format           string // format preference selector
	Live             bool   // prefer a segmented/adaptive rendition for live content
	FlattenPlaylists bool   // resolve playlist entries shallowly
	Quiet            bool   // suppress extraction diagnostics
}

// Resolver is the narrow interface to the external extraction service: given
// a content identifier, return a playable URL or metadata, or fail.
type Resolver interface {
	ResolveStream(ctx context.Context, id string, opts Options) (*ResolvedStream, error)
	ResolveInfo(ctx context.Context, id string) (*MediaInfo, error)
	Search(ctx context.Context, query string, limit int) ([]MediaInfo, error)
}

// HTTPResolver talks to the extraction service over its HTTP API.
type HTTPResolver struct {
	base    string
	client  *http.Client
	timeout time.Duration
}

// NewHTTP builds a resolver against the configured extraction service URL.
func NewHTTP(cfg *config.Config) *HTTPResolver {
	return &HTTPResolver{
		base:    strings.TrimSuffix(cfg.ResolverURL, "/"),
		client:  &http.Client{},
		timeout: cfg.ResolverTimeout,
	}
}

// ResolveStream asks the extraction service for a playable URL.
func (r *HTTPResolver) ResolveStream(ctx context.Context, id string, opts Options) (*ResolvedStream, error) {
	q := url.Values{}
	if opts.Format != "" {
		q.Set("format", opts.Format)
	}
	if opts.Live {
		q.Set("live", "1")
	}
	if opts.FlattenPlaylists {
		q.Set("flat", "1")
	}
	if opts.Quiet {
		q.Set("quiet", "1")
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := r.get(ctx, "/api/resolve/"+url.PathEscape(id)+"?"+q.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.URL == "" {
		return nil, fmt.Errorf("stream URL not found for %s", id)
	}

	return &ResolvedStream{URL: payload.URL, ResolvedAt: time.Now()}, nil
}

// ResolveInfo fetches metadata for an identifier.
func (r *HTTPResolver) ResolveInfo(ctx context.Context, id string) (*MediaInfo, error) {
	var info MediaInfo
	if err := r.get(ctx, "/api/info/"+url.PathEscape(id), &info); err != nil {
		return nil, err
	}
	if info.ID == "" {
		info.ID = id
	}
	if info.Title == "" {
		info.Title = "Unknown"
	}
	if info.Author == "" {
		info.Author = "Unknown"
	}
	return &info, nil
}

// Search queries the extraction service for matching media.
func (r *HTTPResolver) Search(ctx context.Context, query string, limit int) ([]MediaInfo, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var results []MediaInfo
	if err := r.get(ctx, "/api/search?"+q.Encode(), &results); err != nil {
		return nil, err
	}
	return results, nil
}

// get performs one bounded call against the extraction service. Non-2xx
// responses propagate the service's error text so the taxonomy classifier can
// match its known failure substrings.
func (r *HTTPResolver) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("resolver request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("resolver read failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Debug("{resolver - get} Extraction service returned %d for %s", resp.StatusCode, path)
		return fmt.Errorf("resolver error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.Unmarshal(body, out)
}
