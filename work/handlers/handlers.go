package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"vidrelay/work/config"
	"vidrelay/work/errs"
	"vidrelay/work/logger"
	"vidrelay/work/relay"
	"vidrelay/work/resolver"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Handler exposes the relay service over HTTP.
type Handler struct {
	Config  *config.Config
	Service *relay.Service
}

// New creates the HTTP handler set around the relay service.
func New(cfg *config.Config, svc *relay.Service) *Handler {
	return &Handler{Config: cfg, Service: svc}
}

// infoResponse is the metadata payload returned by the info endpoints.
type infoResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Duration  int64  `json:"duration"`
	Author    string `json:"author"`
	StreamURL string `json:"streamUrl"`
}

// HandleHealth responds to liveness checks.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Stream relay API",
		"status":  "healthy",
	})
}

// HandleProxy relays an arbitrary upstream URL: manifests come back rewritten,
// segments byte-exact. The wildcard CORS header is unconditional because
// players embed these URLs from arbitrary origins.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, errs.New(errs.CodeStreamError, http.StatusBadRequest, "Missing url parameter"))
		return
	}

	h.relay(w, r, rawURL)
}

// HandleLive resolves a live stream identifier and relays its playlist through
// the proxy engine so segment fetches route back here.
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	streamURL, _, err := h.Service.ResolveStream(r.Context(), id, errs.KindLive, false)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	h.relay(w, r, streamURL)
}

// HandleVideo resolves an on-demand identifier and redirects the player
// straight to the upstream URL, resolving fresh on every request. On-demand
// content plays as a single progressive file, so relaying it through the
// proxy would only add copies.
func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	h.redirectVideo(w, r, false)
}

// HandleStreamVideo is the cache-backed variant of HandleVideo: a previously
// resolved URL within its TTL is reused without touching the resolver.
func (h *Handler) HandleStreamVideo(w http.ResponseWriter, r *http.Request) {
	h.redirectVideo(w, r, true)
}

func (h *Handler) redirectVideo(w http.ResponseWriter, r *http.Request, useCache bool) {
	id := mux.Vars(r)["id"]

	streamURL, cached, err := h.Service.ResolveStream(r.Context(), id, errs.KindOnDemand, useCache)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	if useCache {
		w.Header().Set("X-Cache", cacheHeader(cached))
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.Redirect(w, r, streamURL, http.StatusFound)
}

// HandleInfo returns metadata with an absolute playback URL derived from the
// request, so the response works from any host the relay is reachable on.
func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, cached, err := h.Service.ResolveInfo(r.Context(), id)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	w.Header().Set("X-Cache", cacheHeader(cached))
	writeJSON(w, http.StatusOK, h.infoPayload(info, requestBaseURL(r)))
}

// HandleStreamInfo is the API-prefixed variant of HandleInfo. Its playback URL
// is relative, matching clients that resolve it against their own origin.
func (h *Handler) HandleStreamInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	info, cached, err := h.Service.ResolveInfo(r.Context(), id)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	w.Header().Set("X-Cache", cacheHeader(cached))
	writeJSON(w, http.StatusOK, h.infoPayload(info, ""))
}

// HandleSearch queries the extraction service for matching media.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, errs.New(errs.CodeStreamError, http.StatusBadRequest, "Missing q parameter"))
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	results, err := h.Service.Search(r.Context(), query, limit)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	if results == nil {
		results = []resolver.MediaInfo{}
	}
	writeJSON(w, http.StatusOK, results)
}

// relay runs one proxy fetch and writes the result.
func (h *Handler) relay(w http.ResponseWriter, r *http.Request, rawURL string) {
	resp, err := h.Service.Proxy(r.Context(), rawURL)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	w.Header().Set("Content-Type", resp.MediaType)
	w.Header().Set("Cache-Control", resp.CacheControl)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if _, err := w.Write(resp.Body); err != nil {
		logger.Debug("{handlers - relay} Client went away mid-response: %v", err)
	}
}

// infoPayload shapes resolver metadata for a response. An empty base yields a
// relative playback URL.
func (h *Handler) infoPayload(info *resolver.MediaInfo, base string) infoResponse {
	return infoResponse{
		ID:        info.ID,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  info.Duration,
		Author:    info.Author,
		StreamURL: base + h.Config.RootPath + "/api/stream/video/" + info.ID,
	}
}

// requestBaseURL reconstructs the scheme and host the client used, honoring
// the forwarded proto set by a fronting reverse proxy.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

// writeResolveError maps any failure onto the stable taxonomy before writing.
// Service methods already classify, so this only catches raw errors from
// handler-level plumbing.
func writeResolveError(w http.ResponseWriter, err error) {
	var se *errs.StreamError
	if !errors.As(err, &se) {
		se = errs.Classify(err, errs.KindOnDemand)
	}
	writeError(w, se)
}

func writeError(w http.ResponseWriter, se *errs.StreamError) {
	writeJSON(w, se.Status, map[string]string{
		"error":   se.Code,
		"message": se.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Debug("{handlers - writeJSON} Encode failed: %v", err)
	}
}
