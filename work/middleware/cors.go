package middleware

import (
	"net/http"
	"strings"

	"vidrelay/work/logger"
)

// CORSPolicy holds the normalized origin allow-list for the JSON API surface.
// Media routes (/proxy, /live, /video) always answer with a wildcard instead,
// since players embed them from arbitrary pages.
type CORSPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// NewCORSPolicy builds a policy from the configured origin list. A "*" entry
// switches the whole policy to wildcard mode.
func NewCORSPolicy(origins []string) *CORSPolicy {
	p := &CORSPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		normalized := normalizeOrigin(origin)
		if normalized == "*" {
			p.allowAll = true
			continue
		}
		if normalized != "" {
			p.allowed[normalized] = struct{}{}
		}
	}
	return p
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(origin), "/"))
}

// Allows reports whether the given Origin header value may access the API.
func (p *CORSPolicy) Allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.allowed[normalizeOrigin(origin)]
	return ok
}

// CORS applies the origin policy to an API handler, answering preflight
// requests directly. Requests without an Origin header pass through untouched.
func CORS(policy *CORSPolicy, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next(w, r)
			return
		}

		if !policy.Allows(origin) {
			logger.Debug("{middleware - CORS} Blocked origin %s for %s", origin, r.URL.Path)
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		if policy.allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}
