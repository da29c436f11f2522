package rewrite

import (
	"net/url"
	"strings"

	"github.com/grafana/regexp"
	"github.com/grafov/m3u8"

	"vidrelay/work/logger"
)

// absoluteURLPattern matches absolute playlist or segment URLs wherever they
// appear in a line, including inside attribute-style directives such as
// #EXT-X-MEDIA:...,URI="https://...". Percent-encoded URLs inside an already
// rewritten reference cannot match because their scheme separator is escaped.
var absoluteURLPattern = regexp.MustCompile(`https?://[^\s"',]+\.(?:m3u8|ts)(?:\?[^\s"',]*)?`)

// BaseOf returns the base location of a manifest: its fetch URL with the last
// path segment stripped, ending in "/". Relative references inside the manifest
// resolve against this.
func BaseOf(manifestURL string) string {
	if idx := strings.LastIndex(manifestURL, "/"); idx != -1 {
		return manifestURL[:idx+1]
	}
	return manifestURL
}

// Rewrite transforms manifest text so that every embedded playlist or segment
// reference routes back through the relay. Directive and comment lines pass
// through byte-for-byte except for absolute URLs embedded in them; bare URI
// lines are resolved against baseURL and wrapped as
// proxyBasePath?url=<percent-encoded absolute URL>.
//
// The rewriter is stateless and single pass. Master playlists need no special
// handling: a sub-playlist reference is wrapped exactly like a segment
// reference, and the client's next fetch of it through the relay triggers its
// own rewrite pass. References already carrying the proxy prefix are left
// untouched, which makes the operation idempotent.
func Rewrite(text, baseURL, proxyBasePath string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		logger.Warn("{rewrite - Rewrite} Unparseable base URL, returning manifest unmodified: %v", err)
		return text
	}

	lines := strings.Split(text, "\n")
	rewritten := 0

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			// blank lines pass through untouched

		case strings.HasPrefix(trimmed, "#"):
			// directive or comment: only absolute URLs embedded in it are
			// rewritten, the directive text itself is preserved byte-for-byte
			lines[i] = absoluteURLPattern.ReplaceAllStringFunc(line, func(match string) string {
				out := wrap(match, proxyBasePath)
				if out != match {
					rewritten++
				}
				return out
			})

		case isBareReference(trimmed):
			abs := resolveReference(trimmed, base)
			wrapped := wrap(abs, proxyBasePath)
			if wrapped != trimmed {
				rewritten++
			}
			// preserve any original surrounding whitespace
			lines[i] = strings.Replace(line, trimmed, wrapped, 1)

		default:
			// neither clearly a directive nor a clean URI line. Favor
			// under-rewriting: absolute URLs are still wrapped, anything
			// else is left alone rather than risk corrupting playback.
			if absoluteURLPattern.MatchString(line) {
				lines[i] = absoluteURLPattern.ReplaceAllStringFunc(line, func(match string) string {
					out := wrap(match, proxyBasePath)
					if out != match {
						rewritten++
					}
					return out
				})
			} else if !strings.HasPrefix(trimmed, proxyBasePath) &&
				(strings.Contains(trimmed, ".m3u8") || strings.Contains(trimmed, ".ts")) {
				logger.Warn("{rewrite - Rewrite} Ambiguous manifest line left unrewritten: %.80s", trimmed)
			}
		}
	}

	logger.Debug("{rewrite - Rewrite} Rewrote %d references (base: %s)", rewritten, baseURL)
	return strings.Join(lines, "\n")
}

// isBareReference reports whether a trimmed non-comment line is a single
// playlist or segment reference: one token whose path component (query and
// fragment ignored) ends in a manifest or segment extension.
func isBareReference(trimmed string) bool {
	if strings.ContainsAny(trimmed, " \t") {
		return false
	}
	path := trimmed
	if idx := strings.IndexAny(path, "?#"); idx != -1 {
		path = path[:idx]
	}
	return strings.HasSuffix(path, ".m3u8") || strings.HasSuffix(path, ".ts")
}

// resolveReference turns a manifest reference into an absolute URL, resolving
// relative references against the manifest's base location.
func resolveReference(ref string, base *url.URL) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

// wrap routes an absolute URL through the relay endpoint. References that
// already carry the proxy prefix are returned unchanged so that re-fetched
// manifests never get double-wrapped.
func wrap(absURL, proxyBasePath string) string {
	if strings.HasPrefix(absURL, proxyBasePath) {
		return absURL
	}
	return proxyBasePath + "?url=" + url.QueryEscape(absURL)
}

// DetectType classifies manifest text as a master or media playlist for
// logging and metrics. Unparseable documents are reported as "unknown"; the
// rewriter itself never depends on the classification.
func DetectType(text string) string {
	_, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return "unknown"
	}
	switch listType {
	case m3u8.MASTER:
		return "master"
	case m3u8.MEDIA:
		return "media"
	}
	return "unknown"
}
