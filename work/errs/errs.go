package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// RequestKind distinguishes on-demand from live lookups when classifying
// resolver failures, since the same upstream condition maps to different
// stable codes for each.
type RequestKind int

const (
	KindOnDemand RequestKind = iota
	KindLive
)

// Stable machine-readable error codes surfaced to clients.
const (
	CodeVideoProcessing    = "VIDEO_PROCESSING"
	CodeVideoUnavailable   = "VIDEO_UNAVAILABLE"
	CodeLiveUnavailable    = "LIVE_UNAVAILABLE"
	CodeVideoPrivate       = "VIDEO_PRIVATE"
	CodeFormatNotSupported = "FORMAT_NOT_SUPPORTED"
	CodeVideoError         = "VIDEO_ERROR"
	CodeStreamError        = "STREAM_ERROR"
	CodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	CodeUpstreamHTTPError  = "UPSTREAM_HTTP_ERROR"
	CodeStreamURLNotFound  = "STREAM_URL_NOT_FOUND"
)

// maxMessageLen bounds the diagnostic text echoed to clients so verbose
// extraction internals never leak into responses.
const maxMessageLen = 100

// StreamError is a classified failure carrying a stable code, the HTTP status
// it maps to, and a length-bounded human-readable message.
type StreamError struct {
	Code    string
	Status  int
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a StreamError with the message truncated to the response bound.
func New(code string, status int, message string) *StreamError {
	return &StreamError{Code: code, Status: status, Message: Truncate(message)}
}

// Truncate bounds diagnostic text to the maximum length echoed to clients,
// backing off to a rune boundary so the cut never produces invalid UTF-8.
func Truncate(msg string) string {
	if len(msg) <= maxMessageLen {
		return msg
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// UpstreamTimeout reports that an outbound fetch exceeded its deadline.
func UpstreamTimeout() *StreamError {
	return New(CodeUpstreamTimeout, http.StatusGatewayTimeout, "Request timeout")
}

// UpstreamHTTP reports a non-2xx upstream response at the same status code.
// The upstream body is deliberately withheld.
func UpstreamHTTP(status int) *StreamError {
	return New(CodeUpstreamHTTPError, status, "HTTP error")
}

// Classify maps a resolver failure onto the stable error taxonomy by matching
// known upstream error substrings. Classification happens once, as close to
// the resolver boundary as possible; anything unmatched becomes a generic 500
// with truncated diagnostics.
func Classify(err error, kind RequestKind) *StreamError {
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}

	msg := strings.ToLower(err.Error())

	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout()
	}

	switch {
	case strings.Contains(msg, "stream url not found"):
		return New(CodeStreamURLNotFound, http.StatusNotFound, "Stream URL not found")
	case strings.Contains(msg, "processing this video"):
		return New(CodeVideoProcessing, http.StatusServiceUnavailable,
			"This video is still being processed upstream. Try again shortly.")
	case strings.Contains(msg, "private video"):
		return New(CodeVideoPrivate, http.StatusForbidden,
			"This video is private.")
	case strings.Contains(msg, "unavailable"):
		if kind == KindLive {
			return New(CodeLiveUnavailable, http.StatusNotFound,
				"This live stream is unavailable.")
		}
		return New(CodeVideoUnavailable, http.StatusNotFound,
			"This video is unavailable. It may have been removed or made private.")
	case strings.Contains(msg, "no video formats found"), strings.Contains(msg, "format"):
		return New(CodeFormatNotSupported, http.StatusBadRequest,
			"No supported format exists for this video.")
	}

	if kind == KindLive {
		return New(CodeStreamError, http.StatusInternalServerError,
			"Stream error: "+Truncate(err.Error()))
	}
	return New(CodeVideoError, http.StatusInternalServerError,
		"Video error: "+Truncate(err.Error()))
}
