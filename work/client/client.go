package client

import (
	"net/http"
	"time"

	"vidrelay/work/config"
)

// HeaderSettingClient wraps http.Client to automatically inject the spoofed
// browser identity on every outbound request. Media origins routinely reject
// fetches that lack a plausible User-Agent, Accept, Origin, or Referer, so the
// relay never sends a bare request upstream.
type HeaderSettingClient struct {
	Client *http.Client
	config *config.Config
}

// New builds the shared upstream client. Redirects are followed transparently;
// the overall deadline is enforced per request via context, not here, so a
// single client can serve both quick manifest fetches and larger segment pulls.
func New(cfg *config.Config) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 0, // deadline comes from the request context
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DisableKeepAlives:     false,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &HeaderSettingClient{
		Client: client,
		config: cfg,
	}
}

func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", hsc.config.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	if hsc.config.ReqOrigin != "" {
		req.Header.Set("Origin", hsc.config.ReqOrigin)
	}
	if hsc.config.ReqReferrer != "" {
		req.Header.Set("Referer", hsc.config.ReqReferrer)
	}
}
