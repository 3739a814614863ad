package llmproxy

import (
	"net"
	"net/http"
	"time"
)

// NewUpstreamClient builds the single shared HTTP client spec.md §4.4
// mandates for upstream LLM calls: a 10-second connect timeout and a
// 5-minute overall roundtrip budget.
func NewUpstreamClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   5 * time.Minute,
	}
}
