package app

import (
	"net/http"
	"testing"
	"time"
)

func TestNewHTTPClients_SeparatePools(t *testing.T) {
	c := newHTTPClients(3)
	crawl := c.crawl.Transport.(*http.Transport)
	api := c.api.Transport.(*http.Transport)
	model := c.model.Transport.(*http.Transport)
	if crawl == api || api == model || crawl == http.DefaultTransport {
		t.Fatalf("clients must not share a transport")
	}
	if crawl.MaxConnsPerHost != 3 || api.MaxConnsPerHost != 4 || model.MaxConnsPerHost != 0 {
		t.Fatalf("per-host caps: %d %d %d", crawl.MaxConnsPerHost, api.MaxConnsPerHost, model.MaxConnsPerHost)
	}
	if c.model.Timeout <= c.crawl.Timeout || model.ResponseHeaderTimeout != 0 {
		t.Fatalf("model client should wait longest: %v vs %v", c.model.Timeout, c.crawl.Timeout)
	}
	if crawl.ResponseHeaderTimeout != 15*time.Second {
		t.Fatalf("crawl header timeout %v", crawl.ResponseHeaderTimeout)
	}
}
