package app

import (
	"net"
	"net/http"
	"time"
)

// httpClients separates traffic with different limits. Crawling a venue's
// site is capped per host; the place, geocoding and weather APIs share a
// small pool; model calls get a long timeout because image ranking sends
// one large batch.
type httpClients struct {
	crawl *http.Client
	api   *http.Client
	model *http.Client
}

func newHTTPClients(maxConnsPerHost int) httpClients {
	return httpClients{
		crawl: &http.Client{Transport: newTransport(maxConnsPerHost, 15*time.Second), Timeout: 60 * time.Second},
		api:   &http.Client{Transport: newTransport(4, 20*time.Second), Timeout: 30 * time.Second},
		model: &http.Client{Transport: newTransport(0, 0), Timeout: 3 * time.Minute},
	}
}

// newTransport returns a transport with its own pool. Zero maxConnsPerHost
// means unlimited; zero headerTimeout waits for the client timeout.
func newTransport(maxConnsPerHost int, headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}
}
