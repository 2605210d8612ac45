package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/placescout/internal/cache"
)

func TestGet_SendsBrowserUserAgent(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
	page, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(ua, "Mozilla/5.0") {
		t.Fatalf("expected browser-like UA, got %q", ua)
	}
	if page.Status != 200 || len(page.Body) == 0 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestGet_RetryOn5xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(502)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
	if _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestGet_NoRetryOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(404)
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 3, PerRequestTimeout: time.Second}
	_, err := c.Get(context.Background(), srv.URL)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != 404 {
		t.Fatalf("expected StatusError 404, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("404 must not be retried, got %d calls", calls)
	}
}

func TestGet_Conditional304_UsesCache(t *testing.T) {
	var calls int32
	etag := `"abc123"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "text/html")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		_, _ = w.Write([]byte("first"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, Cache: &cache.HTTPCache{Dir: t.TempDir()}}
	p1, err := c.Get(context.Background(), srv.URL)
	if err != nil || string(p1.Body) != "first" {
		t.Fatalf("first get: %v %q", err, p1.Body)
	}
	p2, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("second get error: %v", err)
	}
	if string(p2.Body) != "first" || !p2.FromCache {
		t.Fatalf("expected cached body, got %q fromCache=%v", p2.Body, p2.FromCache)
	}
}

func TestGet_RejectsNonHTTP(t *testing.T) {
	c := &Client{MaxAttempts: 1, PerRequestTimeout: time.Second}
	if _, err := c.Get(context.Background(), "file:///etc/hosts"); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestGet_ContentTypeGating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected error for unsupported content type")
	}
}

func TestGetWithTimeout_DeadlineIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1}
	start := time.Now()
	if _, err := c.GetWithTimeout(context.Background(), srv.URL, 100*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced")
	}
}

type denyAll struct{}

func (denyAll) Allowed(context.Context, string) bool { return false }

func TestGet_RobotsGate(t *testing.T) {
	c := &Client{MaxAttempts: 1, Robots: denyAll{}}
	if _, err := c.Get(context.Background(), "https://example.com/"); !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}
}

type slowHost struct{ delay time.Duration }

func (slowHost) Allowed(context.Context, string) bool { return true }

func (s slowHost) CrawlDelay(context.Context, string) time.Duration { return s.delay }

func TestGet_HonorsCrawlDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()
	c := &Client{MaxAttempts: 1, Robots: slowHost{delay: 150 * time.Millisecond}}
	start := time.Now()
	for _, p := range []string{"/a", "/b"} {
		if _, err := c.Get(context.Background(), srv.URL+p); err != nil {
			t.Fatal(err)
		}
	}
	if el := time.Since(start); el < 140*time.Millisecond {
		t.Fatalf("second request not delayed: %v", el)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Get(ctx, srv.URL+"/c"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation while waiting, got %v", err)
	}
}

func TestAdmit_AppliesRobotsAndConnectionCeiling(t *testing.T) {
	if _, err := (&Client{Robots: denyAll{}}).Admit(context.Background(), "https://example.com/"); !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}
	if _, err := (&Client{}).Admit(context.Background(), "ftp://example.com/"); err == nil {
		t.Fatal("non-http scheme admitted")
	}

	c := &Client{MaxConcurrent: 1}
	release, err := c.Admit(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Admit(ctx, "https://example.com/b"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second admit should wait for a slot, got %v", err)
	}
	release()
	release2, err := c.Admit(context.Background(), "https://example.com/c")
	if err != nil {
		t.Fatalf("slot not returned: %v", err)
	}
	release2()
}
