package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hyperifyio/placescout/internal/cache"
)

// DefaultUserAgent looks like a desktop browser. Many venue sites block
// default Go clients outright.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxBodyBytes bounds how much of a page is read into memory.
const maxBodyBytes = 8 << 20

// Page is one fetched HTML document.
type Page struct {
	// URL is the final URL after redirects.
	URL         string
	Status      int
	ContentType string
	Body        []byte
	FromCache   bool
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.Code) }

// ErrDisallowed is returned when a RobotsGate refuses a URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// RobotsGate decides whether a URL may be fetched.
type RobotsGate interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// CrawlDelayer is an optional RobotsGate capability. When present, requests
// to one host are spaced by the delay it reports.
type CrawlDelayer interface {
	CrawlDelay(ctx context.Context, rawURL string) time.Duration
}

// Client wraps http.Client and provides timeouts, limited retry on transient
// errors, a politeness limiter and an optional page cache.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request unless the caller passes its own.
	PerRequestTimeout time.Duration
	// Optional on-disk cache for page bodies and validators.
	Cache *cache.HTTPCache
	// RedirectMaxHops caps redirect following. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent is the ceiling on open connections for this client.
	// Zero means unlimited.
	MaxConcurrent int
	// Limiter spaces requests to the target site. Nil disables pacing.
	Limiter *rate.Limiter
	// Robots, when set, is consulted before every request.
	Robots RobotsGate

	limiter     chan struct{}
	limiterOnce sync.Once

	mu      sync.Mutex
	lastHit map[string]time.Time
}

func (c *Client) getHTTPClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirectFunc()}
}

// Get fetches rawURL with the client's default timeout.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	return c.GetWithTimeout(ctx, rawURL, c.PerRequestTimeout)
}

// GetWithTimeout fetches rawURL bounding each attempt by timeout. Transient
// failures (5xx, deadline) are retried up to MaxAttempts.
func (c *Client) GetWithTimeout(ctx context.Context, rawURL string, timeout time.Duration) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return Page{}, fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}
	if c.Robots != nil && !c.Robots.Allowed(ctx, rawURL) {
		return Page{}, ErrDisallowed
	}
	if err := c.waitCrawlDelay(ctx, u, rawURL); err != nil {
		return Page{}, err
	}

	var cached *cache.PageEntry
	var cachedBody []byte
	if c.Cache != nil {
		if e, b, ok, err := c.Cache.Lookup(ctx, rawURL); err == nil && ok {
			cached, cachedBody = e, b
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		page, err := c.tryOnce(ctx, rawURL, timeout, cached)
		if err == nil {
			if page.Status == http.StatusNotModified && cached != nil {
				return Page{URL: rawURL, Status: http.StatusOK, ContentType: cached.ContentType, Body: cachedBody, FromCache: true}, nil
			}
			if c.Cache != nil {
				_ = c.Cache.Save(ctx, cache.PageEntry{URL: rawURL, ContentType: page.ContentType, ETag: page.etag, LastModified: page.lastModified}, page.Body)
			}
			return page.Page, nil
		}
		lastErr = err
		if !isTransient(err) || i == attempts-1 || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	return Page{}, lastErr
}

// Admit applies the client's politeness rules to a request made by another
// transport, such as a browser: robots.txt, Crawl-delay, the rate limiter
// and the connection ceiling. The caller must invoke release when done.
func (c *Client) Admit(ctx context.Context, rawURL string) (release func(), err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, fmt.Errorf("unsupported URL scheme: %q", rawURL)
	}
	if c.Robots != nil && !c.Robots.Allowed(ctx, rawURL) {
		return nil, ErrDisallowed
	}
	if err := c.waitCrawlDelay(ctx, u, rawURL); err != nil {
		return nil, err
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.release, nil
}

type attempt struct {
	Page
	etag         string
	lastModified string
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, timeout time.Duration, cached *cache.PageEntry) (attempt, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return attempt{}, err
		}
	}
	if err := c.acquire(ctx); err != nil {
		return attempt{}, err
	}
	defer c.release()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attempt{}, fmt.Errorf("new request: %w", err)
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return attempt{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return attempt{Page: Page{URL: rawURL, Status: resp.StatusCode}}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return attempt{}, &StatusError{Code: resp.StatusCode}
	}
	contentType := resp.Header.Get("Content-Type")
	if !isAllowedHTMLContentType(contentType) {
		return attempt{}, fmt.Errorf("unsupported content type: %s", contentType)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return attempt{}, fmt.Errorf("read body: %w", err)
	}
	final := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return attempt{
		Page:         Page{URL: final, Status: resp.StatusCode, ContentType: contentType, Body: b},
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return false
}

func (c *Client) checkRedirectFunc() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func isAllowedHTMLContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	// some small-business hosts omit the header entirely
	return ct == "" || strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}

// waitCrawlDelay blocks until the host's robots.txt Crawl-delay has passed
// since the previous request to it.
func (c *Client) waitCrawlDelay(ctx context.Context, u *url.URL, rawURL string) error {
	cd, ok := c.Robots.(CrawlDelayer)
	if !ok {
		return nil
	}
	delay := cd.CrawlDelay(ctx, rawURL)
	if delay <= 0 {
		return nil
	}
	host := strings.ToLower(u.Host)
	c.mu.Lock()
	if c.lastHit == nil {
		c.lastHit = map[string]time.Time{}
	}
	now := time.Now()
	next := c.lastHit[host].Add(delay)
	if next.Before(now) {
		next = now
	}
	c.lastHit[host] = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) acquire(ctx context.Context) error {
	if c.MaxConcurrent <= 0 {
		return nil
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}
