package robots

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// Checker answers "may this agent fetch this URL" using each host's
// robots.txt. Rules are fetched once per host per EntryExpiry and kept in
// memory. Unreachable or malformed robots files allow everything, matching
// the usual crawler convention.
type Checker struct {
	HTTPClient  *http.Client
	UserAgent   string
	EntryExpiry time.Duration

	mu  sync.Mutex
	mem map[string]entry
	now func() time.Time
}

type entry struct {
	group  *robotstxt.Group
	expiry time.Time
}

// Allowed implements fetch.RobotsGate.
func (c *Checker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	g := c.groupFor(ctx, u)
	if g == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return g.Test(path)
}

// CrawlDelay returns the host's requested delay between fetches, or zero.
func (c *Checker) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0
	}
	if g := c.groupFor(ctx, u); g != nil {
		return g.CrawlDelay
	}
	return 0
}

func (c *Checker) groupFor(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := strings.ToLower(u.Scheme + "://" + u.Host)
	now := c.clock()

	c.mu.Lock()
	if c.mem == nil {
		c.mem = make(map[string]entry)
	}
	if e, ok := c.mem[key]; ok && now.Before(e.expiry) {
		c.mu.Unlock()
		return e.group
	}
	c.mu.Unlock()

	g := c.load(ctx, key)
	expiry := c.EntryExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	c.mu.Lock()
	c.mem[key] = entry{group: g, expiry: now.Add(expiry)}
	c.mu.Unlock()
	return g
}

func (c *Checker) load(ctx context.Context, origin string) *robotstxt.Group {
	robotsURL := origin + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", robotsURL).Msg("robots fetch failed; allowing")
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		log.Debug().Err(err).Str("url", robotsURL).Msg("robots parse failed; allowing")
		return nil
	}
	return data.FindGroup(c.agent())
}

func (c *Checker) agent() string {
	if c.UserAgent == "" {
		return "*"
	}
	return c.UserAgent
}

func (c *Checker) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
