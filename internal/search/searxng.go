package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when the SearxNG instance answers 429.
var ErrRateLimited = errors.New("searxng: rate limited")

// SearxNG asks a SearxNG instance for candidate websites of a place.
type SearxNG struct {
	BaseURL string
	APIKey  string
	// Language is the SearxNG language code, e.g. "sk". Empty means "auto".
	Language   string
	HTTPClient *http.Client
	UserAgent  string
	// Limiter paces queries. Public instances ban bursts quickly.
	Limiter *rate.Limiter
}

func (s *SearxNG) Name() string { return "searxng" }

type searxHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search returns at most limit hits, one per host, in the engine's order.
func (s *SearxNG) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	endpoint, err := s.endpoint(query, limit)
	if err != nil {
		return nil, err
	}
	if s.Limiter != nil {
		if err := s.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	hc := s.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode/100 != 2:
		return nil, fmt.Errorf("searxng status: %d", resp.StatusCode)
	}
	var body struct {
		Results []searxHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("searxng decode: %w", err)
	}

	seen := map[string]bool{}
	out := make([]Result, 0, limit)
	for _, h := range body.Results {
		u, err := url.Parse(strings.TrimSpace(h.URL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if seen[host] {
			continue
		}
		seen[host] = true
		out = append(out, Result{
			Title:   strings.TrimSpace(h.Title),
			URL:     u.String(),
			Snippet: strings.TrimSpace(h.Content),
			Source:  s.Name(),
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *SearxNG) endpoint(query string, limit int) (string, error) {
	if strings.TrimSpace(s.BaseURL) == "" {
		return "", errors.New("searxng: base url not configured")
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("searxng: %w", err)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/search") + "/search"
	lang := s.Language
	if lang == "" {
		lang = "auto"
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("language", lang)
	q.Set("categories", "general")
	q.Set("count", strconv.Itoa(limit))
	if s.APIKey != "" {
		q.Set("apikey", s.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
