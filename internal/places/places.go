// Package places finds points of interest around a coordinate by querying
// several public and paid directories and merging their answers.
package places

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Place is one point of interest. Fields a source does not know stay empty.
type Place struct {
	Name             string   `json:"name"`
	Lat              float64  `json:"lat"`
	Lon              float64  `json:"lon"`
	Type             string   `json:"type,omitempty"`
	Types            []string `json:"types,omitempty"`
	Cuisine          string   `json:"cuisine,omitempty"`
	Description      string   `json:"description,omitempty"`
	Website          string   `json:"website,omitempty"`
	Phone            string   `json:"phone,omitempty"`
	OpeningHours     string   `json:"opening_hours,omitempty"`
	Address          string   `json:"address,omitempty"`
	City             string   `json:"city,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	UserRatingsTotal int      `json:"user_ratings_total,omitempty"`
	PriceLevel       *int     `json:"price_level,omitempty"`
	// OpenStreetMap feature tags ("yes", "no", "limited", "wlan").
	Wheelchair     string `json:"wheelchair,omitempty"`
	OutdoorSeating string `json:"outdoor_seating,omitempty"`
	Delivery       string `json:"delivery,omitempty"`
	Takeaway       string `json:"takeaway,omitempty"`
	InternetAccess string `json:"internet_access,omitempty"`
	Smoking        string `json:"smoking,omitempty"`
	Source         string `json:"source"`
}

// Query selects places of one type within RadiusM meters of Lat/Lon.
type Query struct {
	Lat       float64
	Lon       float64
	RadiusM   int
	PlaceType string
	Limit     int
}

func (q Query) withDefaults() Query {
	if q.RadiusM <= 0 {
		q.RadiusM = 500
	}
	if q.PlaceType == "" {
		q.PlaceType = "restaurant"
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

// Source is one place directory.
type Source interface {
	Name() string
	Search(ctx context.Context, q Query) ([]Place, error)
}

// Report tells which sources answered.
type Report struct {
	Counts map[string]int    `json:"counts"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Aggregator queries all sources concurrently and merges the results.
type Aggregator struct {
	Sources []Source
	// Timeout bounds each source. Zero means 30s.
	Timeout time.Duration
}

// Search returns deduplicated places sorted by rating, best first, capped at
// q.Limit. A failing source is recorded in the report and otherwise ignored.
func (a *Aggregator) Search(ctx context.Context, q Query) ([]Place, Report) {
	q = q.withDefaults()
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	results := make([][]Place, len(a.Sources))
	rep := Report{Counts: map[string]int{}, Errors: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.Sources {
		i, src := i, src
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			found, err := src.Search(sctx, q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Err(err).Str("source", src.Name()).Msg("place source failed")
				rep.Errors[src.Name()] = err.Error()
				return nil
			}
			rep.Counts[src.Name()] = len(found)
			results[i] = found
			return nil
		})
	}
	_ = g.Wait()

	var all []Place
	for _, r := range results {
		all = append(all, r...)
	}
	merged := Dedupe(all)
	sort.SliceStable(merged, func(i, j int) bool { return ratingOf(merged[i]) > ratingOf(merged[j]) })
	if len(merged) > q.Limit {
		merged = merged[:q.Limit]
	}
	return merged, rep
}

// Dedupe keeps the first place per (name, lat, lon) with coordinates
// rounded to four decimals (about 11 m).
func Dedupe(in []Place) []Place {
	type key struct {
		name     string
		lat, lon float64
	}
	seen := map[key]struct{}{}
	out := make([]Place, 0, len(in))
	for _, p := range in {
		k := key{strings.TrimSpace(p.Name), round4(p.Lat), round4(p.Lon)}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }

func ratingOf(p Place) float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// getJSON performs a GET and decodes a JSON body into v.
func getJSON(ctx context.Context, hc *http.Client, rawURL, userAgent string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set("Accept", "application/json")
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// DefaultUserAgent identifies this application to the OpenStreetMap services,
// whose usage policies require a descriptive agent.
const DefaultUserAgent = "placescout/1.0 (+https://github.com/hyperifyio/placescout)"
