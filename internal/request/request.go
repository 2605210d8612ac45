// Package request turns a free-text visitor request ("quiet café with a
// terrace near the old town") into a structured Filter for place search and
// image discovery.
package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/cache"
	"github.com/hyperifyio/placescout/internal/llm"
	"github.com/hyperifyio/placescout/internal/metrics"
)

// Preferences are optional constraints on a place.
type Preferences struct {
	// Budget is "low", "medium" or "high"; empty when not stated.
	Budget         string `json:"budget,omitempty"`
	Wheelchair     bool   `json:"wheelchair,omitempty"`
	OutdoorSeating bool   `json:"outdoor_seating,omitempty"`
}

// Filter is the structured form of a request.
type Filter struct {
	ActivityType string      `json:"activity_type"`
	PlaceTypes   []string    `json:"place_types"`
	Cuisine      string      `json:"cuisine,omitempty"`
	Preferences  Preferences `json:"preferences"`
	Location     string      `json:"location,omitempty"`
	TimeWindow   string      `json:"time_window,omitempty"`
	// SearchContext is the phrase used to judge photos and pages.
	SearchContext string `json:"search_context"`
}

// Parser produces a Filter from text.
type Parser interface {
	Parse(ctx context.Context, text string) (Filter, error)
}

// Categories maps activity types to the place types searched for them.
var Categories = map[string][]string{
	"food":          {"restaurant", "cafe", "bar", "fast_food", "pub", "bistro"},
	"culture":       {"museum", "theatre", "cinema", "gallery", "library"},
	"nature":        {"park", "garden", "viewpoint", "natural_reserve"},
	"shopping":      {"mall", "market", "shop", "department_store"},
	"entertainment": {"nightclub", "casino", "amusement_park"},
	"accommodation": {"hotel", "hostel", "guest_house"},
}

// ActivityFor returns the category of placeType, or "" when unknown.
func ActivityFor(placeType string) string {
	for cat, types := range Categories {
		for _, t := range types {
			if t == placeType {
				return cat
			}
		}
	}
	return ""
}

// ErrEmptyRequest is returned for blank input.
var ErrEmptyRequest = errors.New("request text is empty")

// LLMParser asks a chat model for the Filter as strict JSON.
type LLMParser struct {
	Client llm.Client
	Model  string
	Cache  *cache.LLMCache
	// Timeout bounds the call. Zero means 20s.
	Timeout time.Duration
}

const parseSystemPrompt = "You convert a visitor's request about places to visit into JSON. Respond with strict JSON only, no narration. " +
	"Schema: {\"activity_type\": one of food|culture|nature|shopping|entertainment|accommodation, " +
	"\"place_types\": string[] using OpenStreetMap amenity names such as restaurant, cafe, bar, pub, museum, park, hotel, " +
	"\"cuisine\": string, \"preferences\": {\"budget\": low|medium|high|\"\", \"wheelchair\": bool, \"outdoor_seating\": bool}, " +
	"\"location\": string, \"time_window\": string, \"search_context\": short English phrase describing what photos should show}."

// Parse implements Parser. Output that cannot be decoded or names no known
// place type is an error so callers can fall back.
func (p *LLMParser) Parse(ctx context.Context, text string) (Filter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Filter{}, ErrEmptyRequest
	}
	if p.Client == nil || p.Model == "" {
		return Filter{}, errors.New("request parser not configured")
	}
	user := "Request: " + text
	key := cache.KeyFrom(p.Model, parseSystemPrompt+"\n\n"+user)
	reply, ok := p.Cache.Get(ctx, key)
	if !ok {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var err error
		reply, err = llm.Complete(cctx, p.Client, llm.Prompt{Model: p.Model, System: parseSystemPrompt, User: user, Temperature: 0.1})
		if err != nil {
			return Filter{}, fmt.Errorf("parse request: %w", err)
		}
	}
	var f Filter
	if err := llm.DecodeJSON(reply, &f); err != nil {
		return Filter{}, err
	}
	f = normalize(f, text)
	if len(f.PlaceTypes) == 0 {
		return Filter{}, errors.New("model named no known place type")
	}
	_ = p.Cache.Put(ctx, key, reply)
	return f, nil
}

func normalize(f Filter, text string) Filter {
	known := map[string]bool{}
	for _, types := range Categories {
		for _, t := range types {
			known[t] = true
		}
	}
	seen := map[string]bool{}
	var types []string
	for _, t := range f.PlaceTypes {
		t = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "_")
		if t == "coffee_shop" || t == "coffee" {
			t = "cafe"
		}
		if known[t] && !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	f.PlaceTypes = types
	f.ActivityType = strings.ToLower(strings.TrimSpace(f.ActivityType))
	if _, ok := Categories[f.ActivityType]; !ok && len(types) > 0 {
		f.ActivityType = ActivityFor(types[0])
	}
	switch b := strings.ToLower(strings.TrimSpace(f.Preferences.Budget)); b {
	case "low", "medium", "high":
		f.Preferences.Budget = b
	default:
		f.Preferences.Budget = ""
	}
	f.Cuisine = strings.ToLower(strings.TrimSpace(f.Cuisine))
	if strings.TrimSpace(f.SearchContext) == "" {
		f.SearchContext = text
	}
	return f
}

// WithFallback runs primary and, if it fails, the keyword parser. The
// returned method is "llm" or "fallback".
func WithFallback(ctx context.Context, primary Parser, text string) (Filter, string, error) {
	if strings.TrimSpace(text) == "" {
		return Filter{}, "", ErrEmptyRequest
	}
	if primary != nil {
		f, err := primary.Parse(ctx, text)
		if err == nil {
			return f, "llm", nil
		}
		log.Warn().Err(err).Msg("request parser failed; using keyword fallback")
		metrics.LLMFallbacks.WithLabelValues("request").Inc()
	}
	f, err := FallbackParser{}.Parse(ctx, text)
	return f, "fallback", err
}
