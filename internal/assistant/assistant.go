// Package assistant answers "find me places like this, with photos": it
// parses the request, searches places around the wanted location, and
// discovers images on each place's website.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/placescout/internal/discover"
	"github.com/hyperifyio/placescout/internal/places"
	"github.com/hyperifyio/placescout/internal/rank"
	"github.com/hyperifyio/placescout/internal/request"
	"github.com/hyperifyio/placescout/internal/search"
)

// ErrNoLocation is returned when neither coordinates nor a geocodable
// location are available.
var ErrNoLocation = errors.New("no location: pass coordinates or name a place")

// Geocoder resolves a place name. *places.Nominatim implements it.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (places.Location, error)
}

// Query is one search-with-images request.
type Query struct {
	Text string
	// Lat/Lon override geocoding of the parsed location when HasCenter.
	Lat, Lon       float64
	HasCenter      bool
	RadiusM        int
	Limit          int
	ImagesPerPlace int
	PagesPerPlace  int
	UseJS          bool
}

// PlaceImages is a place with the images found on its website.
type PlaceImages struct {
	places.Place
	Images       []rank.RatedImage `json:"images"`
	ImageStatus  string            `json:"image_status"`
	ImageMessage string            `json:"image_message,omitempty"`
	// WebsiteFound is true when the website came from a web search.
	WebsiteFound bool `json:"website_found,omitempty"`
}

// Answer is the response to a Query.
type Answer struct {
	ParsedData  request.Filter  `json:"parsed_data"`
	ParseMethod string          `json:"parse_method"`
	Location    places.Location `json:"location"`
	Places      []PlaceImages   `json:"places"`
	Sources     places.Report   `json:"sources"`
}

// Image statuses beyond discover's.
const (
	ImageStatusNoWebsite = "no_website"
	ImageStatusSkipped   = "skipped"
)

// Assistant wires the request parser, place search and image discovery.
type Assistant struct {
	Parser   request.Parser
	Geocoder Geocoder
	Places   *places.Aggregator
	Pipeline *discover.Pipeline
	// Search finds websites for places listed without one. Optional.
	Search search.Provider
	Policy search.DomainPolicy
	// Concurrency bounds simultaneous website crawls. Zero means 3.
	Concurrency int
	// PlaceTimeout bounds discovery per place. Zero means 60s.
	PlaceTimeout time.Duration
	// DisableAI turns model page scoring off.
	DisableAI bool
}

func (q Query) withDefaults() Query {
	if q.RadiusM <= 0 {
		q.RadiusM = 1000
	}
	if q.Limit <= 0 {
		q.Limit = 5
	}
	if q.ImagesPerPlace <= 0 {
		q.ImagesPerPlace = 6
	}
	if q.PagesPerPlace <= 0 {
		q.PagesPerPlace = 10
	}
	return q
}

// SearchWithImages runs the whole flow. Per-place failures are reported in
// the place's ImageStatus, never as an error.
func (a *Assistant) SearchWithImages(ctx context.Context, q Query) (Answer, error) {
	q = q.withDefaults()
	filter, method, err := request.WithFallback(ctx, a.Parser, q.Text)
	if err != nil {
		return Answer{}, err
	}
	ans := Answer{ParsedData: filter, ParseMethod: method, Places: []PlaceImages{}}

	switch {
	case q.HasCenter:
		ans.Location = places.Location{Name: filter.Location, Lat: q.Lat, Lon: q.Lon}
	case filter.Location != "" && a.Geocoder != nil:
		loc, err := a.Geocoder.Geocode(ctx, filter.Location)
		if err != nil {
			return ans, fmt.Errorf("%w: %v", ErrNoLocation, err)
		}
		ans.Location = loc
	default:
		return ans, ErrNoLocation
	}

	found, rep := a.searchPlaces(ctx, filter, ans.Location, q)
	ans.Sources = rep
	ans.Places = make([]PlaceImages, len(found))
	for i, p := range found {
		ans.Places[i] = PlaceImages{Place: p, Images: []rank.RatedImage{}}
	}
	a.fillImages(ctx, ans.Places, filter.SearchContext, q)
	return ans, nil
}

// searchPlaces queries every requested place type and merges the results.
func (a *Assistant) searchPlaces(ctx context.Context, f request.Filter, loc places.Location, q Query) ([]places.Place, places.Report) {
	rep := places.Report{Counts: map[string]int{}, Errors: map[string]string{}}
	if a.Places == nil {
		return nil, rep
	}
	var all []places.Place
	for _, pt := range f.PlaceTypes {
		got, r := a.Places.Search(ctx, places.Query{Lat: loc.Lat, Lon: loc.Lon, RadiusM: q.RadiusM, PlaceType: pt, Limit: q.Limit})
		all = append(all, got...)
		for k, v := range r.Counts {
			rep.Counts[k] += v
		}
		for k, v := range r.Errors {
			rep.Errors[k] = v
		}
	}
	all = places.Dedupe(all)
	if len(all) > q.Limit {
		all = all[:q.Limit]
	}
	return all, rep
}

// fillImages discovers images for every place concurrently. Each goroutine
// writes only its own element of list.
func (a *Assistant) fillImages(ctx context.Context, list []PlaceImages, query string, q Query) {
	limit := a.Concurrency
	if limit <= 0 {
		limit = 3
	}
	timeout := a.PlaceTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range list {
		pi := &list[i]
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			website := pi.Website
			found := false
			if website == "" && a.Search != nil {
				w, err := search.FindWebsite(pctx, a.Search, a.Policy, pi.Name, pi.City)
				if err == nil {
					website, found = w, true
				} else {
					log.Debug().Err(err).Str("place", pi.Name).Msg("website lookup failed")
				}
			}
			if website == "" || a.Pipeline == nil {
				pi.ImageStatus = ImageStatusNoWebsite
				if a.Pipeline == nil {
					pi.ImageStatus = ImageStatusSkipped
				}
				return nil
			}
			req := discover.NewRequest(website, query)
			req.PageBudget = q.PagesPerPlace
			req.ImageBudget = q.ImagesPerPlace
			req.UseJS = q.UseJS
			req.UseAIScoring = !a.DisableAI
			res := a.Pipeline.Discover(pctx, req)
			if found {
				pi.Website, pi.WebsiteFound = website, true
			}
			pi.ImageStatus = res.Status
			pi.ImageMessage = res.Message
			if len(res.Images) > q.ImagesPerPlace {
				res.Images = res.Images[:q.ImagesPerPlace]
			}
			pi.Images = res.Images
			return nil
		})
	}
	_ = g.Wait()
}
