package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned by Geocode when nothing matches.
var ErrNotFound = errors.New("location not found")

// Nominatim searches and geocodes with the OpenStreetMap Nominatim service.
// Its usage policy allows one request per second, which Limiter enforces.
type Nominatim struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
	Limiter    *rate.Limiter
}

// NewNominatim returns a client paced at one request per second.
func NewNominatim() *Nominatim {
	return &Nominatim{Limiter: rate.NewLimiter(rate.Limit(1), 1)}
}

func (n *Nominatim) Name() string { return "Nominatim" }

type nominatimHit struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Type        string            `json:"type"`
	ExtraTags   map[string]string `json:"extratags"`
	Address     map[string]string `json:"address"`
}

func (n *Nominatim) search(ctx context.Context, params url.Values) ([]nominatimHit, error) {
	if n.Limiter != nil {
		if err := n.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	base := n.BaseURL
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}
	params.Set("format", "json")
	ua := n.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	var hits []nominatimHit
	if err := getJSON(ctx, n.HTTPClient, strings.TrimRight(base, "/")+"/search?"+params.Encode(), ua, &hits); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}
	return hits, nil
}

// Search implements Source.
func (n *Nominatim) Search(ctx context.Context, q Query) ([]Place, error) {
	q = q.withDefaults()
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%s near %f,%f", q.PlaceType, q.Lat, q.Lon))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("addressdetails", "1")
	params.Set("extratags", "1")
	hits, err := n.search(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]Place, 0, len(hits))
	for _, h := range hits {
		lat, err1 := strconv.ParseFloat(h.Lat, 64)
		lon, err2 := strconv.ParseFloat(h.Lon, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		city := h.Address["city"]
		if city == "" {
			city = h.Address["town"]
		}
		out = append(out, Place{
			Name:         strings.TrimSpace(strings.Split(h.DisplayName, ",")[0]),
			Lat:          lat,
			Lon:          lon,
			Type:         h.Type,
			Cuisine:      h.ExtraTags["cuisine"],
			Website:      h.ExtraTags["website"],
			Phone:        h.ExtraTags["phone"],
			OpeningHours: h.ExtraTags["opening_hours"],
			Wheelchair:   h.ExtraTags["wheelchair"],
			Address:      h.Address["road"],
			City:         city,
			Source:       n.Name(),
		})
	}
	return out, nil
}

// Location is a geocoded point.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Geocode resolves free text to the best matching point.
func (n *Nominatim) Geocode(ctx context.Context, text string) (Location, error) {
	params := url.Values{}
	params.Set("q", text)
	params.Set("limit", "1")
	hits, err := n.search(ctx, params)
	if err != nil {
		return Location{}, err
	}
	if len(hits) == 0 {
		return Location{}, fmt.Errorf("%w: %q", ErrNotFound, text)
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("nominatim lat: %w", err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("nominatim lon: %w", err)
	}
	return Location{Name: hits[0].DisplayName, Lat: lat, Lon: lon}, nil
}
