package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Google queries the Places Nearby Search API. It needs an API key.
type Google struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

func (g *Google) Name() string { return "Google Places" }

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name     string `json:"name"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		Rating           *float64 `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		PriceLevel       *int     `json:"price_level"`
		Vicinity         string   `json:"vicinity"`
		Types            []string `json:"types"`
	} `json:"results"`
}

// Search implements Source.
func (g *Google) Search(ctx context.Context, q Query) ([]Place, error) {
	if g.APIKey == "" {
		return nil, errors.New("google places: missing api key")
	}
	q = q.withDefaults()
	base := g.BaseURL
	if base == "" {
		base = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	}
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", q.Lat, q.Lon))
	params.Set("radius", strconv.Itoa(q.RadiusM))
	params.Set("type", q.PlaceType)
	params.Set("key", g.APIKey)
	var resp googleResponse
	if err := getJSON(ctx, g.HTTPClient, base+"?"+params.Encode(), "", &resp); err != nil {
		return nil, fmt.Errorf("google places: %w", err)
	}
	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("google places status %s: %s", resp.Status, resp.ErrorMessage)
	}
	out := make([]Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Place{
			Name:             r.Name,
			Lat:              r.Geometry.Location.Lat,
			Lon:              r.Geometry.Location.Lng,
			Type:             q.PlaceType,
			Types:            r.Types,
			Rating:           r.Rating,
			UserRatingsTotal: r.UserRatingsTotal,
			PriceLevel:       r.PriceLevel,
			Address:          r.Vicinity,
			Source:           g.Name(),
		})
	}
	return out, nil
}
