package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Hourly is an hourly forecast as returned by Open-Meteo. Times are local
// to the forecast location.
type Hourly struct {
	Time          []string  `json:"time"`
	Temperature   []float64 `json:"temperature_2m"`
	Humidity      []float64 `json:"relativehumidity_2m"`
	Precipitation []float64 `json:"precipitation"`
	WeatherCode   []int     `json:"weathercode"`
	WindSpeed     []float64 `json:"windspeed_10m"`
	CloudCover    []float64 `json:"cloudcover"`
	// Offset is the location's UTC offset in seconds.
	Offset int `json:"-"`
}

// Sample is one hour of forecast.
type Sample struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Precipitation float64 `json:"precipitation"`
	Wind          float64 `json:"wind"`
	CloudCover    float64 `json:"cloudcover"`
	WeatherCode   int     `json:"weathercode"`
}

// OpenMeteo fetches forecasts from the Open-Meteo API. No key needed.
type OpenMeteo struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Forecast returns the hourly forecast for a coordinate.
func (o *OpenMeteo) Forecast(ctx context.Context, lat, lon float64) (Hourly, error) {
	base := o.BaseURL
	if base == "" {
		base = "https://api.open-meteo.com"
	}
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", lat))
	q.Set("longitude", fmt.Sprintf("%f", lon))
	q.Set("hourly", "temperature_2m,relativehumidity_2m,precipitation,weathercode,windspeed_10m,cloudcover")
	q.Set("timezone", "auto")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return Hourly{}, err
	}
	hc := o.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Hourly{}, fmt.Errorf("open-meteo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Hourly{}, fmt.Errorf("open-meteo status: %d", resp.StatusCode)
	}
	var body struct {
		UTCOffsetSeconds int    `json:"utc_offset_seconds"`
		Hourly           Hourly `json:"hourly"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Hourly{}, fmt.Errorf("open-meteo decode: %w", err)
	}
	body.Hourly.Offset = body.UTCOffsetSeconds
	return body.Hourly, nil
}

// Closest returns the forecast hour nearest to when. It reports false for an
// empty forecast.
func Closest(h Hourly, when time.Time) (Sample, bool) {
	zone := time.FixedZone("", h.Offset)
	best, bestDiff := -1, time.Duration(0)
	for i, ts := range h.Time {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, zone)
		if err != nil {
			continue
		}
		diff := t.Sub(when)
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best < 0 {
		return Sample{}, false
	}
	return Sample{
		Time:          h.Time[best],
		Temperature:   at(h.Temperature, best),
		Humidity:      at(h.Humidity, best),
		Precipitation: at(h.Precipitation, best),
		Wind:          at(h.WindSpeed, best),
		CloudCover:    at(h.CloudCover, best),
		WeatherCode:   atInt(h.WeatherCode, best),
	}, true
}

func at(v []float64, i int) float64 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func atInt(v []int, i int) int {
	if i < len(v) {
		return v[i]
	}
	return 0
}

// Describe names a WMO weather code.
func Describe(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67, code >= 80 && code <= 82:
		return "rain"
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return "snow"
	case code >= 95:
		return "thunderstorm"
	default:
		return "mixed conditions"
	}
}
