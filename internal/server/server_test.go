package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperifyio/placescout/internal/discover"
	"github.com/hyperifyio/placescout/internal/places"
	"github.com/hyperifyio/placescout/internal/rank"
	"github.com/hyperifyio/placescout/internal/transit"
	"github.com/hyperifyio/placescout/internal/weather"
)

type stubDiscoverer struct{ got discover.Request }

func (s *stubDiscoverer) Discover(_ context.Context, req discover.Request) discover.Result {
	s.got = req
	if err := discover.Validate(req); err != nil {
		return discover.Result{Status: discover.StatusError, Message: err.Error(), Err: err, Images: []rank.RatedImage{}}
	}
	return discover.Result{
		Status: discover.StatusSuccess,
		Images: []rank.RatedImage{{URL: "https://example.com/a.jpg", AIScore: 0.9, Rated: true}},
		Diagnostics: discover.Diagnostics{
			Strategy:         "two-phase",
			TotalImagesFound: 3,
			ValidAfterFilter: 1,
			SelectionMethod:  rank.MethodAI,
		},
	}
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, text string) (places.Location, error) {
	if text == "Košice" {
		return places.Location{Name: "Košice", Lat: 48.7, Lon: 21.2}, nil
	}
	return places.Location{}, places.ErrNotFound
}

type stubSource struct{}

func (stubSource) Name() string { return "stub" }
func (stubSource) Search(_ context.Context, q places.Query) ([]places.Place, error) {
	return []places.Place{{Name: "Cafe " + q.PlaceType, Lat: q.Lat, Lon: q.Lon, Source: "stub"}}, nil
}

type stubForecaster struct{}

func (stubForecaster) Forecast(context.Context, float64, float64) (weather.Hourly, error) {
	return weather.Hourly{Time: []string{"2025-06-10T12:00"}, Temperature: []float64{20}}, nil
}

type stubStops struct{}

func (stubStops) Stops(context.Context, float64, float64, int) ([]places.Stop, error) {
	return []places.Stop{{Name: "Námestie osloboditeľov", Kind: "tram", DistanceM: 80}}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubDiscoverer) {
	t.Helper()
	d := &stubDiscoverer{}
	s := &Server{
		Discoverer: d,
		Places:     &places.Aggregator{Sources: []places.Source{stubSource{}}},
		Geocoder:   stubGeocoder{},
		Weather: &weather.Assistant{
			Geocoder:   stubGeocoder{},
			Forecaster: stubForecaster{},
			Now:        func() time.Time { return time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC) },
		},
		Transit: &transit.Assistant{
			Geocoder: stubGeocoder{},
			Stops:    stubStops{},
			Now:      func() time.Time { return time.Date(2025, 6, 10, 11, 0, 0, 0, time.UTC) },
		},
		AllowOrigins: []string{"http://localhost:3000"},
	}
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, d
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestFilterImages(t *testing.T) {
	srv, d := newTestServer(t)
	var body FilterImagesResponse
	code := getJSON(t, srv.URL+"/filter-images?website=https://example.com&context=cozy+interior&max_pages=7&max_images=9&use_js=true", &body)
	if code != http.StatusOK || body.Status != discover.StatusSuccess {
		t.Fatalf("code=%d body=%+v", code, body)
	}
	if d.got.PageBudget != 7 || d.got.ImageBudget != 9 || !d.got.UseJS || !d.got.UseAIScoring {
		t.Fatalf("request not mapped: %+v", d.got)
	}
	if len(body.FilteredImages) != 1 || body.TotalImagesFound != 3 || body.ValidAfterFilter != 1 || body.SelectionMethod != rank.MethodAI {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestFilterImages_BadInput(t *testing.T) {
	srv, _ := newTestServer(t)
	var body errorBody
	if code := getJSON(t, srv.URL+"/filter-images?website=https://example.com&context=", &body); code != http.StatusBadRequest || body.Status != discover.StatusError {
		t.Fatalf("empty context: code=%d body=%+v", code, body)
	}
	if code := getJSON(t, srv.URL+"/filter-images?website=x&context=a&max_pages=abc", &body); code != http.StatusBadRequest {
		t.Fatalf("bad max_pages: code=%d", code)
	}
}

func TestRequestEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	var body struct {
		ParsedData struct {
			PlaceTypes []string `json:"place_types"`
		} `json:"parsed_data"`
		Method string `json:"method"`
	}
	code := getJSON(t, srv.URL+"/request?text=quiet+museum+for+the+afternoon", &body)
	if code != http.StatusOK || body.Method != "fallback" || len(body.ParsedData.PlaceTypes) == 0 || body.ParsedData.PlaceTypes[0] != "museum" {
		t.Fatalf("code=%d body=%+v", code, body)
	}
	if code := getJSON(t, srv.URL+"/request?text=", nil); code != http.StatusBadRequest {
		t.Fatalf("empty text: code=%d", code)
	}
}

func TestNearby(t *testing.T) {
	srv, _ := newTestServer(t)
	var body struct {
		Places []places.Place  `json:"places"`
		Loc    places.Location `json:"location"`
	}
	code := getJSON(t, srv.URL+"/nearby?location=Ko%C5%A1ice&type=cafe", &body)
	if code != http.StatusOK || len(body.Places) != 1 || body.Places[0].Name != "Cafe cafe" || body.Loc.Lat != 48.7 {
		t.Fatalf("code=%d body=%+v", code, body)
	}
	if code := getJSON(t, srv.URL+"/nearby?lat=91&lon=0", nil); code != http.StatusBadRequest {
		t.Fatalf("bad lat: code=%d", code)
	}
	if code := getJSON(t, srv.URL+"/nearby?location=Atlantis", nil); code != http.StatusNotFound {
		t.Fatalf("unknown place: code=%d", code)
	}
}

func TestWeatherEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	var ans weather.Answer
	code := getJSON(t, srv.URL+"/weather?q=weather+in+Ko%C5%A1ice+at+noon", &ans)
	if code != http.StatusOK || ans.Method != weather.MethodTemplate || !strings.HasPrefix(ans.Summary, "Košice at 2025-06-10 12:00: 20.0°C") {
		t.Fatalf("code=%d ans=%+v", code, ans)
	}
	if code := getJSON(t, srv.URL+"/weather?q=", nil); code != http.StatusBadRequest {
		t.Fatalf("empty q: code=%d", code)
	}
}

func TestTransitEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	var ans transit.Answer
	code := getJSON(t, srv.URL+"/transit?q=from+Ko%C5%A1ice+to+Ko%C5%A1ice+at+noon", &ans)
	if code != http.StatusOK || ans.Method != transit.MethodTemplate || ans.From.Stop.Name != "Námestie osloboditeľov" {
		t.Fatalf("code=%d ans=%+v", code, ans)
	}
	if !strings.Contains(ans.Summary, "2025-06-10 12:00") {
		t.Fatalf("summary=%q", ans.Summary)
	}
	if code := getJSON(t, srv.URL+"/transit?q=to+the+station", nil); code != http.StatusBadRequest {
		t.Fatalf("no endpoints: code=%d", code)
	}
	if code := getJSON(t, srv.URL+"/transit?q=from+Atlantis+to+Ko%C5%A1ice", nil); code != http.StatusNotFound {
		t.Fatalf("unknown place: code=%d", code)
	}
}

func TestUnconfiguredServices(t *testing.T) {
	srv := httptest.NewServer((&Server{}).Routes())
	defer srv.Close()
	for _, path := range []string{"/filter-images", "/nearby", "/weather", "/transit", "/search-places-with-images"} {
		if code := getJSON(t, srv.URL+path, nil); code != http.StatusServiceUnavailable {
			t.Errorf("%s: code=%d", path, code)
		}
	}
}

func TestHealthMetricsAndCORS(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz: %d", code)
	}
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/filter-images", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("preflight: %d %v", resp.StatusCode, resp.Header)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	scrape, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(scrape), `route="/healthz"`) {
		t.Fatalf("http request metric missing from scrape")
	}
}
