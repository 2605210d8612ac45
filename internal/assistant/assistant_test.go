package assistant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperifyio/placescout/internal/crawl"
	"github.com/hyperifyio/placescout/internal/discover"
	"github.com/hyperifyio/placescout/internal/fetch"
	"github.com/hyperifyio/placescout/internal/places"
	"github.com/hyperifyio/placescout/internal/render"
	"github.com/hyperifyio/placescout/internal/search"
)

type fakeGeocoder struct{ calls int }

func (g *fakeGeocoder) Geocode(_ context.Context, text string) (places.Location, error) {
	g.calls++
	if text != "Košice" {
		return places.Location{}, places.ErrNotFound
	}
	return places.Location{Name: "Košice, Slovakia", Lat: 48.72, Lon: 21.26}, nil
}

type staticSource []places.Place

func (s staticSource) Name() string { return "static" }
func (s staticSource) Search(_ context.Context, q places.Query) ([]places.Place, error) {
	if q.PlaceType != "cafe" || q.Lat != 48.72 {
		return nil, errors.New("unexpected query")
	}
	return s, nil
}

type hitsByQuery map[string]string

func (h hitsByQuery) Name() string { return "static" }
func (h hitsByQuery) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	for name, u := range h {
		if strings.HasPrefix(query, name) {
			return []search.Result{{Title: name, URL: u}}, nil
		}
	}
	return nil, nil
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/": `<html><head><title>Čajovňa</title></head><body><a href="/galeria">Galéria</a></body></html>`,
		"/galeria": `<html><body><img src="/img/tea-room.jpg"><img src="/img/garden.jpg">
<img src="/img/teapots.jpg"><img src="/img/logo.png"></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newAssistant(srv *httptest.Server, geo Geocoder) *Assistant {
	return &Assistant{
		Geocoder: geo,
		Places: &places.Aggregator{Sources: []places.Source{staticSource{
			{Name: "Dobrá čajovňa", Lat: 48.721, Lon: 21.257, Website: srv.URL + "/"},
			{Name: "Tea Garden", Lat: 48.722, Lon: 21.258},
			{Name: "Nameless Corner", Lat: 48.723, Lon: 21.259},
		}}},
		Pipeline: &discover.Pipeline{Engine: &crawl.Engine{Renderer: &render.HTTPRenderer{Client: &fetch.Client{MaxAttempts: 1}}}},
		Search:   hitsByQuery{"Tea Garden": srv.URL + "/about"},
		Policy:   search.DefaultPolicy(),
	}
}

func TestSearchWithImages(t *testing.T) {
	srv := newSite(t)
	geo := &fakeGeocoder{}
	a := newAssistant(srv, geo)
	ans, err := a.SearchWithImages(context.Background(), Query{Text: "Cozy tea room in Košice", ImagesPerPlace: 2, PagesPerPlace: 3})
	if err != nil {
		t.Fatal(err)
	}
	if ans.ParseMethod != "fallback" || ans.Location.Lat != 48.72 || geo.calls != 1 {
		t.Fatalf("unexpected answer header: %+v", ans)
	}
	if len(ans.Places) != 3 {
		t.Fatalf("want 3 places, got %d", len(ans.Places))
	}
	byName := map[string]PlaceImages{}
	for _, p := range ans.Places {
		byName[p.Name] = p
	}
	first := byName["Dobrá čajovňa"]
	if first.ImageStatus != discover.StatusSuccess || len(first.Images) != 2 {
		t.Fatalf("first place: status=%s images=%d msg=%s", first.ImageStatus, len(first.Images), first.ImageMessage)
	}
	found := byName["Tea Garden"]
	if !found.WebsiteFound || found.Website != srv.URL+"/" || len(found.Images) == 0 {
		t.Fatalf("looked-up place: %+v", found)
	}
	none := byName["Nameless Corner"]
	if none.ImageStatus != ImageStatusNoWebsite || none.Images == nil {
		t.Fatalf("place without website: %+v", none)
	}
}

func TestSearchWithImages_Location(t *testing.T) {
	srv := newSite(t)
	geo := &fakeGeocoder{}
	a := newAssistant(srv, geo)
	a.Pipeline = nil

	ans, err := a.SearchWithImages(context.Background(), Query{Text: "tea", Lat: 48.72, Lon: 21.26, HasCenter: true})
	if err != nil {
		t.Fatal(err)
	}
	if geo.calls != 0 || len(ans.Places) != 3 || ans.Places[0].ImageStatus != ImageStatusSkipped {
		t.Fatalf("unexpected answer: calls=%d %+v", geo.calls, ans.Places)
	}

	if _, err := a.SearchWithImages(context.Background(), Query{Text: "tea room"}); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("want ErrNoLocation, got %v", err)
	}
	if _, err := a.SearchWithImages(context.Background(), Query{Text: "tea room in Atlantis"}); !errors.Is(err, ErrNoLocation) {
		t.Fatalf("want ErrNoLocation for unknown place, got %v", err)
	}
}
