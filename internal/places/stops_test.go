package places

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOverpassStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("data")
		if !strings.Contains(q, `"highway"="bus_stop"`) || !strings.Contains(q, "around:600,") {
			t.Errorf("unexpected query: %s", q)
		}
		fmt.Fprint(w, `{"elements":[
			{"type":"node","lat":48.7205,"lon":21.2575,"tags":{"name":"Krajský súd","highway":"bus_stop"}},
			{"type":"node","lat":48.7201,"lon":21.2571,"tags":{"name":"Krajský súd","public_transport":"platform","tram":"yes"}},
			{"type":"node","lat":48.7160,"lon":21.2610,"tags":{"name":"Košice","railway":"station"}},
			{"type":"node","lat":48.7200,"lon":21.2570,"tags":{"highway":"bus_stop"}}
		]}`)
	}))
	defer srv.Close()
	o := &Overpass{BaseURL: srv.URL, HTTPClient: srv.Client()}
	got, err := o.Stops(context.Background(), 48.72, 21.257, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 named stops, got %+v", got)
	}
	if got[0].Name != "Krajský súd" || got[0].Kind != "tram" || got[0].Lat != 48.7201 {
		t.Fatalf("nearest platform not kept: %+v", got[0])
	}
	if got[1].Kind != "train" || got[1].DistanceM <= got[0].DistanceM {
		t.Fatalf("not sorted by distance: %+v", got)
	}
}

func TestDistanceM(t *testing.T) {
	// one degree of latitude is about 111.2 km
	if d := DistanceM(48, 21, 49, 21); math.Abs(d-111195) > 100 {
		t.Fatalf("got %v", d)
	}
	if DistanceM(48.7, 21.2, 48.7, 21.2) != 0 {
		t.Fatal("same point must be 0")
	}
}
