package crawl

import (
	"math"
	"reflect"
	"testing"
)

func TestFrontier_PriorityThenInsertionOrder(t *testing.T) {
	var f Frontier
	f.Push(Entry{URL: "a", Priority: 0.2})
	f.Push(Entry{URL: "b", Priority: 0.95})
	f.Push(Entry{URL: "c", Priority: 0.5})
	f.Push(Entry{URL: "d", Priority: 0.95})
	var got []string
	for f.Len() > 0 {
		e, _ := f.Pop()
		got = append(got, e.URL)
	}
	if want := []string{"b", "d", "c", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if _, ok := f.Pop(); ok {
		t.Fatalf("pop on empty frontier")
	}
}

func TestNormalizeURL(t *testing.T) {
	same := []string{
		"https://Venue.example/galeria",
		"https://venue.example/galeria/",
		"https://venue.example/galeria#top",
		"HTTPS://venue.example/galeria/#x",
	}
	for _, u := range same {
		if got := NormalizeURL(u); got != "https://venue.example/galeria" {
			t.Errorf("NormalizeURL(%q) = %q", u, got)
		}
	}
	if NormalizeURL("https://venue.example/a?x=1") == NormalizeURL("https://venue.example/a?x=2") {
		t.Errorf("query must stay part of the identity")
	}
}

func TestWeightsScore(t *testing.T) {
	w := DefaultWeights()
	ps := w.Score("u", "t", 1.0, 30)
	if math.Abs(ps.ContextScore-0.8) > 1e-9 || math.Abs(ps.ImageScore-0.2) > 1e-9 || math.Abs(ps.CombinedScore-0.68) > 1e-9 {
		t.Fatalf("unexpected score %+v", ps)
	}
	few := w.Score("u", "t", 1.0, 2)
	want := (0.8*0.8 + (2.0/30)*0.2*0.2) * 0.3
	if math.Abs(few.CombinedScore-want) > 1e-9 {
		t.Fatalf("penalty: got %v want %v", few.CombinedScore, want)
	}
	if sat := w.Score("u", "t", 1.0, 500); sat.ImageScore != 0.2 {
		t.Fatalf("image score must saturate, got %v", sat.ImageScore)
	}
	if clamped := w.Score("u", "t", 3, 30); clamped.Priority != 1 {
		t.Fatalf("priority not clamped: %v", clamped.Priority)
	}
}

func TestScanPage(t *testing.T) {
	body := `<html><head><title> Čaj &amp; Káva </title><base href="https://venue.example/sk/"></head><body>
<a href="galeria"><img src="x.jpg" alt="Fotogaléria"></a>
<a href="#top">Top</a><a href="javascript:void(0)">js</a>
<a href="/menu#denne">Denné   menu</a></body></html>`
	title, links := scanPage([]byte(body), "https://venue.example/")
	if title != "Čaj & Káva" {
		t.Fatalf("title %q", title)
	}
	want := []Link{
		{URL: "https://venue.example/sk/galeria", Text: "Fotogaléria"},
		{URL: "https://venue.example/menu", Text: "Denné menu"},
	}
	if !reflect.DeepEqual(links, want) {
		t.Fatalf("links %+v", links)
	}
}

func TestEligible(t *testing.T) {
	host := "venue.example"
	cases := map[string]bool{
		"https://venue.example/galeria":     true,
		"http://venue.example/menu":         true,
		"https://www.venue.example/galeria": false,
		"https://venue.example/cennik.pdf":  false,
		"https://venue.example/feed.xml":    false,
		"https://venue.example/data.json":   false,
		"https://venue.example/video.mp4":   false,
		"ftp://venue.example/x":             false,
	}
	for u, want := range cases {
		if got := eligible(u, host); got != want {
			t.Errorf("eligible(%q) = %v", u, got)
		}
	}
}
