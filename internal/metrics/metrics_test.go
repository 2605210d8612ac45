package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCollectors(t *testing.T) {
	LinksSkipped.Inc()
	PagesVisited.WithLabelValues("ok").Inc()
	LLMFallbacks.WithLabelValues("rank").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	body := string(b)
	for _, want := range []string{
		"placescout_crawl_links_skipped_total",
		`placescout_crawl_pages_visited_total{outcome="ok"}`,
		`placescout_llm_fallbacks_total{component="rank"}`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
