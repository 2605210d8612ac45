// Package metrics holds the process-wide Prometheus collectors. They live on
// a private registry so tests and embedding programs do not collide with the
// default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry carries every collector below plus Go runtime stats.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	PagesVisited = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placescout",
		Subsystem: "crawl",
		Name:      "pages_visited_total",
		Help:      "Pages visited by the scout, by outcome.",
	}, []string{"outcome"})

	LinksSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "placescout",
		Subsystem: "crawl",
		Name:      "links_skipped_total",
		Help:      "Links rejected by the skip lists.",
	})

	LLMFallbacks = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placescout",
		Name:      "llm_fallbacks_total",
		Help:      "Model calls that fell back to a deterministic value, by component.",
	}, []string{"component"})

	DiscoverDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "placescout",
		Name:      "discover_duration_seconds",
		Help:      "Wall time of image discovery runs, by strategy and status.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"strategy", "status"})

	CacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placescout",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "On-disk cache lookups, by cache and result.",
	}, []string{"cache", "result"})

	HTTPRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "placescout",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "API requests served, by route and status code.",
	}, []string{"route", "code"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
