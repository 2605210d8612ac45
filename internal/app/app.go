// Package app wires configuration into the discovery pipeline, the place
// assistants and the HTTP server.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/placescout/internal/assistant"
	"github.com/hyperifyio/placescout/internal/cache"
	"github.com/hyperifyio/placescout/internal/crawl"
	"github.com/hyperifyio/placescout/internal/discover"
	"github.com/hyperifyio/placescout/internal/fetch"
	"github.com/hyperifyio/placescout/internal/llm"
	"github.com/hyperifyio/placescout/internal/places"
	"github.com/hyperifyio/placescout/internal/rank"
	"github.com/hyperifyio/placescout/internal/relevance"
	"github.com/hyperifyio/placescout/internal/render"
	"github.com/hyperifyio/placescout/internal/request"
	"github.com/hyperifyio/placescout/internal/robots"
	"github.com/hyperifyio/placescout/internal/search"
	"github.com/hyperifyio/placescout/internal/server"
	"github.com/hyperifyio/placescout/internal/topic"
	"github.com/hyperifyio/placescout/internal/transit"
	"github.com/hyperifyio/placescout/internal/weather"
)

// ErrDiscoveryFailed is returned by Run when a one-shot discovery ends with
// an error status. The result is still written.
var ErrDiscoveryFailed = errors.New("discovery failed")

type App struct {
	cfg      Config
	ai       llm.Client
	llmCache *cache.LLMCache

	pipeline  *discover.Pipeline
	chrome    *render.ChromeRenderer
	server    *server.Server
	nominatim *places.Nominatim
}

func New(ctx context.Context, cfg Config) (*App, error) {
	hc := newHTTPClients(cfg.MaxConcurrent)
	a := &App{cfg: cfg}

	var httpCache *cache.HTTPCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			_ = cache.ClearDir(cfg.CacheDir)
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeByAge(cfg.CacheDir, cfg.CacheMaxAge); err == nil && n > 0 {
				log.Info().Int("removed", n).Msg("purged stale cache entries")
			}
		}
		httpCache = &cache.HTTPCache{Dir: cfg.CacheDir}
		a.llmCache = &cache.LLMCache{Dir: cfg.CacheDir, MaxAge: cfg.CacheMaxAge, StrictPerms: cfg.CacheStrictPerms}
	}

	model := cfg.LLMModel
	if model != "" {
		transportCfg := openai.DefaultConfig(cfg.LLMAPIKey)
		if cfg.LLMBaseURL != "" {
			transportCfg.BaseURL = cfg.LLMBaseURL
		}
		transportCfg.HTTPClient = hc.model
		provider := &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(transportCfg)}
		a.ai = provider
		a.preflight(ctx, provider)
	} else {
		log.Info().Msg("no LLM model configured; using rule-based scoring and fallbacks")
	}

	catalog := topic.DefaultCatalog()
	if cfg.TopicCatalogPath != "" {
		c, err := topic.LoadCatalog(cfg.TopicCatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load topic catalog: %w", err)
		}
		catalog = c
	}

	fc := &fetch.Client{
		HTTPClient:        hc.crawl,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       2,
		PerRequestTimeout: 15 * time.Second,
		Cache:             httpCache,
		RedirectMaxHops:   5,
		MaxConcurrent:     cfg.MaxConcurrent,
	}
	if cfg.RateLimit > 0 {
		fc.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	if cfg.RespectRobots {
		fc.Robots = &robots.Checker{HTTPClient: hc.crawl, UserAgent: cfg.UserAgent}
	}

	scorer := &relevance.Scorer{Catalog: catalog, Client: a.ai, Model: model, Cache: a.llmCache}
	weights := cfg.Scoring.Apply(crawl.DefaultWeights())
	httpRenderer := &render.HTTPRenderer{Client: fc}
	a.chrome = &render.ChromeRenderer{ExecPath: cfg.ChromePath, UserAgent: cfg.UserAgent, Gate: fc}
	a.pipeline = &discover.Pipeline{
		Engine: &crawl.Engine{Renderer: httpRenderer, Scorer: scorer, Weights: weights},
		JSEngine: &crawl.Engine{
			Renderer: &render.Fallback{
				Primary:   a.chrome,
				Secondary: httpRenderer,
			},
			Scorer:  scorer,
			Weights: weights,
		},
		Ranker:    &rank.Ranker{Client: a.ai, Model: model, Cache: a.llmCache},
		EarlyStop: crawl.EarlyStop(cfg.EarlyStopMinImages, cfg.EarlyStopMinPriority),
	}

	a.nominatim = places.NewNominatim()
	a.nominatim.BaseURL = cfg.NominatimURL
	a.nominatim.HTTPClient = hc.api
	overpass := &places.Overpass{BaseURL: cfg.OverpassURL, HTTPClient: hc.api}
	sources := []places.Source{overpass, a.nominatim}
	if cfg.GoogleAPIKey != "" {
		sources = append(sources, &places.Google{APIKey: cfg.GoogleAPIKey, HTTPClient: hc.api})
	}
	aggregator := &places.Aggregator{Sources: sources}

	var parser request.Parser
	if a.ai != nil {
		parser = &request.LLMParser{Client: a.ai, Model: model, Cache: a.llmCache}
	}
	var finder search.Provider
	switch {
	case cfg.SearxURL != "":
		finder = &search.SearxNG{
			BaseURL:    cfg.SearxURL,
			APIKey:     cfg.SearxKey,
			HTTPClient: hc.api,
			UserAgent:  places.DefaultUserAgent,
			Limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
		}
	case cfg.SearchFile != "":
		finder = &search.FileProvider{Path: cfg.SearchFile}
	}

	a.server = &server.Server{
		Discoverer: a.pipeline,
		Parser:     parser,
		Places:     aggregator,
		Geocoder:   a.nominatim,
		Weather: &weather.Assistant{
			Geocoder:     a.nominatim,
			Forecaster:   &weather.OpenMeteo{BaseURL: cfg.OpenMeteoURL, HTTPClient: hc.api},
			Client:       a.ai,
			Model:        model,
			Cache:        a.llmCache,
			DefaultPlace: cfg.DefaultPlace,
		},
		Transit: &transit.Assistant{
			Geocoder:  a.nominatim,
			Stops:     overpass,
			Timetable: &transit.CPTimetable{BaseURL: cfg.TimetableURL, HTTPClient: hc.api},
			Client:    a.ai,
			Model:     model,
			Cache:     a.llmCache,
		},
		Assistant: &assistant.Assistant{
			Parser:    parser,
			Geocoder:  a.nominatim,
			Places:    aggregator,
			Pipeline:  a.pipeline,
			Search:    finder,
			Policy:    search.DefaultPolicy(),
			DisableAI: a.ai == nil,
		},
		AllowOrigins: cfg.AllowOrigins,
		DisableAI:    a.ai == nil,
	}
	return a, nil
}

// preflight lists models to surface a misconfigured endpoint early. It never
// fails startup.
func (a *App) preflight(ctx context.Context, ml llm.ModelLister) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := ml.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) > 0 {
		log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	} else {
		log.Warn().Msg("LLM returned zero models")
	}
}

// Close stops the shared browser, if one was started.
func (a *App) Close() {
	if a.chrome != nil {
		a.chrome.Close()
	}
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler { return a.server.Routes() }

// Run serves the API when configured to, otherwise runs one discovery.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Serve {
		return a.Serve(ctx)
	}
	var out io.Writer = os.Stdout
	if a.cfg.OutputPath != "" {
		f, err := os.Create(a.cfg.OutputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return a.DiscoverTo(ctx, out)
}

// DiscoverTo runs the configured discovery and writes the result as JSON.
func (a *App) DiscoverTo(ctx context.Context, w io.Writer) error {
	req := discover.NewRequest(a.cfg.Website, a.cfg.Context)
	if a.cfg.PageBudget > 0 {
		req.PageBudget = a.cfg.PageBudget
	}
	if a.cfg.ImageBudget > 0 {
		req.ImageBudget = a.cfg.ImageBudget
	}
	req.UseAIScoring = !a.cfg.NoAI && a.ai != nil
	req.Strategy = a.cfg.Strategy
	req.UseJS = a.cfg.UseJS
	req.MaxDuration = a.cfg.MaxDuration

	res := a.pipeline.Discover(ctx, req)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if res.Status != discover.StatusSuccess {
		return fmt.Errorf("%w: %s", ErrDiscoveryFailed, res.Message)
	}
	return nil
}

// Serve runs the HTTP API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.ListenAddr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
