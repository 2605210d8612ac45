// Package discover is the single entry point for finding photos of a place on
// its own website: crawl the site, harvest the best page and rank the
// images. It always answers with a well-formed Result.
package discover

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/crawl"
	"github.com/hyperifyio/placescout/internal/metrics"
	"github.com/hyperifyio/placescout/internal/rank"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	ErrEmptyContext    = errors.New("context must not be empty")
	ErrInvalidWebsite  = errors.New("website must be an absolute http(s) URL")
	ErrSeedUnreachable = errors.New("website could not be loaded")
)

// Request describes one discovery run. Use NewRequest for the defaults.
type Request struct {
	Website      string
	Context      string
	PageBudget   int
	ImageBudget  int
	UseAIScoring bool
	// Strategy is crawl.StrategyTwoPhase or crawl.StrategyEarlyStop. Empty
	// picks early-stop for script-rendered crawls and two-phase otherwise.
	Strategy string
	// UseJS renders pages in a browser.
	UseJS bool
	// MaxDuration bounds scouting by wall clock. Zero disables it.
	MaxDuration time.Duration
}

// NewRequest returns a request with the default budgets and AI scoring on.
func NewRequest(website, query string) Request {
	return Request{Website: website, Context: query, PageBudget: 50, ImageBudget: 200, UseAIScoring: true}
}

// Validate rejects requests before any network activity.
func Validate(req Request) error {
	if strings.TrimSpace(req.Context) == "" {
		return ErrEmptyContext
	}
	u, err := url.Parse(strings.TrimSpace(req.Website))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidWebsite, req.Website)
	}
	return nil
}

// Diagnostics explains how a result was reached.
type Diagnostics struct {
	RunID            string            `json:"run_id"`
	Strategy         string            `json:"strategy"`
	PagesVisited     int               `json:"pages_visited"`
	PagesSkipped     int               `json:"pages_skipped"`
	PagesFailed      int               `json:"pages_failed"`
	StopReason       string            `json:"stop_reason,omitempty"`
	BestPage         *crawl.PageScore  `json:"best_page,omitempty"`
	TopCandidates    []crawl.PageScore `json:"top_candidates"`
	TotalImagesFound int               `json:"total_images_found"`
	ValidAfterFilter int               `json:"valid_images_after_filter"`
	SelectionMethod  string            `json:"selection_method"`
	ElapsedMS        int64             `json:"elapsed_ms"`
}

// Result is the answer to a Request.
type Result struct {
	Status      string            `json:"status"`
	Message     string            `json:"message,omitempty"`
	Images      []rank.RatedImage `json:"images"`
	Diagnostics Diagnostics       `json:"diagnostics"`
	// Err carries the cause of an error status for in-process callers.
	Err error `json:"-"`
}

// topCandidates is how many scouted pages Diagnostics lists.
const topCandidates = 5

// Pipeline wires crawling and ranking together.
type Pipeline struct {
	Engine *crawl.Engine
	// JSEngine renders with a browser. Nil falls back to Engine.
	JSEngine *crawl.Engine
	// Ranker defaults to heuristic-only ranking.
	Ranker *rank.Ranker
	// EarlyStop overrides the early-stop thresholds when non-zero.
	EarlyStop crawl.Policy
}

// Discover runs the whole pipeline for req.
func (p *Pipeline) Discover(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	res = Result{Images: []rank.RatedImage{}, Diagnostics: Diagnostics{RunID: uuid.NewString(), TopCandidates: []crawl.PageScore{}}}
	defer func() {
		res.Diagnostics.ElapsedMS = time.Since(start).Milliseconds()
		metrics.DiscoverDuration.WithLabelValues(res.Diagnostics.Strategy, res.Status).Observe(time.Since(start).Seconds())
		log.Info().Str("run_id", res.Diagnostics.RunID).Str("website", req.Website).Str("status", res.Status).
			Int("visited", res.Diagnostics.PagesVisited).Int("images", len(res.Images)).Msg("discovery finished")
	}()

	if err := Validate(req); err != nil {
		return p.fail(&res, err, err.Error())
	}
	strategy := req.Strategy
	if strategy == "" && req.UseJS {
		strategy = crawl.StrategyEarlyStop
	}
	pol, err := crawl.ParsePolicy(strategy)
	if err != nil {
		return p.fail(&res, err, err.Error())
	}
	if pol.Eager && p.EarlyStop.Eager {
		pol = p.EarlyStop
	}
	res.Diagnostics.Strategy = pol.Name

	engine := p.Engine
	if req.UseJS && p.JSEngine != nil {
		engine = p.JSEngine
	}
	if engine == nil {
		return p.fail(&res, errors.New("pipeline has no crawl engine"), "crawler not configured")
	}
	params := crawl.Params{
		Seed:        strings.TrimSpace(req.Website),
		Context:     req.Context,
		PageBudget:  req.PageBudget,
		ImageBudget: req.ImageBudget,
		UseAI:       req.UseAIScoring,
	}
	if req.MaxDuration > 0 {
		params.Deadline = start.Add(req.MaxDuration)
	}
	out := engine.Run(ctx, params, pol)

	d := &res.Diagnostics
	d.PagesVisited, d.PagesSkipped, d.PagesFailed = out.Visited, out.Skipped, out.Failures
	d.StopReason = out.StopReason
	d.BestPage = out.Best
	n := min(len(out.Pages), topCandidates)
	d.TopCandidates = append(d.TopCandidates, out.Pages[:n]...)
	d.TotalImagesFound = out.ImagesFound

	if out.SeedErr != nil {
		err := fmt.Errorf("%w: %v", ErrSeedUnreachable, out.SeedErr)
		return p.fail(&res, err, err.Error())
	}
	if out.Best == nil {
		return p.fail(&res, ErrSeedUnreachable, "no page of the website could be loaded")
	}
	if len(out.Images) == 0 {
		res.Status = StatusSuccess
		d.SelectionMethod = rank.MethodNone
		res.Message = fmt.Sprintf("No images found after visiting %d pages; best page was %s", out.Visited, out.Best.URL)
		if out.HarvestErr != nil {
			res.Message += " (it could not be re-fetched)"
		}
		return res
	}

	ranker := p.Ranker
	if ranker == nil {
		ranker = &rank.Ranker{}
	}
	rated, method := ranker.Rank(ctx, out.Images, req.Context)
	d.SelectionMethod = method
	d.ValidAfterFilter = len(rated)
	res.Status = StatusSuccess
	if len(rated) == 0 {
		res.Message = fmt.Sprintf("All %d images on %s looked like logos or icons", len(out.Images), out.ImagesFrom)
		return res
	}
	res.Images = rated
	res.Message = fmt.Sprintf("Found %d images on %s", len(rated), out.ImagesFrom)
	return res
}

func (p *Pipeline) fail(res *Result, err error, msg string) Result {
	res.Status = StatusError
	res.Message = msg
	res.Err = err
	return *res
}
