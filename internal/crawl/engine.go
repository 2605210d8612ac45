// Package crawl discovers the page of a website most likely to hold photos
// matching a request. One traversal engine serves two strategies: two-phase
// (cheap image counts while scouting, full extraction of the winner only) and
// early-stop (full extraction everywhere, halt on the first excellent page).
package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/extract"
	"github.com/hyperifyio/placescout/internal/imagex"
	"github.com/hyperifyio/placescout/internal/metrics"
	"github.com/hyperifyio/placescout/internal/relevance"
	"github.com/hyperifyio/placescout/internal/render"
)

// Params bounds one crawl.
type Params struct {
	Seed    string
	Context string
	// PageBudget caps visited pages. Zero means 50.
	PageBudget int
	// ImageBudget caps the returned images. Zero means 200.
	ImageBudget int
	UseAI       bool
	// Deadline, when set, ends scouting at that wall-clock time.
	Deadline time.Time
	// ScoutTimeout bounds each scout fetch. Zero means 12s.
	ScoutTimeout time.Duration
	// HarvestTimeout bounds the harvest fetch. Zero means 30s.
	HarvestTimeout time.Duration
}

func (p Params) withDefaults() Params {
	if p.PageBudget <= 0 {
		p.PageBudget = 50
	}
	if p.ImageBudget <= 0 {
		p.ImageBudget = 200
	}
	if p.ScoutTimeout <= 0 {
		p.ScoutTimeout = 12 * time.Second
	}
	if p.HarvestTimeout <= 0 {
		p.HarvestTimeout = 30 * time.Second
	}
	return p
}

// Policy decides when extraction happens and when the crawl may stop early.
type Policy struct {
	Name string
	// Eager runs full image extraction on every visited page.
	Eager bool
	// MinImages and MinPriority must both be met to stop early. Only
	// consulted when Eager is set.
	MinImages   int
	MinPriority float64
}

// Strategy names accepted by ParsePolicy.
const (
	StrategyTwoPhase  = "two-phase"
	StrategyEarlyStop = "early-stop"
)

// TwoPhase scouts the whole budget, then harvests the single best page.
func TwoPhase() Policy { return Policy{Name: StrategyTwoPhase} }

// EarlyStop extracts at every page and halts once a page has at least
// minImages images and a priority of at least minPriority.
func EarlyStop(minImages int, minPriority float64) Policy {
	return Policy{Name: StrategyEarlyStop, Eager: true, MinImages: minImages, MinPriority: minPriority}
}

// ErrUnknownStrategy is returned by ParsePolicy for unsupported names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// ParsePolicy maps a strategy name to its policy with default thresholds.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", StrategyTwoPhase:
		return TwoPhase(), nil
	case StrategyEarlyStop:
		return EarlyStop(5, 0.8), nil
	}
	return Policy{}, fmt.Errorf("%w %q", ErrUnknownStrategy, name)
}

// excerptBytes bounds the page text sent with each relevance prompt.
const excerptBytes = 600

func (p Policy) satisfied(priority float64, images int) bool {
	return p.Eager && images >= p.MinImages && priority >= p.MinPriority
}

// errAlreadyVisited reports a fetch that redirected to a page scored earlier.
var errAlreadyVisited = errors.New("redirect target already visited")

// RecoverableError wraps a per-page failure. The engine logs it and moves on.
type RecoverableError struct {
	URL string
	Op  string
	Err error
}

func (e *RecoverableError) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err) }
func (e *RecoverableError) Unwrap() error { return e.Err }

// Stop reasons reported in Outcome.
const (
	StopFrontier    = "frontier-empty"
	StopPageBudget  = "page-budget"
	StopImageBudget = "image-budget"
	StopDeadline    = "deadline"
	StopCanceled    = "canceled"
	StopEarly       = "early-stop"
)

// Outcome is everything one crawl learned. The caller owns it.
type Outcome struct {
	// Pages are sorted by descending CombinedScore, discovery order on ties.
	Pages    []PageScore
	Visited  int
	Skipped  int
	Failures int
	// Best is the highest ranked page that loaded.
	Best *PageScore
	// Images come from ImagesFrom, in discovery order, cut to ImageBudget.
	Images []string
	// ImagesFound counts the images on ImagesFrom before the budget cut.
	ImagesFound int
	ImagesFrom  string
	StopReason  string
	// SeedErr is set when the seed page itself could not be loaded.
	SeedErr error
	// HarvestErr is set when the winner could not be re-fetched.
	HarvestErr error
}

// Engine runs crawls. It holds no per-crawl state and is safe to share.
type Engine struct {
	Renderer render.Renderer
	// Scorer defaults to rule-only scoring with the built-in catalog.
	Scorer  *relevance.Scorer
	Weights Weights
}

func (e *Engine) scorer() *relevance.Scorer {
	if e.Scorer == nil {
		return &relevance.Scorer{}
	}
	return e.Scorer
}

func (e *Engine) weights() Weights {
	if e.Weights == (Weights{}) {
		return DefaultWeights()
	}
	return e.Weights
}

// Run scouts from p.Seed under pol and returns the outcome. It never fails;
// problems are reported through SeedErr, HarvestErr and Failures.
func (e *Engine) Run(ctx context.Context, p Params, pol Policy) Outcome {
	p = p.withDefaults()
	s := newSession(e, p, pol)
	out := s.scout(ctx)
	if out.Best == nil || out.SeedErr != nil {
		return out
	}
	if pol.Eager {
		if out.ImagesFrom == "" {
			out.ImagesFrom = out.Best.URL
			out.Images = s.extracted[out.Best.URL]
		}
	} else {
		imgs, err := e.Harvest(ctx, out.Best.URL, p.HarvestTimeout)
		if err != nil {
			log.Warn().Err(err).Str("url", out.Best.URL).Msg("harvest failed")
			out.HarvestErr = err
		}
		out.Images = imgs
		out.ImagesFrom = out.Best.URL
	}
	out.ImagesFound = len(out.Images)
	if len(out.Images) > p.ImageBudget {
		out.Images = out.Images[:p.ImageBudget]
	}
	return out
}

// Harvest re-fetches pageURL with timeout and runs full image extraction.
func (e *Engine) Harvest(ctx context.Context, pageURL string, timeout time.Duration) ([]string, error) {
	if e.Renderer == nil {
		return nil, errors.New("crawl: no renderer")
	}
	page, err := e.Renderer.Render(ctx, pageURL, timeout)
	if err != nil {
		return nil, &RecoverableError{URL: pageURL, Op: "harvest", Err: err}
	}
	imgs, err := imagex.Extract(page.Body, page.URL)
	if err != nil {
		return nil, &RecoverableError{URL: pageURL, Op: "extract", Err: err}
	}
	log.Debug().Str("url", pageURL).Int("images", len(imgs)).Msg("harvested")
	return imgs, nil
}

// session is the state of one crawl. It is created by Run, touched only by
// its control loop and dropped when Run returns.
type session struct {
	e       *Engine
	p       Params
	pol     Policy
	scorer  *relevance.Scorer
	weights Weights

	seedKey  string
	host     string
	frontier Frontier
	visited  map[string]struct{}
	skipped  map[string]struct{}
	queued   map[string]struct{}

	// visits counts loaded pages; visited also holds redirect targets.
	visits     int
	pages      []PageScore
	extracted  map[string][]string
	imageTotal int
}

func newSession(e *Engine, p Params, pol Policy) *session {
	s := &session{
		e:         e,
		p:         p,
		pol:       pol,
		scorer:    e.scorer(),
		weights:   e.weights(),
		seedKey:   NormalizeURL(p.Seed),
		visited:   map[string]struct{}{},
		skipped:   map[string]struct{}{},
		queued:    map[string]struct{}{},
		extracted: map[string][]string{},
	}
	if u, err := url.Parse(p.Seed); err == nil {
		s.host = u.Host
	}
	s.frontier.Push(Entry{URL: p.Seed, Priority: 1.0, Title: "Main page"})
	s.queued[s.seedKey] = struct{}{}
	return s
}

func (s *session) stopReason(ctx context.Context) string {
	switch {
	case ctx.Err() != nil:
		return StopCanceled
	case !s.p.Deadline.IsZero() && !time.Now().Before(s.p.Deadline):
		return StopDeadline
	case s.visits >= s.p.PageBudget:
		return StopPageBudget
	case s.pol.Eager && s.imageTotal >= s.p.ImageBudget:
		return StopImageBudget
	case s.frontier.Len() == 0:
		return StopFrontier
	}
	return ""
}

func (s *session) scout(ctx context.Context) Outcome {
	var out Outcome
	for {
		if reason := s.stopReason(ctx); reason != "" {
			out.StopReason = reason
			break
		}
		entry, _ := s.frontier.Pop()
		key := NormalizeURL(entry.URL)
		if _, seen := s.visited[key]; seen {
			continue
		}
		s.visited[key] = struct{}{}
		s.visits++

		ps, err := s.visit(ctx, entry)
		if errors.Is(err, errAlreadyVisited) {
			metrics.PagesVisited.WithLabelValues("duplicate").Inc()
			log.Debug().Str("url", entry.URL).Msg("redirects to a visited page")
			continue
		}
		ps.order = len(s.pages)
		s.pages = append(s.pages, ps)
		if err != nil {
			out.Failures++
			metrics.PagesVisited.WithLabelValues("failed").Inc()
			log.Warn().Err(err).Str("url", entry.URL).Msg("page skipped")
			if key == s.seedKey {
				out.SeedErr = err
			}
			continue
		}
		metrics.PagesVisited.WithLabelValues("ok").Inc()
		log.Debug().Str("url", ps.URL).Float64("priority", ps.Priority).Int("images", ps.EstimatedImages).
			Float64("combined", ps.CombinedScore).Msg("page scored")

		if s.pol.satisfied(ps.Priority, ps.EstimatedImages) {
			out.StopReason = StopEarly
			out.ImagesFrom = ps.URL
			out.Images = s.extracted[ps.URL]
			break
		}
	}

	sort.SliceStable(s.pages, func(i, j int) bool {
		if s.pages[i].CombinedScore != s.pages[j].CombinedScore {
			return s.pages[i].CombinedScore > s.pages[j].CombinedScore
		}
		return s.pages[i].order < s.pages[j].order
	})
	out.Pages = s.pages
	out.Visited = s.visits
	out.Skipped = len(s.skipped)
	for i := range out.Pages {
		if !out.Pages[i].Failed {
			best := out.Pages[i]
			out.Best = &best
			break
		}
	}
	return out
}

// visit loads one page, scores it and feeds its links to the frontier. A
// failure yields a zero-image PageScore flagged Failed.
func (s *session) visit(ctx context.Context, entry Entry) (PageScore, error) {
	page, err := s.e.Renderer.Render(ctx, entry.URL, s.p.ScoutTimeout)
	if err != nil {
		ps := s.weights.Score(entry.URL, entry.Title, entry.Priority, 0)
		ps.Failed = true
		return ps, &RecoverableError{URL: entry.URL, Op: "fetch", Err: err}
	}
	finalKey := NormalizeURL(page.URL)
	if _, seen := s.visited[finalKey]; seen && finalKey != NormalizeURL(entry.URL) {
		return PageScore{}, errAlreadyVisited
	}
	s.visited[finalKey] = struct{}{}
	if NormalizeURL(entry.URL) == s.seedKey {
		// follow the seed's redirect (http to https, bare to www)
		if u, err := url.Parse(page.URL); err == nil && u.Host != "" {
			s.host = u.Host
		}
	}

	title, links := scanPage(page.Body, page.URL)
	priority := relevance.Clamp(entry.Priority)
	var aiScore *float64
	if s.p.UseAI {
		doc := extract.FromHTML(page.Body)
		h := relevance.Hints{Title: title, Anchor: entry.Anchor, Excerpt: extract.Excerpt(doc.Text, excerptBytes)}
		if h.Title == "" {
			h.Title = entry.Title
		}
		ai := s.scorer.AI(ctx, page.URL, s.p.Context, h)
		aiScore = &ai
		priority = relevance.Blend(entry.Priority, ai, true, s.weights.Blend)
	}

	var count int
	if s.pol.Eager {
		imgs, err := imagex.Extract(page.Body, page.URL)
		if err != nil {
			log.Debug().Err(err).Str("url", page.URL).Msg("extract failed")
		}
		s.extracted[page.URL] = imgs
		s.imageTotal += len(imgs)
		count = len(imgs)
	} else {
		count = imagex.CountUnique(page.Body, page.URL)
	}
	ps := s.weights.Score(page.URL, title, priority, count)
	ps.AIScore = aiScore

	s.enqueue(title, links)
	return ps, nil
}

func (s *session) enqueue(title string, links []Link) {
	for _, l := range links {
		if !eligible(l.URL, s.host) {
			continue
		}
		key := NormalizeURL(l.URL)
		if s.known(key) {
			continue
		}
		v := s.scorer.Rule(l.URL, s.p.Context)
		if !v.Visit {
			s.skipped[key] = struct{}{}
			metrics.LinksSkipped.Inc()
			log.Debug().Str("url", l.URL).Str("reason", v.Reason).Msg("link skipped")
			continue
		}
		s.queued[key] = struct{}{}
		s.frontier.Push(Entry{URL: l.URL, Priority: v.Score, Title: title, Anchor: l.Text})
	}
}

func (s *session) known(key string) bool {
	if _, ok := s.visited[key]; ok {
		return true
	}
	if _, ok := s.skipped[key]; ok {
		return true
	}
	_, ok := s.queued[key]
	return ok
}
