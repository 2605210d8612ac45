// Package relevance decides which pages of a venue's website are worth
// visiting for a given request. A rule tier matches URL keywords from the
// request's topic bucket; an optional model tier asks an LLM for a 0..1
// relevance estimate. Neither tier ever returns an error to the caller.
package relevance

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/cache"
	"github.com/hyperifyio/placescout/internal/llm"
	"github.com/hyperifyio/placescout/internal/metrics"
	"github.com/hyperifyio/placescout/internal/topic"
)

// Rule tier scores.
const (
	HighScore    = 0.95
	MediumScore  = 0.5
	DefaultScore = 0.2
	// NeutralScore is used whenever the model tier cannot produce a number.
	NeutralScore = 0.3
)

// Verdict is the outcome of scoring one URL.
type Verdict struct {
	Visit bool
	Score float64
	// Reason names the keyword list that decided the verdict.
	Reason string
}

// BlendWeights combines rule and model scores into a page priority.
type BlendWeights struct {
	Rule float64
	AI   float64
}

// DefaultBlend is 30% rule-based, 70% model.
var DefaultBlend = BlendWeights{Rule: 0.3, AI: 0.7}

// Blend returns the blended priority clamped to [0,1]. With useAI false the
// rule score passes through unchanged (still clamped).
func Blend(rule, ai float64, useAI bool, w BlendWeights) float64 {
	if !useAI {
		return Clamp(rule)
	}
	return Clamp(Clamp(rule)*w.Rule + Clamp(ai)*w.AI)
}

// Clamp bounds v to [0,1]; NaN becomes 0.
func Clamp(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Scorer implements both tiers.
type Scorer struct {
	Catalog *topic.Catalog
	Client  llm.Client
	Model   string
	Cache   *cache.LLMCache
	// Timeout bounds one model call. Zero means 15s.
	Timeout time.Duration
}

func (s *Scorer) catalog() *topic.Catalog {
	if s.Catalog == nil {
		return topic.DefaultCatalog()
	}
	return s.Catalog
}

// Rule scores rawURL against the keyword lists of query's bucket. The order
// is fixed: high priority, then skip, then medium priority, then default.
// Skip therefore always beats a medium match.
func (s *Scorer) Rule(rawURL, query string) Verdict {
	return RuleFor(s.catalog().BucketFor(query), rawURL)
}

// RuleFor applies one bucket's keyword lists to the path and query of
// rawURL. The host is never matched, so a venue named after its trade
// cannot lift every page of its site.
func RuleFor(b topic.Bucket, rawURL string) Verdict {
	target := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil {
		target = strings.ToLower(u.Path)
		if u.RawQuery != "" {
			target += "?" + strings.ToLower(u.RawQuery)
		}
	}
	hit := func(words []string) bool {
		for _, w := range words {
			if w != "" && strings.Contains(target, w) {
				return true
			}
		}
		return false
	}
	switch {
	case hit(b.HighPriority):
		return Verdict{Visit: true, Score: HighScore, Reason: "high_priority"}
	case hit(b.Skip):
		return Verdict{Visit: false, Score: 0, Reason: "skip"}
	case hit(b.MediumPriority):
		return Verdict{Visit: true, Score: MediumScore, Reason: "medium_priority"}
	}
	return Verdict{Visit: true, Score: DefaultScore, Reason: "default"}
}

// Score is the public contract: the rule tier first, and when useAI is set
// and the URL was not skip-listed, the model's estimate replaces the rule
// score. A failing model yields (true, NeutralScore).
func (s *Scorer) Score(ctx context.Context, rawURL, query, pageTitle, anchorText string, useAI bool) (bool, float64) {
	v := s.Rule(rawURL, query)
	if !v.Visit || !useAI {
		return v.Visit, v.Score
	}
	return true, s.AI(ctx, rawURL, query, Hints{Title: pageTitle, Anchor: anchorText})
}

// Hints describe a page to the model beyond its URL. All fields are optional.
type Hints struct {
	Title  string
	Anchor string
	// Excerpt is readable page text, already shortened.
	Excerpt string
}

const aiSystemPrompt = "You judge whether a web page is likely to show photographs matching a visitor's request. " +
	"Reply with a single decimal number between 0.0 and 1.0 and nothing else."

// AI asks the model for a relevance estimate. Any failure, including an
// unconfigured client, returns NeutralScore.
func (s *Scorer) AI(ctx context.Context, rawURL, query string, h Hints) float64 {
	if s.Client == nil || strings.TrimSpace(s.Model) == "" {
		return NeutralScore
	}
	user := buildUserPrompt(rawURL, query, h)
	key := cache.KeyFrom(s.Model, aiSystemPrompt+"\n\n"+user)
	if raw, ok := s.Cache.Get(ctx, key); ok {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return Clamp(f)
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, err := llm.Complete(cctx, s.Client, llm.Prompt{
		Model:       s.Model,
		System:      aiSystemPrompt,
		User:        user,
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("relevance model call failed; using neutral score")
		metrics.LLMFallbacks.WithLabelValues("relevance").Inc()
		return NeutralScore
	}
	f, ok := llm.FirstDecimal(reply)
	if !ok {
		log.Debug().Str("url", rawURL).Str("reply", truncate(reply, 80)).Msg("unparseable relevance reply")
		metrics.LLMFallbacks.WithLabelValues("relevance").Inc()
		return NeutralScore
	}
	f = Clamp(f)
	_ = s.Cache.Put(ctx, key, strconv.FormatFloat(f, 'f', -1, 64))
	return f
}

func buildUserPrompt(rawURL, query string, h Hints) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	var sb strings.Builder
	sb.WriteString("Request: ")
	sb.WriteString(query)
	sb.WriteString("\nURL: ")
	sb.WriteString(rawURL)
	sb.WriteString("\nPath: ")
	sb.WriteString(path)
	if h.Title != "" {
		sb.WriteString("\nPage title: ")
		sb.WriteString(h.Title)
	}
	if h.Anchor != "" {
		sb.WriteString("\nLink text: ")
		sb.WriteString(h.Anchor)
	}
	if h.Excerpt != "" {
		sb.WriteString("\nPage text:\n")
		sb.WriteString(h.Excerpt)
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
