// Package rank orders harvested image URLs by how well they match a request.
// A single batch model call scores up to BatchCap images; the rest get a
// fixed default. When the model is unavailable a filename heuristic takes
// over, so ranking always produces a result.
package rank

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/placescout/internal/cache"
	"github.com/hyperifyio/placescout/internal/llm"
	"github.com/hyperifyio/placescout/internal/metrics"
	"github.com/hyperifyio/placescout/internal/topic"
)

const (
	// DefaultBatchCap is the number of images sent to the model at once.
	DefaultBatchCap = 50
	// UnratedScore is given to images the model did not score.
	UnratedScore = 0.3
)

// Selection methods reported alongside a ranking.
const (
	MethodAI        = "ai_batch"
	MethodHeuristic = "heuristic"
	MethodNone      = "none"
)

// RatedImage is one ranked image. Confidence mirrors AIScore.
type RatedImage struct {
	URL         string  `json:"url"`
	Filename    string  `json:"filename"`
	Index       int     `json:"index"`
	AIScore     float64 `json:"ai_score"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	// Rated is false when the score is a default or heuristic value.
	Rated bool `json:"rated"`
}

// Ranker scores images against a request context.
type Ranker struct {
	Client llm.Client
	Model  string
	Cache  *cache.LLMCache
	// BatchCap defaults to DefaultBatchCap.
	BatchCap int
	// Timeout bounds the batch call. Zero means 30s.
	Timeout time.Duration
}

var lowValue = []string{
	"logo", "icon", "thumb", "avatar", "button", "badge", "flag", "arrow", "social", "sprite",
	"placeholder", "loader", "payment", "visa", "mastercard", "tripadvisor", "qr",
}

var highValue = []string{
	"gallery", "galeria", "photo", "foto", "interior", "interier", "food", "jedlo", "dish", "product",
	"large", "full", "original", "hero",
}

// Prefilter drops URLs that match a low-value pattern and no high-value one.
// It returns the survivors with their positions in images.
func Prefilter(images []string) (kept []string, index []int) {
	for i, u := range images {
		lower := strings.ToLower(u)
		if containsAny(lower, lowValue) && !containsAny(lower, highValue) {
			continue
		}
		kept = append(kept, u)
		index = append(index, i)
	}
	return kept, index
}

// Rank scores images against query and returns them by descending score,
// discovery order on ties, together with the method used. Every image that
// survives Prefilter is present in the output.
func (r *Ranker) Rank(ctx context.Context, images []string, query string) ([]RatedImage, string) {
	kept, index := Prefilter(images)
	if len(kept) == 0 {
		return nil, MethodNone
	}
	out := make([]RatedImage, len(kept))
	for i, u := range kept {
		name := Filename(u)
		out[i] = RatedImage{URL: u, Filename: name, Index: index[i], Description: describe(name)}
	}

	capN := r.BatchCap
	if capN <= 0 {
		capN = DefaultBatchCap
	}
	batch := kept
	if len(batch) > capN {
		batch = batch[:capN]
	}

	method := MethodAI
	scores, err := r.scoreBatch(ctx, batch, query)
	if err != nil {
		log.Warn().Err(err).Int("images", len(kept)).Msg("image ranking fell back to heuristic")
		metrics.LLMFallbacks.WithLabelValues("rank").Inc()
		method = MethodHeuristic
		for i := range out {
			s := Heuristic(out[i].URL, query)
			out[i].AIScore, out[i].Confidence = s, s
		}
	} else {
		for i := range out {
			s, ok := scores[i]
			if i >= len(batch) || !ok {
				s = UnratedScore
			}
			out[i].AIScore, out[i].Confidence, out[i].Rated = s, s, ok && i < len(batch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AIScore != out[j].AIScore {
			return out[i].AIScore > out[j].AIScore
		}
		return out[i].Index < out[j].Index
	})
	return out, method
}

const rankSystemPrompt = "You rate photographs for a place-discovery app. For each numbered image path, estimate how well " +
	"the photo likely matches the visitor's request. Respond with JSON only: an object mapping each index to a score " +
	"between 0.0 and 1.0, for example {\"0\": 0.8, \"1\": 0.1}."

func (r *Ranker) scoreBatch(ctx context.Context, batch []string, query string) (map[int]float64, error) {
	if r.Client == nil || strings.TrimSpace(r.Model) == "" {
		return nil, fmt.Errorf("ranker not configured")
	}
	user := buildUserPrompt(batch, query)
	key := cache.KeyFrom(r.Model, rankSystemPrompt+"\n\n"+user)
	if reply, ok := r.Cache.Get(ctx, key); ok {
		if scores := ParseScores(reply, len(batch)); len(scores) > 0 {
			return scores, nil
		}
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	reply, err := llm.Complete(cctx, r.Client, llm.Prompt{
		Model:       r.Model,
		System:      rankSystemPrompt,
		User:        user,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("rank call: %w", err)
	}
	scores := ParseScores(reply, len(batch))
	if len(scores) == 0 {
		return nil, fmt.Errorf("no scores in rank reply")
	}
	_ = r.Cache.Put(ctx, key, reply)
	return scores, nil
}

// ParseScores reads an index-to-score mapping from a model reply. It accepts
// a JSON object, a JSON array, or, for broken documents, any "index": number
// pairs found in the text. Indexes outside [0,n) are ignored and scores are
// clamped to [0,1].
func ParseScores(reply string, n int) map[int]float64 {
	raw := map[int]float64{}
	var obj map[string]float64
	var arr []float64
	switch {
	case llm.DecodeJSON(reply, &obj) == nil:
		for k, v := range obj {
			if i, err := strconv.Atoi(strings.TrimSpace(k)); err == nil {
				raw[i] = v
			}
		}
	case llm.DecodeJSON(reply, &arr) == nil:
		for i, v := range arr {
			raw[i] = v
		}
	default:
		raw = llm.IndexScores(reply)
	}
	out := make(map[int]float64, len(raw))
	for i, v := range raw {
		if i < 0 || i >= n {
			continue
		}
		out[i] = clamp(v)
	}
	return out
}

func buildUserPrompt(batch []string, query string) string {
	var sb strings.Builder
	sb.WriteString("Request: ")
	sb.WriteString(query)
	sb.WriteString("\nImages:\n")
	for i, u := range batch {
		fmt.Fprintf(&sb, "%d: %s\n", i, partialPath(u))
	}
	return sb.String()
}

// partialPath keeps the last three path segments, enough to carry folder
// names like "galeria/interier" without the whole URL.
func partialPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) > 3 {
		segs = segs[len(segs)-3:]
	}
	return strings.Join(segs, "/")
}

var (
	heuristicBoost = []string{"gallery", "galeria", "food", "jedlo", "dish", "photo", "foto", "image"}
	// sectionBoost applies to the parent directory. Generic containers such
	// as /images/ or /photos/ do not count.
	sectionBoost = []string{"gallery", "galeria", "food", "jedlo", "dish"}
)

// Heuristic scores an image without a model from its file name and parent
// directory: 0.6 when either names a gallery or food photo, 0.4 otherwise,
// plus 0.1 when a word of the request appears in them.
func Heuristic(imageURL, query string) float64 {
	file := topic.Fold(Filename(imageURL))
	dir := topic.Fold(parentDir(imageURL))
	s := 0.4
	if containsAny(file, heuristicBoost) || containsAny(dir, sectionBoost) {
		s = 0.6
	}
	both := dir + "/" + file
	for _, w := range strings.Fields(topic.Fold(query)) {
		if len(w) >= 3 && strings.Contains(both, w) {
			s += 0.1
			break
		}
	}
	return clamp(s)
}

func parentDir(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	dir := path.Dir(u.Path)
	if dir == "." || dir == "/" {
		return ""
	}
	return path.Base(dir)
}

// Filename returns the last path segment of an image URL.
func Filename(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	return raw
}

func describe(filename string) string {
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	words := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' || r == '.' || r == '+' })
	if len(words) == 0 {
		return "Image"
	}
	return "Image: " + strings.Join(words, " ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
