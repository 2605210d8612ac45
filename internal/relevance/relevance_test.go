package relevance

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/placescout/internal/cache"
	"github.com/hyperifyio/placescout/internal/topic"
)

type fakeLLM struct {
	reply string
	err   error
	calls int32
	delay time.Duration
}

func (f *fakeLLM) CreateChatCompletion(ctx context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}}}, nil
}

func TestRule_Order(t *testing.T) {
	s := &Scorer{}
	cases := []struct {
		name, url, context string
		visit              bool
		score              float64
	}{
		{"tea contact page is skipped", "https://vila.example.sk/kontakt", "tea", false, 0},
		{"high beats skip", "https://vila.example.sk/menu/kontakt", "tea", true, HighScore},
		{"medium", "https://vila.example.sk/o-nas", "tea", true, MediumScore},
		{"default", "https://vila.example.sk/xyz", "tea", true, DefaultScore},
		{"query match", "https://vila.example.sk/index.php?page=galeria", "anything", true, HighScore},
		{"keyword in host ignored", "https://teahouse.sk/kontakt", "tea", false, 0},
		{"host keyword does not lift", "https://galeria.example.com/x", "anything", true, DefaultScore},
		{"host keyword does not beat skip", "https://cafe-gallery.sk/kontakt", "interior", false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := s.Rule(tc.url, tc.context)
			if v.Visit != tc.visit || v.Score != tc.score {
				t.Fatalf("Rule(%s) = %+v, want visit=%v score=%v", tc.url, v, tc.visit, tc.score)
			}
		})
	}
}

func TestRule_SkipBeatsMedium(t *testing.T) {
	b := topic.Bucket{MediumPriority: []string{"about"}, Skip: []string{"about-jobs"}}
	v := RuleFor(b, "https://x.example/about-jobs")
	if v.Visit || v.Score != 0 {
		t.Fatalf("skip must win over medium, got %+v", v)
	}
}

func TestScore_AIFailureIsNeutral(t *testing.T) {
	s := &Scorer{Client: &fakeLLM{err: errors.New("down")}, Model: "m"}
	visit, score := s.Score(context.Background(), "https://x.example/galeria", "interior", "Home", "Gallery", true)
	if !visit || score != NeutralScore {
		t.Fatalf("expected (true, 0.3), got (%v, %v)", visit, score)
	}
}

func TestScore_AITimeoutIsNeutral(t *testing.T) {
	s := &Scorer{Client: &fakeLLM{reply: "0.9", delay: time.Second}, Model: "m", Timeout: 20 * time.Millisecond}
	if _, score := s.Score(context.Background(), "https://x.example/a", "food", "", "", true); score != NeutralScore {
		t.Fatalf("expected neutral on timeout, got %v", score)
	}
}

func TestScore_AIUnparseableIsNeutral(t *testing.T) {
	s := &Scorer{Client: &fakeLLM{reply: "I think it is relevant"}, Model: "m"}
	if _, score := s.Score(context.Background(), "https://x.example/a", "food", "", "", true); score != NeutralScore {
		t.Fatalf("expected neutral, got %v", score)
	}
}

func TestScore_AISkipListedDoesNotCallModel(t *testing.T) {
	f := &fakeLLM{reply: "0.9"}
	s := &Scorer{Client: f, Model: "m"}
	visit, score := s.Score(context.Background(), "https://x.example/kontakt", "tea", "", "", true)
	if visit || score != 0 {
		t.Fatalf("expected (false, 0), got (%v, %v)", visit, score)
	}
	if f.calls != 0 {
		t.Fatalf("skip-listed URL must not reach the model")
	}
}

func TestAI_ClampsAndCaches(t *testing.T) {
	f := &fakeLLM{reply: "1.7"}
	s := &Scorer{Client: f, Model: "m", Cache: &cache.LLMCache{Dir: t.TempDir()}}
	ctx := context.Background()
	if got := s.AI(ctx, "https://x.example/a", "food", Hints{Title: "T", Anchor: "A"}); got != 1 {
		t.Fatalf("expected clamp to 1, got %v", got)
	}
	if got := s.AI(ctx, "https://x.example/a", "food", Hints{Title: "T", Anchor: "A"}); got != 1 {
		t.Fatalf("cached value mismatch: %v", got)
	}
	if f.calls != 1 {
		t.Fatalf("second call should be served from cache, got %d calls", f.calls)
	}
}

func TestBlend(t *testing.T) {
	if got := Blend(0.5, 0.9, true, DefaultBlend); math.Abs(got-0.78) > 1e-9 {
		t.Fatalf("blend = %v", got)
	}
	if got := Blend(0.5, 0.9, false, DefaultBlend); got != 0.5 {
		t.Fatalf("rule only = %v", got)
	}
	for _, in := range [][2]float64{{-3, 7}, {2, 2}, {math.NaN(), 0.5}, {0, -1}} {
		got := Blend(in[0], in[1], true, BlendWeights{Rule: 1, AI: 1})
		if got < 0 || got > 1 {
			t.Fatalf("Blend(%v) = %v out of range", in, got)
		}
	}
}

func TestBuildUserPrompt(t *testing.T) {
	p := buildUserPrompt("https://x.example/galeria?x=1", "interior", Hints{Title: "Home", Anchor: "Our space", Excerpt: "Photos of our tea room"})
	for _, want := range []string{"Path: /galeria", "Page title: Home", "Link text: Our space", "Request: interior", "Page text:\nPhotos of our tea room"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}
