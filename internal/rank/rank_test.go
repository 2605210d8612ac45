package rank

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/placescout/internal/cache"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
	last  string
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	f.last = req.Messages[len(req.Messages)-1].Content
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}}}, nil
}

func dishes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://venue.example/up/dish-%02d.jpg", i)
	}
	return out
}

func TestRank_BatchCapLeavesRestUnrated(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("{")
	for i := 0; i < 50; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		score := 0.6
		if i%2 == 0 {
			score = 0.9
		}
		fmt.Fprintf(&sb, "%q: %.1f", fmt.Sprint(i), score)
	}
	sb.WriteString("}")
	f := &fakeLLM{reply: sb.String()}
	r := &Ranker{Client: f, Model: "m"}

	got, method := r.Rank(context.Background(), dishes(60), "tea and cake")
	if method != MethodAI || f.calls != 1 {
		t.Fatalf("method=%s calls=%d", method, f.calls)
	}
	if len(got) != 60 {
		t.Fatalf("got %d images, want 60", len(got))
	}
	unrated := 0
	for i, img := range got {
		if i > 0 && got[i-1].AIScore < img.AIScore {
			t.Fatalf("not sorted at %d", i)
		}
		if !img.Rated {
			unrated++
			if img.AIScore != UnratedScore || img.Index < 50 {
				t.Fatalf("unexpected unrated image %+v", img)
			}
		}
		if img.Confidence != img.AIScore {
			t.Fatalf("confidence must mirror score: %+v", img)
		}
	}
	if unrated != 10 {
		t.Fatalf("unrated=%d want 10", unrated)
	}
	// ties keep discovery order
	if got[0].Index != 0 || got[1].Index != 2 {
		t.Fatalf("tie order: %d, %d", got[0].Index, got[1].Index)
	}
	if strings.Contains(f.last, "dish-50.jpg") || !strings.Contains(f.last, "49: up/dish-49.jpg") {
		t.Fatalf("batch prompt must hold exactly the first 50 images:\n%s", f.last)
	}
}

func TestRank_DefensiveParsing(t *testing.T) {
	imgs := []string{"https://v.example/a.jpg", "https://v.example/b.jpg"}
	cases := map[string]string{
		"fenced with trailing comma": "```json\n{\"0\": 0.2, \"1\": 0.9,}\n```",
		"array":                      "[0.2, 0.9]",
		"broken document":            `Sure! "0": 0.2, "1": 0.9 hope this helps {`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			got, method := (&Ranker{Client: &fakeLLM{reply: reply}, Model: "m"}).Rank(context.Background(), imgs, "x")
			if method != MethodAI {
				t.Fatalf("method=%s", method)
			}
			if got[0].URL != imgs[1] || got[0].AIScore != 0.9 || got[1].AIScore != 0.2 {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestRank_MissingIndexGetsDefault(t *testing.T) {
	imgs := []string{"https://v.example/a.jpg", "https://v.example/b.jpg"}
	got, _ := (&Ranker{Client: &fakeLLM{reply: `{"1": 1.7}`}, Model: "m"}).Rank(context.Background(), imgs, "x")
	if got[0].Index != 1 || got[0].AIScore != 1 || !got[0].Rated {
		t.Fatalf("clamped score expected first: %+v", got[0])
	}
	if got[1].Rated || got[1].AIScore != UnratedScore {
		t.Fatalf("missing index should get default: %+v", got[1])
	}
}

func TestRank_FallsBackToHeuristic(t *testing.T) {
	imgs := []string{
		"https://v.example/up/exterior.jpg",
		"https://v.example/galeria/room.jpg",
		"https://v.example/up/cake.jpg",
	}
	for _, r := range []*Ranker{
		{Client: &fakeLLM{err: errors.New("boom")}, Model: "m"},
		{Client: &fakeLLM{reply: "I cannot rate images."}, Model: "m"},
		{},
	} {
		got, method := r.Rank(context.Background(), imgs, "cake")
		if method != MethodHeuristic || len(got) != 3 {
			t.Fatalf("method=%s len=%d", method, len(got))
		}
		// room.jpg (gallery) and cake.jpg (request word) beat exterior.jpg
		if got[2].URL != imgs[0] {
			t.Fatalf("unexpected order: %+v", got)
		}
		for _, g := range got {
			if g.Rated {
				t.Fatalf("heuristic scores are not rated")
			}
		}
	}
}

func TestHeuristic_LooksAtFileAndParentOnly(t *testing.T) {
	cases := []struct {
		url  string
		want float64
	}{
		{"https://v.example/images/a1.jpg", 0.4},
		{"https://v.example/photos/2024/b2.jpg", 0.4},
		{"https://gallery.example/up/c3.jpg", 0.4},
		{"https://v.example/up/photo-terasa.jpg", 0.6},
		{"https://v.example/sk/fotogaleria/x.jpg", 0.6},
		{"https://cake.example/up/x.jpg", 0.4},
		{"https://v.example/up/cake-slice.jpg", 0.5},
	}
	for _, tc := range cases {
		if got := Heuristic(tc.url, "cake"); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Heuristic(%s) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestRank_CachesReply(t *testing.T) {
	c := &cache.LLMCache{Dir: t.TempDir()}
	f := &fakeLLM{reply: `{"0": 0.7}`}
	r := &Ranker{Client: f, Model: "m", Cache: c}
	imgs := []string{"https://v.example/a.jpg"}
	r.Rank(context.Background(), imgs, "x")
	got, _ := r.Rank(context.Background(), imgs, "x")
	if f.calls != 1 || got[0].AIScore != 0.7 {
		t.Fatalf("calls=%d score=%v", f.calls, got[0].AIScore)
	}
}

func TestPrefilter(t *testing.T) {
	in := []string{
		"https://v.example/img/logo.png",
		"https://v.example/img/logo-gallery-large.jpg",
		"https://v.example/img/room.jpg",
		"https://v.example/img/avatar-anna.jpg",
		"https://v.example/img/flag-sk.png",
	}
	kept, idx := Prefilter(in)
	if len(kept) != 2 || kept[0] != in[1] || kept[1] != in[2] || idx[0] != 1 || idx[1] != 2 {
		t.Fatalf("kept=%v idx=%v", kept, idx)
	}
	if got, method := (&Ranker{}).Rank(context.Background(), in[:1], "x"); got != nil || method != MethodNone {
		t.Fatalf("all filtered: %v %s", got, method)
	}
}

func TestFilenameAndDescribe(t *testing.T) {
	if Filename("https://v.example/a/b/terrace_view-1.jpg?x=1") != "terrace_view-1.jpg" {
		t.Fatal("filename")
	}
	if describe("terrace_view-1.jpg") != "Image: terrace view 1" {
		t.Fatalf("describe: %q", describe("terrace_view-1.jpg"))
	}
}
