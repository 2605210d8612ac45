package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/placescout/internal/llm"
	"github.com/hyperifyio/placescout/internal/rank"
	"github.com/hyperifyio/placescout/internal/relevance"
	"github.com/hyperifyio/placescout/internal/request"
)

func newClient(t *testing.T) *llm.OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(newMux("stub"))
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("none")
	cfg.BaseURL = srv.URL + "/v1"
	return &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

func TestStubServesEveryAssistant(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	models, err := c.ListModels(ctx)
	if err != nil || len(models.Models) != 1 || models.Models[0].ID != "stub" {
		t.Fatalf("models: %+v %v", models, err)
	}

	s := &relevance.Scorer{Client: c, Model: "stub"}
	if got := s.AI(ctx, "https://x.sk/fotogaleria", "cozy", relevance.Hints{}); got != 0.9 {
		t.Fatalf("relevance: %v", got)
	}

	r := &rank.Ranker{Client: c, Model: "stub"}
	rated, method := r.Rank(ctx, []string{"https://x.sk/a/room.jpg", "https://x.sk/a/hall.jpg"}, "cozy")
	if method != rank.MethodAI || len(rated) != 2 || rated[0].AIScore != 0.8 {
		t.Fatalf("rank: %s %+v", method, rated)
	}

	f, method, err := request.WithFallback(ctx, &request.LLMParser{Client: c, Model: "stub"}, "quiet tea in Košice")
	if err != nil || method != "llm" || f.PlaceTypes[0] != "cafe" || f.Location != "Košice" {
		t.Fatalf("parse: %+v %s %v", f, method, err)
	}
}

func TestRespondUnknownPrompt(t *testing.T) {
	if _, ok := respond("something else", ""); ok {
		t.Fatal("unknown prompt should not be answered")
	}
	if out, ok := respond("You are a transport assistant.", "User asked: from A to B"); !ok || !strings.HasPrefix(out, "Stub route.") {
		t.Fatalf("transit reply %q", out)
	}
	out, _ := respond("You rate photographs", "0: a/logo.png\n1: a/b.jpg\n")
	var m map[string]float64
	if err := json.Unmarshal([]byte(out), &m); err != nil || m["0"] != 0.1 || m["1"] != 0.79 {
		t.Fatalf("rank reply %q: %v", out, err)
	}
}
