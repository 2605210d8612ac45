package llm

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestRepairJSON_FencesAndTrailingCommas(t *testing.T) {
	in := "```json\n{\"0\": 0.9, \"1\": 0.2,}\n```"
	var got map[string]float64
	if err := DecodeJSON(in, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["0"] != 0.9 || got["1"] != 0.2 {
		t.Fatalf("unexpected map: %v", got)
	}
}

func TestRepairJSON_ProseAroundPayload(t *testing.T) {
	in := "Sure! Here are the scores: {\"a\": [1, 2,]} Hope this helps."
	var got struct {
		A []int `json:"a"`
	}
	if err := DecodeJSON(in, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.A) != 2 {
		t.Fatalf("expected 2 items, got %v", got.A)
	}
}

func TestIndexScores_BrokenDocument(t *testing.T) {
	in := `{"0": 0.8, "1": 0.4 "2": oops, "3": 1.0`
	got := IndexScores(in)
	if len(got) != 3 {
		t.Fatalf("expected 3 pairs, got %v", got)
	}
	if got[3] != 1.0 || got[0] != 0.8 {
		t.Fatalf("unexpected pairs: %v", got)
	}
}

func TestFirstDecimal(t *testing.T) {
	cases := map[string]float64{"0.75": 0.75, "Score: 0.4\n": 0.4, "1": 1}
	for in, want := range cases {
		got, ok := FirstDecimal(in)
		if !ok || got != want {
			t.Fatalf("FirstDecimal(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := FirstDecimal("no number"); ok {
		t.Fatalf("expected no match")
	}
}

type errClient struct{}

func (errClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, errors.New("boom")
}

func TestComplete_PropagatesError(t *testing.T) {
	if _, err := Complete(context.Background(), errClient{}, Prompt{Model: "m", User: "hi"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Complete(context.Background(), nil, Prompt{Model: "m"}); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
