package request

import (
	"context"
	"errors"
	"reflect"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}}}, nil
}

func TestLLMParser_NormalizesOutput(t *testing.T) {
	reply := "```json\n" + `{"activity_type": "Food", "place_types": ["Coffee Shop", "cafe", "spaceship"],
"cuisine": " Italian ", "preferences": {"budget": "LOW", "outdoor_seating": true}, "search_context": "",}` + "\n```"
	p := &LLMParser{Client: &fakeLLM{reply: reply}, Model: "m"}
	f, err := p.Parse(context.Background(), "cheap italian coffee with a terrace")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(f.PlaceTypes, []string{"cafe"}) || f.ActivityType != "food" || f.Cuisine != "italian" {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.Preferences.Budget != "low" || !f.Preferences.OutdoorSeating {
		t.Fatalf("preferences %+v", f.Preferences)
	}
	if f.SearchContext != "cheap italian coffee with a terrace" {
		t.Fatalf("search context should default to the request, got %q", f.SearchContext)
	}
}

func TestLLMParser_RejectsUselessOutput(t *testing.T) {
	p := &LLMParser{Client: &fakeLLM{reply: `{"place_types": ["spaceship"]}`}, Model: "m"}
	if _, err := p.Parse(context.Background(), "x"); err == nil {
		t.Fatal("expected error for unknown place types")
	}
	if _, err := p.Parse(context.Background(), "  "); !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("err=%v", err)
	}
}

func TestWithFallback(t *testing.T) {
	primary := &LLMParser{Client: &fakeLLM{err: errors.New("down")}, Model: "m"}
	f, method, err := WithFallback(context.Background(), primary, "Cozy tea room in Košice")
	if err != nil || method != "fallback" {
		t.Fatalf("method=%s err=%v", method, err)
	}
	if f.PlaceTypes[0] != "cafe" || f.Location != "Košice" {
		t.Fatalf("filter %+v", f)
	}

	ok := &LLMParser{Client: &fakeLLM{reply: `{"activity_type":"culture","place_types":["museum"]}`}, Model: "m"}
	if f, method, err := WithFallback(context.Background(), ok, "museum"); err != nil || method != "llm" || f.ActivityType != "culture" {
		t.Fatalf("llm path: %+v %s %v", f, method, err)
	}
	if _, _, err := WithFallback(context.Background(), nil, ""); !errors.Is(err, ErrEmptyRequest) {
		t.Fatalf("err=%v", err)
	}
}

func TestFallbackParser(t *testing.T) {
	cases := []struct {
		text string
		want Filter
	}{
		{
			text: "Lacná talianska reštaurácia s terasou pri Hlavnej ulici dnes večer",
			want: Filter{
				ActivityType: "food", PlaceTypes: []string{"restaurant"}, Cuisine: "italian",
				Preferences: Preferences{Budget: "low", OutdoorSeating: true},
				TimeWindow:  "dnes vecer", Location: "Hlavnej",
			},
		},
		{
			text: "wheelchair accessible museum or theatre this weekend",
			want: Filter{
				ActivityType: "culture", PlaceTypes: []string{"museum", "gallery", "theatre", "cinema"},
				Preferences: Preferences{Wheelchair: true}, TimeWindow: "weekend",
			},
		},
		{
			text: "somewhere nice",
			want: Filter{ActivityType: "food", PlaceTypes: []string{"restaurant", "cafe"}},
		},
	}
	for _, tc := range cases {
		got, err := FallbackParser{}.Parse(context.Background(), tc.text)
		if err != nil {
			t.Fatal(err)
		}
		tc.want.SearchContext = tc.text
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%q:\n got %+v\nwant %+v", tc.text, got, tc.want)
		}
	}
}
