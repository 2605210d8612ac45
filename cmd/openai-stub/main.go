// Command openai-stub is a deterministic OpenAI-compatible server for local
// runs and end-to-end tests. It recognizes each assistant by its system
// prompt and answers with fixed heuristics.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

var (
	imageLineRe = regexp.MustCompile(`(?m)^(\d+):\s*(\S+)`)
	locationRe  = regexp.MustCompile(`\b(?:in|near|v|pri)\s+(\p{Lu}[\p{L}-]*)`)
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	log.Info().Str("addr", addr).Str("model", model).Msg("openai-stub listening")
	if err := http.ListenAndServe(addr, newMux(model)); err != nil {
		log.Fatal().Err(err).Msg("serve")
	}
}

func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var sys, user string
		if len(req.Messages) > 0 {
			sys = req.Messages[0].Content
		}
		if len(req.Messages) > 1 {
			user = req.Messages[len(req.Messages)-1].Content
		}
		content, ok := respond(sys, user)
		if !ok {
			http.Error(w, "unexpected system prompt", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		})
	})
	return mux
}

// respond picks the canned answer for a system prompt.
func respond(sys, user string) (string, bool) {
	lower := strings.ToLower(user)
	switch {
	case strings.Contains(sys, "single decimal number"):
		path := lower
		if i := strings.Index(lower, "path: "); i >= 0 {
			path = lower[i:]
			if nl := strings.IndexByte(path, '\n'); nl >= 0 {
				path = path[:nl]
			}
		}
		switch {
		case containsAny(path, "galeri", "gallery", "foto", "photo", "interier"):
			return "0.9", true
		case containsAny(path, "kontakt", "contact"):
			return "0.1", true
		}
		return "0.4", true

	case strings.Contains(sys, "rate photographs"):
		scores := map[string]float64{}
		for _, m := range imageLineRe.FindAllStringSubmatch(user, -1) {
			i, _ := strconv.Atoi(m[1])
			s := 0.8 - 0.01*float64(i%50)
			if containsAny(strings.ToLower(m[2]), "logo", "icon", "thumb") {
				s = 0.1
			}
			scores[m[1]] = s
		}
		b, _ := json.Marshal(scores)
		return string(b), true

	case strings.Contains(sys, "place") && strings.Contains(sys, "strict JSON"):
		text := strings.TrimSpace(strings.TrimPrefix(user, "Request: "))
		out := map[string]any{
			"activity_type":  "food",
			"place_types":    []string{"restaurant"},
			"preferences":    map[string]any{"budget": "", "wheelchair": false, "outdoor_seating": false},
			"search_context": text,
		}
		if containsAny(strings.ToLower(text), "tea", "coffee", "cafe", "čaj", "káv") {
			out["place_types"] = []string{"cafe"}
		}
		if m := locationRe.FindStringSubmatch(text); m != nil {
			out["location"] = m[1]
		}
		b, _ := json.Marshal(out)
		return "```json\n" + string(b) + "\n```", true

	case strings.Contains(sys, "weather assistant"):
		return fmt.Sprintf("Stub forecast. %s", strings.TrimSpace(user)), true

	case strings.Contains(sys, "transport assistant"):
		return "Stub route. Take the first listed connection; no transfers.", true
	}
	return "", false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
