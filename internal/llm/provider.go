package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface needed by core logic to call a chat model.
// It mirrors the CreateChatCompletion method of go-openai so that any
// OpenAI-compatible or local backend can be adapted, and so tests can supply
// an in-memory fake.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister is an optional capability that allows listing available models.
// Callers should use a type assertion to detect availability.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider adapts *openai.Client to the Client/ModelLister interfaces.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}

// ErrNoChoices is returned when the model answered without any choice.
var ErrNoChoices = errors.New("llm: no choices")

// Prompt is one system+user exchange sent to a chat model.
type Prompt struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Complete sends a single system+user exchange and returns the trimmed text of
// the first choice. It is the one code path every assistant in this module
// uses to talk to the model.
func Complete(ctx context.Context, c Client, p Prompt) (string, error) {
	if c == nil {
		return "", errors.New("llm: client not configured")
	}
	if strings.TrimSpace(p.Model) == "" {
		return "", errors.New("llm: model not configured")
	}
	req := openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		N:           1,
	}
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
