package classifier

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the subset of *openai.Client used by OpenAIBackend.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIBackend asks a chat model for a JSON object answer.
type OpenAIBackend struct {
	client    ChatCompleter
	model     string
	maxTokens int
}

// NewOpenAIBackend builds a backend for apiKey. It returns nil when apiKey is
// empty so callers can pass the result straight into Dependencies.
func NewOpenAIBackend(apiKey, baseURL, model string, maxTokens int) Backend {
	if apiKey == "" {
		return nil
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIBackendWithClient(openai.NewClientWithConfig(cfg), model, maxTokens)
}

// NewOpenAIBackendWithClient wraps an existing client.
func NewOpenAIBackendWithClient(client ChatCompleter, model string, maxTokens int) *OpenAIBackend {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIBackend{client: client, model: model, maxTokens: maxTokens}
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxCompletionTokens: b.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("classification backend returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
