package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend generates text with an OpenAI-compatible chat completion API.
type OpenAIBackend struct {
	api   *openai.Client
	model string
}

// NewOpenAIBackend creates a backend for modelName. An empty baseURL uses the OpenAI default.
func NewOpenAIBackend(baseURL, apiKey, modelName string) *OpenAIBackend {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIBackend{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

func (b *OpenAIBackend) Name() string { return b.model }

// Generate sends prompt as a single user message.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", &BackendError{Backend: b.model, Kind: classifyOpenAI(err), Err: fmt.Errorf("LLM API call: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &BackendError{Backend: b.model, Kind: KindUnknown, Err: ErrEmptyResponse}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "backend", b.model, "raw", raw)
	if raw == "" {
		return "", &BackendError{Backend: b.model, Kind: KindUnknown, Err: ErrEmptyResponse}
	}
	return raw, nil
}

func classifyOpenAI(err error) FailureKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if k := kindFromStatus(apiErr.HTTPStatusCode, code); k != KindUnknown {
			return k
		}
		return kindFromStatus(0, apiErr.Type)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return kindFromStatus(reqErr.HTTPStatusCode, "")
	}
	return KindUnknown
}
