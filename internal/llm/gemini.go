package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiBackend generates text with one Gemini model.
type GeminiBackend struct {
	model *genai.GenerativeModel
	name  string
}

// NewGeminiClient creates a Gemini API client shared by GeminiBackends.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(apiKey)))
}

// NewGeminiBackend creates a backend for modelName on client.
func NewGeminiBackend(client *genai.Client, modelName string) *GeminiBackend {
	name := strings.TrimSpace(modelName)
	return &GeminiBackend{
		model: client.GenerativeModel(name),
		name:  name,
	}
}

func (b *GeminiBackend) Name() string { return b.name }

// Generate sends prompt as a single text part.
func (b *GeminiBackend) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := b.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", &BackendError{Backend: b.name, Kind: classifyGemini(err), Err: err}
	}
	text := responseText(resp)
	if text == "" {
		return "", &BackendError{Backend: b.name, Kind: KindUnknown, Err: ErrEmptyResponse}
	}
	return text, nil
}

// responseText joins the text parts of the first candidate with content.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func classifyGemini(err error) FailureKind {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if k := kindFromStatus(apiErr.HTTPCode(), apiErr.Reason()); k != KindUnknown {
			return k
		}
		if st := apiErr.GRPCStatus(); st != nil {
			return kindFromCode(st.Code())
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return kindFromStatus(gErr.Code, "")
	}

	if st, ok := status.FromError(err); ok {
		return kindFromCode(st.Code())
	}
	return KindUnknown
}

func kindFromCode(c codes.Code) FailureKind {
	switch c {
	case codes.ResourceExhausted:
		return KindRateLimited
	case codes.NotFound:
		return KindUnavailable
	default:
		return KindUnknown
	}
}
