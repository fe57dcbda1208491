package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Provider names accepted by NewFromConfig.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ModelSpec names a model and its nominal rate limit.
type ModelSpec struct {
	Name      string
	RateLimit string
}

// String formats the spec as "name=limit", the form ParseModelSpec accepts.
func (m ModelSpec) String() string {
	if m.RateLimit == "" {
		return m.Name
	}
	return m.Name + "=" + m.RateLimit
}

// ParseModelSpec parses "name" or "name=limit".
func ParseModelSpec(s string) (ModelSpec, error) {
	name, limit, _ := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return ModelSpec{}, fmt.Errorf("empty model name in %q", s)
	}
	return ModelSpec{Name: name, RateLimit: strings.TrimSpace(limit)}, nil
}

// ParseModelSpecs parses a list of model specs, skipping blank entries.
func ParseModelSpecs(list []string) ([]ModelSpec, error) {
	var specs []ModelSpec
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		spec, err := ParseModelSpec(s)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Config describes the backends of a gateway.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string // OpenAI-compatible endpoint; ignored for Gemini

	// Standard lists the primary model first, then fallbacks in order.
	Standard []ModelSpec
	Premium  ModelSpec
}

// DefaultStandardModels is the default Gemini standard tier, primary first.
var DefaultStandardModels = []ModelSpec{
	{Name: "gemini-2.5-flash", RateLimit: "15 RPM"},
	{Name: "gemini-2.0-flash-lite", RateLimit: "30 RPM"},
	{Name: "gemini-2.5-flash-lite", RateLimit: "15 RPM"},
	{Name: "gemini-2.0-flash", RateLimit: "15 RPM"},
}

// DefaultPremiumModel is the default Gemini premium model.
var DefaultPremiumModel = ModelSpec{Name: "gemini-2.5-pro", RateLimit: "3 RPM"}

// NewFromConfig builds a gateway with real backends. The credential is
// resolved here, once; a missing key fails with ErrConfiguration.
func NewFromConfig(ctx context.Context, cfg Config) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Failure{Kind: KindConfiguration, Err: errors.New("generation service API key is not set")}
	}
	if len(cfg.Standard) == 0 {
		cfg.Standard = DefaultStandardModels
	}
	if cfg.Premium.Name == "" {
		cfg.Premium = DefaultPremiumModel
	}

	var (
		newBackend func(name string) Backend
		closers    []io.Closer
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		client, err := NewGeminiClient(ctx, cfg.APIKey)
		if err != nil {
			return nil, &Failure{Kind: KindConfiguration, Err: fmt.Errorf("create gemini client: %w", err)}
		}
		closers = append(closers, client)
		newBackend = func(name string) Backend { return NewGeminiBackend(client, name) }
	case ProviderOpenAI:
		newBackend = func(name string) Backend { return NewOpenAIBackend(cfg.BaseURL, cfg.APIKey, name) }
	default:
		return nil, &Failure{Kind: KindConfiguration, Err: fmt.Errorf("unknown provider %q", cfg.Provider)}
	}

	standard := make([]Route, 0, len(cfg.Standard))
	for _, m := range cfg.Standard {
		standard = append(standard, Route{Backend: newBackend(m.Name), RateLimit: m.RateLimit})
	}
	premium := Route{Backend: newBackend(cfg.Premium.Name), RateLimit: cfg.Premium.RateLimit}

	g, err := NewGateway(standard, premium)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	g.closers = closers
	return g, nil
}
