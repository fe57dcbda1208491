package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Tier is a quality/cost class of backends.
type Tier string

const (
	// TierStandard serves frequent calls and has fallbacks.
	TierStandard Tier = "standard"
	// TierPremium serves the final summary with a single backend.
	TierPremium Tier = "premium"
)

// Backend is one text generation endpoint.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Route is a backend together with its nominal rate limit, used only in messages.
type Route struct {
	Backend   Backend
	RateLimit string
}

// Result is a successful generation.
type Result struct {
	Text    string
	Backend string
}

// Gateway sends prompts to the backends of a tier, falling back in order.
// It is safe for concurrent use.
type Gateway struct {
	standard []Route
	premium  Route

	mu     sync.RWMutex
	active string

	closers []io.Closer
}

// NewGateway creates a gateway from an ordered standard route list and one premium route.
func NewGateway(standard []Route, premium Route) (*Gateway, error) {
	if len(standard) == 0 {
		return nil, &Failure{Kind: KindConfiguration, Err: errors.New("no standard backends configured")}
	}
	for i, r := range standard {
		if r.Backend == nil {
			return nil, &Failure{Kind: KindConfiguration, Err: fmt.Errorf("standard backend %d is nil", i)}
		}
	}
	if premium.Backend == nil {
		return nil, &Failure{Kind: KindConfiguration, Err: errors.New("no premium backend configured")}
	}
	return &Gateway{
		standard: standard,
		premium:  premium,
		active:   standard[0].Backend.Name(),
	}, nil
}

func (g *Gateway) routes(tier Tier) []Route {
	if tier == TierPremium {
		return []Route{g.premium}
	}
	return g.standard
}

// Generate sends prompt to the tier's backends in order and returns the first
// success verbatim. Each backend is tried at most once per call.
func (g *Gateway) Generate(ctx context.Context, prompt string, tier Tier) (Result, error) {
	routes := g.routes(tier)

	var (
		lastErr   error
		lastKind  FailureKind
		lastRoute Route
	)
	for i, r := range routes {
		name := r.Backend.Name()
		text, err := r.Backend.Generate(ctx, prompt)
		if err == nil {
			g.setActive(name)
			slog.Debug("generation served", "tier", tier, "backend", name, "attempt", i+1)
			return Result{Text: text, Backend: name}, nil
		}

		lastErr, lastKind, lastRoute = err, kindOf(err), r
		if i < len(routes)-1 {
			slog.Warn("backend failed, falling back",
				"tier", tier,
				"backend", name,
				"kind", lastKind,
				"next", routes[i+1].Backend.Name(),
			)
		}
	}

	f := &Failure{
		Tier:    tier,
		Backend: lastRoute.Backend.Name(),
		Err:     lastErr,
	}
	switch lastKind {
	case KindRateLimited:
		f.Kind = KindRateLimited
		f.Limit = lastRoute.RateLimit
	case KindUnavailable:
		f.Kind = KindUnavailable
	default:
		f.Kind = KindGeneration
	}
	slog.Error("generation failed", "tier", tier, "kind", f.Kind, "error", lastErr)
	return Result{}, f
}

func (g *Gateway) setActive(name string) {
	g.mu.Lock()
	g.active = name
	g.mu.Unlock()
}

// ActiveBackend returns the backend that served the most recent successful call.
// With concurrent callers it reflects whichever call finished last.
func (g *Gateway) ActiveBackend() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Close releases the clients the gateway was built with.
func (g *Gateway) Close() error {
	var errs []error
	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
