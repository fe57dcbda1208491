package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubBackend struct {
	name  string
	text  string
	kind  FailureKind
	err   error
	calls int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Generate(_ context.Context, _ string) (string, error) {
	b.calls++
	if b.err != nil {
		return "", &BackendError{Backend: b.name, Kind: b.kind, Err: b.err}
	}
	return b.text, nil
}

func ok(name, text string) *stubBackend {
	return &stubBackend{name: name, text: text}
}

func failing(name string, kind FailureKind, msg string) *stubBackend {
	return &stubBackend{name: name, kind: kind, err: errors.New(msg)}
}

func newTestGateway(t *testing.T, premium *stubBackend, standard ...*stubBackend) *Gateway {
	t.Helper()
	routes := make([]Route, 0, len(standard))
	for i, b := range standard {
		routes = append(routes, Route{Backend: b, RateLimit: fmt.Sprintf("%d RPM", (i+1)*10)})
	}
	g, err := NewGateway(routes, Route{Backend: premium, RateLimit: "3 RPM"})
	require.NoError(t, err)
	return g
}

func TestGateway_FallbackAfterRateLimits(t *testing.T) {
	b1 := failing("m1", KindRateLimited, "429 quota")
	b2 := failing("m2", KindRateLimited, "429 quota")
	b3 := ok("m3", "  third answer\n")
	g := newTestGateway(t, ok("pro", "p"), b1, b2, b3)

	res, err := g.Generate(context.Background(), "prompt", TierStandard)
	require.NoError(t, err)
	assert.Equal(t, "  third answer\n", res.Text, "text is returned verbatim")
	assert.Equal(t, "m3", res.Backend)
	assert.Equal(t, "m3", g.ActiveBackend())
	assert.Equal(t, []int{1, 1, 1}, []int{b1.calls, b2.calls, b3.calls})
}

func TestGateway_AllRateLimited(t *testing.T) {
	b1 := failing("m1", KindRateLimited, "quota")
	b2 := failing("m2", KindRateLimited, "quota")
	b3 := failing("m3", KindRateLimited, "quota")
	g := newTestGateway(t, ok("pro", "p"), b1, b2, b3)

	_, err := g.Generate(context.Background(), "prompt", TierStandard)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindRateLimited, f.Kind)
	assert.Equal(t, "30 RPM", f.Limit)
	assert.Equal(t, "m3", f.Backend)
	assert.Equal(t, []int{1, 1, 1}, []int{b1.calls, b2.calls, b3.calls}, "each backend tried once")
	assert.Equal(t, "m1", g.ActiveBackend(), "failed calls do not move the indicator")
}

func TestGateway_UnclassifiedThenSuccess(t *testing.T) {
	b1 := failing("m1", KindUnknown, "boom")
	b2 := ok("m2", "second")
	b3 := ok("m3", "third")
	g := newTestGateway(t, ok("pro", "p"), b1, b2, b3)

	res, err := g.Generate(context.Background(), "prompt", TierStandard)
	require.NoError(t, err)
	assert.Equal(t, "second", res.Text)
	assert.Equal(t, "m2", g.ActiveBackend())
	assert.Equal(t, 0, b3.calls)
}

func TestGateway_TerminalKinds(t *testing.T) {
	tests := []struct {
		name     string
		last     *stubBackend
		sentinel error
		kind     FailureKind
	}{
		{"unavailable", failing("m2", KindUnavailable, "404 model not found"), ErrBackendUnavailable, KindUnavailable},
		{"unknown", failing("m2", KindUnknown, "socket closed"), ErrGenerationFailed, KindGeneration},
		{"rate limited", failing("m2", KindRateLimited, "429"), ErrRateLimited, KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, ok("pro", "p"), failing("m1", KindRateLimited, "429"), tt.last)

			_, err := g.Generate(context.Background(), "prompt", TierStandard)
			assert.ErrorIs(t, err, tt.sentinel)
			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, TierStandard, f.Tier)
		})
	}
}

func TestGateway_GenerationFailureKeepsDetail(t *testing.T) {
	g := newTestGateway(t, ok("pro", "p"), failing("m1", KindUnknown, "upstream exploded"))

	_, err := g.Generate(context.Background(), "prompt", TierStandard)
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "upstream exploded", f.Detail())
}

func TestGateway_PlainErrorIsUnknown(t *testing.T) {
	plain := &plainBackend{}
	g, err := NewGateway([]Route{{Backend: plain}}, Route{Backend: plain})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "prompt", TierStandard)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

type plainBackend struct{}

func (plainBackend) Name() string { return "plain" }
func (plainBackend) Generate(context.Context, string) (string, error) {
	return "", errors.New("429 rate limit")
}

func TestGateway_PremiumHasNoFallback(t *testing.T) {
	std := ok("m1", "standard")
	pro := failing("pro", KindRateLimited, "quota")
	g := newTestGateway(t, pro, std)

	_, err := g.Generate(context.Background(), "prompt", TierPremium)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, std.calls)
	assert.Equal(t, 1, pro.calls)

	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "3 RPM", f.Limit)
	assert.Equal(t, TierPremium, f.Tier)
}

func TestGateway_PremiumSuccess(t *testing.T) {
	g := newTestGateway(t, ok("pro", "summary"), ok("m1", "standard"))

	res, err := g.Generate(context.Background(), "prompt", TierPremium)
	require.NoError(t, err)
	assert.Equal(t, "summary", res.Text)
	assert.Equal(t, "pro", g.ActiveBackend())
}

func TestNewGateway_Validation(t *testing.T) {
	_, err := NewGateway(nil, Route{Backend: ok("pro", "")})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewGateway([]Route{{Backend: ok("m1", "")}}, Route{})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewGateway([]Route{{}}, Route{Backend: ok("pro", "")})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestClassifyOpenAI(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"429 api error", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}, KindRateLimited},
		{"quota type", &openai.APIError{HTTPStatusCode: http.StatusForbidden, Type: "insufficient_quota"}, KindRateLimited},
		{"model not found code", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Code: "model_not_found"}, KindUnavailable},
		{"404 request error", &openai.RequestError{HTTPStatusCode: http.StatusNotFound, Err: errors.New("nope")}, KindUnavailable},
		{"500", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, KindUnknown},
		{"wrapped", fmt.Errorf("call: %w", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}), KindRateLimited},
		{"plain", errors.New("429 quota exceeded"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyOpenAI(tt.err))
		})
	}
}

func TestClassifyGemini(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"googleapi 429", &googleapi.Error{Code: http.StatusTooManyRequests}, KindRateLimited},
		{"googleapi 404", &googleapi.Error{Code: http.StatusNotFound}, KindUnavailable},
		{"googleapi 500", &googleapi.Error{Code: http.StatusInternalServerError}, KindUnknown},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "quota"), KindRateLimited},
		{"grpc not found", status.Error(codes.NotFound, "models/foo is not found"), KindUnavailable},
		{"grpc internal", status.Error(codes.Internal, "oops"), KindUnknown},
		{"plain", errors.New("not found"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyGemini(tt.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	ctx := context.Background()

	rl := &Failure{Kind: KindRateLimited, Tier: TierStandard, Limit: "15 RPM", Err: errors.New("secret upstream text")}
	msg := Describe(ctx, rl)
	assert.Contains(t, msg, "Rate Limit Reached")
	assert.Contains(t, msg, "15 RPM")
	assert.NotContains(t, msg, "secret upstream text")

	un := &Failure{Kind: KindUnavailable, Err: errors.New("models/x not found")}
	msg = Describe(ctx, un)
	assert.Contains(t, msg, "Model Error")
	assert.NotContains(t, msg, "models/x")

	gen := &Failure{Kind: KindGeneration, Err: &BackendError{Backend: "m1", Kind: KindUnknown, Err: errors.New("socket hang up")}}
	msg = Describe(ctx, gen)
	assert.Contains(t, msg, "AI Error")
	assert.Contains(t, msg, "socket hang up")

	cfg := &Failure{Kind: KindConfiguration, Err: errors.New("no key")}
	assert.True(t, strings.Contains(Describe(ctx, cfg), "Configuration Error"))
}
