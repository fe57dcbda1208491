package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pavelanni/docexam/internal/i18n"
)

// FailureKind classifies why a generation attempt failed.
type FailureKind string

const (
	// KindRateLimited means the backend refused the call under quota pressure.
	KindRateLimited FailureKind = "rate_limited"
	// KindUnavailable means the backend or model identifier could not be resolved.
	KindUnavailable FailureKind = "unavailable"
	// KindUnknown is any other backend failure.
	KindUnknown FailureKind = "unknown"

	// KindGeneration is the terminal form of KindUnknown.
	KindGeneration FailureKind = "generation_failed"
	// KindConfiguration means the gateway could not be built.
	KindConfiguration FailureKind = "configuration"
)

// Sentinel errors matched by *Failure through errors.Is.
var (
	ErrRateLimited        = errors.New("rate limited")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrGenerationFailed   = errors.New("generation failed")
	ErrConfiguration      = errors.New("configuration error")

	ErrEmptyResponse = errors.New("empty response")
)

// BackendError is returned by backend adapters. Adapters map their client
// library errors into Kind; the gateway never inspects messages.
type BackendError struct {
	Backend string
	Kind    FailureKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// kindOf returns the failure kind an adapter attached to err.
func kindOf(err error) FailureKind {
	var be *BackendError
	if errors.As(err, &be) {
		switch be.Kind {
		case KindRateLimited, KindUnavailable:
			return be.Kind
		}
	}
	return KindUnknown
}

// Failure is the terminal error of a gateway call or construction.
type Failure struct {
	Kind    FailureKind
	Tier    Tier
	Backend string // last backend tried
	Limit   string // nominal rate limit of the last backend, for display
	Err     error
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindRateLimited:
		return fmt.Sprintf("%s tier rate limited (last backend %s, limit %s)", f.Tier, f.Backend, f.Limit)
	case KindUnavailable:
		return fmt.Sprintf("%s tier unavailable (last backend %s)", f.Tier, f.Backend)
	case KindConfiguration:
		return fmt.Sprintf("configuration: %v", f.Err)
	default:
		return fmt.Sprintf("%s tier generation failed (last backend %s): %v", f.Tier, f.Backend, f.Err)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel for the failure's kind.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return f.Kind == KindRateLimited
	case ErrBackendUnavailable:
		return f.Kind == KindUnavailable
	case ErrGenerationFailed:
		return f.Kind == KindGeneration
	case ErrConfiguration:
		return f.Kind == KindConfiguration
	}
	return false
}

// Detail returns the raw backend message. It is only meaningful for
// generation failures; other kinds never surface backend text.
func (f *Failure) Detail() string {
	if f.Err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(f.Err, &be) && be.Err != nil {
		return be.Err.Error()
	}
	return f.Err.Error()
}

// Describe renders err for an examinee: a short localized label plus guidance.
func Describe(ctx context.Context, err error) string {
	var f *Failure
	if !errors.As(err, &f) {
		return i18n.Td(ctx, "FailureGeneration", map[string]any{"Detail": err.Error()})
	}
	switch f.Kind {
	case KindRateLimited:
		msg := i18n.T(ctx, "FailureRateLimited")
		if f.Limit != "" {
			msg += "\n\n" + i18n.Td(ctx, "FailureRateLimitedTip", map[string]any{"Limit": f.Limit})
		}
		return msg
	case KindUnavailable:
		return i18n.T(ctx, "FailureUnavailable")
	case KindConfiguration:
		return i18n.T(ctx, "FailureConfiguration")
	default:
		return i18n.Td(ctx, "FailureGeneration", map[string]any{"Detail": f.Detail()})
	}
}

// kindFromStatus maps an HTTP status and provider error code into a kind.
func kindFromStatus(statusCode int, code string) FailureKind {
	lowerCode := strings.ToLower(code)
	switch {
	case strings.Contains(lowerCode, "rate_limit"), strings.Contains(lowerCode, "quota"):
		return KindRateLimited
	case strings.Contains(lowerCode, "model_not_found"), strings.Contains(lowerCode, "not_found"):
		return KindUnavailable
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotFound:
		return KindUnavailable
	default:
		return KindUnknown
	}
}
