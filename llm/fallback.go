package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/llm/retry"
)

// NamedCaller is one provider in a fallback chain.
type NamedCaller struct {
	Name   string
	Caller Caller
}

// FallbackCaller tries providers in order. Each provider is retried with
// backoff while it reports itself unavailable; once retries are exhausted the
// next provider is tried. An invalid request is returned immediately.
type FallbackCaller struct {
	callers []NamedCaller
	policy  *retry.RetryPolicy
	logger  *zap.Logger
}

// NewFallbackCaller creates a fallback chain. A nil policy disables retries
// within a provider.
func NewFallbackCaller(callers []NamedCaller, policy *retry.RetryPolicy, logger *zap.Logger) *FallbackCaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = &retry.RetryPolicy{MaxRetries: 0}
	}
	p := *policy
	p.ShouldRetry = Unavailable
	return &FallbackCaller{
		callers: callers,
		policy:  &p,
		logger:  logger.With(zap.String("component", "llm_fallback")),
	}
}

// Call implements Caller.
func (f *FallbackCaller) Call(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error) {
	if len(f.callers) == 0 {
		return nil, &Error{Code: ErrProviderUnavailable, Message: "no providers configured"}
	}

	r := retry.NewBackoffRetryer(f.policy, f.logger)
	var lastErr error
	for i, nc := range f.callers {
		res, err := retry.DoWithResultTyped(r, ctx, func() (*CallResult, error) {
			return nc.Caller.Call(ctx, params, req)
		})
		if err == nil {
			if res.Metadata.Provider == "" {
				res.Metadata.Provider = nc.Name
			}
			return res, nil
		}
		lastErr = err
		if !Unavailable(err) || ctx.Err() != nil {
			return nil, err
		}
		if i < len(f.callers)-1 {
			f.logger.Warn("provider unavailable, falling back",
				zap.String("provider", nc.Name),
				zap.String("next", f.callers[i+1].Name),
				zap.Error(err),
			)
		}
	}

	var le *Error
	if errors.As(lastErr, &le) {
		return nil, &Error{
			Code:     ErrProviderUnavailable,
			Message:  fmt.Sprintf("all providers unavailable: %s", le.Message),
			Provider: le.Provider,
		}
	}
	return nil, &Error{Code: ErrProviderUnavailable, Message: fmt.Sprintf("all providers unavailable: %v", lastErr)}
}
