package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/llm/retry"
	"github.com/BaSui01/flowagent/types"
)

type countingCaller struct {
	calls int
	errs  []error
	text  string
}

func (c *countingCaller) Call(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	return &CallResult{Response: Response{Text: c.text}}, nil
}

func unavailable() error {
	return &Error{Code: ErrProviderUnavailable, Message: "down", Retryable: true}
}

func TestFallbackCaller_FailsOverWhenUnavailable(t *testing.T) {
	t.Parallel()
	primary := &countingCaller{errs: []error{unavailable()}}
	secondary := &countingCaller{text: "from secondary"}

	f := NewFallbackCaller([]NamedCaller{
		{Name: "primary", Caller: primary},
		{Name: "secondary", Caller: secondary},
	}, nil, zap.NewNop())

	res, err := f.Call(context.Background(), ModelParams{Model: "m"}, CallRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from secondary", res.Response.Text)
	assert.Equal(t, "secondary", res.Metadata.Provider)
	assert.Equal(t, 1, primary.calls)
}

func TestFallbackCaller_InvalidRequestDoesNotFailOver(t *testing.T) {
	t.Parallel()
	invalid := &Error{Code: ErrInvalidRequest, Message: "bad"}
	primary := &countingCaller{errs: []error{invalid}}
	secondary := &countingCaller{text: "unused"}

	f := NewFallbackCaller([]NamedCaller{
		{Name: "primary", Caller: primary},
		{Name: "secondary", Caller: secondary},
	}, &retry.RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil)

	_, err := f.Call(context.Background(), ModelParams{}, CallRequest{})
	require.Error(t, err)
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrInvalidRequest, le.Code)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackCaller_RetriesBeforeFailingOver(t *testing.T) {
	t.Parallel()
	primary := &countingCaller{errs: []error{unavailable(), nil}, text: "recovered"}

	f := NewFallbackCaller([]NamedCaller{{Name: "primary", Caller: primary}},
		&retry.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)

	res, err := f.Call(context.Background(), ModelParams{}, CallRequest{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Response.Text)
	assert.Equal(t, 2, primary.calls)
}

func TestFallbackCaller_AllUnavailable(t *testing.T) {
	t.Parallel()
	f := NewFallbackCaller([]NamedCaller{
		{Name: "a", Caller: &countingCaller{errs: []error{unavailable()}}},
		{Name: "b", Caller: &countingCaller{errs: []error{unavailable()}}},
	}, nil, nil)

	_, err := f.Call(context.Background(), ModelParams{}, CallRequest{})
	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrProviderUnavailable, le.Code)

	_, err = NewFallbackCaller(nil, nil, nil).Call(context.Background(), ModelParams{}, CallRequest{})
	assert.True(t, Unavailable(err))
}

func TestUnavailable(t *testing.T) {
	t.Parallel()
	assert.True(t, Unavailable(unavailable()))
	assert.True(t, Unavailable(&Error{Code: ErrRateLimited}))
	assert.False(t, Unavailable(&Error{Code: ErrInvalidRequest}))
	assert.False(t, Unavailable(errors.New("plain")))
	assert.False(t, Unavailable(nil))
}

func TestAccountingCaller_FillsMissingMetadata(t *testing.T) {
	t.Parallel()
	inner := CallerFunc(func(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error) {
		return &CallResult{Response: Response{Text: "abcdefgh"}}, nil
	})
	prices := PriceTable{"acct-model": {InputPerMillion: 1_000_000, OutputPerMillion: 2_000_000}}
	a := NewAccountingCaller(inner, prices)

	res, err := a.Call(context.Background(), ModelParams{Model: "acct-model-v1"}, CallRequest{
		Messages: []types.Message{types.NewUserMessage("abcd")},
	})
	require.NoError(t, err)

	md := res.Metadata
	assert.Equal(t, "acct-model-v1", md.Model)
	// estimator: 3 + (1+4)
	assert.Equal(t, 8, md.InputTokens)
	assert.Equal(t, 2, md.OutputTokens)
	assert.InDelta(t, 8*1.0+2*2.0, md.CostUSD, 1e-9)
}

func TestAccountingCaller_KeepsProviderUsage(t *testing.T) {
	t.Parallel()
	inner := CallerFunc(func(ctx context.Context, params ModelParams, req CallRequest) (*CallResult, error) {
		return &CallResult{Metadata: Metadata{InputTokens: 10, OutputTokens: 5, CostUSD: 0.5, Duration: time.Second}}, nil
	})
	res, err := NewAccountingCaller(inner, nil).Call(context.Background(), ModelParams{Model: "x"}, CallRequest{})
	require.NoError(t, err)
	assert.Equal(t, 15, res.Metadata.TotalTokens())
	assert.Equal(t, 0.5, res.Metadata.CostUSD)
	assert.Equal(t, time.Second, res.Metadata.Duration)
}

func TestPriceTable_Lookup(t *testing.T) {
	t.Parallel()
	pt := PriceTable{"gpt-4o": {InputPerMillion: 2.5}, "gpt-4o-mini": {InputPerMillion: 0.15}}

	p, ok := pt.Lookup("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, 0.15, p.InputPerMillion)

	_, ok = pt.Lookup("claude")
	assert.False(t, ok)
}
