package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimator_CountTokens(t *testing.T) {
	t.Parallel()
	e := NewEstimator(0)

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, _ = e.CountTokens("abcdefgh")
	assert.Equal(t, 2, n)

	n, _ = e.CountTokens("你好世界你好")
	assert.Equal(t, 4, n)

	n, _ = e.CountTokens("a")
	assert.Equal(t, 1, n)

	assert.Equal(t, 4096, e.MaxTokens())
}

func TestEstimator_CountMessages(t *testing.T) {
	t.Parallel()
	e := NewEstimator(100)

	n, err := e.CountMessages([]Message{
		{Role: "system", Content: "abcdefgh"},
		{Role: "user", Content: "abcd"},
	})
	require.NoError(t, err)
	// 3 + (2+4) + (1+4)
	assert.Equal(t, 14, n)
}

func TestRegistry_LongestPrefixWins(t *testing.T) {
	short := NewEstimator(1)
	long := NewEstimator(2)
	Register("test-model", short)
	Register("test-model-large", long)

	got, err := Get("test-model-large-v2")
	require.NoError(t, err)
	assert.Equal(t, 2, got.MaxTokens())

	got, err = Get("test-model-small")
	require.NoError(t, err)
	assert.Equal(t, 1, got.MaxTokens())

	_, err = Get("unregistered-xyz")
	assert.Error(t, err)
	assert.Equal(t, "estimator", GetTokenizerOrEstimator("unregistered-xyz").Name())
}
