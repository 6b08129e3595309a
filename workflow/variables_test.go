package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowagent/types"
)

func TestResolveVariables(t *testing.T) {
	t.Parallel()

	decls := []Variable{
		{Name: "channel", Default: "#ops"},
		{Name: "topic", Required: true},
		{Name: "optional"},
	}

	vars, err := ResolveVariables(decls, map[string]any{"topic": "billing", "extra": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"channel": "#ops", "topic": "billing", "extra": 1}, vars)

	vars, err = ResolveVariables(decls, map[string]any{"topic": "x", "channel": "#dev"})
	require.NoError(t, err)
	assert.Equal(t, "#dev", vars["channel"])

	_, err = ResolveVariables(decls, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrMissingVariable))
	assert.Contains(t, err.Error(), "topic")
}

func TestResolveConfig(t *testing.T) {
	t.Parallel()

	vars := map[string]any{
		"name":  "Ada",
		"count": 3,
		"tags":  []any{"x", "y"},
	}
	config := map[string]any{
		"greeting": "Hello {{name}}, you have {{ count }} items",
		"exact":    "{{count}}",
		"list":     "{{tags}}",
		"unknown":  "keep {{missing}} as is",
		"lone":     "{{missing}}",
		"nested": map[string]any{
			"inner": []any{"{{name}}", 7, map[string]any{"deep": "{{name}}!"}},
		},
		"number": 42,
	}

	got := ResolveConfig(config, vars)

	assert.Equal(t, "Hello Ada, you have 3 items", got["greeting"])
	assert.Equal(t, 3, got["exact"])
	assert.Equal(t, []any{"x", "y"}, got["list"])
	assert.Equal(t, "keep {{missing}} as is", got["unknown"])
	assert.Equal(t, "{{missing}}", got["lone"])
	assert.Equal(t, 42, got["number"])

	inner := got["nested"].(map[string]any)["inner"].([]any)
	assert.Equal(t, "Ada", inner[0])
	assert.Equal(t, 7, inner[1])
	assert.Equal(t, "Ada!", inner[2].(map[string]any)["deep"])

	// 原始配置不被修改
	assert.Equal(t, "{{count}}", config["exact"])
	assert.Nil(t, ResolveConfig(nil, vars))
}

func TestDelayDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		duration float64
		unit     string
		want     time.Duration
	}{
		{5, "minutes", 300000 * time.Millisecond},
		{1, "minute", 60000 * time.Millisecond},
		{2, "hours", 7200000 * time.Millisecond},
		{1, "days", 86400000 * time.Millisecond},
		{1.5, "h", 90 * time.Minute},
		{3, "fortnights", 3 * time.Minute},
		{3, "", 3 * time.Minute},
		{0, "days", 0},
		{-1, "hours", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DelayDuration(tt.duration, tt.unit), "%v %s", tt.duration, tt.unit)
	}
}
