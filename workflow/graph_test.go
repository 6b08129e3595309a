package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowagent/types"
)

func TestTopologicalSort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nodes []string
		edges []Edge
		want  []string
	}{
		{
			name:  "linear",
			nodes: []string{"c", "b", "a"},
			edges: []Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "independent nodes keep declaration order",
			nodes: []string{"x", "y", "z"},
			want:  []string{"x", "y", "z"},
		},
		{
			name:  "diamond",
			nodes: []string{"start", "left", "right", "join"},
			edges: []Edge{
				{Source: "start", Target: "right"},
				{Source: "start", Target: "left"},
				{Source: "left", Target: "join"},
				{Source: "right", Target: "join"},
			},
			want: []string{"start", "left", "right", "join"},
		},
		{
			name:  "edges to unknown nodes are ignored",
			nodes: []string{"a", "b"},
			edges: []Edge{{Source: "a", Target: "ghost"}, {Source: "a", Target: "b"}},
			want:  []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := TopologicalSort(tt.nodes, tt.edges)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	t.Parallel()

	_, err := TopologicalSort([]string{"a", "b", "c"}, []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "c", Target: "b"},
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrGraphCycle))
	assert.Contains(t, err.Error(), "b")
}

func TestUpstreamOutputs(t *testing.T) {
	t.Parallel()

	edges := []Edge{
		{Source: "a", Target: "c"},
		{Source: "b", Target: "c"},
		{Source: "c", Target: "d"},
	}
	outputs := Outputs{
		"a": {NodeID: "a", Status: NodeCompleted, Data: "A"},
		"d": {NodeID: "d", Status: NodeCompleted},
	}

	up := UpstreamOutputs("c", edges, outputs)
	require.Len(t, up, 1)
	assert.Equal(t, "A", up["a"].Data)
	assert.Empty(t, UpstreamOutputs("a", edges, outputs))
}

func TestDownstream(t *testing.T) {
	t.Parallel()

	edges := []Edge{
		{Source: "cond", Target: "yes1", Label: LabelYes},
		{Source: "cond", Target: "no1", Label: LabelNo},
		{Source: "cond", Target: "yes2", Label: LabelYes},
		{Source: "cond", Target: "yes1", Label: LabelYes},
		{Source: "other", Target: "x"},
	}

	assert.Equal(t, []string{"yes1", "yes2"}, Downstream("cond", edges, LabelYes))
	assert.Equal(t, []string{"no1"}, Downstream("cond", edges, LabelNo))
	assert.Equal(t, []string{"yes1", "no1", "yes2"}, Downstream("cond", edges, ""))
	assert.Empty(t, Downstream("x", edges, ""))
}
