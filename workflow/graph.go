package workflow

import (
	"github.com/BaSui01/flowagent/types"
)

// TopologicalSort orders node ids so every edge points forward (Kahn's
// algorithm). Among nodes that are ready at the same time the one declared
// first wins, so the order is deterministic for a given definition.
// Edges naming unknown nodes are ignored.
func TopologicalSort(nodeIDs []string, edges []Edge) ([]string, error) {
	index := make(map[string]int, len(nodeIDs))
	for i, id := range nodeIDs {
		index[id] = i
	}

	inDegree := make([]int, len(nodeIDs))
	next := make([][]int, len(nodeIDs))
	for _, e := range edges {
		s, okS := index[e.Source]
		t, okT := index[e.Target]
		if !okS || !okT {
			continue
		}
		next[s] = append(next[s], t)
		inDegree[t]++
	}

	// ready 按声明顺序保持有序
	ready := make([]int, 0, len(nodeIDs))
	for i := range nodeIDs {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]string, 0, len(nodeIDs))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, nodeIDs[cur])

		for _, t := range next[cur] {
			inDegree[t]--
			if inDegree[t] == 0 {
				ready = insertSorted(ready, t)
			}
		}
	}

	if len(order) != len(nodeIDs) {
		var stuck []string
		for i, d := range inDegree {
			if d > 0 {
				stuck = append(stuck, nodeIDs[i])
			}
		}
		return nil, types.Errorf(types.ErrGraphCycle, "workflow graph contains a cycle through %v", stuck)
	}
	return order, nil
}

func insertSorted(s []int, v int) []int {
	i := len(s)
	for i > 0 && s[i-1] > v {
		i--
	}
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

// UpstreamOutputs returns the outputs of the direct predecessors of nodeID
// that have one, keyed by node id.
func UpstreamOutputs(nodeID string, edges []Edge, outputs Outputs) map[string]NodeOutput {
	up := make(map[string]NodeOutput)
	for _, e := range edges {
		if e.Target != nodeID {
			continue
		}
		if out, ok := outputs[e.Source]; ok {
			up[e.Source] = out
		}
	}
	return up
}

// Downstream returns the direct successors of nodeID reached over edges
// carrying label. An empty label matches every outgoing edge.
func Downstream(nodeID string, edges []Edge, label string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range edges {
		if e.Source != nodeID || seen[e.Target] {
			continue
		}
		if label != "" && e.Label != label {
			continue
		}
		seen[e.Target] = true
		out = append(out, e.Target)
	}
	return out
}

// incoming lists the edges targeting nodeID.
func incoming(nodeID string, edges []Edge) []Edge {
	var in []Edge
	for _, e := range edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}
