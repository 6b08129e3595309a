package workflow_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/flowagent/workflow"
)

// randomDefinition draws a DAG whose first node is the trigger. Later nodes
// are agents or conditions; edges leaving a condition may carry a branch label.
func randomDefinition(rt *rapid.T) (*workflow.Definition, map[string]bool) {
	n := rapid.IntRange(2, 8).Draw(rt, "nodes")
	def := &workflow.Definition{ID: "random"}
	conditions := make(map[string]bool)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("n%d", i)
		typ := workflow.NodeTypeTrigger
		if i > 0 {
			typ = rapid.SampledFrom([]workflow.NodeType{
				workflow.NodeTypeAgent,
				workflow.NodeTypeAgent,
				workflow.NodeTypeCondition,
			}).Draw(rt, "type_"+id)
		}
		if typ == workflow.NodeTypeCondition {
			conditions[id] = rapid.Bool().Draw(rt, "result_"+id)
		}
		def.Nodes = append(def.Nodes, workflow.Node{ID: id, Type: typ})
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if !rapid.Bool().Draw(rt, fmt.Sprintf("edge_%d_%d", i, j)) {
				continue
			}
			e := workflow.Edge{Source: def.Nodes[i].ID, Target: def.Nodes[j].ID}
			if def.Nodes[i].Type == workflow.NodeTypeCondition {
				e.Label = rapid.SampledFrom([]string{"", workflow.LabelYes, workflow.LabelNo}).Draw(rt, fmt.Sprintf("label_%d_%d", i, j))
			}
			def.Edges = append(def.Edges, e)
		}
	}
	return def, conditions
}

func conditionedHarness(conditions map[string]bool) *harness {
	h := newHarness()
	for id, v := range conditions {
		h.conditions[id] = v
	}
	return h
}

// Resuming at any node with the outputs recorded before it runs every
// remaining non-skipped node exactly once, never re-runs a recorded one, and
// ends with the same per-node results as an uninterrupted run.
func TestProperty_ResumeIsIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		def, conditions := randomDefinition(rt)
		n := len(def.Nodes)

		order, err := workflow.TopologicalSort(def.NodeIDs(), def.Edges)
		if err != nil {
			rt.Fatalf("sort: %v", err)
		}

		full, err := conditionedHarness(conditions).executor().Execute(context.Background(), def, runCtx(), workflow.ExecuteOptions{})
		if err != nil || full.Status != workflow.ResultCompleted {
			rt.Fatalf("full run: %v %+v", err, full)
		}

		k := rapid.IntRange(0, n-1).Draw(rt, "resume_at")
		existing := workflow.Outputs{}
		for _, id := range order[:k] {
			existing[id] = full.Outputs[id]
		}

		h := conditionedHarness(conditions)
		res, err := h.executor().Execute(context.Background(), def, runCtx(), workflow.ExecuteOptions{
			ResumeFromNodeID: order[k],
			ExistingOutputs:  existing,
		})
		if err != nil {
			rt.Fatalf("resume: %v", err)
		}
		if res.Status != workflow.ResultCompleted || len(res.Outputs) != n {
			rt.Fatalf("resume ended %s with %d outputs", res.Status, len(res.Outputs))
		}
		for i, id := range order {
			want := 0
			if i >= k && full.Outputs[id].Status == workflow.NodeCompleted {
				want = 1
			}
			if got := h.called(id); got != want {
				rt.Fatalf("node %s ran %d times, want %d (resume at %s)", id, got, want, order[k])
			}

			got, ref := res.Outputs[id], full.Outputs[id]
			if got.Status != ref.Status || got.SkippedBy != ref.SkippedBy {
				rt.Fatalf("node %s ended %s/%q, uninterrupted run gave %s/%q (resume at %s)",
					id, got.Status, got.SkippedBy, ref.Status, ref.SkippedBy, order[k])
			}
			if !reflect.DeepEqual(got.Data, ref.Data) {
				rt.Fatalf("node %s data %v, uninterrupted run gave %v (resume at %s)", id, got.Data, ref.Data, order[k])
			}
		}

		// A second identical resume after completion runs nothing new.
		again := conditionedHarness(conditions)
		if _, err := again.executor().Execute(context.Background(), def, runCtx(), workflow.ExecuteOptions{
			ResumeFromNodeID: order[k],
			ExistingOutputs:  res.Outputs,
		}); err != nil {
			rt.Fatalf("second resume: %v", err)
		}
		for _, id := range order {
			if again.called(id) != 0 {
				rt.Fatalf("node %s re-executed", id)
			}
		}
	})
}
