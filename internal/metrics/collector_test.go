package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestCollector_RecordLLMCall(t *testing.T) {
	c := NewCollector(nextTestNamespace(), zap.NewNop())

	c.RecordLLMCall("openai", "gpt-4o", "ok", time.Second, 100, 20, 0.01)
	c.RecordLLMCall("openai", "gpt-4o", "ok", time.Second, 50, 10, 0.005)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("openai", "gpt-4o", "ok")))
	assert.Equal(t, float64(150), testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("openai", "gpt-4o", "input")))
	assert.InDelta(t, 0.015, testutil.ToFloat64(c.llmCost.WithLabelValues("openai", "gpt-4o")), 1e-9)
}

func TestCollector_RecordSessionAndTools(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordSession("agent-1", "completed", 2*time.Second)
	c.RecordToolCall("get_current_time", "ok")
	c.RecordToolCall("get_current_time", "ok")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.sessionsTotal.WithLabelValues("agent-1", "completed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("get_current_time", "ok")))
}

func TestCollector_RecordWorkflow(t *testing.T) {
	c := NewCollector(nextTestNamespace(), nil)

	c.RecordRun("wf-1", "paused")
	c.RecordNode("delay", "paused", time.Millisecond)
	c.RecordJob("workflow.run", "ok")
	c.RecordPersistenceFailure("append_node_run")

	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("wf-1", "paused")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.nodeExecutionsTotal.WithLabelValues("delay", "paused")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.jobsTotal.WithLabelValues("workflow.run", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.persistenceFailures.WithLabelValues("append_node_run")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
		c.RecordLLMCall("p", "m", "ok", 0, 0, 0, 0)
		c.RecordSession("a", "completed", 0)
		c.RecordToolCall("t", "ok")
		c.RecordRun("w", "completed")
		c.RecordNode("trigger", "completed", 0)
		c.RecordJob("k", "ok")
		c.RecordPersistenceFailure("op")
		c.RecordDBConnections("db", 1, 1)
	})
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(204))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(503))
	assert.Equal(t, "unknown", statusCode(100))
}
