package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	// Agent 会话指标
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	toolCallsTotal  *prometheus.CounterVec

	// 工作流指标
	runsTotal           *prometheus.CounterVec
	nodeExecutionsTotal *prometheus.CounterVec
	nodeDuration        *prometheus.HistogramVec

	// 队列与持久化
	jobsTotal           *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec

	// 数据库连接池
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
}

// NewCollector 创建指标收集器，指标注册到默认 Registerer。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{}

	c.httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "http_requests_total", Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	c.httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	c.llmRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_requests_total", Help: "Total number of LLM calls",
	}, []string{"provider", "model", "status"})
	c.llmRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "llm_request_duration_seconds", Help: "LLM call duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "model"})
	c.llmTokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_tokens_used_total", Help: "Total number of tokens used",
	}, []string{"provider", "model", "type"})
	c.llmCost = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "llm_cost_total", Help: "Total LLM cost in USD",
	}, []string{"provider", "model"})

	c.sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "agent_sessions_total", Help: "Agent sessions by terminal status",
	}, []string{"agent_id", "status"})
	c.sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "agent_session_duration_seconds", Help: "Agent session duration in seconds",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"agent_id"})
	c.toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "agent_tool_calls_total", Help: "Tool calls by outcome",
	}, []string{"tool", "outcome"})

	c.runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "workflow_runs_total", Help: "Workflow executions by result status",
	}, []string{"workflow_id", "status"})
	c.nodeExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "workflow_node_executions_total", Help: "Workflow node executions by status",
	}, []string{"node_type", "status"})
	c.nodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "workflow_node_duration_seconds", Help: "Workflow node duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"node_type"})

	c.jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "queue_jobs_total", Help: "Queue jobs by key and outcome",
	}, []string{"key", "outcome"})
	c.persistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "persistence_failures_total", Help: "Swallowed persistence write failures",
	}, []string{"operation"})

	c.dbConnectionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_connections_open", Help: "Number of open database connections",
	}, []string{"database"})
	c.dbConnectionsIdle = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Name: "db_connections_idle", Help: "Number of idle database connections",
	}, []string{"database"})

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMCall 记录一次 LLM 调用
func (c *Collector) RecordLLMCall(provider, model, status string, duration time.Duration, inputTokens, outputTokens int, cost float64) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	c.llmCost.WithLabelValues(provider, model).Add(cost)
}

// RecordSession 记录会话终态
func (c *Collector) RecordSession(agentID, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.sessionsTotal.WithLabelValues(agentID, status).Inc()
	c.sessionDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordToolCall 记录工具调用结果（ok / error / timeout / not_found / invalid / approval）
func (c *Collector) RecordToolCall(tool, outcome string) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

// RecordRun 记录一次工作流执行结果
func (c *Collector) RecordRun(workflowID, status string) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(workflowID, status).Inc()
}

// RecordNode 记录节点执行
func (c *Collector) RecordNode(nodeType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.nodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

// RecordJob 记录队列任务处理结果
func (c *Collector) RecordJob(key, outcome string) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(key, outcome).Inc()
}

// RecordPersistenceFailure 记录被吞掉的持久化失败
func (c *Collector) RecordPersistenceFailure(operation string) {
	if c == nil {
		return
	}
	c.persistenceFailures.WithLabelValues(operation).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
