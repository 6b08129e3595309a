package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/service"
	"github.com/BaSui01/flowagent/types"
	"github.com/BaSui01/flowagent/workflow"
)

const maxBodyBytes = 1 << 20

// routes 注册健康检查、指标与运行管理接口
func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /version", a.handleVersion)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/workflows", a.handleListWorkflows)
	mux.HandleFunc("POST /api/v1/workflows/{id}/runs", a.handleTrigger)
	mux.HandleFunc("GET /api/v1/runs", a.handleListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", a.handleGetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/nodes", a.handleListNodeRuns)
	mux.HandleFunc("POST /api/v1/runs/{id}/resume", a.handleResume)
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", a.handleCancel)
	mux.HandleFunc("POST /api/v1/agents/{id}/sessions", a.handleSession)

	return Chain(mux,
		Recovery(a.logger),
		RequestID(),
		OTelTracing(),
		Metrics(a.metrics),
		RequestLogger(a.logger),
	)
}

func (a *app) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}
	record("database", a.pool.Ping(ctx))
	if a.cache != nil {
		record("redis", a.cache.Ping(ctx))
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

func (a *app) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func (a *app) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workflows": a.catalog.IDs()})
}

type triggerBody struct {
	ProjectID string         `json:"project_id"`
	Payload   any            `json:"payload"`
	Variables map[string]any `json:"variables"`
}

func (a *app) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var body triggerBody
	if !decodeBody(w, r, &body) {
		return
	}
	run, err := a.runs.Trigger(r.Context(), service.TriggerRequest{
		WorkflowID: r.PathValue("id"),
		ProjectID:  body.ProjectID,
		Payload:    body.Payload,
		Variables:  body.Variables,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (a *app) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := a.store.ListRuns(r.Context(), q.Get("workflow_id"), workflow.RunStatus(q.Get("status")), limit)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (a *app) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := a.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *app) handleListNodeRuns(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.store.ListNodeRuns(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

type resumeBody struct {
	Approved *bool `json:"approved"`
}

func (a *app) handleResume(w http.ResponseWriter, r *http.Request) {
	var body resumeBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Approved == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "approved is required")
		return
	}
	run, err := a.runs.Resume(r.Context(), r.PathValue("id"), *body.Approved)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *app) handleCancel(w http.ResponseWriter, r *http.Request) {
	run, err := a.runs.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type sessionBody struct {
	ProjectID string          `json:"project_id"`
	Payload   string          `json:"payload"`
	History   []types.Message `json:"history"`
}

func (a *app) handleSession(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := a.sessions.Run(r.Context(), service.SessionRequest{
		AgentID:   r.PathValue("id"),
		ProjectID: body.ProjectID,
		Payload:   body.Payload,
		History:   body.History,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeServiceError 把错误码映射为 HTTP 状态
func (a *app) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch types.GetErrorCode(err) {
	case types.ErrNotFound:
		status = http.StatusNotFound
	case types.ErrInvalidRunState:
		status = http.StatusConflict
	case types.ErrInvalidDefinition, types.ErrMissingVariable:
		status = http.StatusBadRequest
	case types.ErrQueue, types.ErrPersistence:
		status = http.StatusServiceUnavailable
	}
	code := string(types.GetErrorCode(err))
	if code == "" {
		code = "internal"
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
