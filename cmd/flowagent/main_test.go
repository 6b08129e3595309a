package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/flowagent/config"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "flowagent "+Version)
	assert.Contains(t, out.String(), "Git Commit: "+GitCommit)
}

func TestResumeCommand_RequiresDecision(t *testing.T) {
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"resume", "run-1"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--approve or --reject")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue:\n  concurrency: 3\nlog:\n  level: debug\n"), 0o644))

	root := newRootCommand()
	require.NoError(t, root.ParseFlags([]string{"--config", path}))

	cfg, err := loadConfig(root)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Queue.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger = newLogger(config.LogConfig{Level: "nonsense"})
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"/healthz", "/healthz"},
		{"/api/v1/runs/0b7c6a3e-2f7d-4d55-9a39-0a0f0f2c9f11", "/api/v1/runs/:id"},
		{"/api/v1/runs/0b7c6a3e-2f7d-4d55-9a39-0a0f0f2c9f11/resume", "/api/v1/runs/:id/resume"},
		{"/api/v1/workflows", "/api/v1/workflows"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc", seen)
}

func TestRecovery(t *testing.T) {
	t.Parallel()
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
