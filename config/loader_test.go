package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := NewLoader().WithEnvLookup(envMap(nil)).Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 60*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, 3, cfg.Agent.MaxConsecutiveErrors)
}

func TestLoader_YAMLThenEnv(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "flowagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9000
agent:
  max_actions_per_session: 12
  max_duration: 90s
queue:
  backend: redis
llm:
  providers:
    - name: primary
      base_url: http://localhost:1234
  prices:
    gpt-4o:
      input_per_million: 2.5
`), 0o600))

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnvLookup(envMap(map[string]string{
			"FLOWAGENT_SERVER_HTTP_PORT":      "9100",
			"FLOWAGENT_AGENT_TOOL_TIMEOUT":    "30s",
			"FLOWAGENT_LOG_OUTPUT_PATHS":      "stdout, /tmp/fa.log",
			"FLOWAGENT_AGENT_TEMPERATURE":     "0.2",
			"FLOWAGENT_DATABASE_AUTO_MIGRATE": "false",
		})).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.HTTPPort)
	assert.Equal(t, 12, cfg.Agent.MaxActionsPerSession)
	assert.Equal(t, 90*time.Second, cfg.Agent.MaxDuration)
	assert.Equal(t, 30*time.Second, cfg.Agent.ToolTimeout)
	assert.InDelta(t, 0.2, cfg.Agent.Temperature, 1e-9)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "redis", cfg.Queue.Backend)
	assert.Equal(t, []string{"stdout", "/tmp/fa.log"}, cfg.Log.OutputPaths)
	require.Len(t, cfg.LLM.Providers, 1)
	assert.Equal(t, "primary", cfg.LLM.Providers[0].Name)
	assert.Equal(t, 2.5, cfg.LLM.Prices["gpt-4o"].InputPerMillion)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).WithEnvLookup(envMap(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Parallel()
	_, err := NewLoader().WithEnvLookup(envMap(map[string]string{
		"FLOWAGENT_AGENT_MAX_DURATION": "soon",
	})).Load()
	assert.Error(t, err)
}

func TestLoader_ValidationFailure(t *testing.T) {
	t.Parallel()
	_, err := NewLoader().WithEnvLookup(envMap(map[string]string{
		"FLOWAGENT_QUEUE_BACKEND": "kafka",
	})).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported queue backend")
}

func TestLoader_CustomValidator(t *testing.T) {
	t.Parallel()
	called := false
	_, err := NewLoader().WithEnvLookup(envMap(nil)).WithValidator(func(c *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLoader_ExpandsPlaceholders(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flowagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
redis:
  password: ${REDIS_PASSWORD}
llm:
  api_key: "${OPENAI_KEY}"
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).WithEnvLookup(envMap(map[string]string{
		"REDIS_PASSWORD": "s3cret",
	})).Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Empty(t, cfg.LLM.APIKey)
}

func TestLoader_RejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flowagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_prot: 9000\n"), 0o600))

	_, err := NewLoader().WithConfigPath(path).WithEnvLookup(envMap(nil)).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_prot")
}

func TestLoader_EmptyFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "flowagent.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	cfg, err := NewLoader().WithConfigPath(path).WithEnvLookup(envMap(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Queue.Backend)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", pg.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", pg.MigrationURL())

	lite := DatabaseConfig{Driver: "sqlite", Name: "x.db"}
	assert.Equal(t, "x.db", lite.DSN())
	assert.Equal(t, "sqlite3://x.db", lite.MigrationURL())

	assert.Empty(t, (&DatabaseConfig{Driver: "oracle"}).DSN())
}
