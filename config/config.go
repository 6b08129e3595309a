// =============================================================================
// 📦 FlowAgent 配置结构
// =============================================================================
// 配置优先级: 默认值 → YAML 文件 → 环境变量（FLOWAGENT_ 前缀）
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config 是 FlowAgent 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Mongo     MongoConfig     `yaml:"mongo" env:"MONGO"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Agent     AgentConfig     `yaml:"agent" env:"AGENT"`
	Queue     QueueConfig     `yaml:"queue" env:"QUEUE"`
	Notify    NotifyConfig    `yaml:"notify" env:"NOTIFY"`
	Workflows WorkflowsConfig `yaml:"workflows" env:"WORKFLOWS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务配置（健康检查、指标、恢复入口）
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 下为文件路径
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// RedisConfig Redis 配置（队列与通知）
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 启用 TLS 连接（托管 Redis 通常要求）
	TLS bool `yaml:"tls" env:"TLS"`
}

// MongoConfig 动作审计的 MongoDB 配置
type MongoConfig struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	URI        string        `yaml:"uri" env:"URI"`
	Database   string        `yaml:"database" env:"DATABASE"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig LLM 配置。Providers 按顺序组成故障转移链。
type LLMConfig struct {
	Providers    []ProviderConfig `yaml:"providers" env:"-"`
	APIKey       string           `yaml:"api_key" env:"API_KEY"`
	BaseURL      string           `yaml:"base_url" env:"BASE_URL"`
	DefaultModel string           `yaml:"default_model" env:"DEFAULT_MODEL"`
	Timeout      time.Duration    `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries   int              `yaml:"max_retries" env:"MAX_RETRIES"`
	// 每百万 Token 的价格，键为模型名或前缀
	Prices map[string]PriceConfig `yaml:"prices" env:"-"`
}

// ProviderConfig 单个 OpenAI 兼容 Provider
type ProviderConfig struct {
	Name         string `yaml:"name"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// PriceConfig 模型价格（美元 / 百万 Token）
type PriceConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// AgentConfig 会话安全限制与默认模型参数
type AgentConfig struct {
	MaxActionsPerSession int           `yaml:"max_actions_per_session" env:"MAX_ACTIONS_PER_SESSION"`
	MaxTokensPerSession  int           `yaml:"max_tokens_per_session" env:"MAX_TOKENS_PER_SESSION"`
	MaxDuration          time.Duration `yaml:"max_duration" env:"MAX_DURATION"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors" env:"MAX_CONSECUTIVE_ERRORS"`
	ToolCallMinInterval  time.Duration `yaml:"tool_call_min_interval" env:"TOOL_CALL_MIN_INTERVAL"`
	ToolTimeout          time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
	Model                string        `yaml:"model" env:"MODEL"`
	Temperature          float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens            int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	SystemPrompt         string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	// 后端: memory, redis
	Backend      string        `yaml:"backend" env:"BACKEND"`
	KeyPrefix    string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	Concurrency  int           `yaml:"concurrency" env:"CONCURRENCY"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// 停机时等待执行中任务的最长时间，超时后任务被取消并重新入队
	DrainTimeout time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
}

// NotifyConfig 输出节点通知配置
type NotifyConfig struct {
	// 后端: log, redis
	Backend       string `yaml:"backend" env:"BACKEND"`
	ChannelPrefix string `yaml:"channel_prefix" env:"CHANNEL_PREFIX"`
}

// WorkflowsConfig 工作流定义目录
type WorkflowsConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
	// Agent 配置文件（YAML），为空时 agent 节点只使用节点内配置
	AgentsFile   string        `yaml:"agents_file" env:"AGENTS_FILE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unsupported queue backend %q", c.Queue.Backend))
	}
	switch c.Notify.Backend {
	case "log", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unsupported notify backend %q", c.Notify.Backend))
	}
	if c.Queue.Concurrency <= 0 {
		errs = append(errs, "queue concurrency must be positive")
	}
	if c.Agent.MaxActionsPerSession <= 0 {
		errs = append(errs, "max_actions_per_session must be positive")
	}
	if c.Agent.MaxConsecutiveErrors <= 0 {
		errs = append(errs, "max_consecutive_errors must be positive")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Mongo.Enabled && c.Mongo.URI == "" {
		errs = append(errs, "mongo uri is required when mongo is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// MigrationURL 返回 golang-migrate 使用的数据库 URL
func (d *DatabaseConfig) MigrationURL() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%d)/%s?multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return "sqlite3://" + d.Name
	default:
		return ""
	}
}
