package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Host:            "localhost",
			Port:            5432,
			User:            "flowagent",
			Name:            "flowagent.db",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
		},
		Mongo: MongoConfig{
			Database:   "flowagent",
			Collection: "agent_actions",
			Timeout:    10 * time.Second,
		},
		LLM: LLMConfig{
			DefaultModel: "gpt-4o-mini",
			Timeout:      2 * time.Minute,
			MaxRetries:   2,
		},
		Agent: AgentConfig{
			MaxActionsPerSession: 50,
			MaxTokensPerSession:  100000,
			MaxDuration:          5 * time.Minute,
			MaxConsecutiveErrors: 3,
			ToolCallMinInterval:  time.Second,
			ToolTimeout:          60 * time.Second,
			Model:                "gpt-4o-mini",
			Temperature:          0.7,
			MaxTokens:            4096,
		},
		Queue: QueueConfig{
			Backend:      "memory",
			KeyPrefix:    "flowagent",
			Concurrency:  8,
			PollInterval: 500 * time.Millisecond,
			DrainTimeout: 30 * time.Second,
		},
		Notify: NotifyConfig{
			Backend:       "log",
			ChannelPrefix: "flowagent:notify",
		},
		Workflows: WorkflowsConfig{
			Dir:          "workflows",
			PollInterval: 2 * time.Second,
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "flowagent",
			SampleRate:   0.1,
		},
	}
}
