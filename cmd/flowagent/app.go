package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/agent"
	"github.com/BaSui01/flowagent/config"
	"github.com/BaSui01/flowagent/internal/cache"
	"github.com/BaSui01/flowagent/internal/database"
	"github.com/BaSui01/flowagent/internal/metrics"
	"github.com/BaSui01/flowagent/llm"
	"github.com/BaSui01/flowagent/llm/openaicompat"
	"github.com/BaSui01/flowagent/llm/retry"
	"github.com/BaSui01/flowagent/llm/tokenizer"
	"github.com/BaSui01/flowagent/notify"
	"github.com/BaSui01/flowagent/queue"
	"github.com/BaSui01/flowagent/service"
	"github.com/BaSui01/flowagent/store"
	"github.com/BaSui01/flowagent/store/mongoaudit"
	"github.com/BaSui01/flowagent/tools"
	"github.com/BaSui01/flowagent/workflow"
	"github.com/BaSui01/flowagent/workflow/nodes"
)

// app 持有一次进程内装配好的全部组件
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	pool     *database.PoolManager
	store    *store.Store
	cache    *cache.Manager
	queue    queue.Backend
	worker   *queue.Worker
	catalog  *workflow.Catalog
	runs     *service.RunService
	sessions *service.SessionService

	closers []func(context.Context) error
}

// appOption 在装配前替换外部依赖，测试使用
type appOption func(*appDeps)

type appDeps struct {
	caller      llm.Caller
	redisClient redis.UniversalClient
	collector   *metrics.Collector
}

func withCaller(c llm.Caller) appOption {
	return func(d *appDeps) { d.caller = c }
}

func withRedisClient(c redis.UniversalClient) appOption {
	return func(d *appDeps) { d.redisClient = c }
}

func withCollector(c *metrics.Collector) appOption {
	return func(d *appDeps) { d.collector = c }
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (a *app, err error) {
	var deps appDeps
	for _, opt := range opts {
		opt(&deps)
	}
	a = &app{cfg: cfg, logger: logger, metrics: deps.collector}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()
	if a.metrics == nil {
		a.metrics = metrics.NewCollector("flowagent", logger)
	}

	if err := a.openStore(cfg.Database); err != nil {
		return nil, err
	}
	if needsRedis(cfg) {
		if err := a.openRedis(ctx, cfg.Redis, deps.redisClient); err != nil {
			return nil, err
		}
	}

	recorder := store.NewRecorder(a.store, a.metrics, logger)
	audit := agent.AuditSink(recorder)
	if cfg.Mongo.Enabled {
		sink, disconnect, err := mongoaudit.Connect(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, disconnect)
		audit = mongoaudit.Tee{audit, sink}
	}

	profiles, err := service.LoadProfiles(cfg.Workflows.AgentsFile)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.SystemPrompt == "" {
			p.SystemPrompt = cfg.Agent.SystemPrompt
		}
	}

	registry := tools.NewDefaultRegistry(logger)
	if err := tools.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	caller := deps.caller
	if caller == nil {
		caller = newCaller(cfg.LLM, logger)
	}
	executor := agent.NewExecutor(caller, registry,
		agent.WithAuditSink(audit),
		agent.WithMetrics(a.metrics),
		agent.WithLogger(logger),
		agent.WithToolTimeout(cfg.Agent.ToolTimeout),
		agent.WithLLMTimeout(cfg.LLM.Timeout),
	)

	nodeDeps := nodes.Deps{
		Agents:        executor,
		Resolver:      profiles,
		Sessions:      recorder,
		Notifier:      a.newNotifier(cfg.Notify),
		DefaultLimits: safetyLimits(cfg.Agent),
		DefaultModel: llm.ModelParams{
			Model:       cfg.Agent.Model,
			Temperature: float32(cfg.Agent.Temperature),
			MaxTokens:   cfg.Agent.MaxTokens,
		},
		Logger: logger,
	}
	handlers, err := nodes.NewRegistry(nodeDeps)
	if err != nil {
		return nil, err
	}

	a.catalog = workflow.NewCatalog(logger)
	if cfg.Workflows.Dir != "" {
		if err := a.catalog.LoadDir(cfg.Workflows.Dir); err != nil {
			return nil, err
		}
	}

	a.queue = a.newQueue(cfg.Queue)
	a.worker = queue.NewWorker(a.queue,
		queue.WithConcurrency(cfg.Queue.Concurrency),
		queue.WithPollInterval(cfg.Queue.PollInterval),
		queue.WithDrainTimeout(cfg.Queue.DrainTimeout),
		queue.WithWorkerMetrics(a.metrics),
		queue.WithWorkerLogger(logger),
	)

	runOpts := []service.RunServiceOption{
		service.WithRunMetrics(a.metrics),
		service.WithRunLogger(logger),
	}
	if a.cache != nil {
		runOpts = append(runOpts, service.WithLocker(a.cache))
	}
	wfExecutor := workflow.NewExecutor(handlers,
		workflow.WithRecorder(recorder),
		workflow.WithExecutorMetrics(a.metrics),
		workflow.WithExecutorLogger(logger),
	)
	a.runs = service.NewRunService(a.catalog, a.store, a.queue, wfExecutor, runOpts...)
	a.runs.Register(a.worker)
	a.sessions = service.NewSessionService(nodeDeps)

	logger.Info("flowagent assembled",
		zap.String("database", cfg.Database.Driver),
		zap.String("queue", cfg.Queue.Backend),
		zap.String("notify", cfg.Notify.Backend),
		zap.Strings("workflows", a.catalog.IDs()),
		zap.Int("agents", len(profiles)),
	)
	return a, nil
}

func (a *app) openStore(cfg config.DatabaseConfig) error {
	db, err := database.Open(cfg, a.logger)
	if err != nil {
		return err
	}
	a.pool, err = database.NewPoolManager(db, cfg.Driver, database.PoolConfigFrom(cfg), a.metrics, a.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.pool.Close() })

	a.store = store.New(db, a.logger)
	if cfg.AutoMigrate {
		if err := a.store.AutoMigrate(context.Background()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) openRedis(ctx context.Context, cfg config.RedisConfig, client redis.UniversalClient) error {
	if client != nil {
		a.cache = cache.NewFromClient(client, a.logger)
	} else {
		m, err := cache.NewManager(ctx, cfg, a.logger)
		if err != nil {
			return err
		}
		a.cache = m
	}
	a.closers = append(a.closers, func(context.Context) error { return a.cache.Close() })
	return nil
}

func (a *app) newQueue(cfg config.QueueConfig) queue.Backend {
	if cfg.Backend == "redis" {
		return queue.NewRedisQueue(a.cache.Client(), cfg.KeyPrefix, a.logger)
	}
	return queue.NewMemoryQueue(nil)
}

func (a *app) newNotifier(cfg config.NotifyConfig) notify.Notifier {
	if cfg.Backend == "redis" {
		return notify.NewRedisNotifier(a.cache.Client(), cfg.ChannelPrefix, a.logger)
	}
	return notify.NewLogNotifier(a.logger)
}

// Close 按打开的逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Queue.Backend == "redis" || cfg.Notify.Backend == "redis"
}

// newCaller 按配置顺序组装 OpenAI 兼容 Provider 的故障转移链，并叠加计费
func newCaller(cfg config.LLMConfig, logger *zap.Logger) llm.Caller {
	tokenizer.RegisterOpenAI()

	providers := cfg.Providers
	if len(providers) == 0 && (cfg.APIKey != "" || cfg.BaseURL != "") {
		providers = []config.ProviderConfig{{
			Name:         "openai",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		}}
	}

	callers := make([]llm.NamedCaller, 0, len(providers))
	for _, p := range providers {
		model := p.DefaultModel
		if model == "" {
			model = cfg.DefaultModel
		}
		callers = append(callers, llm.NamedCaller{
			Name: p.Name,
			Caller: openaicompat.New(openaicompat.Config{
				ProviderName: p.Name,
				APIKey:       p.APIKey,
				BaseURL:      p.BaseURL,
				DefaultModel: model,
				Timeout:      cfg.Timeout,
			}, logger),
		})
	}
	if len(callers) == 0 {
		logger.Warn("no LLM provider configured, agent nodes will fail")
	}

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	prices := make(llm.PriceTable, len(cfg.Prices))
	for model, p := range cfg.Prices {
		prices[model] = llm.Price{InputPerMillion: p.InputPerMillion, OutputPerMillion: p.OutputPerMillion}
	}
	return llm.NewAccountingCaller(llm.NewFallbackCaller(callers, policy, logger), prices)
}

func safetyLimits(cfg config.AgentConfig) agent.SafetyLimits {
	limits := agent.DefaultSafetyLimits()
	if cfg.MaxActionsPerSession > 0 {
		limits.MaxActionsPerSession = cfg.MaxActionsPerSession
	}
	if cfg.MaxTokensPerSession > 0 {
		limits.MaxTokensPerSession = cfg.MaxTokensPerSession
	}
	if cfg.MaxDuration > 0 {
		limits.MaxDuration = cfg.MaxDuration
	}
	if cfg.MaxConsecutiveErrors > 0 {
		limits.MaxConsecutiveErrors = cfg.MaxConsecutiveErrors
	}
	limits.ToolCallMinInterval = cfg.ToolCallMinInterval
	return limits
}

// inProcess 报告任务是否只能由本进程消费
func (a *app) inProcess() bool {
	return a.cfg.Queue.Backend != "redis"
}
