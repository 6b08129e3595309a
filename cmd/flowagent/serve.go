package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/flowagent/internal/server"
	"github.com/BaSui01/flowagent/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the job worker and the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting flowagent",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger, telemetry.WithServiceVersion(Version))
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("close resources failed", zap.Error(err))
		}
	}()

	srv := server.NewManager(a.routes(), server.ConfigFrom(cfg.Server), logger)
	if err := srv.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.worker.Run(gctx) })
	if cfg.Workflows.Dir != "" {
		g.Go(func() error {
			a.catalog.Watch(gctx, cfg.Workflows.Dir, cfg.Workflows.PollInterval)
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-srv.Errors():
			return err
		}
	})

	<-gctx.Done()
	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("flowagent stopped")
	return nil
}
