package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/flowagent/service"
	"github.com/BaSui01/flowagent/workflow"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Trigger a workflow run",
		Long: "Trigger a workflow run. With the memory queue the run executes in this process " +
			"until it finishes, waits for approval, or (without --wait) reaches a delay.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, _ := cmd.Flags().GetString("payload")
			project, _ := cmd.Flags().GetString("project")
			vars, _ := cmd.Flags().GetStringToString("var")
			wait, _ := cmd.Flags().GetBool("wait")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				variables := make(map[string]any, len(vars))
				for k, v := range vars {
					variables[k] = v
				}
				var trigger any
				if payload != "" {
					trigger = payload
				}
				run, err := a.runs.Trigger(ctx, service.TriggerRequest{
					WorkflowID: args[0],
					ProjectID:  project,
					Payload:    trigger,
					Variables:  variables,
				})
				if err != nil {
					return err
				}
				return a.settle(ctx, cmd.OutOrStdout(), run.ID, wait)
			})
		},
	}
	cmd.Flags().String("payload", "", "trigger payload passed to the trigger node")
	cmd.Flags().String("project", "", "project id (defaults to the workflow's project)")
	cmd.Flags().StringToString("var", nil, "workflow variable, repeatable (name=value)")
	cmd.Flags().Bool("wait", true, "with the memory queue, wait out delay nodes")
	return cmd
}

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Approve or reject a run waiting for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approve, _ := cmd.Flags().GetBool("approve")
			reject, _ := cmd.Flags().GetBool("reject")
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}
			wait, _ := cmd.Flags().GetBool("wait")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				run, err := a.runs.Resume(ctx, args[0], approve)
				if err != nil {
					return err
				}
				return a.settle(ctx, cmd.OutOrStdout(), run.ID, wait)
			})
		},
	}
	cmd.Flags().Bool("approve", false, "approve and continue the run")
	cmd.Flags().Bool("reject", false, "reject and cancel the run")
	cmd.Flags().Bool("wait", true, "with the memory queue, wait out delay nodes")
	return cmd
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel an unfinished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				run, err := a.runs.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				return printRun(cmd.OutOrStdout(), run)
			})
		},
	}
}

// withApp 为一次性命令装配组件，结束后释放
func withApp(cmd *cobra.Command, fn func(context.Context, *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("close resources failed", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

// settle 在内存队列下于本进程执行任务，直到运行结束、等待审批或暂停在延迟节点
func (a *app) settle(ctx context.Context, out io.Writer, runID string, wait bool) error {
	if !a.inProcess() {
		run, err := a.runs.Get(ctx, runID)
		if err != nil {
			return err
		}
		return printRun(out, run)
	}

	interval := a.cfg.Queue.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.worker.Drain(ctx); err != nil {
			return err
		}
		run, err := a.runs.Get(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != workflow.RunRunning || !wait {
			return printRun(out, run)
		}
		select {
		case <-ctx.Done():
			return printRun(out, run)
		case <-ticker.C:
		}
	}
}

func printRun(out io.Writer, run *workflow.Run) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}
