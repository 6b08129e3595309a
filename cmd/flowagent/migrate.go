package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/flowagent/internal/migration"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", cobra.NoArgs,
			func(ctx context.Context, c *migration.CLI, _ []string) error { return c.RunUp(ctx) }),
		migrateSubcommand("down", "Roll back the last migration", cobra.NoArgs,
			func(ctx context.Context, c *migration.CLI, _ []string) error { return c.RunDown(ctx) }),
		migrateSubcommand("status", "Show migration status", cobra.NoArgs,
			func(ctx context.Context, c *migration.CLI, _ []string) error { return c.RunStatus(ctx) }),
		migrateSubcommand("steps <n>", "Apply (n>0) or roll back (n<0) n migrations", cobra.ExactArgs(1),
			func(ctx context.Context, c *migration.CLI, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return err
				}
				return c.RunSteps(ctx, n)
			}),
		migrateSubcommand("force <version>", "Set the version without running migrations", cobra.ExactArgs(1),
			func(ctx context.Context, c *migration.CLI, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return err
				}
				return c.RunForce(ctx, v)
			}),
	)
	return cmd
}

func migrateSubcommand(use, short string, args cobra.PositionalArgs, run func(context.Context, *migration.CLI, []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log)
			defer func() { _ = logger.Sync() }()

			m, err := migration.New(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer m.Close()
			return run(cmd.Context(), migration.NewCLI(m, cmd.OutOrStdout()), a)
		},
	}
}
