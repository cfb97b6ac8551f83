package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/internal/server"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process queued sends and sweep stuck records",
		Long: "Process queued sends and sweep stuck records. The HTTP listener " +
			"only serves health probes and metrics.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return work(cmd.Context())
		},
	}
}

func work(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	manager, err := a.manager(ctx)
	if err != nil {
		a.close(ctx)
		return err
	}
	// River stops through the shutdown hook, not through ctx cancellation,
	// so in-flight sends get the shutdown timeout to finish.
	if err := manager.Start(context.WithoutCancel(ctx)); err != nil {
		a.close(ctx)
		return err
	}
	a.onShutdown(manager.Shutdown())

	router := server.NewRouter(a.cfg.HTTP, server.Deps{
		Metrics: a.metrics.Handler(),
		Checks:  a.checks,
		Logger:  a.log,
	})
	return server.Run(ctx, a.cfg.HTTP, router, a.log, a.shutdownHooks()...)
}
