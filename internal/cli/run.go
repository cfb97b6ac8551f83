package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/internal/server"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Serve the API and process sends in one process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAll(cmd.Context())
		},
	}
}

func runAll(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	manager, err := a.manager(ctx)
	if err != nil {
		a.close(ctx)
		return err
	}
	ing, err := a.ingestor()
	if err != nil {
		a.close(ctx)
		return err
	}
	if err := manager.Start(context.WithoutCancel(ctx)); err != nil {
		a.close(ctx)
		return err
	}
	a.onShutdown(manager.Shutdown())

	router := server.NewRouter(a.cfg.HTTP, server.Deps{
		Dispatcher: a.dispatcher(manager),
		Webhook:    ing.Handler(),
		Metrics:    a.metrics.Handler(),
		Checks:     a.checks,
		Logger:     a.log,
	})
	return server.Run(ctx, a.cfg.HTTP, router, a.log, a.shutdownHooks()...)
}
