package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/internal/server"
	"github.com/dmitrymomot/courier/pkg/job"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the intake API and the provider webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	enq, err := job.NewEnqueuer(a.pool, job.WithEnqueuerLogger(a.log))
	if err != nil {
		a.close(ctx)
		return err
	}
	ing, err := a.ingestor()
	if err != nil {
		a.close(ctx)
		return err
	}

	router := server.NewRouter(a.cfg.HTTP, server.Deps{
		Dispatcher: a.dispatcher(enq),
		Webhook:    ing.Handler(),
		Metrics:    a.metrics.Handler(),
		Checks:     a.checks,
		Logger:     a.log,
	})
	return server.Run(ctx, a.cfg.HTTP, router, a.log, a.shutdownHooks()...)
}
