package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/internal/config"
	"github.com/dmitrymomot/courier/internal/db/migrations"
	"github.com/dmitrymomot/courier/pkg/db"
	"github.com/dmitrymomot/courier/pkg/job"
	"github.com/dmitrymomot/courier/pkg/logger"
)

func newMigrateCommand() *cobra.Command {
	var skipQueue bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the email record and job queue migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var logCfg logger.Config
			if err := config.LoadPart(&logCfg); err != nil {
				return err
			}
			log := logger.New(logCfg)

			var dbCfg db.Config
			if err := config.LoadPart(&dbCfg); err != nil {
				return err
			}
			pool, err := db.Connect(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(ctx, pool, migrations.FS, dbCfg.MigrationsTable, log); err != nil {
				return err
			}
			if skipQueue {
				return nil
			}

			versions, err := job.Migrate(ctx, pool, log)
			if err != nil {
				return err
			}
			log.Info("job queue migrated", slog.Any("versions", versions))
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%d queue versions)\n", len(versions))
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipQueue, "skip-queue", false, "Only migrate the email record schema")
	return cmd
}
