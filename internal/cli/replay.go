package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/internal/config"
	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/webhook"
	"github.com/dmitrymomot/courier/pkg/db"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/storage"
)

func newReplayCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "replay [archive-key]",
		Short: "Re-apply an archived webhook batch",
		Long: "Re-apply an archived webhook batch to the email records. The batch " +
			"is read from the archive bucket by key, or from a local file with --file. " +
			"Events that were already applied are skipped by the usual ordering rules.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if (file == "") == (len(args) == 0) {
				return errors.New("pass either an archive key or --file")
			}

			var logCfg logger.Config
			if err := config.LoadPart(&logCfg); err != nil {
				return err
			}
			log := logger.New(logCfg)

			var data []byte
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				data = b
			} else {
				var archiveCfg storage.Config
				if err := config.LoadPart(&archiveCfg); err != nil {
					return err
				}
				archive, err := storage.New(archiveCfg)
				if err != nil {
					return err
				}
				if data, err = archive.Get(ctx, args[0]); err != nil {
					return err
				}
			}

			var dbCfg db.Config
			if err := config.LoadPart(&dbCfg); err != nil {
				return err
			}
			pool, err := db.Connect(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			var hookCfg webhook.Config
			if err := config.LoadPart(&hookCfg); err != nil {
				return err
			}
			ing := webhook.NewIngestor(email.NewPostgresStore(pool), hookCfg, webhook.WithLogger(log))
			summary, err := ing.Replay(ctx, data)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Read the batch from a local file")
	return cmd
}
