// Package cli builds the courier command tree.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand returns the courier command with every subcommand attached.
// Output that is not logging goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	if out == nil {
		out = os.Stdout
	}

	root := &cobra.Command{
		Use:           "courier",
		Short:         "Transactional email delivery and tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newRunCommand(),
		newMigrateCommand(),
		newReplayCommand(),
	)
	return root
}
