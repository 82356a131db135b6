// Command raidstat works on export files offline: it packs plain rows or
// metadata into the obfuscated export format, decodes exports back, and runs
// the heatmap aggregation over local files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"raid-stats/internal/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var log zerolog.Logger

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "raidstat",
		Short:         "Inspect and aggregate raid leaderboard exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log = logger.SetLevel(level).Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), NoColor: true})
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newPackCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newRowsCmd())
	root.AddCommand(newAggregateCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
