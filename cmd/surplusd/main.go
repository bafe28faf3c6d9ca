// Command surplusd is the only process entry point the core ships (spec
// §6): the HTTP façade itself is out of scope, so surplusd exposes the
// migrate step and the replay/backfill batch driver as cobra subcommands,
// in the style of the teacher's cmd/bd root command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCtx context.Context
var rootCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "surplusd",
	Short: "surplusd - local surplus-produce coordination backend",
	Long:  `surplusd runs the Listing Ledger, Claim Coordinator, and Aggregation Pipeline's offline entry points: schema migration and replay/backfill.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func main() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(backfillCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
