package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls output format (text, json).
	outputFormat string

	// logLevel overrides LOG_LEVEL for CLI runs.
	logLevel string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "deskctl",
	Short: "Support desk operator CLI",
	Long: `deskctl runs support desk maintenance tasks against the configured store.

It reads the same environment variables as the API server, so a run of
"deskctl fetch" behaves exactly like a scheduled ingestion.`,
	SilenceUsage: true,
}

// Execute runs the CLI. SIGINT cancels the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "warn",
		"Log level for the CLI run",
	)

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(sendApprovedCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(ticketsCmd)
	rootCmd.AddCommand(operatorCmd)
	rootCmd.AddCommand(keygenCmd)
}
