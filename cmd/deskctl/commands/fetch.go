package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/app"
	"github.com/spec-kit/support-desk/internal/events"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run one mailbox ingestion",
	Long: `Fetch unseen messages from the configured mailbox, create one
ticket per new message and mark each message seen once stored.`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

var sendApprovedCmd = &cobra.Command{
	Use:   "send-approved",
	Short: "Send every approved reply",
	Args:  cobra.NoArgs,
	RunE:  runSendApproved,
}

func runFetch(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(desk *app.App) error {
		result, err := desk.Ingestion.Run(cmd.Context())
		if err != nil {
			return err
		}
		resp := dto.NewIngestionResponse(result)
		if outputFormat == "json" {
			return outputJSON(resp)
		}
		fmt.Printf("processed %d, skipped %d\n", resp.Processed, resp.Skipped)
		for _, id := range resp.TicketIDs {
			fmt.Printf("  ticket %s\n", id)
		}
		if len(resp.Errors) > 0 {
			fmt.Printf("errors:\n  %s\n", strings.Join(resp.Errors, "\n  "))
		}
		return nil
	})
}

func runSendApproved(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(desk *app.App) error {
		summary, err := desk.Dispatch.DispatchAllApproved(cmd.Context(), events.SystemActor)
		if err != nil {
			return err
		}
		resp := dto.NewDispatchSummary(summary)
		if outputFormat == "json" {
			return outputJSON(resp)
		}
		fmt.Printf("sent %d, failed %d\n", resp.Sent, resp.Failed)
		for _, failure := range resp.Errors {
			fmt.Printf("  %s: %s\n", failure.TicketID, failure.Error)
		}
		return nil
	})
}
