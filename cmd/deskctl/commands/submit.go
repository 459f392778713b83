package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/app"
	"github.com/spec-kit/support-desk/internal/service"
)

var (
	submitFrom    string
	submitName    string
	submitSubject string
	submitBody    string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Create a ticket without the mailbox",
	Long: `Create a ticket as if it had arrived by mail and classify it.

The body is read from --body, or from stdin when --body is "-".`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitFrom, "from", "", "Sender email address (required)")
	submitCmd.Flags().StringVar(&submitName, "name", "", "Sender display name")
	submitCmd.Flags().StringVar(&submitSubject, "subject", "", "Message subject")
	submitCmd.Flags().StringVar(&submitBody, "body", "", `Message body, or "-" for stdin (required)`)
	_ = submitCmd.MarkFlagRequired("from")
	_ = submitCmd.MarkFlagRequired("body")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	body := submitBody
	if body == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		body = string(data)
	}

	return withApp(cmd.Context(), func(desk *app.App) error {
		ticket, err := desk.Ingestion.SubmitManual(cmd.Context(), service.ManualIntake{
			SenderEmail: submitFrom,
			SenderName:  submitName,
			Subject:     submitSubject,
			Body:        body,
		})
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return outputJSON(dto.NewTicketDetail(ticket))
		}
		fmt.Printf("ticket %s created (%s)\n", ticket.ID, ticket.Status)
		return nil
	})
}
