package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/app"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
)

var (
	ticketsStatus string
	ticketsLimit  int
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List tickets",
	Args:  cobra.NoArgs,
	RunE:  runTickets,
}

func init() {
	ticketsCmd.Flags().StringVar(&ticketsStatus, "status", "", "Comma separated statuses, e.g. pending,approved")
	ticketsCmd.Flags().IntVar(&ticketsLimit, "limit", 20, "Maximum tickets to show")
}

func runTickets(cmd *cobra.Command, args []string) error {
	filter := service.TicketListFilter{Limit: ticketsLimit}
	if ticketsStatus != "" {
		for _, part := range strings.Split(ticketsStatus, ",") {
			status, err := domain.ParseTicketStatus(part)
			if err != nil {
				return err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	return withApp(cmd.Context(), func(desk *app.App) error {
		tickets, err := desk.Tickets.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		items := make([]dto.TicketSummary, 0, len(tickets))
		for i := range tickets {
			items = append(items, dto.NewTicketSummary(&tickets[i]))
		}
		if outputFormat == "json" {
			return outputJSON(items)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tFROM\tSUBJECT")
		for _, t := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Status, t.SenderEmail, t.Subject)
		}
		return w.Flush()
	})
}
