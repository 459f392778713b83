package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketsHandler serves the ticket read API, the approval gate and dispatch.
type TicketsHandler struct {
	tickets     *service.TicketService
	ingestion   *service.IngestionService
	dispatch    *service.DispatchService
	workTimeout time.Duration
}

// NewTicketsHandler constructs handler. Commands that talk to the mailbox,
// the classifier or the relay run under workTimeout instead of the request
// deadline; zero leaves them unbounded.
func NewTicketsHandler(tickets *service.TicketService, ingestion *service.IngestionService, dispatch *service.DispatchService, workTimeout time.Duration) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, ingestion: ingestion, dispatch: dispatch, workTimeout: workTimeout}
}

// workContext detaches mail work from the request deadline so a run that
// outlives it still commits each ticket it started.
func (h *TicketsHandler) workContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.UserContext())
	if h.workTimeout > 0 {
		return context.WithTimeout(ctx, h.workTimeout)
	}
	return context.WithCancel(ctx)
}

// List GET /api/tickets?status=a,b&limit=&offset=&order=oldest.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	filter, err := parseTicketFilter(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": fiber.Map{"limit": filter.Limit, "offset": filter.Offset, "count": len(items)},
	})
}

// Stats GET /api/tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.tickets.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketStats(stats)})
}

// Get GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.tickets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Create POST /api/tickets.
func (h *TicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ctx, cancel := h.workContext(c)
	defer cancel()
	ticket, err := h.ingestion.SubmitManual(ctx, service.ManualIntake{
		SenderEmail: req.SenderEmail,
		SenderName:  req.SenderName,
		Subject:     req.Subject,
		Body:        req.Body,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Approve POST /api/tickets/:id/approve.
func (h *TicketsHandler) Approve(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.Approve(c.UserContext(), c.Params("id"), req.ResponseText, principal.Email())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Reject POST /api/tickets/:id/reject.
func (h *TicketsHandler) Reject(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.tickets.Reject(c.UserContext(), c.Params("id"), req.Reason, principal.Email())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// Send POST /api/tickets/:id/send.
func (h *TicketsHandler) Send(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.workContext(c)
	defer cancel()
	ticket, err := h.dispatch.DispatchOne(ctx, c.Params("id"), events.OperatorActor(principal.Email()))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket)})
}

// SendApproved POST /api/tickets/send-approved.
func (h *TicketsHandler) SendApproved(c *fiber.Ctx) error {
	principal, err := operatorPrincipal(c)
	if err != nil {
		return err
	}
	ctx, cancel := h.workContext(c)
	defer cancel()
	summary, err := h.dispatch.DispatchAllApproved(ctx, events.OperatorActor(principal.Email()))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDispatchSummary(summary)})
}

// Fetch POST /api/ingestion/fetch.
func (h *TicketsHandler) Fetch(c *fiber.Ctx) error {
	ctx, cancel := h.workContext(c)
	defer cancel()
	result, err := h.ingestion.Run(ctx)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewIngestionResponse(result)})
}

func operatorPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return nil, apperrors.NewUnauthorized("operator required")
	}
	return principal, nil
}

func parseTicketFilter(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{
		Limit:       c.QueryInt("limit", 0),
		Offset:      c.QueryInt("offset", 0),
		OldestFirst: strings.EqualFold(c.Query("order"), "oldest"),
	}
	if statuses := c.Query("status"); statuses != "" {
		for _, part := range strings.Split(statuses, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, err := domain.ParseTicketStatus(part)
			if err != nil {
				return filter, apperrors.NewValidationError(err.Error(), map[string]any{"status": part})
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	return filter, nil
}
