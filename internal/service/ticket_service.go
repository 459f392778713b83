package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// TicketService serves the operator read API and owns the approval gate.
// Approve is the only code path that writes an approved response.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// TicketListFilter describes operator listing filters.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	OldestFirst bool
	Limit       int
	Offset      int
}

// TicketStats counts tickets per status.
type TicketStats struct {
	ByStatus map[domain.TicketStatus]int
	Total    int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// List returns tickets, newest first unless OldestFirst is set.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	if filter.Offset < 0 {
		return nil, apperrors.NewValidationError("offset must not be negative", nil)
	}
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		Statuses:    filter.Statuses,
		OldestFirst: filter.OldestFirst,
		Limit:       limit,
		Offset:      filter.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Get fetches one ticket by identifier.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, strings.TrimSpace(ticketID))
	if err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	return ticket, nil
}

// Stats reports per-status counts, including zero entries for every status.
func (s *TicketService) Stats(ctx context.Context) (*TicketStats, error) {
	counts, err := s.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	stats := &TicketStats{ByStatus: make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses))}
	for _, status := range domain.AllTicketStatuses {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

// Approve authorizes responseText for delivery. The text may differ from the
// classifier's draft; approver is recorded as given.
func (s *TicketService) Approve(ctx context.Context, ticketID, responseText, approver string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	from := ticket.Status
	if err := ticket.Approve(responseText, approver, s.now()); err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	if err := s.tickets.Transition(ctx, ticket, from); err != nil {
		return nil, mapTicketError(err, ticketID)
	}

	edited := ticket.Analysis == nil || ticket.Analysis.DraftResponse != responseText
	s.logger.Info("ticket approved",
		zap.String("ticket_id", ticket.ID),
		zap.String("approved_by", *ticket.ApprovedBy),
		zap.Bool("edited", edited))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketApproved,
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Actor:    events.OperatorActor(*ticket.ApprovedBy),
		Payload:  events.TicketApprovedPayload{ApprovedBy: *ticket.ApprovedBy, EditedByHuman: edited},
	})
	return ticket, nil
}

// Reject closes a pending ticket without a reply. reason may be empty.
func (s *TicketService) Reject(ctx context.Context, ticketID, reason, actor string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	from := ticket.Status
	if err := ticket.Reject(reason, s.now()); err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	if err := s.tickets.Transition(ctx, ticket, from); err != nil {
		return nil, mapTicketError(err, ticketID)
	}

	s.logger.Info("ticket rejected", zap.String("ticket_id", ticket.ID), zap.String("actor", actor))
	s.publish(ctx, events.Event{
		Type:     events.EventTicketRejected,
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Actor:    events.OperatorActor(actor),
		Payload:  events.TicketRejectedPayload{Reason: *ticket.RejectedReason},
	})
	return ticket, nil
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.logger, event)
}
