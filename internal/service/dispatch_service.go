package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/mailer"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// DispatchFailure names one ticket that could not be sent.
type DispatchFailure struct {
	TicketID string
	Error    string
}

// DispatchSummary aggregates a batch send.
type DispatchSummary struct {
	Sent   int
	Failed int
	Errors []DispatchFailure
}

// DispatchService delivers approved responses.
type DispatchService struct {
	tickets    repository.TicketRepository
	mailConfig MailConfigSource
	sender     mailer.Sender
	limiter    *rate.Limiter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// DispatchDependencies bundles collaborators. RatePerSecond <= 0 disables throttling.
type DispatchDependencies struct {
	TicketRepo    repository.TicketRepository
	MailConfig    MailConfigSource
	Sender        mailer.Sender
	RatePerSecond float64
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Clock         func() time.Time
}

// NewDispatchService constructs the service.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if deps.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.RatePerSecond), 1)
	}
	return &DispatchService{
		tickets:    deps.TicketRepo,
		mailConfig: deps.MailConfig,
		sender:     deps.Sender,
		limiter:    limiter,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
	}
}

// DispatchOne sends the approved response of ticketID. On a delivery failure
// the ticket stays Approved with the failure recorded, and the returned error
// wraps the relay's error.
func (s *DispatchService) DispatchOne(ctx context.Context, ticketID string, actor events.Actor) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, mapTicketError(err, ticketID)
	}
	if ticket.Status != domain.TicketStatusApproved {
		return nil, apperrors.NewPreconditionFailed("Ticket is not approved", map[string]any{
			"ticket_id": ticket.ID,
			"status":    ticket.Status,
		})
	}
	if ticket.ApprovedResponse == nil {
		return nil, apperrors.NewPreconditionFailed("No approved response found", map[string]any{"ticket_id": ticket.ID})
	}

	cfg, err := s.mailConfig.ActiveMailConfig(ctx)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, cfg, ticket, actor)
}

func (s *DispatchService) send(ctx context.Context, cfg *domain.MailConfig, ticket *domain.Ticket, actor events.Actor) (*domain.Ticket, error) {
	relay := mailer.Relay{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}
	reply := mailer.ComposeReply(*cfg, ticket)

	if sendErr := s.sender.Send(ctx, relay, reply); sendErr != nil {
		s.metrics.Inc(observability.CounterDispatchFailed)
		if err := ticket.MarkDispatchFailed(sendErr.Error(), s.now()); err != nil {
			return nil, mapTicketError(err, ticket.ID)
		}
		if err := s.tickets.RecordDispatchFailure(ctx, ticket); err != nil {
			s.logger.Error("recording dispatch failure failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		s.logger.Warn("reply dispatch failed",
			zap.String("ticket_id", ticket.ID),
			zap.Int("attempts", ticket.DispatchAttempts),
			zap.Error(sendErr))
		publishEvent(ctx, s.dispatcher, s.logger, events.Event{
			Type:     events.EventTicketDispatchFailed,
			TicketID: ticket.ID,
			Status:   ticket.Status,
			Actor:    actor,
			Payload: events.TicketDispatchFailedPayload{
				Recipient: reply.To,
				Attempts:  ticket.DispatchAttempts,
				Error:     sendErr.Error(),
			},
		})
		return nil, apperrors.NewUpstreamError("failed to send reply", sendErr)
	}

	if err := ticket.MarkSent(s.now()); err != nil {
		return nil, mapTicketError(err, ticket.ID)
	}
	if err := s.tickets.Transition(ctx, ticket, domain.TicketStatusApproved); err != nil {
		return nil, mapTicketError(err, ticket.ID)
	}

	s.metrics.Inc(observability.CounterDispatchSent)
	s.logger.Info("reply sent", zap.String("ticket_id", ticket.ID), zap.String("recipient", reply.To))
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketSent,
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Actor:    actor,
		Payload:  events.TicketSentPayload{Recipient: reply.To, Attempts: ticket.DispatchAttempts},
	})
	return ticket, nil
}

// DispatchAllApproved attempts every Approved ticket, oldest first. One
// failure never stops the remaining sends.
func (s *DispatchService) DispatchAllApproved(ctx context.Context, actor events.Actor) (*DispatchSummary, error) {
	if _, err := s.mailConfig.ActiveMailConfig(ctx); err != nil {
		return nil, err
	}
	approved, err := s.tickets.List(ctx, repository.TicketFilter{
		Statuses:    []domain.TicketStatus{domain.TicketStatusApproved},
		OldestFirst: true,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	summary := &DispatchSummary{}
	for _, ticket := range approved {
		if err := s.limiter.Wait(ctx); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, DispatchFailure{TicketID: ticket.ID, Error: err.Error()})
			continue
		}
		if _, err := s.DispatchOne(ctx, ticket.ID, actor); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, DispatchFailure{TicketID: ticket.ID, Error: errorText(err)})
			continue
		}
		summary.Sent++
	}

	s.logger.Info("batch dispatch finished",
		zap.Int("approved", len(approved)),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func errorText(err error) string {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.PublicMessage()
	}
	return err.Error()
}
