package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/classifier"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/mailbox"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

const (
	// IngestLockKey guards ingestion runs across processes.
	IngestLockKey = "support-desk:ingest:lock"

	// ManualSenderName is used for manually submitted tickets without a name.
	ManualSenderName = "Test User"

	defaultSubject       = "No Subject"
	defaultStrandedAfter = 10 * time.Minute
)

// Classifier produces a complete analysis for a ticket. It never fails.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) domain.Analysis
}

// RunLocker hands out an exclusive run lock.
type RunLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// MailConfigSource yields the active mail configuration with opened secrets.
type MailConfigSource interface {
	ActiveMailConfig(ctx context.Context) (*domain.MailConfig, error)
}

// IngestionResult summarizes one run.
type IngestionResult struct {
	Processed int
	Skipped   int
	TicketIDs []string
	Errors    []string
}

// IngestionService turns unseen mailbox messages into pending-approval tickets.
type IngestionService struct {
	tickets       repository.TicketRepository
	mailConfig    MailConfigSource
	dialer        mailbox.Dialer
	classifier    Classifier
	locker        RunLocker
	lockTTL       time.Duration
	folder        string
	strandedAfter time.Duration
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// IngestionDependencies bundles collaborators. Locker, Dispatcher and Metrics may be nil.
type IngestionDependencies struct {
	TicketRepo    repository.TicketRepository
	MailConfig    MailConfigSource
	Dialer        mailbox.Dialer
	Classifier    Classifier
	Locker        RunLocker
	LockTTL       time.Duration
	Mailbox       string
	StrandedAfter time.Duration
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Clock         func() time.Time
}

// NewIngestionService constructs the service.
func NewIngestionService(deps IngestionDependencies) *IngestionService {
	lockTTL := deps.LockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Minute
	}
	stranded := deps.StrandedAfter
	if stranded <= 0 {
		stranded = defaultStrandedAfter
	}
	return &IngestionService{
		tickets:       deps.TicketRepo,
		mailConfig:    deps.MailConfig,
		dialer:        deps.Dialer,
		classifier:    deps.Classifier,
		locker:        deps.Locker,
		lockTTL:       lockTTL,
		folder:        deps.Mailbox,
		strandedAfter: stranded,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        loggerOrNop(deps.Logger),
		now:           clockOrDefault(deps.Clock),
	}
}

// Run fetches every unseen message and creates one ticket per new message.
// A message is marked seen only after its ticket is committed. Failures of a
// single message are collected in the result; a mailbox connection failure
// aborts the run and is returned as an error.
func (s *IngestionService) Run(ctx context.Context) (*IngestionResult, error) {
	cfg, err := s.mailConfig.ActiveMailConfig(ctx)
	if err != nil {
		return nil, err
	}

	release, err := s.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.metrics.Inc(observability.CounterIngestionRuns)
	result := &IngestionResult{}
	s.resumeStranded(ctx, result)

	session, err := s.dialer.Dial(ctx, mailbox.Account{
		Host:     cfg.IMAPHost,
		Port:     cfg.IMAPPort,
		Username: cfg.IMAPUsername,
		Password: cfg.IMAPPassword,
		Mailbox:  s.folder,
	})
	if err != nil {
		s.metrics.Inc(observability.CounterIngestionErrors)
		return nil, apperrors.NewUpstreamError("IMAP connection error", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Debug("imap close failed", zap.Error(err))
		}
	}()

	uids, err := session.ListUnseen(ctx)
	if err != nil {
		s.metrics.Inc(observability.CounterIngestionErrors)
		return nil, apperrors.NewUpstreamError("IMAP connection error", err)
	}

	for _, uid := range uids {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("run interrupted before message %d: %v", uid, ctx.Err()))
			break
		}
		ticketID, skipped, err := s.processMessage(ctx, session, uid)
		if ticketID != "" {
			result.Processed++
			result.TicketIDs = append(result.TicketIDs, ticketID)
		}
		switch {
		case err != nil:
			s.metrics.Inc(observability.CounterIngestionErrors)
			s.logger.Warn("message ingestion failed", zap.Uint32("message_uid", uid), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("Error processing message %d: %v", uid, err))
		case skipped:
			s.metrics.Inc(observability.CounterMessagesSkipped)
			result.Skipped++
		}
	}

	s.logger.Info("ingestion run finished",
		zap.Int("unseen", len(uids)),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

func (s *IngestionService) acquireLock(ctx context.Context) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	unlock, err := s.locker.TryLock(ctx, IngestLockKey, s.lockTTL)
	switch {
	case errors.Is(err, persistence.ErrLockHeld):
		return nil, apperrors.NewConflict("ingestion already running", nil)
	case err != nil:
		s.logger.Warn("ingestion lock unavailable; running without it", zap.Error(err))
		return noop, nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := unlock(ctx); err != nil {
			s.logger.Warn("ingestion lock release failed", zap.Error(err))
		}
	}, nil
}

// processMessage returns the new ticket id, or skipped=true when the message
// already produced a ticket.
func (s *IngestionService) processMessage(ctx context.Context, session mailbox.Session, uid uint32) (string, bool, error) {
	raw, err := session.Fetch(ctx, uid)
	if err != nil {
		return "", false, err
	}
	facts, err := mailbox.ParseMessage(raw, s.now())
	if err != nil {
		return "", false, err
	}

	if facts.MessageID != "" {
		exists, err := s.tickets.ExistsByMessageID(ctx, facts.MessageID)
		if err != nil {
			return "", false, err
		}
		if exists {
			s.logger.Info("message already ingested",
				zap.Uint32("message_uid", uid),
				zap.String("message_id", facts.MessageID))
			return "", true, session.MarkSeen(ctx, uid)
		}
	}

	ticket, err := s.intake(ctx, facts, false)
	if errors.Is(err, repository.ErrConflict) {
		return "", true, session.MarkSeen(ctx, uid)
	}
	if err != nil {
		return "", false, err
	}

	if err := session.MarkSeen(ctx, uid); err != nil {
		// The ticket exists; the next run skips this message by its id.
		return ticket.ID, false, fmt.Errorf("ticket %s created but mark seen failed: %w", ticket.ID, err)
	}
	return ticket.ID, false, nil
}

// intake persists a New ticket, classifies it and moves it to pending approval.
func (s *IngestionService) intake(ctx context.Context, facts domain.IntakeFacts, manual bool) (*domain.Ticket, error) {
	if strings.TrimSpace(facts.Subject) == "" {
		facts.Subject = defaultSubject
	}
	ticket := domain.NewTicket(facts, s.now())
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if err := s.classify(ctx, ticket); err != nil {
		return nil, err
	}

	s.metrics.Inc(observability.CounterTicketsIngested)
	s.logger.Info("ticket ingested",
		zap.String("ticket_id", ticket.ID),
		zap.String("category", string(ticket.Analysis.Category)),
		zap.Bool("degraded", ticket.Analysis.Degraded()),
		zap.Bool("manual", manual))
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketIngested,
		TicketID: ticket.ID,
		Status:   ticket.Status,
		Actor:    events.SystemActor,
		Payload: events.TicketIngestedPayload{
			SenderEmail:        ticket.SenderEmail,
			Subject:            ticket.Subject,
			Category:           ticket.Analysis.Category,
			Urgency:            ticket.Analysis.Urgency,
			EscalationRequired: ticket.Analysis.EscalationRequired,
			Degraded:           ticket.Analysis.Degraded(),
			Manual:             manual,
		},
	})
	return ticket, nil
}

func (s *IngestionService) classify(ctx context.Context, ticket *domain.Ticket) error {
	analysis := s.classifier.Classify(ctx, classifier.Request{
		TicketID:   ticket.ID,
		Sender:     ticket.SenderEmail,
		Subject:    ticket.Subject,
		Body:       ticket.Body,
		ReceivedAt: ticket.ReceivedAt,
	})
	if analysis.Degraded() {
		s.metrics.Inc(observability.CounterDegradedAnalyses)
	}
	if err := ticket.AttachAnalysis(analysis, s.now()); err != nil {
		return err
	}
	return s.tickets.Transition(ctx, ticket, domain.TicketStatusNew)
}

// resumeStranded finishes tickets left New by a run that died between
// create and classification.
func (s *IngestionService) resumeStranded(ctx context.Context, result *IngestionResult) {
	stranded, err := s.tickets.List(ctx, repository.TicketFilter{
		Statuses:    []domain.TicketStatus{domain.TicketStatusNew},
		OldestFirst: true,
	})
	if err != nil {
		s.logger.Warn("listing stranded tickets failed", zap.Error(err))
		return
	}
	cutoff := s.now().Add(-s.strandedAfter)
	for i := range stranded {
		ticket := &stranded[i]
		if ticket.CreatedAt.After(cutoff) {
			continue
		}
		err := s.classify(ctx, ticket)
		switch {
		case errors.Is(err, repository.ErrStale):
			continue
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("Error resuming ticket %s: %v", ticket.ID, err))
			continue
		}
		s.logger.Info("stranded ticket resumed", zap.String("ticket_id", ticket.ID))
		result.Processed++
		result.TicketIDs = append(result.TicketIDs, ticket.ID)
	}
}

// ManualIntake describes a ticket submitted without a mailbox.
type ManualIntake struct {
	SenderEmail string
	SenderName  string
	Subject     string
	Body        string
}

// SubmitManual creates a ticket through the same classification path as
// mailbox ingestion.
func (s *IngestionService) SubmitManual(ctx context.Context, in ManualIntake) (*domain.Ticket, error) {
	email := strings.TrimSpace(in.SenderEmail)
	if !validEmail(email) {
		return nil, apperrors.NewValidationError("sender_email is not a valid address", map[string]any{"sender_email": in.SenderEmail})
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, apperrors.NewValidationError("body is required", nil)
	}
	name := strings.TrimSpace(in.SenderName)
	if name == "" {
		name = ManualSenderName
	}

	ticket, err := s.intake(ctx, domain.IntakeFacts{
		SenderEmail: email,
		SenderName:  name,
		Subject:     strings.TrimSpace(in.Subject),
		Body:        in.Body,
		ReceivedAt:  s.now(),
	}, true)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}
