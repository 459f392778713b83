package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestIngestionEmptyMailbox(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.configureMail(t)

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Processed)
	require.Empty(t, result.TicketIDs)
	require.Empty(t, result.Errors)

	stats, err := h.tickets.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Total)
}

func TestIngestionCreatesPendingTicketAndMarksSeen(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.configureMail(t)
	h.mailbox.add(7, rawMessage("<m1@example.com>", "Jane Doe <jane@example.com>", "Cannot log in", "My password stopped working."))

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Len(t, result.TicketIDs, 1)
	require.Empty(t, result.Errors)
	require.True(t, h.mailbox.isSeen(7))

	ticket, err := h.tickets.Get(context.Background(), result.TicketIDs[0])
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusPendingApproval, ticket.Status)
	require.Equal(t, "jane@example.com", ticket.SenderEmail)
	require.Equal(t, "Jane Doe", ticket.SenderName)
	require.Equal(t, "Cannot log in", ticket.Subject)
	require.NotNil(t, ticket.MessageID)
	require.Equal(t, "<m1@example.com>", *ticket.MessageID)
	require.NotNil(t, ticket.Analysis)
	require.NoError(t, ticket.Analysis.Validate())
	require.NoError(t, ticket.CheckInvariants())

	// No backend configured: degraded but complete.
	require.Equal(t, domain.CategoryOther, ticket.Analysis.Category)
	require.Equal(t, domain.ConfidenceLow, ticket.Analysis.Confidence)
	require.True(t, ticket.Analysis.EscalationRequired)
	require.Equal(t, int64(1), h.metrics.Counter(observability.CounterTicketsIngested))
}

func TestIngestionInvalidBackendOutputStillQueuesTicket(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withBackend(scriptedBackend{answer: "definitely not json"}))
	h.configureMail(t)
	h.mailbox.add(1, rawMessage("<m1@example.com>", "bob@example.com", "Invoice", "Where is my invoice?"))

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.Empty(t, result.Errors)

	ticket, err := h.tickets.Get(context.Background(), result.TicketIDs[0])
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusPendingApproval, ticket.Status)
	require.Equal(t, domain.CategoryOther, ticket.Analysis.Category)
	require.Equal(t, domain.ConfidenceLow, ticket.Analysis.Confidence)
	require.True(t, ticket.Analysis.EscalationRequired)
	require.NotEmpty(t, ticket.Analysis.Error)
}

func TestIngestionUsesBackendAnalysis(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withBackend(scriptedBackend{answer: goodAnswer}))
	h.configureMail(t)
	h.mailbox.add(1, rawMessage("<vpn@example.com>", "bob@example.com", "VPN", "VPN keeps dropping"))

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)

	ticket, err := h.tickets.Get(context.Background(), result.TicketIDs[0])
	require.NoError(t, err)
	require.Equal(t, domain.CategoryTechnical, ticket.Analysis.Category)
	require.Equal(t, domain.UrgencyHigh, ticket.Analysis.Urgency)
	require.Equal(t, []string{"Restart client", "Update driver"}, ticket.Analysis.FixSteps)
	require.False(t, ticket.Analysis.EscalationRequired)
	require.Nil(t, ticket.ApprovedResponse)
}

func TestIngestionIsolatesMessageFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.configureMail(t)
	h.mailbox.add(1, rawMessage("<a@example.com>", "a@example.com", "A", "first"))
	h.mailbox.add(2, "this is not a message at all")
	h.mailbox.add(3, rawMessage("<c@example.com>", "c@example.com", "C", "third"))
	h.mailbox.fetchErr[3] = errors.New("fetch timed out")
	h.mailbox.add(4, rawMessage("<d@example.com>", "d@example.com", "D", "fourth"))

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.Processed)
	require.Len(t, result.Errors, 2)
	require.Contains(t, result.Errors[0], "Error processing message 2")
	require.Contains(t, result.Errors[1], "Error processing message 3")

	require.True(t, h.mailbox.isSeen(1))
	require.False(t, h.mailbox.isSeen(2))
	require.False(t, h.mailbox.isSeen(3))
	require.True(t, h.mailbox.isSeen(4))
}

func TestIngestionConnectionFailureAbortsRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.configureMail(t)
	h.mailbox.dialErr = errors.New("connection refused")

	result, err := h.ingestion.Run(context.Background())
	require.Nil(t, result)
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, "UPSTREAM_FAILURE", domainErr.Code)
	require.Contains(t, domainErr.PublicMessage(), "IMAP connection error")
	require.Contains(t, domainErr.PublicMessage(), "connection refused")
}

func TestIngestionRequiresMailConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.ingestion.Run(context.Background())
	require.Equal(t, "CONFIG_MISSING", apperrors.ToDomainError(err).Code)
	require.Zero(t, h.mailbox.dials)
}

func TestIngestionSkipsAlreadyIngestedMessageID(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.configureMail(t)
	raw := rawMessage("<dup@example.com>", "a@example.com", "Dup", "body")
	h.mailbox.add(1, raw)
	h.mailbox.markErr[1] = errors.New("connection reset")

	first, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)
	require.Len(t, first.Errors, 1)
	require.False(t, h.mailbox.isSeen(1))

	// Redelivered on the next run: acknowledged without a second ticket.
	delete(h.mailbox.markErr, 1)
	second, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.Processed)
	require.Equal(t, 1, second.Skipped)
	require.True(t, h.mailbox.isSeen(1))

	stats, err := h.tickets.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
}

func TestIngestionLockHeldReturnsConflict(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withLocker(&fakeLocker{err: persistence.ErrLockHeld}))
	h.configureMail(t)

	_, err := h.ingestion.Run(context.Background())
	require.Equal(t, "CONFLICT", apperrors.ToDomainError(err).Code)
	require.Zero(t, h.mailbox.dials)
}

func TestIngestionReleasesLock(t *testing.T) {
	t.Parallel()

	locker := &fakeLocker{}
	h := newHarness(t, withLocker(locker))
	h.configureMail(t)

	_, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.False(t, locker.held)
	require.Equal(t, 1, locker.released)
}

func TestIngestionRunsWithoutLockWhenRedisUnreachable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withLocker(&fakeLocker{err: errors.New("dial tcp: connection refused")}))
	h.configureMail(t)
	h.mailbox.add(1, rawMessage("<a@example.com>", "a@example.com", "A", "first"))

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
}

func TestIngestionResumesStrandedTickets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.configureMail(t)

	stranded := domain.NewTicket(domain.IntakeFacts{
		SenderEmail: "late@example.com",
		Subject:     "Stuck",
		Body:        "body",
	}, fixedNow.Add(-time.Hour))
	require.NoError(t, h.store.Tickets.Create(context.Background(), stranded))

	fresh := domain.NewTicket(domain.IntakeFacts{SenderEmail: "new@example.com", Body: "b"}, fixedNow)
	require.NoError(t, h.store.Tickets.Create(context.Background(), fresh))

	result, err := h.ingestion.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{stranded.ID}, result.TicketIDs)

	got, err := h.tickets.Get(context.Background(), stranded.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusPendingApproval, got.Status)

	got, err = h.tickets.Get(context.Background(), fresh.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusNew, got.Status)
}

func TestSubmitManual(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	ticket, err := h.ingestion.SubmitManual(context.Background(), ManualIntake{
		SenderEmail: "walkin@example.com",
		Body:        "Printer is on fire",
	})
	require.NoError(t, err)
	require.Equal(t, ManualSenderName, ticket.SenderName)
	require.Equal(t, "No Subject", ticket.Subject)
	require.Nil(t, ticket.MessageID)
	require.Equal(t, domain.TicketStatusPendingApproval, ticket.Status)
	require.Equal(t, fixedNow, ticket.ReceivedAt)

	_, err = h.ingestion.SubmitManual(context.Background(), ManualIntake{SenderEmail: "nope", Body: "x"})
	require.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	_, err = h.ingestion.SubmitManual(context.Background(), ManualIntake{SenderEmail: "a@example.com", Body: "  "})
	require.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
}
