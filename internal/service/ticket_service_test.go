package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

func TestApproveWithEditedText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ticket := h.seedPending(t, "jane@example.com")

	approved, err := h.tickets.Approve(context.Background(), ticket.ID, "custom text", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusApproved, approved.Status)
	require.Equal(t, "custom text", *approved.ApprovedResponse)
	require.Equal(t, "alice", *approved.ApprovedBy)
	require.Equal(t, fixedNow, *approved.ApprovedAt)
	require.Nil(t, approved.RejectedReason)

	stored, err := h.tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NoError(t, stored.CheckInvariants())
	require.Equal(t, "custom text", *stored.ApprovedResponse)

	_, err = h.tickets.Approve(context.Background(), ticket.ID, "again", "alice")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrInvalidTransition))
	require.Equal(t, "INVALID_TRANSITION", apperrors.ToDomainError(err).Code)
}

func TestApproveUnknownTicket(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.tickets.Approve(context.Background(), "TKT-00000000-NOPE", "text", "alice")
	require.Equal(t, "NOT_FOUND", apperrors.ToDomainError(err).Code)
}

func TestApproveValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ticket := h.seedPending(t, "jane@example.com")

	_, err := h.tickets.Approve(context.Background(), ticket.ID, "   ", "alice")
	require.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)
	_, err = h.tickets.Approve(context.Background(), ticket.ID, "ok", "")
	require.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	stored, err := h.tickets.Get(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusPendingApproval, stored.Status)
}

func TestRejectThenApproveIsInvalid(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ticket := h.seedPending(t, "jane@example.com")

	rejected, err := h.tickets.Reject(context.Background(), ticket.ID, "spam", "alice")
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusRejected, rejected.Status)
	require.Equal(t, "spam", *rejected.RejectedReason)
	require.Nil(t, rejected.ApprovedResponse)

	_, err = h.tickets.Approve(context.Background(), ticket.ID, "text", "alice")
	require.Equal(t, "INVALID_TRANSITION", apperrors.ToDomainError(err).Code)
	_, err = h.tickets.Reject(context.Background(), ticket.ID, "", "alice")
	require.Equal(t, "INVALID_TRANSITION", apperrors.ToDomainError(err).Code)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ticket := h.seedPending(t, "jane@example.com")

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.tickets.Approve(context.Background(), ticket.ID, "text", "alice"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestListAndStats(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.seedPending(t, "a@example.com")
	h.seedPending(t, "b@example.com")
	h.seedApproved(t, "c@example.com")
	_, err := h.tickets.Reject(context.Background(), a.ID, "", "alice")
	require.NoError(t, err)

	pending, err := h.tickets.List(context.Background(), TicketListFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusPendingApproval},
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	all, err := h.tickets.List(context.Background(), TicketListFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = h.tickets.List(context.Background(), TicketListFilter{Offset: -1})
	require.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	stats, err := h.tickets.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 1, stats.ByStatus[domain.TicketStatusPendingApproval])
	require.Equal(t, 1, stats.ByStatus[domain.TicketStatusApproved])
	require.Equal(t, 1, stats.ByStatus[domain.TicketStatusRejected])
	require.Contains(t, stats.ByStatus, domain.TicketStatusSent)
}

func TestApprovalPublishesEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	dispatcher := events.NewInMemoryDispatcher()
	var got []events.Event
	dispatcher.Subscribe(events.EventTicketApproved, func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})
	svc := NewTicketService(TicketDependencies{TicketRepo: h.store.Tickets, Dispatcher: dispatcher, Clock: fixedClock})

	ticket := h.seedPending(t, "jane@example.com")
	_, err := svc.Approve(context.Background(), ticket.ID, ticket.Analysis.DraftResponse, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, ticket.ID, got[0].TicketID)
	payload, ok := got[0].Payload.(events.TicketApprovedPayload)
	require.True(t, ok)
	require.False(t, payload.EditedByHuman)
}
