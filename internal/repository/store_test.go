package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/persistence"
)

// backends returns a fresh store per backend that runs without external services.
func backends(t *testing.T) map[string]*Store {
	t.Helper()

	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)
	require.NoError(t, persistence.RunSQLiteMigrations(db, zap.NewNop()))

	sqliteStore := NewSQLiteStore(db)
	t.Cleanup(sqliteStore.Close)

	return map[string]*Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func sampleAnalysis() domain.Analysis {
	return domain.Analysis{
		Category:      domain.CategoryBilling,
		Urgency:       domain.UrgencyHigh,
		Summary:       "Customer was charged twice",
		FixSteps:      []string{"Check invoice", "Refund duplicate"},
		DraftResponse: "We are refunding the duplicate charge.",
		Confidence:    domain.ConfidenceMedium,
	}
}

func newTicket(t *testing.T, messageID string, received time.Time) *domain.Ticket {
	t.Helper()
	return domain.NewTicket(domain.IntakeFacts{
		MessageID:   messageID,
		SenderEmail: "alice@example.com",
		SenderName:  "Alice",
		Subject:     "Double charge",
		Body:        "I was billed twice.",
		ReceivedAt:  received,
	}, received)
}

func TestTicketRoundTripThroughLifecycle(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2025, 1, 14, 9, 30, 0, 0, time.UTC)

			ticket := newTicket(t, "<m1@example.com>", now)
			require.NoError(t, store.Tickets.Create(ctx, ticket))

			require.NoError(t, ticket.AttachAnalysis(sampleAnalysis(), now))
			require.NoError(t, store.Tickets.Transition(ctx, ticket, domain.TicketStatusNew))

			require.NoError(t, ticket.Approve("Refund issued.", "ops@example.com", now.Add(time.Minute)))
			require.NoError(t, store.Tickets.Transition(ctx, ticket, domain.TicketStatusPendingApproval))

			require.NoError(t, ticket.MarkDispatchFailed("smtp: 421", now.Add(2*time.Minute)))
			require.NoError(t, store.Tickets.RecordDispatchFailure(ctx, ticket))

			got, err := store.Tickets.GetByID(ctx, ticket.ID)
			require.NoError(t, err)
			require.Equal(t, domain.TicketStatusApproved, got.Status)
			require.Equal(t, 1, got.DispatchAttempts)
			require.NotNil(t, got.LastDispatchError)
			require.Equal(t, "smtp: 421", *got.LastDispatchError)
			require.NotNil(t, got.Analysis)
			require.Equal(t, sampleAnalysis().FixSteps, got.Analysis.FixSteps)
			require.Equal(t, domain.CategoryBilling, got.Analysis.Category)
			require.Equal(t, "ops@example.com", *got.ApprovedBy)
			require.True(t, got.ReceivedAt.Equal(now))
			require.NoError(t, got.CheckInvariants())

			require.NoError(t, got.MarkSent(now.Add(3*time.Minute)))
			require.NoError(t, store.Tickets.Transition(ctx, got, domain.TicketStatusApproved))

			final, err := store.Tickets.GetByID(ctx, ticket.ID)
			require.NoError(t, err)
			require.Equal(t, domain.TicketStatusSent, final.Status)
			require.Nil(t, final.LastDispatchError)
			require.Equal(t, 2, final.DispatchAttempts)
			require.NoError(t, final.CheckInvariants())
		})
	}
}

func TestDuplicateMessageIDConflicts(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			require.NoError(t, store.Tickets.Create(ctx, newTicket(t, "<dup@example.com>", now)))
			err := store.Tickets.Create(ctx, newTicket(t, "<dup@example.com>", now))
			require.ErrorIs(t, err, ErrConflict)

			exists, err := store.Tickets.ExistsByMessageID(ctx, "<dup@example.com>")
			require.NoError(t, err)
			require.True(t, exists)

			exists, err = store.Tickets.ExistsByMessageID(ctx, "<other@example.com>")
			require.NoError(t, err)
			require.False(t, exists)

			// Tickets without a message id never collide.
			require.NoError(t, store.Tickets.Create(ctx, newTicket(t, "", now)))
			require.NoError(t, store.Tickets.Create(ctx, newTicket(t, "", now)))
		})
	}
}

func TestTransitionDetectsStaleStatus(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			ticket := newTicket(t, "<stale@example.com>", now)
			require.NoError(t, store.Tickets.Create(ctx, ticket))
			require.NoError(t, ticket.AttachAnalysis(sampleAnalysis(), now))
			require.NoError(t, store.Tickets.Transition(ctx, ticket, domain.TicketStatusNew))

			first, err := store.Tickets.GetByID(ctx, ticket.ID)
			require.NoError(t, err)
			second, err := store.Tickets.GetByID(ctx, ticket.ID)
			require.NoError(t, err)

			require.NoError(t, first.Approve("ok", "a@example.com", now))
			require.NoError(t, store.Tickets.Transition(ctx, first, domain.TicketStatusPendingApproval))

			require.NoError(t, second.Reject("spam", now))
			err = store.Tickets.Transition(ctx, second, domain.TicketStatusPendingApproval)
			require.ErrorIs(t, err, ErrStale)

			missing := newTicket(t, "", now)
			err = store.Tickets.Transition(ctx, missing, domain.TicketStatusNew)
			require.ErrorIs(t, err, ErrNotFound)

			_, err = store.Tickets.GetByID(ctx, "TKT-00000000-DEADBEEF")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestConcurrentApprovalsOnlyOneWins(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			ticket := newTicket(t, "<race@example.com>", now)
			require.NoError(t, store.Tickets.Create(ctx, ticket))
			require.NoError(t, ticket.AttachAnalysis(sampleAnalysis(), now))
			require.NoError(t, store.Tickets.Transition(ctx, ticket, domain.TicketStatusNew))

			const workers = 8
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					copyOf, err := store.Tickets.GetByID(ctx, ticket.ID)
					if err != nil {
						return
					}
					if copyOf.Approve("reply", "ops@example.com", now) != nil {
						return
					}
					if store.Tickets.Transition(ctx, copyOf, domain.TicketStatusPendingApproval) == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			require.Equal(t, 1, wins)
		})
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

			var ids []string
			for i := 0; i < 4; i++ {
				tk := newTicket(t, "", base.Add(time.Duration(i)*time.Hour))
				require.NoError(t, store.Tickets.Create(ctx, tk))
				ids = append(ids, tk.ID)
			}
			pending, err := store.Tickets.GetByID(ctx, ids[1])
			require.NoError(t, err)
			require.NoError(t, pending.AttachAnalysis(sampleAnalysis(), base))
			require.NoError(t, store.Tickets.Transition(ctx, pending, domain.TicketStatusNew))

			all, err := store.Tickets.List(ctx, TicketFilter{})
			require.NoError(t, err)
			require.Len(t, all, 4)
			require.Equal(t, ids[3], all[0].ID)

			oldest, err := store.Tickets.List(ctx, TicketFilter{OldestFirst: true, Limit: 2, Offset: 1})
			require.NoError(t, err)
			require.Len(t, oldest, 2)
			require.Equal(t, ids[1], oldest[0].ID)

			onlyPending, err := store.Tickets.List(ctx, TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusPendingApproval}})
			require.NoError(t, err)
			require.Len(t, onlyPending, 1)
			require.Equal(t, ids[1], onlyPending[0].ID)

			counts, err := store.Tickets.CountByStatus(ctx)
			require.NoError(t, err)
			require.Equal(t, 3, counts[domain.TicketStatusNew])
			require.Equal(t, 1, counts[domain.TicketStatusPendingApproval])
		})
	}
}

func TestMailConfigReplaceKeepsSingleActive(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			_, err := store.Config.GetActiveMailConfig(ctx)
			require.ErrorIs(t, err, ErrNotFound)

			first := &domain.MailConfig{IMAPHost: "imap.one", IMAPPort: 993, FromEmail: "a@one", FromName: "One", CreatedAt: now, UpdatedAt: now}
			require.NoError(t, store.Config.ReplaceMailConfig(ctx, first))
			second := &domain.MailConfig{IMAPHost: "imap.two", IMAPPort: 993, FromEmail: "a@two", FromName: "Two", CreatedAt: now, UpdatedAt: now}
			require.NoError(t, store.Config.ReplaceMailConfig(ctx, second))
			require.NotEqual(t, first.ID, second.ID)

			active, err := store.Config.GetActiveMailConfig(ctx)
			require.NoError(t, err)
			require.Equal(t, "imap.two", active.IMAPHost)
			require.True(t, active.Active)
		})
	}
}

func TestMailConfigConcurrentReplace(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			const writers = 8
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					cfg := &domain.MailConfig{
						IMAPHost: fmt.Sprintf("imap.%d", i), IMAPPort: 993,
						FromEmail: "desk@example.com", FromName: "Desk", CreatedAt: now, UpdatedAt: now,
					}
					errs <- store.Config.ReplaceMailConfig(ctx, cfg)
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			active, err := store.Config.GetActiveMailConfig(ctx)
			require.NoError(t, err)
			require.True(t, active.Active)
			require.Contains(t, active.IMAPHost, "imap.")
		})
	}
}

func TestSchedulerConfigLifecycle(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.Config.RecordSchedulerRun(ctx, time.Now(), 3)
			require.ErrorIs(t, err, ErrNotFound)

			cfg, err := store.Config.EnsureSchedulerConfig(ctx, domain.DefaultSchedulerConfig())
			require.NoError(t, err)
			require.False(t, cfg.Enabled)
			require.Equal(t, domain.DefaultIntervalMinutes, cfg.IntervalMinutes)

			cfg, err = store.Config.SaveSchedulerSettings(ctx, true, 15, time.Now())
			require.NoError(t, err)
			require.True(t, cfg.Enabled)

			// Seeding again keeps the saved record.
			cfg, err = store.Config.EnsureSchedulerConfig(ctx, domain.DefaultSchedulerConfig())
			require.NoError(t, err)
			require.True(t, cfg.Enabled)
			require.Equal(t, 15, cfg.IntervalMinutes)

			ran := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.Config.RecordSchedulerRun(ctx, ran, 7))
			cfg, err = store.Config.EnsureSchedulerConfig(ctx, domain.DefaultSchedulerConfig())
			require.NoError(t, err)
			require.Equal(t, 7, cfg.LastRunCount)
			require.NotNil(t, cfg.LastRunAt)
			require.True(t, cfg.LastRunAt.Equal(ran))
		})
	}
}

func TestOperatorEmailIsUnique(t *testing.T) {
	for name, store := range backends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			op := &domain.Operator{ID: "op-1", Email: "Admin@Example.com", PasswordHash: "x", Role: domain.OperatorRoleAdmin, Active: true, CreatedAt: now, UpdatedAt: now}
			require.NoError(t, store.Operators.Create(ctx, op))

			dup := *op
			dup.ID = "op-2"
			dup.Email = "admin@example.com"
			require.ErrorIs(t, store.Operators.Create(ctx, &dup), ErrConflict)

			n, err := store.Operators.Count(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, n)

			got, err := store.Operators.GetByEmail(ctx, "admin@example.com")
			require.NoError(t, err)
			require.Equal(t, domain.OperatorRoleAdmin, got.Role)

			_, err = store.Operators.GetByID(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}
