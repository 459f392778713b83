package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// memoryTicketRepository keeps tickets in process memory. It backs tests and
// single-process demos.
type memoryTicketRepository struct {
	mu        sync.RWMutex
	tickets   map[string]*domain.Ticket
	byMessage map[string]string
}

// NewMemoryTicketRepository returns an empty in-memory ticket repository.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		tickets:   make(map[string]*domain.Ticket),
		byMessage: make(map[string]string),
	}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[ticket.ID]; ok {
		return fmt.Errorf("%w: ticket %s", ErrConflict, ticket.ID)
	}
	if ticket.MessageID != nil {
		if _, ok := r.byMessage[*ticket.MessageID]; ok {
			return fmt.Errorf("%w: message %s", ErrConflict, *ticket.MessageID)
		}
		r.byMessage[*ticket.MessageID] = ticket.ID
	}
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *memoryTicketRepository) Transition(_ context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	return r.update(ticket, from)
}

func (r *memoryTicketRepository) RecordDispatchFailure(_ context.Context, ticket *domain.Ticket) error {
	return r.update(ticket, domain.TicketStatusApproved)
}

func (r *memoryTicketRepository) update(ticket *domain.Ticket, from domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return fmt.Errorf("%w: ticket %s", ErrNotFound, ticket.ID)
	}
	if stored.Status != from {
		return fmt.Errorf("%w: ticket %s is %s, expected %s", ErrStale, ticket.ID, stored.Status, from)
	}
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, id)
	}
	return cloneTicket(t), nil
}

func (r *memoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted := make(map[domain.TicketStatus]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		wanted[s] = true
	}

	var out []domain.Ticket
	for _, t := range r.tickets {
		if len(wanted) > 0 && !wanted[t.Status] {
			continue
		}
		out = append(out, *cloneTicket(t))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			if filter.OldestFirst {
				return a.ReceivedAt.Before(b.ReceivedAt)
			}
			return a.ReceivedAt.After(b.ReceivedAt)
		}
		if filter.OldestFirst {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryTicketRepository) ExistsByMessageID(_ context.Context, messageID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byMessage[messageID]
	return ok, nil
}

func (r *memoryTicketRepository) CountByStatus(_ context.Context) (map[domain.TicketStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.TicketStatus]int)
	for _, t := range r.tickets {
		counts[t.Status]++
	}
	return counts, nil
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	if t.Analysis != nil {
		a := *t.Analysis
		a.FixSteps = append([]string(nil), t.Analysis.FixSteps...)
		c.Analysis = &a
	}
	c.MessageID = cloneString(t.MessageID)
	c.ApprovedResponse = cloneString(t.ApprovedResponse)
	c.ApprovedBy = cloneString(t.ApprovedBy)
	c.RejectedReason = cloneString(t.RejectedReason)
	c.LastDispatchError = cloneString(t.LastDispatchError)
	c.ApprovedAt = cloneTime(t.ApprovedAt)
	c.RejectedAt = cloneTime(t.RejectedAt)
	c.SentAt = cloneTime(t.SentAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type memoryConfigRepository struct {
	mu        sync.RWMutex
	nextID    int64
	mail      []domain.MailConfig
	scheduler *domain.SchedulerConfig
}

// NewMemoryConfigRepository returns an empty in-memory config repository.
func NewMemoryConfigRepository() ConfigRepository {
	return &memoryConfigRepository{}
}

func (r *memoryConfigRepository) GetActiveMailConfig(_ context.Context) (*domain.MailConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.mail) - 1; i >= 0; i-- {
		if r.mail[i].Active {
			cfg := r.mail[i]
			return &cfg, nil
		}
	}
	return nil, fmt.Errorf("%w: mail config", ErrNotFound)
}

func (r *memoryConfigRepository) ReplaceMailConfig(_ context.Context, cfg *domain.MailConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.mail {
		r.mail[i].Active = false
	}
	r.nextID++
	cfg.ID = r.nextID
	cfg.Active = true
	r.mail = append(r.mail, *cfg)
	return nil
}

func (r *memoryConfigRepository) EnsureSchedulerConfig(_ context.Context, defaults domain.SchedulerConfig) (domain.SchedulerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler == nil {
		cfg := domain.SchedulerConfig{
			Enabled:         defaults.Enabled,
			IntervalMinutes: defaults.IntervalMinutes,
			UpdatedAt:       time.Now().UTC(),
		}
		r.scheduler = &cfg
	}
	return *r.scheduler, nil
}

func (r *memoryConfigRepository) SaveSchedulerSettings(_ context.Context, enabled bool, intervalMinutes int, now time.Time) (domain.SchedulerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler == nil {
		r.scheduler = &domain.SchedulerConfig{}
	}
	r.scheduler.Enabled = enabled
	r.scheduler.IntervalMinutes = intervalMinutes
	r.scheduler.UpdatedAt = now.UTC()
	return *r.scheduler, nil
}

func (r *memoryConfigRepository) RecordSchedulerRun(_ context.Context, at time.Time, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler == nil {
		return fmt.Errorf("%w: scheduler config", ErrNotFound)
	}
	at = at.UTC()
	r.scheduler.LastRunAt = &at
	r.scheduler.LastRunCount = count
	return nil
}

type memoryOperatorRepository struct {
	mu        sync.RWMutex
	operators map[string]domain.Operator
}

// NewMemoryOperatorRepository returns an empty in-memory operator repository.
func NewMemoryOperatorRepository() OperatorRepository {
	return &memoryOperatorRepository{operators: make(map[string]domain.Operator)}
}

func (r *memoryOperatorRepository) Create(_ context.Context, op *domain.Operator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.operators {
		if strings.EqualFold(existing.Email, op.Email) {
			return fmt.Errorf("%w: operator %s", ErrConflict, op.Email)
		}
	}
	r.operators[op.ID] = *op
	return nil
}

func (r *memoryOperatorRepository) GetByEmail(_ context.Context, email string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, op := range r.operators {
		if strings.EqualFold(op.Email, email) {
			return &op, nil
		}
	}
	return nil, fmt.Errorf("%w: operator %s", ErrNotFound, email)
}

func (r *memoryOperatorRepository) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.operators[id]
	if !ok {
		return nil, fmt.Errorf("%w: operator %s", ErrNotFound, id)
	}
	return &op, nil
}

func (r *memoryOperatorRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.operators), nil
}
