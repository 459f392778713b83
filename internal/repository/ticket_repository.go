package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-desk/internal/domain"
)

// TicketFilter captures operator list parameters.
type TicketFilter struct {
	Statuses    []domain.TicketStatus
	OldestFirst bool
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create inserts a new ticket. A duplicate message id yields ErrConflict.
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Transition persists ticket only if the stored status still equals from.
	Transition(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error
	// RecordDispatchFailure persists the failure fields of an approved ticket.
	RecordDispatchFailure(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`
	a := newAnalysisValues(ticket.Analysis)
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.MessageID,
		ticket.SenderEmail,
		ticket.SenderName,
		ticket.Subject,
		ticket.Body,
		ticket.ReceivedAt.UTC(),
		string(ticket.Status),
		a.category,
		a.urgency,
		a.summary,
		pgFixSteps(a),
		a.draftResponse,
		a.confidence,
		a.escalation,
		a.analysisError,
		ticket.ApprovedResponse,
		ticket.ApprovedBy,
		ticket.ApprovedAt,
		ticket.RejectedReason,
		ticket.RejectedAt,
		ticket.SentAt,
		ticket.LastDispatchError,
		ticket.DispatchAttempts,
		ticket.CreatedAt.UTC(),
		ticket.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: ticket %s", ErrConflict, ticket.ID)
	}
	return err
}

func (r *ticketRepository) Transition(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	return r.update(ctx, ticket, from)
}

func (r *ticketRepository) RecordDispatchFailure(ctx context.Context, ticket *domain.Ticket) error {
	return r.update(ctx, ticket, domain.TicketStatusApproved)
}

func (r *ticketRepository) update(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=$1, category=$2, urgency=$3, summary=$4, fix_steps=$5, draft_response=$6,
            confidence=$7, escalation_required=$8, analysis_error=$9, approved_response=$10, approved_by=$11,
            approved_at=$12, rejected_reason=$13, rejected_at=$14, sent_at=$15, last_dispatch_error=$16,
            dispatch_attempts=$17, updated_at=$18
        WHERE id=$19 AND status=$20`
	a := newAnalysisValues(ticket.Analysis)
	cmd, err := r.pool.Exec(ctx, query,
		string(ticket.Status),
		a.category,
		a.urgency,
		a.summary,
		pgFixSteps(a),
		a.draftResponse,
		a.confidence,
		a.escalation,
		a.analysisError,
		ticket.ApprovedResponse,
		ticket.ApprovedBy,
		ticket.ApprovedAt,
		ticket.RejectedReason,
		ticket.RejectedAt,
		ticket.SentAt,
		ticket.LastDispatchError,
		ticket.DispatchAttempts,
		ticket.UpdatedAt.UTC(),
		ticket.ID,
		string(from),
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.missOrStale(ctx, ticket.ID, from)
	}
	return nil
}

func (r *ticketRepository) missOrStale(ctx context.Context, id string, from domain.TicketStatus) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM tickets WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: ticket %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: ticket %s is %s, expected %s", ErrStale, id, status, from)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var row ticketRow
	if err := row.scan(r.pool.QueryRow(ctx, query, id), &row.fixSteps); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, id)
		}
		return nil, err
	}
	return row.toDomain(), nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := base + " WHERE " + strings.Join(clauses, " AND ") + orderClause(filter)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var row ticketRow
		if err := row.scan(rows, &row.fixSteps); err != nil {
			return nil, err
		}
		tickets = append(tickets, *row.toDomain())
	}
	return tickets, rows.Err()
}

func (r *ticketRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE message_id=$1)`, messageID).Scan(&exists)
	return exists, err
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.TicketStatus(status)] = count
	}
	return counts, rows.Err()
}

func orderClause(filter TicketFilter) string {
	if filter.OldestFirst {
		return " ORDER BY received_at ASC, id ASC"
	}
	return " ORDER BY received_at DESC, id DESC"
}

// pgFixSteps keeps fix_steps NULL when no analysis is attached.
func pgFixSteps(a analysisValues) any {
	if a.category == nil {
		return nil
	}
	return a.fixSteps
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
