package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/spec-kit/support-desk/internal/domain"
)

type sqliteTicketRepository struct {
	db *sql.DB
}

// NewSQLiteTicketRepository instantiates the embedded-database repository.
func NewSQLiteTicketRepository(db *sql.DB) TicketRepository {
	return &sqliteTicketRepository{db: db}
}

func (r *sqliteTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	a := newAnalysisValues(ticket.Analysis)
	steps, err := sqliteFixSteps(a)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query,
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
		steps,
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
	if isSQLiteUniqueViolation(err) {
		return fmt.Errorf("%w: ticket %s", ErrConflict, ticket.ID)
	}
	return err
}

func (r *sqliteTicketRepository) Transition(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	return r.update(ctx, ticket, from)
}

func (r *sqliteTicketRepository) RecordDispatchFailure(ctx context.Context, ticket *domain.Ticket) error {
	return r.update(ctx, ticket, domain.TicketStatusApproved)
}

func (r *sqliteTicketRepository) update(ctx context.Context, ticket *domain.Ticket, from domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET status=?, category=?, urgency=?, summary=?, fix_steps=?, draft_response=?,
            confidence=?, escalation_required=?, analysis_error=?, approved_response=?, approved_by=?,
            approved_at=?, rejected_reason=?, rejected_at=?, sent_at=?, last_dispatch_error=?,
            dispatch_attempts=?, updated_at=?
        WHERE id=? AND status=?`
	a := newAnalysisValues(ticket.Analysis)
	steps, err := sqliteFixSteps(a)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, query,
		string(ticket.Status),
		a.category,
		a.urgency,
		a.summary,
		steps,
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
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var status string
		err := r.db.QueryRowContext(ctx, `SELECT status FROM tickets WHERE id=?`, ticket.ID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: ticket %s", ErrNotFound, ticket.ID)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: ticket %s is %s, expected %s", ErrStale, ticket.ID, status, from)
	}
	return nil
}

func (r *sqliteTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=?`
	ticket, err := scanSQLiteTicket(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, id)
	}
	return ticket, err
}

func (r *sqliteTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = "?"
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ","))
	}
	query += orderClause(filter)
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

func (r *sqliteTicketRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE message_id=?)`, messageID).Scan(&exists)
	return exists, err
}

func (r *sqliteTicketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
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

func scanSQLiteTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		r     ticketRow
		steps sql.NullString
	)
	if err := r.scan(row, &steps); err != nil {
		return nil, err
	}
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &r.fixSteps); err != nil {
			return nil, fmt.Errorf("decode fix_steps: %w", err)
		}
	}
	return r.toDomain(), nil
}

// sqliteFixSteps encodes fix steps as a JSON array.
func sqliteFixSteps(a analysisValues) (any, error) {
	if a.category == nil {
		return nil, nil
	}
	raw, err := json.Marshal(a.fixSteps)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}
