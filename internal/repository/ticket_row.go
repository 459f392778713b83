package repository

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

const ticketColumns = `id, message_id, sender_email, sender_name, subject, body, received_at, status,
        category, urgency, summary, fix_steps, draft_response, confidence, escalation_required, analysis_error,
        approved_response, approved_by, approved_at, rejected_reason, rejected_at,
        sent_at, last_dispatch_error, dispatch_attempts, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ticketRow holds the nullable analysis columns while a row is scanned.
type ticketRow struct {
	ticket        domain.Ticket
	category      *string
	urgency       *string
	summary       *string
	draftResponse *string
	confidence    *string
	escalation    *bool
	analysisError *string
	fixSteps      []string
}

// scan reads one row; fixSteps receives the driver-specific fix_steps column.
func (r *ticketRow) scan(row rowScanner, fixSteps any) error {
	t := &r.ticket
	return row.Scan(
		&t.ID,
		&t.MessageID,
		&t.SenderEmail,
		&t.SenderName,
		&t.Subject,
		&t.Body,
		&t.ReceivedAt,
		&t.Status,
		&r.category,
		&r.urgency,
		&r.summary,
		fixSteps,
		&r.draftResponse,
		&r.confidence,
		&r.escalation,
		&r.analysisError,
		&t.ApprovedResponse,
		&t.ApprovedBy,
		&t.ApprovedAt,
		&t.RejectedReason,
		&t.RejectedAt,
		&t.SentAt,
		&t.LastDispatchError,
		&t.DispatchAttempts,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}

func (r *ticketRow) toDomain() *domain.Ticket {
	t := r.ticket
	if r.category != nil {
		a := domain.Analysis{
			Category: domain.Category(*r.category),
			FixSteps: r.fixSteps,
		}
		if r.urgency != nil {
			a.Urgency = domain.Urgency(*r.urgency)
		}
		if r.summary != nil {
			a.Summary = *r.summary
		}
		if r.draftResponse != nil {
			a.DraftResponse = *r.draftResponse
		}
		if r.confidence != nil {
			a.Confidence = domain.Confidence(*r.confidence)
		}
		if r.escalation != nil {
			a.EscalationRequired = *r.escalation
		}
		if r.analysisError != nil {
			a.Error = *r.analysisError
		}
		t.Analysis = &a
	}
	normalizeTimes(&t)
	return &t
}

// analysisValues flattens an optional analysis into column values.
type analysisValues struct {
	category      *string
	urgency       *string
	summary       *string
	draftResponse *string
	confidence    *string
	escalation    *bool
	analysisError *string
	fixSteps      []string
}

func newAnalysisValues(a *domain.Analysis) analysisValues {
	if a == nil {
		return analysisValues{}
	}
	category := string(a.Category)
	urgency := string(a.Urgency)
	confidence := string(a.Confidence)
	v := analysisValues{
		category:      &category,
		urgency:       &urgency,
		summary:       &a.Summary,
		draftResponse: &a.DraftResponse,
		confidence:    &confidence,
		escalation:    &a.EscalationRequired,
		fixSteps:      a.FixSteps,
	}
	if a.Error != "" {
		v.analysisError = &a.Error
	}
	if v.fixSteps == nil {
		v.fixSteps = []string{}
	}
	return v
}

func normalizeTimes(t *domain.Ticket) {
	t.ReceivedAt = t.ReceivedAt.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	for _, p := range []*time.Time{t.ApprovedAt, t.RejectedAt, t.SentAt} {
		if p != nil {
			*p = p.UTC()
		}
	}
}
