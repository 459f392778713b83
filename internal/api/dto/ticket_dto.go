package dto

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/service"
)

// CreateTicketRequest submits a ticket without a mailbox.
type CreateTicketRequest struct {
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
}

// ApproveRequest payload. ResponseText may differ from the draft.
type ApproveRequest struct {
	ResponseText string `json:"response_text"`
}

// RejectRequest payload.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// AnalysisResponse is the classification attached to a ticket.
type AnalysisResponse struct {
	Category           domain.Category   `json:"category"`
	Urgency            domain.Urgency    `json:"urgency"`
	Summary            string            `json:"summary"`
	FixSteps           []string          `json:"fix_steps"`
	DraftResponse      string            `json:"draft_response"`
	Confidence         domain.Confidence `json:"confidence"`
	EscalationRequired bool              `json:"escalation_required"`
	Error              string            `json:"error,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                 string              `json:"id"`
	SenderEmail        string              `json:"sender_email"`
	SenderName         string              `json:"sender_name"`
	Subject            string              `json:"subject"`
	Status             domain.TicketStatus `json:"status"`
	Category           *domain.Category    `json:"category"`
	Urgency            *domain.Urgency     `json:"urgency"`
	EscalationRequired bool                `json:"escalation_required"`
	ReceivedAt         time.Time           `json:"received_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID                string              `json:"id"`
	MessageID         *string             `json:"message_id"`
	SenderEmail       string              `json:"sender_email"`
	SenderName        string              `json:"sender_name"`
	Subject           string              `json:"subject"`
	Body              string              `json:"body"`
	ReceivedAt        time.Time           `json:"received_at"`
	Status            domain.TicketStatus `json:"status"`
	Analysis          *AnalysisResponse   `json:"analysis"`
	ApprovedResponse  *string             `json:"approved_response"`
	ApprovedBy        *string             `json:"approved_by"`
	ApprovedAt        *time.Time          `json:"approved_at"`
	RejectedReason    *string             `json:"rejected_reason"`
	RejectedAt        *time.Time          `json:"rejected_at"`
	SentAt            *time.Time          `json:"sent_at"`
	LastDispatchError *string             `json:"last_dispatch_error"`
	DispatchAttempts  int                 `json:"dispatch_attempts"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TicketStatsResponse counts tickets per status.
type TicketStatsResponse struct {
	ByStatus map[domain.TicketStatus]int `json:"by_status"`
	Total    int                         `json:"total"`
}

// IngestionResponse summarizes a fetch run.
type IngestionResponse struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	TicketIDs []string `json:"ticket_ids"`
	Errors    []string `json:"errors"`
}

// DispatchFailureResponse names one ticket that was not sent.
type DispatchFailureResponse struct {
	TicketID string `json:"ticket_id"`
	Error    string `json:"error"`
}

// DispatchSummaryResponse aggregates a batch send.
type DispatchSummaryResponse struct {
	Sent   int                       `json:"sent"`
	Failed int                       `json:"failed"`
	Errors []DispatchFailureResponse `json:"errors"`
}

// NewTicketSummary maps a ticket for list views.
func NewTicketSummary(t *domain.Ticket) TicketSummary {
	out := TicketSummary{
		ID:          t.ID,
		SenderEmail: t.SenderEmail,
		SenderName:  t.SenderName,
		Subject:     t.Subject,
		Status:      t.Status,
		ReceivedAt:  t.ReceivedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Analysis != nil {
		category, urgency := t.Analysis.Category, t.Analysis.Urgency
		out.Category = &category
		out.Urgency = &urgency
		out.EscalationRequired = t.Analysis.EscalationRequired
	}
	return out
}

// NewTicketDetail maps a ticket with every lifecycle field.
func NewTicketDetail(t *domain.Ticket) TicketDetailResponse {
	out := TicketDetailResponse{
		ID:                t.ID,
		MessageID:         t.MessageID,
		SenderEmail:       t.SenderEmail,
		SenderName:        t.SenderName,
		Subject:           t.Subject,
		Body:              t.Body,
		ReceivedAt:        t.ReceivedAt,
		Status:            t.Status,
		ApprovedResponse:  t.ApprovedResponse,
		ApprovedBy:        t.ApprovedBy,
		ApprovedAt:        t.ApprovedAt,
		RejectedReason:    t.RejectedReason,
		RejectedAt:        t.RejectedAt,
		SentAt:            t.SentAt,
		LastDispatchError: t.LastDispatchError,
		DispatchAttempts:  t.DispatchAttempts,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if a := t.Analysis; a != nil {
		steps := a.FixSteps
		if steps == nil {
			steps = []string{}
		}
		out.Analysis = &AnalysisResponse{
			Category:           a.Category,
			Urgency:            a.Urgency,
			Summary:            a.Summary,
			FixSteps:           steps,
			DraftResponse:      a.DraftResponse,
			Confidence:         a.Confidence,
			EscalationRequired: a.EscalationRequired,
			Error:              a.Error,
		}
	}
	return out
}

// NewTicketStats maps service stats.
func NewTicketStats(s *service.TicketStats) TicketStatsResponse {
	return TicketStatsResponse{ByStatus: s.ByStatus, Total: s.Total}
}

// NewIngestionResponse maps an ingestion result, never emitting null lists.
func NewIngestionResponse(r *service.IngestionResult) IngestionResponse {
	out := IngestionResponse{
		Processed: r.Processed,
		Skipped:   r.Skipped,
		TicketIDs: r.TicketIDs,
		Errors:    r.Errors,
	}
	if out.TicketIDs == nil {
		out.TicketIDs = []string{}
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return out
}

// NewDispatchSummary maps a batch dispatch summary.
func NewDispatchSummary(s *service.DispatchSummary) DispatchSummaryResponse {
	out := DispatchSummaryResponse{Sent: s.Sent, Failed: s.Failed, Errors: []DispatchFailureResponse{}}
	for _, f := range s.Errors {
		out.Errors = append(out.Errors, DispatchFailureResponse{TicketID: f.TicketID, Error: f.Error})
	}
	return out
}
