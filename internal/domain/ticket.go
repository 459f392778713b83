package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew             TicketStatus = "new"
	TicketStatusAnalyzed        TicketStatus = "analyzed"
	TicketStatusPendingApproval TicketStatus = "pending_approval"
	TicketStatusApproved        TicketStatus = "approved"
	TicketStatusRejected        TicketStatus = "rejected"
	TicketStatusSent            TicketStatus = "sent"
)

// AllTicketStatuses lists every status known to the schema, in lifecycle order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusAnalyzed,
	TicketStatusPendingApproval,
	TicketStatusApproved,
	TicketStatusRejected,
	TicketStatusSent,
}

// Analyzed is kept for schema compatibility only; ingestion moves New
// straight to PendingApproval, so nothing transitions into or out of it.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusNew:             {TicketStatusPendingApproval},
	TicketStatusAnalyzed:        {},
	TicketStatusPendingApproval: {TicketStatusApproved, TicketStatusRejected},
	TicketStatusApproved:        {TicketStatusSent},
	TicketStatusRejected:        {},
	TicketStatusSent:            {},
}

// CanTransition reports whether the lifecycle allows moving from current to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseTicketStatus validates a status string.
func ParseTicketStatus(s string) (TicketStatus, error) {
	status := TicketStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := allowedTransitions[status]; !ok {
		return "", fmt.Errorf("unknown ticket status %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no further transition is possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusSent || s == TicketStatusRejected
}

var (
	// ErrInvalidTransition matches every *TransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrEmptyResponse is returned when an approval carries no reply text.
	ErrEmptyResponse = errors.New("approved response text is required")
	// ErrMissingApprover is returned when an approval carries no approver identity.
	ErrMissingApprover = errors.New("approver identity is required")
	// ErrIncompleteAnalysis is returned when a classification result is missing fields.
	ErrIncompleteAnalysis = errors.New("analysis is incomplete")
)

// TransitionError describes a rejected lifecycle move.
type TransitionError struct {
	TicketID string
	From     TicketStatus
	To       TicketStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ticket %s: cannot move from %s to %s", e.TicketID, e.From, e.To)
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Ticket is the aggregate for one inbound support message.
type Ticket struct {
	ID          string
	MessageID   *string
	SenderEmail string
	SenderName  string
	Subject     string
	Body        string
	ReceivedAt  time.Time
	Status      TicketStatus
	Analysis    *Analysis

	ApprovedResponse *string
	ApprovedBy       *string
	ApprovedAt       *time.Time
	RejectedReason   *string
	RejectedAt       *time.Time

	SentAt            *time.Time
	LastDispatchError *string
	DispatchAttempts  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTicketID returns a date-stamped identifier such as TKT-20250114-3F9A1C2B.
func NewTicketID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("TKT-%s-%s", now.UTC().Format("20060102"), suffix)
}

// IntakeFacts holds the immutable facts parsed from an inbound message.
type IntakeFacts struct {
	MessageID   string
	SenderEmail string
	SenderName  string
	Subject     string
	Body        string
	ReceivedAt  time.Time
}

// NewTicket builds a ticket in the New state.
func NewTicket(facts IntakeFacts, now time.Time) *Ticket {
	t := &Ticket{
		ID:          NewTicketID(now),
		SenderEmail: facts.SenderEmail,
		SenderName:  facts.SenderName,
		Subject:     facts.Subject,
		Body:        facts.Body,
		ReceivedAt:  facts.ReceivedAt,
		Status:      TicketStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if facts.MessageID != "" {
		id := facts.MessageID
		t.MessageID = &id
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = now
	}
	return t
}

func (t *Ticket) transition(next TicketStatus) error {
	if !CanTransition(t.Status, next) {
		return &TransitionError{TicketID: t.ID, From: t.Status, To: next}
	}
	t.Status = next
	return nil
}

// AttachAnalysis stores a complete classification and queues the ticket for approval.
func (t *Ticket) AttachAnalysis(analysis Analysis, now time.Time) error {
	if err := analysis.Validate(); err != nil {
		return err
	}
	if err := t.transition(TicketStatusPendingApproval); err != nil {
		return err
	}
	t.Analysis = &analysis
	t.UpdatedAt = now
	return nil
}

// Approve authorizes responseText for delivery on behalf of approver.
func (t *Ticket) Approve(responseText, approver string, now time.Time) error {
	if strings.TrimSpace(responseText) == "" {
		return ErrEmptyResponse
	}
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return ErrMissingApprover
	}
	if err := t.transition(TicketStatusApproved); err != nil {
		return err
	}
	t.ApprovedResponse = &responseText
	t.ApprovedBy = &approver
	t.ApprovedAt = &now
	t.UpdatedAt = now
	return nil
}

// Reject closes the ticket without a reply.
func (t *Ticket) Reject(reason string, now time.Time) error {
	if err := t.transition(TicketStatusRejected); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	t.RejectedReason = &reason
	t.RejectedAt = &now
	t.UpdatedAt = now
	return nil
}

// MarkSent records a successful delivery of the approved response.
func (t *Ticket) MarkSent(now time.Time) error {
	if err := t.transition(TicketStatusSent); err != nil {
		return err
	}
	t.SentAt = &now
	t.LastDispatchError = nil
	t.DispatchAttempts++
	t.UpdatedAt = now
	return nil
}

// MarkDispatchFailed records a failed delivery attempt; the ticket stays Approved.
func (t *Ticket) MarkDispatchFailed(cause string, now time.Time) error {
	if t.Status != TicketStatusApproved {
		return &TransitionError{TicketID: t.ID, From: t.Status, To: TicketStatusApproved}
	}
	t.LastDispatchError = &cause
	t.DispatchAttempts++
	t.UpdatedAt = now
	return nil
}

// CheckInvariants verifies that the decision and dispatch fields agree with Status.
func (t *Ticket) CheckInvariants() error {
	approvedLike := t.Status == TicketStatusApproved || t.Status == TicketStatusSent
	switch {
	case approvedLike != (t.ApprovedResponse != nil):
		return fmt.Errorf("ticket %s: approved_response present=%t with status %s", t.ID, t.ApprovedResponse != nil, t.Status)
	case (t.Status == TicketStatusSent) != (t.SentAt != nil):
		return fmt.Errorf("ticket %s: sent_at present=%t with status %s", t.ID, t.SentAt != nil, t.Status)
	case t.RejectedReason != nil && t.Status != TicketStatusRejected:
		return fmt.Errorf("ticket %s: rejected_reason set with status %s", t.ID, t.Status)
	case t.Status != TicketStatusNew && t.Analysis == nil:
		return fmt.Errorf("ticket %s: status %s without analysis", t.ID, t.Status)
	}
	return nil
}
