package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketIngested       EventType = "ticket.ingested"
	EventTicketApproved       EventType = "ticket.approved"
	EventTicketRejected       EventType = "ticket.rejected"
	EventTicketSent           EventType = "ticket.sent"
	EventTicketDispatchFailed EventType = "ticket.dispatch_failed"
)

// AllEventTypes lists every lifecycle event.
var AllEventTypes = []EventType{
	EventTicketIngested,
	EventTicketApproved,
	EventTicketRejected,
	EventTicketSent,
	EventTicketDispatchFailed,
}

// Actor identifies who caused an event. Automated steps use "system".
type Actor struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
}

// SystemActor is used for ingestion and scheduled work.
var SystemActor = Actor{Type: "system"}

// OperatorActor is used for approval gate and manual dispatch commands.
func OperatorActor(email string) Actor {
	return Actor{Type: "operator", Email: email}
}

// Event represents a lifecycle event emitted by services.
type Event struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	TicketID  string              `json:"ticket_id"`
	Status    domain.TicketStatus `json:"status"`
	Actor     Actor               `json:"actor"`
	Timestamp time.Time           `json:"timestamp"`
	Payload   any                 `json:"payload,omitempty"`
}

// TicketIngestedPayload payload.
type TicketIngestedPayload struct {
	SenderEmail        string          `json:"sender_email"`
	Subject            string          `json:"subject"`
	Category           domain.Category `json:"category"`
	Urgency            domain.Urgency  `json:"urgency"`
	EscalationRequired bool            `json:"escalation_required"`
	Degraded           bool            `json:"degraded"`
	Manual             bool            `json:"manual"`
}

// TicketApprovedPayload payload.
type TicketApprovedPayload struct {
	ApprovedBy    string `json:"approved_by"`
	EditedByHuman bool   `json:"edited_by_human"`
}

// TicketRejectedPayload payload.
type TicketRejectedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// TicketSentPayload payload.
type TicketSentPayload struct {
	Recipient string `json:"recipient"`
	Attempts  int    `json:"attempts"`
}

// TicketDispatchFailedPayload payload.
type TicketDispatchFailedPayload struct {
	Recipient string `json:"recipient"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}
