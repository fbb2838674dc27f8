package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated           EventType = "ticket_created"
	EventTicketStatusChanged     EventType = "ticket_status_changed"
	EventTicketAssigned          EventType = "ticket_assigned"
	EventTicketPriorityEscalated EventType = "ticket_priority_escalated"
	EventTicketResponseAdded     EventType = "ticket_response_added"
	EventQualityReportCreated    EventType = "quality_report_created"
)

// Actor identifies who caused an event. UserID is nil for system actions.
type Actor struct {
	UserID *string `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OwnerID  string                `json:"owner_id"`
	Priority domain.TicketPriority `json:"priority"`
	Category string                `json:"category,omitempty"`
	Source   domain.TicketSource   `json:"source"`
	Title    string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID         string  `json:"agent_id"`
	PreviousAgentID *string `json:"previous_agent_id,omitempty"`
	Score           int     `json:"score"`
}

// TicketPriorityEscalatedPayload payload.
type TicketPriorityEscalatedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	Reason      string                `json:"reason,omitempty"`
}

// TicketResponseAddedPayload payload.
type TicketResponseAddedPayload struct {
	ResponseID  string `json:"response_id"`
	AgentID     string `json:"agent_id"`
	BodyPreview string `json:"body_preview"`
}

// QualityReportCreatedPayload carries the stored notification so that
// subscribers can deliver it without reading it back.
type QualityReportCreatedPayload struct {
	CheckID      string              `json:"check_id"`
	Score        float64             `json:"score"`
	Rating       float64             `json:"rating"`
	FallbackUsed bool                `json:"fallback_used"`
	Notification domain.Notification `json:"notification"`
}
