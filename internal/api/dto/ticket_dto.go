package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload. Priority, Category and Source are optional.
type CreateTicketRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

// ResolveTicketRequest payload.
type ResolveTicketRequest struct {
	Resolution string `json:"resolution"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Reply            string `json:"reply"`
	SkipQualityCheck bool   `json:"skip_quality_check"`
}

// RespondTicketRequest payload.
type RespondTicketRequest struct {
	Content string `json:"content"`
}

// EscalateTicketRequest payload.
type EscalateTicketRequest struct {
	Reason string `json:"reason"`
}

// TicketResponse is the rendered ticket.
type TicketResponse struct {
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Content         string                `json:"content"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	Source          domain.TicketSource   `json:"source"`
	UserID          string                `json:"user_id"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	Category        *string               `json:"category"`
	Metadata        map[string]any        `json:"metadata"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
}

// TicketDetailResponse is a ticket with its reply thread.
type TicketDetailResponse struct {
	TicketResponse
	Responses []TicketReplyResponse `json:"responses"`
}

// TicketReplyResponse represents an agent reply.
type TicketReplyResponse struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	AgentID   string    `json:"agent_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentResponse is the agent picked by an assignment.
type AgentResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Department string `json:"department"`
}

// QualityReportResponse summarises a quality check.
type QualityReportResponse struct {
	CheckID        string   `json:"check_id"`
	TicketID       string   `json:"ticket_id"`
	Score          float64  `json:"score"`
	BaseScore      float64  `json:"base_score"`
	ExternalScore  float64  `json:"external_score"`
	Rating         float64  `json:"rating"`
	FallbackUsed   bool     `json:"fallback_used"`
	Comments       []string `json:"comments"`
	Suggestions    []string `json:"suggestions"`
	NotificationID string   `json:"notification_id"`
}

// CloseTicketResponse is the closed ticket and its report, if one ran.
type CloseTicketResponse struct {
	Ticket  TicketResponse         `json:"ticket"`
	Quality *QualityReportResponse `json:"quality,omitempty"`
}
