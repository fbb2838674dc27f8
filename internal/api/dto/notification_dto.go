package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// NotificationResponse renders a notification.
type NotificationResponse struct {
	ID         string                  `json:"id"`
	Type       domain.NotificationType `json:"type"`
	Title      string                  `json:"title"`
	Content    string                  `json:"content"`
	Response   string                  `json:"response,omitempty"`
	TicketID   *string                 `json:"ticket_id"`
	ReportID   *string                 `json:"report_id"`
	Score      *int                    `json:"score"`
	ReportData json.RawMessage         `json:"report_data,omitempty"`
	IsRead     bool                    `json:"is_read"`
	CreatedAt  time.Time               `json:"created_at"`
}

// UnreadCountResponse carries the unread badge count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}
