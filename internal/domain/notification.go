package domain

import (
	"encoding/json"
	"time"
)

// NotificationType identifies what produced a notification.
type NotificationType string

const (
	NotificationTypeQualityReport NotificationType = "quality_report"
)

// Notification is a message addressed to a single user. Only IsRead ever changes.
type Notification struct {
	ID         string
	UserID     string
	Type       NotificationType
	Title      string
	Content    string
	Response   string
	ReportID   *string
	TicketID   *string
	Score      *int
	ReportData json.RawMessage
	IsRead     bool
	CreatedAt  time.Time
}
