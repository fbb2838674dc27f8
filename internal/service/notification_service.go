package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// NotificationSink delivers a stored notification to its recipient.
type NotificationSink interface {
	Deliver(ctx context.Context, notification domain.Notification) error
}

// NopNotificationSink drops every notification.
type NopNotificationSink struct{}

// Deliver implements NotificationSink.
func (NopNotificationSink) Deliver(context.Context, domain.Notification) error { return nil }

// NotificationMessage is the JSON body published for a notification.
type NotificationMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   string          `json:"content"`
	TicketID  *string         `json:"ticket_id,omitempty"`
	ReportID  *string         `json:"report_id,omitempty"`
	Score     *int            `json:"score,omitempty"`
	Report    json.RawMessage `json:"report,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewNotificationMessage renders n for publication.
func NewNotificationMessage(n domain.Notification) NotificationMessage {
	return NotificationMessage{
		Type:      string(n.Type),
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		TicketID:  n.TicketID,
		ReportID:  n.ReportID,
		Score:     n.Score,
		Report:    n.ReportData,
		CreatedAt: n.CreatedAt,
	}
}

// RedisNotificationSink publishes notifications on a per-user channel.
type RedisNotificationSink struct {
	client *redis.Client
	prefix string
}

// NewRedisNotificationSink builds a sink publishing to prefix+userID.
func NewRedisNotificationSink(client *redis.Client, prefix string) *RedisNotificationSink {
	return &RedisNotificationSink{client: client, prefix: prefix}
}

// Channel returns the channel a user's notifications go to.
func (s *RedisNotificationSink) Channel(userID string) string {
	return s.prefix + userID
}

// Deliver implements NotificationSink.
func (s *RedisNotificationSink) Deliver(ctx context.Context, notification domain.Notification) error {
	body, err := json.Marshal(NewNotificationMessage(notification))
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(notification.UserID), body).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// NotificationService delivers quality reports and serves a user's inbox.
type NotificationService struct {
	repo       repository.NotificationRepository
	sink       NotificationSink
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NotificationServiceDependencies bundles collaborators for the service.
type NotificationServiceDependencies struct {
	NotificationRepo repository.NotificationRepository
	Sink             NotificationSink
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Config           config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationServiceDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := deps.Sink
	if sink == nil || !deps.Config.Enabled {
		sink = NopNotificationSink{}
	}
	return &NotificationService{
		repo:       deps.NotificationRepo,
		sink:       sink,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        deps.Config,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventQualityReportCreated, n.handleQualityReportCreated)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketPriorityEscalated, n.logEvent)
	n.dispatcher.Subscribe(events.EventTicketResponseAdded, n.logEvent)
}

// handleQualityReportCreated hands the stored notification to the sink.
// Delivery failures are logged only; the notification stays in the inbox.
func (n *NotificationService) handleQualityReportCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.QualityReportCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if err := n.sink.Deliver(ctx, payload.Notification); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("notification_id", payload.Notification.ID),
			zap.Error(err))
		return nil
	}
	n.logger.Debug("notification delivered",
		zap.String("ticket_id", event.TicketID),
		zap.String("user_id", payload.Notification.UserID))
	return nil
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("ticket_id", event.TicketID),
		zap.Any("payload", event.Payload))
	return nil
}

// List returns a page of userID's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, userID string, filter repository.NotificationFilter) ([]domain.Notification, error) {
	items, err := n.repo.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list notifications", err)
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

// MarkRead flags one of userID's notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	if err := n.repo.MarkRead(ctx, notificationID, userID); err != nil {
		return storeError("mark notification read", "notification", notificationID, err)
	}
	return nil
}

// UnreadCount returns how many of userID's notifications are unread.
func (n *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := n.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.NewPersistenceError("count unread notifications", err)
	}
	return count, nil
}
