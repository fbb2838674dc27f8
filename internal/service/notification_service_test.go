package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func seedNotifications(t *testing.T, store *memory.Store, userID string, titles ...string) []domain.Notification {
	t.Helper()
	out := make([]domain.Notification, 0, len(titles))
	for _, title := range titles {
		n := domain.Notification{UserID: userID, Type: domain.NotificationTypeQualityReport, Title: title, CreatedAt: testEpoch}
		require.NoError(t, store.Notifications().Create(context.Background(), &n))
		out = append(out, n)
	}
	return out
}

func TestNotificationInbox(t *testing.T) {
	store := memory.NewStore()
	svc := NewNotificationService(NotificationServiceDependencies{NotificationRepo: store.Notifications()})
	ctx := context.Background()
	seeded := seedNotifications(t, store, "user-1", "first", "second", "third")
	seedNotifications(t, store, "user-2", "other")

	items, err := svc.List(ctx, "user-1", repository.NotificationFilter{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "third", items[0].Title)

	count, err := svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.MarkRead(ctx, seeded[0].ID, "user-1"))
	count, err = svc.UnreadCount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	unread, err := svc.List(ctx, "user-1", repository.NotificationFilter{UnreadOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "third", unread[0].Title)

	err = svc.MarkRead(ctx, seeded[1].ID, "user-2")
	assert.True(t, apperrors.IsNotFound(err))

	empty, err := svc.List(ctx, "nobody", repository.NotificationFilter{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestNotificationDeliveryDisabled(t *testing.T) {
	sink := &fakeSink{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	svc := NewNotificationService(NotificationServiceDependencies{
		Sink:       sink,
		Dispatcher: dispatcher,
		Config:     config.NotificationConfig{Enabled: false},
	})
	svc.RegisterHandlers()

	err := dispatcher.Publish(context.Background(), events.Event{
		Type:    events.EventQualityReportCreated,
		Payload: events.QualityReportCreatedPayload{Notification: domain.Notification{ID: "n-1", UserID: "user-1"}},
	})
	require.NoError(t, err)
	assert.Empty(t, sink.delivered)
}

func TestNotificationDeliveryFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	svc := NewNotificationService(NotificationServiceDependencies{
		Sink:   sink,
		Config: config.NotificationConfig{Enabled: true},
	})

	err := svc.handleQualityReportCreated(context.Background(), events.Event{
		Type:    events.EventQualityReportCreated,
		Payload: events.QualityReportCreatedPayload{Notification: domain.Notification{ID: "n-1", UserID: "user-1"}},
	})
	assert.NoError(t, err)

	err = svc.handleQualityReportCreated(context.Background(), events.Event{
		Type:    events.EventQualityReportCreated,
		Payload: "not a payload",
	})
	assert.Error(t, err)
}

func TestNotificationMessage(t *testing.T) {
	score := 34
	ticketID := "t-1"
	msg := NewNotificationMessage(domain.Notification{
		ID:         "n-1",
		UserID:     "user-1",
		Type:       domain.NotificationTypeQualityReport,
		Title:      "Quality report",
		TicketID:   &ticketID,
		Score:      &score,
		ReportData: json.RawMessage(`{"rating":3.4}`),
		CreatedAt:  testEpoch,
	})
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, string(domain.NotificationTypeQualityReport), decoded["type"])
	assert.Equal(t, "t-1", decoded["ticket_id"])
	assert.EqualValues(t, 34, decoded["score"])
	assert.Equal(t, map[string]any{"rating": 3.4}, decoded["report"])
	assert.NotContains(t, decoded, "report_id")

	sink := NewRedisNotificationSink(nil, "notifications:")
	assert.Equal(t, "notifications:user-1", sink.Channel("user-1"))
}
