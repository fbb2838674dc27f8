package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateTicketInput
	}{
		{"missing title", CreateTicketInput{Content: "x", OwnerID: "o"}},
		{"blank content", CreateTicketInput{Title: "x", Content: "   ", OwnerID: "o"}},
		{"missing owner", CreateTicketInput{Title: "x", Content: "y"}},
		{"unknown priority", CreateTicketInput{Title: "x", Content: "y", OwnerID: "o", Priority: "critical"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.workflow.CreateTicket(ctx, tt.input)
			assert.True(t, apperrors.IsValidation(err), "got %v", err)
		})
	}
	all, err := env.workflow.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, all.Total)
}

func TestCreateTicketExplicitFieldsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.workflow.CreateTicket(ctx, CreateTicketInput{
		Title:    "Refund",
		Content:  "low priority question about my login",
		OwnerID:  "owner-1",
		Priority: "URGENT",
		Category: "Billing",
		Source:   "employee_created",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, created.Priority)
	assert.Equal(t, "billing", created.Category)
	assert.Equal(t, domain.TicketSourceEmployeeCreated, created.Source)
	assert.Equal(t, testEpoch, created.CreatedAt)
	assert.Zero(t, env.enhancer.calls)

	detail, err := env.workflow.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Priority, detail.Ticket.Priority)
	assert.Equal(t, created.Category, detail.Ticket.Category)
	assert.Equal(t, domain.TicketStatusPending, detail.Ticket.Status)
	assert.Empty(t, detail.Responses)
}

func TestCreateTicketUsesEnhancerForOtherSources(t *testing.T) {
	env := newTestEnv(t)
	env.enhancer.enhancement = &Enhancement{Category: "account", Auxiliary: map[string]any{MetaIssueType: "lockout"}}

	ticket, err := env.workflow.CreateTicket(context.Background(), CreateTicketInput{
		Title:   "Locked out",
		Content: "I cannot get in since this morning",
		OwnerID: "owner-1",
		Source:  "chatbot",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.enhancer.calls)
	assert.Equal(t, domain.TicketSourceTransferred, ticket.Source)
	assert.Equal(t, "account", ticket.Category)
	assert.Equal(t, "lockout", ticket.Metadata[MetaIssueType])
	assert.Equal(t, "enhanced", ticket.Metadata[MetaExtraction])
}

func TestCreateTicketSurvivesEnhancerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.enhancer.enhancement = nil
	env.enhancer.err = errors.New("connection refused")

	ticket, err := env.workflow.CreateTicket(context.Background(), CreateTicketInput{
		Title:   "VPN",
		Content: "urgent: vpn network unreachable",
		OwnerID: "owner-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)
	assert.Equal(t, "technical", ticket.Category)
	assert.Equal(t, "keyword", ticket.Metadata[MetaExtraction])
}

func TestCreateTicketPublishesAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")

	ticket, err := env.workflow.CreateTicket(context.Background(), CreateTicketInput{
		Title:   "Crash",
		Content: "software crash",
		OwnerID: "owner-1",
		Source:  "employee",
	})
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
	}, env.recorder.types())
	for _, e := range env.recorder.events {
		assert.Equal(t, ticket.ID, e.TicketID)
		assert.NotEmpty(t, e.ID)
	}
}

func TestCreateTicketRollsBackOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
	env.store.FailOn(memory.OpHistoryCreate, errors.New("disk full"))

	_, err := env.workflow.CreateTicket(ctx, CreateTicketInput{
		Title:   "Crash",
		Content: "software crash",
		OwnerID: "owner-1",
		Source:  "employee",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))

	stats, err := env.workflow.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Empty(t, env.recorder.types())
}

func TestCloseWithoutQualityCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedTicket(t, "t-1", domain.TicketStatusPending, testEpoch, nil)
	env.clock.Advance(2 * time.Hour)

	result, err := env.workflow.Close(ctx, "t-1", CloseTicketInput{AgentID: "agent-1", SkipQualityCheck: true})
	require.NoError(t, err)
	assert.Nil(t, result.Quality)
	assert.Equal(t, domain.TicketStatusClosed, result.Ticket.Status)
	require.NotNil(t, result.Ticket.ResolvedAt)
	assert.Equal(t, testEpoch.Add(2*time.Hour), *result.Ticket.ResolvedAt)

	checks, err := env.store.QualityChecks().ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, checks)
	assert.Zero(t, env.evaluator.calls)
	assert.Empty(t, env.sink.delivered)
}

func TestCloseRollsBackWhenNotificationFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedTicket(t, "t-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-1"))
	env.store.FailOn(memory.OpNotificationCreate, errors.New("constraint violation"))

	_, err := env.workflow.Close(ctx, "t-1", CloseTicketInput{AgentID: "agent-1", Reply: "fixed"})
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))

	stored, err := env.store.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusProcessing, stored.Status)
	assert.Nil(t, stored.ResolvedAt)

	responses, err := env.store.Responses().ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, responses)
	checks, err := env.store.QualityChecks().ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, checks)
	history, err := env.store.History().ListByTicket(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Empty(t, env.recorder.types())
	assert.Empty(t, env.sink.delivered)
}

func TestCloseSucceedsWhenSinkFails(t *testing.T) {
	env := newTestEnv(t)
	env.sink.err = errors.New("redis down")
	env.seedTicket(t, "t-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-1"))

	result, err := env.workflow.Close(context.Background(), "t-1", CloseTicketInput{AgentID: "agent-1"})
	require.NoError(t, err)
	require.NotNil(t, result.Quality)

	inbox, err := env.engine.Notifications.UnreadCount(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 1, inbox)
}

func TestResolveAppendsResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedTicket(t, "t-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-1"))

	ticket, err := env.workflow.Resolve(ctx, "t-1", "agent-1", "  reseated the cable  ")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.Nil(t, ticket.ResolvedAt)

	detail, err := env.workflow.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, detail.Responses, 1)
	assert.Equal(t, "reseated the cable", detail.Responses[0].Content)
	assert.Equal(t, "agent-1", detail.Responses[0].AgentID)
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")

	ticket, err := env.workflow.CreateTicket(ctx, CreateTicketInput{
		Title:   "Screen flicker",
		Content: "hardware issue with my monitor",
		OwnerID: "owner-1",
		Source:  "employee",
	})
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusProcessing, ticket.Status)

	_, err = env.workflow.Respond(ctx, ticket.ID, "agent-a", "Swapping the cable now")
	require.NoError(t, err)
	_, err = env.workflow.Resolve(ctx, ticket.ID, "agent-a", "")
	require.NoError(t, err)
	reopened, err := env.workflow.Reopen(ctx, ticket.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusReopened, reopened.Status)
	_, err = env.workflow.Process(ctx, ticket.ID, "agent-a")
	require.NoError(t, err)
	closed, err := env.workflow.Close(ctx, ticket.ID, CloseTicketInput{AgentID: "agent-a", Reply: "Replaced monitor"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Ticket.Status)
	assert.Equal(t, 100.0, closed.Quality.Check.BaseScore)

	detail, err := env.workflow.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Responses, 2)
	assert.Equal(t, "agent-a", *detail.Ticket.AssignedAgentID)
}

func TestRespondValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.workflow.Respond(context.Background(), "t-1", "agent-1", " ")
	assert.True(t, apperrors.IsValidation(err))

	_, err = env.workflow.Respond(context.Background(), "missing", "agent-1", "hello")
	assert.True(t, apperrors.IsNotFound(err))
}
