package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		active    int
		expertise int
		want      int
	}{
		{"idle baseline", 0, 3, 160},
		{"busy expert", 4, 5, 160},
		{"workload capped at ten", 25, 3, 60},
		{"negative workload treated as idle", -2, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.active, tt.expertise))
		})
	}
}

func TestScoreMonotonicity(t *testing.T) {
	for expertise := 0; expertise <= 5; expertise++ {
		for active := 0; active < 15; active++ {
			assert.LessOrEqual(t, Score(active+1, expertise), Score(active, expertise))
			assert.Greater(t, Score(active, expertise+1), Score(active, expertise))
		}
	}
}

func TestSelectBestKeepsFirstOnTie(t *testing.T) {
	env := newTestEnv(t)
	assigner := NewAgentAssigner(AgentAssignerDependencies{Rules: env.rules})
	ticket := &domain.Ticket{Priority: domain.TicketPriorityMedium}

	best := assigner.SelectBest(ticket, []AgentCandidate{
		{Agent: domain.User{ID: "a"}, ActiveTickets: 1},
		{Agent: domain.User{ID: "b"}, ActiveTickets: 1},
		{Agent: domain.User{ID: "c"}, ActiveTickets: 2},
	})
	require.NotNil(t, best)
	assert.Equal(t, "a", best.Agent.ID)
	assert.Equal(t, 150, best.Score)
}

func TestExpertiseByPriority(t *testing.T) {
	env := newTestEnv(t)
	assigner := NewAgentAssigner(AgentAssignerDependencies{Rules: env.rules})
	tech := domain.User{Department: "技术支持"}
	finance := domain.User{Department: "财务"}

	assert.Equal(t, 5, assigner.Expertise(tech, domain.TicketPriorityUrgent))
	assert.Equal(t, 4, assigner.Expertise(tech, domain.TicketPriorityHigh))
	assert.Equal(t, 3, assigner.Expertise(tech, domain.TicketPriorityMedium))
	assert.Equal(t, 3, assigner.Expertise(finance, domain.TicketPriorityUrgent))
}

func TestCreateTicketAssignsSpecialist(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
	env.addUser(t, "agent-b", domain.UserRoleAgent, "财务")

	ticket, err := env.workflow.CreateTicket(context.Background(), CreateTicketInput{
		Title:   "Laptop crash",
		Content: "软件系统报错，请技术人员处理",
		OwnerID: "owner-1",
		Source:  "employee",
	})
	require.NoError(t, err)
	assert.Equal(t, "technical", ticket.Category)
	assert.Equal(t, domain.TicketStatusProcessing, ticket.Status)
	require.NotNil(t, ticket.AssignedAgentID)
	assert.Equal(t, "agent-a", *ticket.AssignedAgentID)
}

func TestCreateTicketPrefersLighterLoad(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
	env.addUser(t, "agent-b", domain.UserRoleAgent, "技术客服")
	env.seedTicket(t, "busy-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-a"))
	env.seedTicket(t, "busy-2", domain.TicketStatusReopened, testEpoch, strPtr("agent-a"))
	env.seedTicket(t, "old", domain.TicketStatusClosed, testEpoch, strPtr("agent-b"))

	ticket, err := env.workflow.CreateTicket(context.Background(), CreateTicketInput{
		Title:    "Network down",
		Content:  "network outage in building B",
		OwnerID:  "owner-1",
		Category: "technical",
		Source:   "employee_created",
	})
	require.NoError(t, err)
	require.NotNil(t, ticket.AssignedAgentID)
	assert.Equal(t, "agent-b", *ticket.AssignedAgentID)
}

func TestCreateTicketWithoutAgentsStaysPending(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "emp-1", domain.UserRoleEmployee, "sales")

	ticket, err := env.workflow.CreateTicket(context.Background(), CreateTicketInput{
		Title:   "Help",
		Content: "my password expired",
		OwnerID: "emp-1",
		Source:  "employee",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, ticket.Status)
	assert.Nil(t, ticket.AssignedAgentID)
	assert.Equal(t, []events.EventType{events.EventTicketCreated}, env.recorder.types())
}

func TestAssignDoesNotChangeTicket(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "agent-a", domain.UserRoleAgent, "服务台")
	env.seedTicket(t, "t-1", domain.TicketStatusPending, testEpoch, nil)

	agent, err := env.workflow.Assign(context.Background(), "t-1")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "agent-a", agent.ID)

	stored, err := env.store.Tickets().GetByID(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Nil(t, stored.AssignedAgentID)
	assert.Equal(t, domain.TicketStatusPending, stored.Status)
}

func TestReassign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
	env.addUser(t, "agent-b", domain.UserRoleAgent, "财务")
	env.seedTicket(t, "t-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-a"))

	agent, err := env.workflow.Reassign(ctx, "t-1", "agent-a")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, "agent-b", agent.ID)

	stored, err := env.store.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-b", *stored.AssignedAgentID)
	require.Len(t, env.recorder.events, 1)
	payload := env.recorder.events[0].Payload.(events.TicketAssignedPayload)
	assert.Equal(t, "agent-a", *payload.PreviousAgentID)
}

func TestReassignWithoutAlternative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
	env.seedTicket(t, "t-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-a"))

	agent, err := env.workflow.Reassign(ctx, "t-1", "agent-a")
	require.NoError(t, err)
	assert.Nil(t, agent)

	stored, err := env.store.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-a", *stored.AssignedAgentID)
}

func TestReassignRequiresAssignedTicket(t *testing.T) {
	env := newTestEnv(t)
	env.seedTicket(t, "t-1", domain.TicketStatusPending, testEpoch, nil)

	_, err := env.workflow.Reassign(context.Background(), "t-1", "agent-a")
	assert.True(t, apperrors.IsValidation(err))
}

func TestReassignByOtherCallerSkipsCurrentAssignee(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
	env.seedTicket(t, "t-1", domain.TicketStatusProcessing, testEpoch, strPtr("agent-a"))

	agent, err := env.workflow.Reassign(ctx, "t-1", "admin-1")
	require.NoError(t, err)
	assert.Nil(t, agent)

	stored, err := env.store.Tickets().GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-a", *stored.AssignedAgentID)
	assert.Empty(t, env.recorder.events)
}

func TestReassignRejectsInactiveTicket(t *testing.T) {
	for _, status := range []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusClosed} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			env.addUser(t, "agent-a", domain.UserRoleAgent, "技术支持")
			env.addUser(t, "agent-b", domain.UserRoleAgent, "技术支持")
			env.seedTicket(t, "t-1", status, testEpoch, strPtr("agent-a"))

			_, err := env.workflow.Reassign(ctx, "t-1", "agent-a")
			assert.True(t, apperrors.IsValidation(err))

			stored, err := env.store.Tickets().GetByID(ctx, "t-1")
			require.NoError(t, err)
			assert.Equal(t, "agent-a", *stored.AssignedAgentID)
		})
	}
}
