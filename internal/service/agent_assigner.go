package service

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/rules"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	maxCountedWorkload = 10
	workloadPenalty    = 10
	expertiseWeight    = 20
	baseAgentScore     = 100
)

// AgentCandidate is an agent with the inputs and result of its score.
type AgentCandidate struct {
	Agent         domain.User
	ActiveTickets int
	Expertise     int
	Score         int
}

// Score combines workload and expertise. Workload above ten tickets counts as ten.
func Score(activeTickets, expertise int) int {
	workload := min(max(activeTickets, 0), maxCountedWorkload)
	return (baseAgentScore - workload*workloadPenalty) + expertise*expertiseWeight
}

// AgentAssigner picks the best agent for a ticket.
type AgentAssigner struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	history    repository.TicketHistoryRepository
	rules      *rules.Rules
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// AgentAssignerDependencies bundles collaborators for the assigner.
type AgentAssignerDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.TicketHistoryRepository
	Rules       *rules.Rules
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       Clock
}

// NewAgentAssigner constructs the assigner.
func NewAgentAssigner(deps AgentAssignerDependencies) *AgentAssigner {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentAssigner{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		history:    deps.HistoryRepo,
		rules:      deps.Rules,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        defaultClock(deps.Clock),
	}
}

// Assign returns the best agent for the ticket without changing it, or nil
// when no agent is eligible.
func (a *AgentAssigner) Assign(ctx context.Context, ticketID string) (*domain.User, error) {
	ticket, err := a.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("load ticket", "ticket", ticketID, err)
	}
	best, err := a.choose(ctx, ticket)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordAssignment(best != nil)
	if best == nil {
		a.logger.Warn("no eligible agent", zap.String("ticket_id", ticketID))
		return nil, nil
	}
	a.logger.Info("agent selected",
		zap.String("ticket_id", ticketID),
		zap.String("agent_id", best.Agent.ID),
		zap.Int("score", best.Score))
	agent := best.Agent
	return &agent, nil
}

// Reassign hands an assigned, active ticket to the best agent other than
// excludingAgentID and the current assignee. Returns nil when nobody else is
// eligible; the ticket is then left untouched.
func (a *AgentAssigner) Reassign(ctx context.Context, ticketID, excludingAgentID string) (*domain.User, error) {
	ticket, err := a.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("load ticket", "ticket", ticketID, err)
	}
	if ticket.AssignedAgentID == nil {
		return nil, apperrors.NewValidationError("ticket has no assigned agent", map[string]any{"ticket_id": ticketID})
	}
	if !ticket.Status.IsActive() {
		return nil, apperrors.NewValidationError("only active tickets can be reassigned", map[string]any{
			"ticket_id": ticketID,
			"status":    string(ticket.Status),
		})
	}
	best, err := a.choose(ctx, ticket, excludingAgentID, *ticket.AssignedAgentID)
	if err != nil {
		return nil, err
	}
	a.metrics.RecordAssignment(best != nil)
	if best == nil {
		a.logger.Warn("no agent available for reassignment", zap.String("ticket_id", ticketID))
		return nil, nil
	}

	previous := *ticket.AssignedAgentID
	agentID := best.Agent.ID
	ticket.AssignedAgentID = &agentID
	ticket.UpdatedAt = a.now()
	if err := a.tickets.Update(ctx, ticket); err != nil {
		return nil, storeError("reassign ticket", "ticket", ticketID, err)
	}
	if a.history != nil {
		entry := &domain.TicketHistory{
			ID:          newID(),
			TicketID:    ticket.ID,
			ChangedByID: optionalID(excludingAgentID),
			ChangeType:  domain.ChangeTypeAssignee,
			OldValue:    map[string]any{"assigned_agent_id": previous},
			NewValue:    map[string]any{"assigned_agent_id": agentID},
			CreatedAt:   ticket.UpdatedAt,
		}
		if err := a.history.Create(ctx, entry); err != nil {
			return nil, apperrors.NewPersistenceError("record ticket history", err)
		}
	}

	a.logger.Info("ticket reassigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", previous),
		zap.String("to", agentID))
	events.Emit(ctx, a.dispatcher, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actor(excludingAgentID),
		Payload: events.TicketAssignedPayload{
			AgentID:         agentID,
			PreviousAgentID: &previous,
			Score:           best.Score,
		},
	})
	agent := best.Agent
	return &agent, nil
}

func (a *AgentAssigner) choose(ctx context.Context, ticket *domain.Ticket, excluding ...string) (*AgentCandidate, error) {
	agents, err := a.users.ListByRole(ctx, domain.UserRoleAgent)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list agents", err)
	}
	if len(excluding) > 0 {
		kept := agents[:0:0]
		for _, agent := range agents {
			if !slices.Contains(excluding, agent.ID) {
				kept = append(kept, agent)
			}
		}
		agents = kept
	}
	if len(agents) == 0 {
		return nil, nil
	}

	agents = a.filterByCategory(agents, ticket.Category)

	candidates := make([]AgentCandidate, 0, len(agents))
	for _, agent := range agents {
		active, err := a.tickets.CountActiveByAgent(ctx, agent.ID)
		if err != nil {
			return nil, apperrors.NewPersistenceError("count agent workload", err)
		}
		candidates = append(candidates, AgentCandidate{Agent: agent, ActiveTickets: active})
	}
	return a.SelectBest(ticket, candidates), nil
}

// filterByCategory keeps agents whose department matches the category's
// expertise keywords, or everyone when nobody matches.
func (a *AgentAssigner) filterByCategory(agents []domain.User, category string) []domain.User {
	if category == "" || a.rules == nil {
		return agents
	}
	keywords := a.rules.ExpertiseKeywords(category)
	if len(keywords) == 0 {
		return agents
	}
	var specialized []domain.User
	for _, agent := range agents {
		if rules.ContainsAny(strings.ToLower(agent.Department), keywords) {
			specialized = append(specialized, agent)
		}
	}
	if len(specialized) == 0 {
		return agents
	}
	return specialized
}

// Expertise rates an agent for a ticket priority.
func (a *AgentAssigner) Expertise(agent domain.User, priority domain.TicketPriority) int {
	if a.rules == nil {
		return 0
	}
	if rule, ok := a.rules.PriorityExpertiseFor(priority); ok {
		if rules.ContainsAny(strings.ToLower(agent.Department), rule.Keywords) {
			return rule.Score
		}
	}
	return a.rules.BaselineExpertise
}

// SelectBest scores candidates in order and returns the first with the
// highest score. Candidates must already be ordered by ascending agent id.
func (a *AgentAssigner) SelectBest(ticket *domain.Ticket, candidates []AgentCandidate) *AgentCandidate {
	var best *AgentCandidate
	for i := range candidates {
		c := &candidates[i]
		c.Expertise = a.Expertise(c.Agent, ticket.Priority)
		c.Score = Score(c.ActiveTickets, c.Expertise)
		if best == nil || c.Score > best.Score {
			best = c
		}
	}
	return best
}
