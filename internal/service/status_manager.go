package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// DefaultOverdueThreshold applies when neither caller nor config provide one.
const DefaultOverdueThreshold = 24 * time.Hour

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusPending:    {domain.TicketStatusProcessing, domain.TicketStatusClosed},
	domain.TicketStatusProcessing: {domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusPending},
	domain.TicketStatusResolved:   {domain.TicketStatusClosed, domain.TicketStatusReopened},
	domain.TicketStatusClosed:     {domain.TicketStatusReopened},
	domain.TicketStatusReopened:   {domain.TicketStatusProcessing, domain.TicketStatusClosed},
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
// Self-transitions are never edges.
func CanTransition(from, to domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable from status.
func AllowedTransitions(status domain.TicketStatus) []domain.TicketStatus {
	return append([]domain.TicketStatus(nil), allowedTransitions[status]...)
}

// TicketStatistics counts tickets overall and per status.
type TicketStatistics struct {
	Total    int                         `json:"total"`
	ByStatus map[domain.TicketStatus]int `json:"by_status"`
}

// StatusManager owns the ticket lifecycle state machine and the read-side
// queries over ticket status.
type StatusManager struct {
	tickets          repository.TicketRepository
	history          repository.TicketHistoryRepository
	dispatcher       events.Dispatcher
	metrics          *observability.Metrics
	logger           *zap.Logger
	now              Clock
	overdueThreshold time.Duration
}

// StatusManagerDependencies bundles collaborators for the status manager.
type StatusManagerDependencies struct {
	TicketRepo       repository.TicketRepository
	HistoryRepo      repository.TicketHistoryRepository
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Clock            Clock
	OverdueThreshold time.Duration
}

// NewStatusManager constructs the manager.
func NewStatusManager(deps StatusManagerDependencies) *StatusManager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := deps.OverdueThreshold
	if threshold <= 0 {
		threshold = DefaultOverdueThreshold
	}
	return &StatusManager{
		tickets:          deps.TicketRepo,
		history:          deps.HistoryRepo,
		dispatcher:       deps.Dispatcher,
		metrics:          deps.Metrics,
		logger:           logger,
		now:              defaultClock(deps.Clock),
		overdueThreshold: threshold,
	}
}

// Get loads a ticket.
func (m *StatusManager) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := m.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("load ticket", "ticket", ticketID, err)
	}
	return ticket, nil
}

// UpdateStatus moves a ticket along one edge of the lifecycle. Entering
// PROCESSING without an agent makes actorID the assigned agent; entering
// CLOSED stamps resolved_at.
func (m *StatusManager) UpdateStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actorID string) (*domain.Ticket, error) {
	ticket, err := m.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status
	if !CanTransition(oldStatus, newStatus) {
		return nil, apperrors.NewInvalidTransition(string(oldStatus), string(newStatus), map[string]any{"ticket_id": ticketID})
	}

	now := m.now()
	ticket.Status = newStatus
	ticket.UpdatedAt = now
	assigned := false
	if newStatus == domain.TicketStatusProcessing && ticket.AssignedAgentID == nil && actorID != "" {
		agentID := actorID
		ticket.AssignedAgentID = &agentID
		assigned = true
	}
	if newStatus == domain.TicketStatusClosed {
		resolvedAt := now
		ticket.ResolvedAt = &resolvedAt
	}

	if err := m.tickets.Update(ctx, ticket); err != nil {
		return nil, storeError("update ticket status", "ticket", ticketID, err)
	}
	if err := m.record(ctx, ticket.ID, actorID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus}, map[string]any{"status": newStatus}); err != nil {
		return nil, err
	}
	if assigned {
		if err := m.record(ctx, ticket.ID, actorID, domain.ChangeTypeAssignee,
			map[string]any{"assigned_agent_id": nil}, map[string]any{"assigned_agent_id": actorID}); err != nil {
			return nil, err
		}
	}

	m.metrics.RecordTransition(string(oldStatus), string(newStatus))
	m.logger.Info("ticket status changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(newStatus)),
		zap.String("actor_id", actorID))

	events.Emit(ctx, m.dispatcher, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor(actorID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	if assigned {
		events.Emit(ctx, m.dispatcher, events.Event{
			Type:     events.EventTicketAssigned,
			TicketID: ticket.ID,
			Actor:    actor(actorID),
			Payload:  events.TicketAssignedPayload{AgentID: actorID},
		})
	}
	return ticket, nil
}

// Escalate raises the priority one step. Urgent tickets are returned unchanged
// and keep their updated_at.
func (m *StatusManager) Escalate(ctx context.Context, ticketID, reason string) (*domain.Ticket, error) {
	ticket, err := m.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	oldPriority := ticket.Priority
	next := oldPriority.Next()
	if next == oldPriority {
		return ticket, nil
	}

	ticket.Priority = next
	ticket.UpdatedAt = m.now()
	if err := m.tickets.Update(ctx, ticket); err != nil {
		return nil, storeError("escalate ticket", "ticket", ticketID, err)
	}
	if err := m.record(ctx, ticket.ID, "", domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": next, "reason": reason}); err != nil {
		return nil, err
	}

	m.logger.Info("ticket priority escalated",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(oldPriority)),
		zap.String("to", string(next)),
		zap.String("reason", reason))
	events.Emit(ctx, m.dispatcher, events.Event{
		Type:     events.EventTicketPriorityEscalated,
		TicketID: ticket.ID,
		Payload: events.TicketPriorityEscalatedPayload{
			OldPriority: oldPriority,
			NewPriority: next,
			Reason:      reason,
		},
	})
	return ticket, nil
}

// ByStatus lists tickets in status, newest first.
func (m *StatusManager) ByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	return m.list(ctx, repository.TicketFilter{Statuses: []domain.TicketStatus{status}})
}

// ByAgent lists tickets assigned to agentID, optionally narrowed by status and source.
func (m *StatusManager) ByAgent(ctx context.Context, agentID string, status *domain.TicketStatus, source *domain.TicketSource) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{AgentID: &agentID, Source: source}
	if status != nil {
		filter.Statuses = []domain.TicketStatus{*status}
	}
	return m.list(ctx, filter)
}

// ByUser lists tickets owned by userID, optionally narrowed by status.
func (m *StatusManager) ByUser(ctx context.Context, userID string, status *domain.TicketStatus) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{UserID: &userID}
	if status != nil {
		filter.Statuses = []domain.TicketStatus{*status}
	}
	return m.list(ctx, filter)
}

// Overdue lists active tickets untouched for longer than threshold. A
// non-positive threshold uses the configured default.
func (m *StatusManager) Overdue(ctx context.Context, threshold time.Duration) ([]domain.Ticket, error) {
	if threshold <= 0 {
		threshold = m.overdueThreshold
	}
	cutoff := m.now().Add(-threshold)
	return m.list(ctx, repository.TicketFilter{
		Statuses:      domain.ActiveTicketStatuses,
		UpdatedBefore: &cutoff,
	})
}

// Statistics counts tickets per status. Every status is present in the map.
func (m *StatusManager) Statistics(ctx context.Context) (*TicketStatistics, error) {
	counts, err := m.tickets.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("count tickets", err)
	}
	stats := &TicketStatistics{ByStatus: make(map[domain.TicketStatus]int, len(domain.TicketStatuses))}
	for _, status := range domain.TicketStatuses {
		stats.ByStatus[status] = counts[status]
		stats.Total += counts[status]
	}
	return stats, nil
}

func (m *StatusManager) list(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := m.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list tickets", err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

func (m *StatusManager) record(ctx context.Context, ticketID, actorID string, change domain.TicketChangeType, oldValue, newValue map[string]any) error {
	if m.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		ID:          newID(),
		TicketID:    ticketID,
		ChangedByID: optionalID(actorID),
		ChangeType:  change,
		OldValue:    oldValue,
		NewValue:    newValue,
		CreatedAt:   m.now(),
	}
	if err := m.history.Create(ctx, entry); err != nil {
		return apperrors.NewPersistenceError("record ticket history", err)
	}
	return nil
}
