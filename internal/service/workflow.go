package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// DefaultQualityWarnRating is the five-point rating below which a closed
// ticket is logged as a warning.
const DefaultQualityWarnRating = 3.0

// CreateTicketInput describes ticket creation payload. Priority and Category
// override extraction when set. Source decides the extraction path: an
// employee or transferred source uses keyword extraction; anything else uses
// the enhanced extractor and is stored as transferred.
type CreateTicketInput struct {
	Title    string
	Content  string
	OwnerID  string
	Priority string
	Category string
	Source   string
}

// CloseTicketInput describes a close request.
type CloseTicketInput struct {
	AgentID          string
	Reply            string
	SkipQualityCheck bool
}

// CloseResult is the closed ticket and, unless skipped, its quality report.
type CloseResult struct {
	Ticket  *domain.Ticket
	Quality *QualityReport
}

// TicketDetail is a ticket with its reply thread.
type TicketDetail struct {
	Ticket    *domain.Ticket
	Responses []domain.TicketResponse
}

// Workflow is the single entry point of the ticket engine. Every mutating
// operation runs in one transaction and publishes its events after commit.
type Workflow struct {
	tx          repository.Transactor
	tickets     repository.TicketRepository
	responses   repository.TicketResponseRepository
	status      *StatusManager
	assigner    *AgentAssigner
	extractor   *FieldExtractor
	aiExtractor *AIFieldExtractor
	quality     *QualityChecker
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         Clock
	warnRating  float64
}

// WorkflowDependencies bundles collaborators for the workflow.
type WorkflowDependencies struct {
	Transactor        repository.Transactor
	TicketRepo        repository.TicketRepository
	ResponseRepo      repository.TicketResponseRepository
	StatusManager     *StatusManager
	AgentAssigner     *AgentAssigner
	FieldExtractor    *FieldExtractor
	AIFieldExtractor  *AIFieldExtractor
	QualityChecker    *QualityChecker
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	Clock             Clock
	QualityWarnRating float64
}

// NewWorkflow constructs the orchestrator.
func NewWorkflow(deps WorkflowDependencies) *Workflow {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tx := deps.Transactor
	if tx == nil {
		tx = noTx{}
	}
	warn := deps.QualityWarnRating
	if warn <= 0 {
		warn = DefaultQualityWarnRating
	}
	return &Workflow{
		tx:          tx,
		tickets:     deps.TicketRepo,
		responses:   deps.ResponseRepo,
		status:      deps.StatusManager,
		assigner:    deps.AgentAssigner,
		extractor:   deps.FieldExtractor,
		aiExtractor: deps.AIFieldExtractor,
		quality:     deps.QualityChecker,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		now:         defaultClock(deps.Clock),
		warnRating:  warn,
	}
}

// unit runs fn in a transaction and publishes the events it raised only
// when the transaction commits.
func (w *Workflow) unit(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, buf := events.WithBuffer(ctx)
	if err := w.tx.WithinTx(ctx, fn); err != nil {
		buf.Discard()
		return err
	}
	buf.Flush(ctx, w.dispatcher)
	return nil
}

// CreateTicket classifies, stores and dispatches a new ticket. When an agent
// is found the ticket leaves PENDING for PROCESSING in the same transaction.
func (w *Workflow) CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	content := strings.TrimSpace(input.Content)
	if title == "" || content == "" {
		return nil, apperrors.NewValidationError("title and content are required", map[string]any{
			"title_empty":   title == "",
			"content_empty": content == "",
		})
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, apperrors.NewValidationError("owner is required", nil)
	}

	var explicitPriority domain.TicketPriority
	if raw := strings.TrimSpace(input.Priority); raw != "" {
		p, err := domain.ParseTicketPriority(raw)
		if err != nil {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
		}
		explicitPriority = p
	}

	source, err := domain.ParseTicketSource(input.Source)
	var fields ExtractedFields
	if err == nil {
		fields = w.extractor.ExtractFields(content)
	} else {
		source = domain.TicketSourceTransferred
		fields = w.aiExtractor.ExtractFields(ctx, content).Value
	}
	if explicitPriority != "" {
		fields.Priority = explicitPriority
	}
	if category := strings.ToLower(strings.TrimSpace(input.Category)); category != "" {
		fields.Category = category
	}

	now := w.now()
	ticket := &domain.Ticket{
		ID:        newID(),
		Title:     title,
		Content:   content,
		Status:    domain.TicketStatusPending,
		Priority:  fields.Priority,
		Source:    source,
		UserID:    input.OwnerID,
		Category:  fields.Category,
		Metadata:  fields.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = w.unit(ctx, func(ctx context.Context) error {
		if err := w.tickets.Create(ctx, ticket); err != nil {
			return apperrors.NewPersistenceError("insert ticket", err)
		}
		events.Emit(ctx, w.dispatcher, events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.ID,
			Actor:    actor(input.OwnerID),
			Payload: events.TicketCreatedPayload{
				OwnerID:  ticket.UserID,
				Priority: ticket.Priority,
				Category: ticket.Category,
				Source:   ticket.Source,
				Title:    ticket.Title,
			},
		})

		agent, err := w.assigner.Assign(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if agent == nil {
			return nil
		}
		updated, err := w.status.UpdateStatus(ctx, ticket.ID, domain.TicketStatusProcessing, agent.ID)
		if err != nil {
			return err
		}
		ticket = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("priority", string(ticket.Priority)),
		zap.String("category", ticket.Category),
		zap.String("status", string(ticket.Status)))
	return ticket, nil
}

// Process moves a ticket to PROCESSING; agentID becomes the assignee if
// nobody holds the ticket yet.
func (w *Workflow) Process(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	return w.transition(ctx, ticketID, domain.TicketStatusProcessing, agentID)
}

// Resolve moves a ticket to RESOLVED. A non-empty resolution is stored as a
// response in the same transaction.
func (w *Workflow) Resolve(ctx context.Context, ticketID, agentID, resolution string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := w.unit(ctx, func(ctx context.Context) error {
		updated, err := w.status.UpdateStatus(ctx, ticketID, domain.TicketStatusResolved, agentID)
		if err != nil {
			return err
		}
		if _, err := w.appendResponse(ctx, ticketID, agentID, resolution); err != nil {
			return err
		}
		ticket = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Close moves a ticket to CLOSED, stores the reply and runs the quality check
// unless skipped, all in one transaction. The report notification is
// delivered after commit.
func (w *Workflow) Close(ctx context.Context, ticketID string, input CloseTicketInput) (*CloseResult, error) {
	result := &CloseResult{}
	err := w.unit(ctx, func(ctx context.Context) error {
		ticket, err := w.status.UpdateStatus(ctx, ticketID, domain.TicketStatusClosed, input.AgentID)
		if err != nil {
			return err
		}
		if _, err := w.appendResponse(ctx, ticketID, input.AgentID, input.Reply); err != nil {
			return err
		}
		result.Ticket = ticket
		if input.SkipQualityCheck {
			return nil
		}
		report, err := w.quality.CheckQuality(ctx, ticketID)
		if err != nil {
			return err
		}
		result.Quality = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Quality != nil && result.Quality.Rating < w.warnRating {
		w.logger.Warn("low quality rating",
			zap.String("ticket_id", ticketID),
			zap.Float64("rating", result.Quality.Rating),
			zap.Float64("score", result.Quality.Check.Score))
	}
	return result, nil
}

// Reopen moves a ticket to REOPENED on behalf of userID.
func (w *Workflow) Reopen(ctx context.Context, ticketID, userID string) (*domain.Ticket, error) {
	return w.transition(ctx, ticketID, domain.TicketStatusReopened, userID)
}

// Respond appends an agent reply without changing the status.
func (w *Workflow) Respond(ctx context.Context, ticketID, agentID, content string) (*domain.TicketResponse, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("response content is required", nil)
	}
	var response *domain.TicketResponse
	err := w.unit(ctx, func(ctx context.Context) error {
		if _, err := w.status.Get(ctx, ticketID); err != nil {
			return err
		}
		created, err := w.appendResponse(ctx, ticketID, agentID, content)
		if err != nil {
			return err
		}
		response = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// Escalate raises a ticket's priority one step.
func (w *Workflow) Escalate(ctx context.Context, ticketID, reason string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := w.unit(ctx, func(ctx context.Context) error {
		updated, err := w.status.Escalate(ctx, ticketID, reason)
		ticket = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Assign returns the agent the assigner would pick, without applying it.
func (w *Workflow) Assign(ctx context.Context, ticketID string) (*domain.User, error) {
	return w.assigner.Assign(ctx, ticketID)
}

// Reassign hands a ticket to the best agent other than excludingAgentID.
func (w *Workflow) Reassign(ctx context.Context, ticketID, excludingAgentID string) (*domain.User, error) {
	var agent *domain.User
	err := w.unit(ctx, func(ctx context.Context) error {
		picked, err := w.assigner.Reassign(ctx, ticketID, excludingAgentID)
		agent = picked
		return err
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// CheckQuality runs a quality check outside of closing.
func (w *Workflow) CheckQuality(ctx context.Context, ticketID string) (*QualityReport, error) {
	var report *QualityReport
	err := w.unit(ctx, func(ctx context.Context) error {
		r, err := w.quality.CheckQuality(ctx, ticketID)
		report = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Get returns a ticket with its responses.
func (w *Workflow) Get(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := w.status.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	responses, err := w.responses.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list ticket responses", err)
	}
	if responses == nil {
		responses = []domain.TicketResponse{}
	}
	return &TicketDetail{Ticket: ticket, Responses: responses}, nil
}

// ByStatus lists tickets in status.
func (w *Workflow) ByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	return w.status.ByStatus(ctx, status)
}

// ByAgent lists tickets assigned to agentID.
func (w *Workflow) ByAgent(ctx context.Context, agentID string, status *domain.TicketStatus, source *domain.TicketSource) ([]domain.Ticket, error) {
	return w.status.ByAgent(ctx, agentID, status, source)
}

// ByUser lists tickets owned by userID.
func (w *Workflow) ByUser(ctx context.Context, userID string, status *domain.TicketStatus) ([]domain.Ticket, error) {
	return w.status.ByUser(ctx, userID, status)
}

// Overdue lists active tickets idle for longer than threshold.
func (w *Workflow) Overdue(ctx context.Context, threshold time.Duration) ([]domain.Ticket, error) {
	return w.status.Overdue(ctx, threshold)
}

// Statistics counts tickets per status.
func (w *Workflow) Statistics(ctx context.Context) (*TicketStatistics, error) {
	return w.status.Statistics(ctx)
}

// QualityStatistics summarises stored quality checks.
func (w *Workflow) QualityStatistics(ctx context.Context) (*domain.QualityStatistics, error) {
	return w.quality.Statistics(ctx)
}

func (w *Workflow) transition(ctx context.Context, ticketID string, to domain.TicketStatus, actorID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := w.unit(ctx, func(ctx context.Context) error {
		updated, err := w.status.UpdateStatus(ctx, ticketID, to, actorID)
		ticket = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// appendResponse stores content as a response; blank content is skipped.
func (w *Workflow) appendResponse(ctx context.Context, ticketID, agentID, content string) (*domain.TicketResponse, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	response := &domain.TicketResponse{
		ID:        newID(),
		TicketID:  ticketID,
		AgentID:   agentID,
		Content:   content,
		CreatedAt: w.now(),
	}
	if err := w.responses.Create(ctx, response); err != nil {
		return nil, apperrors.NewPersistenceError("insert ticket response", err)
	}
	events.Emit(ctx, w.dispatcher, events.Event{
		Type:     events.EventTicketResponseAdded,
		TicketID: ticketID,
		Actor:    actor(agentID),
		Payload: events.TicketResponseAddedPayload{
			ResponseID:  response.ID,
			AgentID:     agentID,
			BodyPreview: stringPreview(content, 120),
		},
	})
	return response, nil
}
