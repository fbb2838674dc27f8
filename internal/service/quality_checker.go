package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	// FallbackEvaluationScore is used when the evaluator cannot produce a score.
	FallbackEvaluationScore = 50.0
	// FallbackEvaluationComment accompanies FallbackEvaluationScore.
	FallbackEvaluationComment = "automated quality evaluation failed, default score applied"

	baseQualityScore     = 100.0
	noResponsePenalty    = 30.0
	resolutionAdjustment = 10.0
	baseWeight           = 0.4
	externalWeight       = 0.6

	noResponsesText = "No responses yet"
)

// Evaluation is an external quality assessment. DetailedAnalysis is keyed by
// dimension (response_time, solution_quality, communication,
// professionalism, follow_up) and may be empty.
type Evaluation struct {
	Score            float64
	Comments         []string
	Suggestions      []string
	DetailedAnalysis map[string]domain.DimensionScore
}

// TicketSummary is the ticket data handed to an evaluator.
type TicketSummary struct {
	Title     string
	Content   string
	Priority  domain.TicketPriority
	Category  string
	Status    domain.TicketStatus
	CreatedAt time.Time
}

// Evaluator scores how well a ticket was handled.
type Evaluator interface {
	Evaluate(ctx context.Context, summary TicketSummary, responses []domain.TicketResponse) (*Evaluation, error)
}

type scoreDimension struct {
	key, name   string
	maxScore    float64
	defaultVal  float64
	description string
}

var scoreDimensions = []scoreDimension{
	{key: "response_time", name: "Response speed", maxScore: 20, defaultVal: 18, description: "Responded promptly"},
	{key: "solution_quality", name: "Solution", maxScore: 25, defaultVal: 22, description: "Reasonable solution"},
	{key: "communication", name: "Communication", maxScore: 20, defaultVal: 19, description: "Friendly and clear"},
	{key: "professionalism", name: "Professionalism", maxScore: 20, defaultVal: 18, description: "Professional and accurate"},
	{key: "follow_up", name: "Follow-up", maxScore: 15, defaultVal: 14, description: "Followed up in time"},
}

// QualityReportData is the structured report stored on the notification.
type QualityReportData struct {
	ID               string                           `json:"id"`
	TicketID         string                           `json:"ticketId"`
	Title            string                           `json:"title"`
	Content          string                           `json:"content"`
	Response         string                           `json:"response"`
	Score            float64                          `json:"score"`
	User             string                           `json:"user"`
	Department       string                           `json:"department"`
	CreatedAt        time.Time                        `json:"createdAt"`
	ScoreDetails     []domain.ScoreDetail             `json:"scoreDetails"`
	Comments         []string                         `json:"comments"`
	Suggestions      []string                         `json:"suggestions"`
	DetailedAnalysis map[string]domain.DimensionScore `json:"detailedAnalysis"`
	BaseScore        float64                          `json:"baseScore"`
	ExternalScore    float64                          `json:"externalScore"`
	FallbackUsed     bool                             `json:"fallbackUsed"`
}

// QualityReport is the result of one quality check.
type QualityReport struct {
	Check        domain.QualityCheck
	Notification domain.Notification
	Rating       float64
	Evaluation   Outcome[Evaluation]
}

// QualityChecker combines a rule-based base score with an external evaluation.
type QualityChecker struct {
	tickets       repository.TicketRepository
	responses     repository.TicketResponseRepository
	users         repository.UserRepository
	checks        repository.QualityCheckRepository
	notifications repository.NotificationRepository
	evaluator     Evaluator
	timeout       time.Duration
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           Clock
}

// QualityCheckerDependencies bundles collaborators for the checker.
type QualityCheckerDependencies struct {
	TicketRepo       repository.TicketRepository
	ResponseRepo     repository.TicketResponseRepository
	UserRepo         repository.UserRepository
	QualityCheckRepo repository.QualityCheckRepository
	NotificationRepo repository.NotificationRepository
	Evaluator        Evaluator
	Timeout          time.Duration
	Dispatcher       events.Dispatcher
	Metrics          *observability.Metrics
	Logger           *zap.Logger
	Clock            Clock
}

// NewQualityChecker constructs the checker.
func NewQualityChecker(deps QualityCheckerDependencies) *QualityChecker {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualityChecker{
		tickets:       deps.TicketRepo,
		responses:     deps.ResponseRepo,
		users:         deps.UserRepo,
		checks:        deps.QualityCheckRepo,
		notifications: deps.NotificationRepo,
		evaluator:     deps.Evaluator,
		timeout:       deps.Timeout,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        logger,
		now:           defaultClock(deps.Clock),
	}
}

// BaseScore is the rule-based part of the quality score.
func BaseScore(status domain.TicketStatus, responseCount int) float64 {
	score := baseQualityScore
	if responseCount == 0 {
		score -= noResponsePenalty
	}
	if status == domain.TicketStatusResolved || status == domain.TicketStatusClosed {
		score += resolutionAdjustment
	} else {
		score -= resolutionAdjustment
	}
	return clipScore(score)
}

// FinalScore blends base and external scores and clips to [0,100].
func FinalScore(base, external float64) float64 {
	return clipScore(base*baseWeight + external*externalWeight)
}

// Rating converts a 0-100 score to the five-point scale, one decimal.
func Rating(score float64) float64 {
	return math.Round(score/20*10) / 10
}

func clipScore(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

// CheckQuality scores a ticket, stores the check and a report notification
// for the ticket owner. Evaluator failures only degrade the score; store
// failures are returned and abort the caller's transaction.
func (q *QualityChecker) CheckQuality(ctx context.Context, ticketID string) (*QualityReport, error) {
	ticket, err := q.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, storeError("load ticket", "ticket", ticketID, err)
	}
	responses, err := q.responses.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list ticket responses", err)
	}

	base := BaseScore(ticket.Status, len(responses))
	evaluation := q.evaluate(ctx, ticket, responses)
	final := FinalScore(base, evaluation.Value.Score)
	now := q.now()

	check := domain.QualityCheck{
		ID:            newID(),
		TicketID:      ticket.ID,
		Score:         final,
		BaseScore:     base,
		ExternalScore: evaluation.Value.Score,
		FallbackUsed:  evaluation.Fallback,
		Comments:      evaluation.Value.Comments,
		CheckedAt:     now,
	}
	if err := q.checks.Create(ctx, &check); err != nil {
		return nil, apperrors.NewPersistenceError("insert quality check", err)
	}

	notification, rating, err := q.buildNotification(ctx, ticket, responses, check, evaluation.Value)
	if err != nil {
		return nil, err
	}
	if err := q.notifications.Create(ctx, notification); err != nil {
		return nil, apperrors.NewPersistenceError("insert notification", err)
	}

	q.metrics.ObserveQualityScore(final)
	q.logger.Info("quality check completed",
		zap.String("ticket_id", ticket.ID),
		zap.Float64("base_score", base),
		zap.Float64("external_score", evaluation.Value.Score),
		zap.Float64("score", final),
		zap.Bool("fallback", evaluation.Fallback))

	events.Emit(ctx, q.dispatcher, events.Event{
		Type:     events.EventQualityReportCreated,
		TicketID: ticket.ID,
		Payload: events.QualityReportCreatedPayload{
			CheckID:      check.ID,
			Score:        final,
			Rating:       rating,
			FallbackUsed: evaluation.Fallback,
			Notification: *notification,
		},
	})

	return &QualityReport{
		Check:        check,
		Notification: *notification,
		Rating:       rating,
		Evaluation:   evaluation,
	}, nil
}

func (q *QualityChecker) evaluate(ctx context.Context, ticket *domain.Ticket, responses []domain.TicketResponse) Outcome[Evaluation] {
	fallback := Evaluation{
		Score:    FallbackEvaluationScore,
		Comments: []string{FallbackEvaluationComment},
	}
	if q.evaluator == nil {
		q.metrics.RecordFallback("evaluator")
		return Fallback(fallback, errors.New("no evaluator configured"))
	}

	evalCtx, cancel := externalContext(ctx, q.timeout)
	defer cancel()
	summary := TicketSummary{
		Title:     ticket.Title,
		Content:   ticket.Content,
		Priority:  ticket.Priority,
		Category:  ticket.Category,
		Status:    ticket.Status,
		CreatedAt: ticket.CreatedAt,
	}
	result, err := q.evaluator.Evaluate(evalCtx, summary, responses)
	if err == nil && result == nil {
		err = errors.New("evaluator returned no result")
	}
	if err != nil {
		q.metrics.RecordFallback("evaluator")
		q.logger.Warn("quality evaluation failed, using default score",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return Fallback(fallback, err)
	}
	return Definitive(*result)
}

func (q *QualityChecker) buildNotification(ctx context.Context, ticket *domain.Ticket, responses []domain.TicketResponse, check domain.QualityCheck, evaluation Evaluation) (*domain.Notification, float64, error) {
	username, department := "unknown user", "unknown department"
	if q.users != nil {
		owner, err := q.users.GetByID(ctx, ticket.UserID)
		switch {
		case err == nil:
			username, department = owner.Username, owner.Department
		case !errors.Is(err, repository.ErrNotFound):
			return nil, 0, apperrors.NewPersistenceError("load ticket owner", err)
		}
	}

	rating := Rating(check.Score)
	transcript := Transcript(responses)
	report := QualityReportData{
		ID:               check.ID,
		TicketID:         ticket.ID,
		Title:            ticket.Title,
		Content:          ticket.Content,
		Response:         transcript,
		Score:            rating,
		User:             username,
		Department:       department,
		CreatedAt:        check.CheckedAt,
		ScoreDetails:     ScoreDetails(evaluation.DetailedAnalysis),
		Comments:         nonNil(evaluation.Comments),
		Suggestions:      nonNil(evaluation.Suggestions),
		DetailedAnalysis: evaluation.DetailedAnalysis,
		BaseScore:        check.BaseScore,
		ExternalScore:    check.ExternalScore,
		FallbackUsed:     check.FallbackUsed,
	}
	if report.DetailedAnalysis == nil {
		report.DetailedAnalysis = map[string]domain.DimensionScore{}
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return nil, 0, apperrors.NewInternalError(fmt.Errorf("encode quality report: %w", err))
	}

	reportID := check.ID
	ticketID := ticket.ID
	score := int(math.Round(rating * 10))
	return &domain.Notification{
		ID:     newID(),
		UserID: ticket.UserID,
		Type:   domain.NotificationTypeQualityReport,
		Title:  "Quality report: " + ticket.Title,
		Content: fmt.Sprintf("Your ticket has been quality checked. Rating: %.1f\n\nTicket content: %s\n\nResolution: %s",
			rating, ticket.Content, transcript),
		Response:   transcript,
		ReportID:   &reportID,
		TicketID:   &ticketID,
		Score:      &score,
		ReportData: payload,
		CreatedAt:  check.CheckedAt,
	}, rating, nil
}

// Transcript renders responses in order, or a placeholder when there are none.
func Transcript(responses []domain.TicketResponse) string {
	if len(responses) == 0 {
		return noResponsesText
	}
	parts := make([]string, 0, len(responses))
	for i, r := range responses {
		parts = append(parts, fmt.Sprintf("Response %d (%s):\n%s", i+1, r.CreatedAt.Format(time.RFC3339), r.Content))
	}
	return strings.Join(parts, "\n")
}

// ScoreDetails renders the evaluator breakdown in fixed dimension order,
// or the default breakdown when the evaluator gave none.
func ScoreDetails(analysis map[string]domain.DimensionScore) []domain.ScoreDetail {
	var details []domain.ScoreDetail
	for _, dim := range scoreDimensions {
		entry, ok := analysis[dim.key]
		if !ok {
			continue
		}
		description := entry.Comment
		if description == "" {
			description = dim.description
		}
		details = append(details, domain.ScoreDetail{
			Name:        dim.name,
			Score:       entry.Score,
			MaxScore:    dim.maxScore,
			Description: description,
		})
	}
	if len(details) > 0 {
		return details
	}
	for _, dim := range scoreDimensions {
		details = append(details, domain.ScoreDetail{
			Name:        dim.name,
			Score:       dim.defaultVal,
			MaxScore:    dim.maxScore,
			Description: dim.description,
		})
	}
	return details
}

// Statistics summarises every stored quality check.
func (q *QualityChecker) Statistics(ctx context.Context) (*domain.QualityStatistics, error) {
	scores, err := q.checks.ListScores(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list quality scores", err)
	}
	stats := &domain.QualityStatistics{
		TotalChecks: len(scores),
		Distribution: map[string]int{
			"excellent": 0,
			"good":      0,
			"average":   0,
			"pass":      0,
			"fail":      0,
		},
	}
	if len(scores) == 0 {
		return stats, nil
	}
	var sum float64
	for _, s := range scores {
		sum += s
		switch {
		case s >= 90:
			stats.Distribution["excellent"]++
		case s >= 80:
			stats.Distribution["good"]++
		case s >= 70:
			stats.Distribution["average"]++
		case s >= 60:
			stats.Distribution["pass"]++
		default:
			stats.Distribution["fail"]++
		}
	}
	stats.AverageScore = sum / float64(len(scores))
	return stats, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
