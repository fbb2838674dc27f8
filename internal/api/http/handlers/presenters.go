package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func principal(c *fiber.Ctx) (*auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return p, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseStatusQuery(c *fiber.Ctx) (*domain.TicketStatus, error) {
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" {
		return nil, nil
	}
	status, err := domain.ParseTicketStatus(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": raw})
	}
	return &status, nil
}

func parseSourceQuery(c *fiber.Ctx) (*domain.TicketSource, error) {
	raw := strings.TrimSpace(c.Query("source"))
	if raw == "" {
		return nil, nil
	}
	source, err := domain.ParseTicketSource(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("unknown source", map[string]any{"source": raw})
	}
	return &source, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	var category *string
	if ticket.HasCategory() {
		c := ticket.Category
		category = &c
	}
	metadata := ticket.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return dto.TicketResponse{
		ID:              ticket.ID,
		Title:           ticket.Title,
		Content:         ticket.Content,
		Status:          ticket.Status,
		Priority:        ticket.Priority,
		Source:          ticket.Source,
		UserID:          ticket.UserID,
		AssignedAgentID: ticket.AssignedAgentID,
		Category:        category,
		Metadata:        metadata,
		CreatedAt:       ticket.CreatedAt,
		UpdatedAt:       ticket.UpdatedAt,
		ResolvedAt:      ticket.ResolvedAt,
	}
}

func ticketList(tickets []domain.Ticket) []dto.TicketResponse {
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return items
}

func replyResponse(r *domain.TicketResponse) dto.TicketReplyResponse {
	return dto.TicketReplyResponse{
		ID:        r.ID,
		TicketID:  r.TicketID,
		AgentID:   r.AgentID,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}

func ticketDetail(detail *service.TicketDetail) dto.TicketDetailResponse {
	replies := make([]dto.TicketReplyResponse, 0, len(detail.Responses))
	for i := range detail.Responses {
		replies = append(replies, replyResponse(&detail.Responses[i]))
	}
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(detail.Ticket),
		Responses:      replies,
	}
}

func agentResponse(agent *domain.User) *dto.AgentResponse {
	if agent == nil {
		return nil
	}
	return &dto.AgentResponse{ID: agent.ID, Username: agent.Username, Department: agent.Department}
}

func qualityReportResponse(report *service.QualityReport) *dto.QualityReportResponse {
	if report == nil {
		return nil
	}
	comments := report.Check.Comments
	if comments == nil {
		comments = []string{}
	}
	suggestions := report.Evaluation.Value.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	return &dto.QualityReportResponse{
		CheckID:        report.Check.ID,
		TicketID:       report.Check.TicketID,
		Score:          report.Check.Score,
		BaseScore:      report.Check.BaseScore,
		ExternalScore:  report.Check.ExternalScore,
		Rating:         report.Rating,
		FallbackUsed:   report.Check.FallbackUsed,
		Comments:       comments,
		Suggestions:    suggestions,
		NotificationID: report.Notification.ID,
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
		CreatedAt:  user.CreatedAt,
	}
}

func notificationResponse(n *domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Content:    n.Content,
		Response:   n.Response,
		TicketID:   n.TicketID,
		ReportID:   n.ReportID,
		Score:      n.Score,
		ReportData: n.ReportData,
		IsRead:     n.IsRead,
		CreatedAt:  n.CreatedAt,
	}
}
