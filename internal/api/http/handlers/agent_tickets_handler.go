package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// AgentTicketsHandler handles the agent workbench endpoints.
type AgentTicketsHandler struct {
	workflow *service.Workflow
}

// NewAgentTicketsHandler constructs handler.
func NewAgentTicketsHandler(workflow *service.Workflow) *AgentTicketsHandler {
	return &AgentTicketsHandler{workflow: workflow}
}

// ListAssigned GET /agent/tickets.
func (h *AgentTicketsHandler) ListAssigned(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	status, err := parseStatusQuery(c)
	if err != nil {
		return err
	}
	source, err := parseSourceQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.workflow.ByAgent(c.UserContext(), p.UserID(), status, source)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketList(tickets)})
}

// ListPending GET /agent/tickets/pending.
func (h *AgentTicketsHandler) ListPending(c *fiber.Ctx) error {
	tickets, err := h.workflow.ByStatus(c.UserContext(), domain.TicketStatusPending)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketList(tickets)})
}

// ListOverdue GET /agent/tickets/overdue?hours=N. Without hours the
// configured threshold applies.
func (h *AgentTicketsHandler) ListOverdue(c *fiber.Ctx) error {
	var threshold time.Duration
	if hours := parseInt(c.Query("hours"), 0); hours > 0 {
		threshold = time.Duration(hours) * time.Hour
	}
	tickets, err := h.workflow.Overdue(c.UserContext(), threshold)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketList(tickets)})
}

// Statistics GET /agent/tickets/statistics.
func (h *AgentTicketsHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.workflow.Statistics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Process POST /agent/tickets/:id/process.
func (h *AgentTicketsHandler) Process(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ticket, err := h.workflow.Process(c.UserContext(), c.Params("id"), p.UserID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Resolve POST /agent/tickets/:id/resolve.
func (h *AgentTicketsHandler) Resolve(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ResolveTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.workflow.Resolve(c.UserContext(), c.Params("id"), p.UserID(), req.Resolution)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Close POST /agent/tickets/:id/close.
func (h *AgentTicketsHandler) Close(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.workflow.Close(c.UserContext(), c.Params("id"), service.CloseTicketInput{
		AgentID:          p.UserID(),
		Reply:            req.Reply,
		SkipQualityCheck: req.SkipQualityCheck,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CloseTicketResponse{
		Ticket:  ticketResponse(result.Ticket),
		Quality: qualityReportResponse(result.Quality),
	}})
}

// Respond POST /agent/tickets/:id/respond.
func (h *AgentTicketsHandler) Respond(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.RespondTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	response, err := h.workflow.Respond(c.UserContext(), c.Params("id"), p.UserID(), req.Content)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": replyResponse(response)})
}

// Escalate POST /agent/tickets/:id/escalate.
func (h *AgentTicketsHandler) Escalate(c *fiber.Ctx) error {
	var req dto.EscalateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ticket, err := h.workflow.Escalate(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Reassign POST /agent/tickets/:id/reassign. The calling agent is excluded.
func (h *AgentTicketsHandler) Reassign(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	agent, err := h.workflow.Reassign(c.UserContext(), c.Params("id"), p.UserID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"reassigned": agent != nil,
		"agent":      agentResponse(agent),
	}})
}

// QualityCheck POST /agent/tickets/:id/quality-check.
func (h *AgentTicketsHandler) QualityCheck(c *fiber.Ctx) error {
	report, err := h.workflow.CheckQuality(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": qualityReportResponse(report)})
}

// QualityStatistics GET /agent/quality/statistics.
func (h *AgentTicketsHandler) QualityStatistics(c *fiber.Ctx) error {
	stats, err := h.workflow.QualityStatistics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
