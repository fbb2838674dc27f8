package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler manages ticket owner endpoints.
type TicketsHandler struct {
	workflow *service.Workflow
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(workflow *service.Workflow) *TicketsHandler {
	return &TicketsHandler{workflow: workflow}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	source := req.Source
	if source == "" {
		source = string(domain.TicketSourceEmployeeCreated)
	}
	ticket, err := h.workflow.CreateTicket(c.UserContext(), service.CreateTicketInput{
		Title:    req.Title,
		Content:  req.Content,
		OwnerID:  p.UserID(),
		Priority: req.Priority,
		Category: req.Category,
		Source:   source,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListMine GET /tickets/mine.
func (h *TicketsHandler) ListMine(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	status, err := parseStatusQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.workflow.ByUser(c.UserContext(), p.UserID(), status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketList(tickets)})
}

// GetTicket GET /tickets/:id. Employees only see their own tickets.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	detail, err := h.workflow.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if p.User.Role == domain.UserRoleEmployee && detail.Ticket.UserID != p.UserID() {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": c.Params("id")})
	}
	return c.JSON(fiber.Map{"data": ticketDetail(detail)})
}

// Reopen POST /tickets/:id/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	detail, err := h.workflow.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if detail.Ticket.UserID != p.UserID() && p.User.Role != domain.UserRoleAdmin {
		return apperrors.NewForbidden("only the ticket owner can reopen it")
	}
	ticket, err := h.workflow.Reopen(c.UserContext(), detail.Ticket.ID, p.UserID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}
