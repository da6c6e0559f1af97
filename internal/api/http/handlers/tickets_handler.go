package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/deskforge/helpdesk-service/internal/api/dto"
	"github.com/deskforge/helpdesk-service/internal/auth"
	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/service"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	view, err := h.service.CreateTicket(c.Context(), actor, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		CustomerID:  req.CustomerID,
		QueueID:     req.QueueID,
		Tags:        req.Tags,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(ticketDetail(view))
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	page, err := h.service.ListTickets(c.Context(), actor, parseTicketListQuery(c))
	if err != nil {
		return err
	}

	items := make([]dto.TicketSummary, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, ticketSummary(&page.Items[i]))
	}
	return c.JSON(dto.TicketListResponse{
		Items: items,
		Total: page.Total,
		Page:  page.Page,
		Pages: page.PageCount,
	})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	view, err := h.service.GetTicket(c.Context(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(view))
}

// UpdateTicket PUT /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}

	// The raw keys of the patch feed the per-role field mask; the typed
	// struct carries the values.
	var rawPatch map[string]json.RawMessage
	if err := json.Unmarshal(c.Body(), &rawPatch); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var req dto.UpdateTicketRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	patchFields := make([]string, 0, len(rawPatch))
	for field := range rawPatch {
		patchFields = append(patchFields, field)
	}

	view, err := h.service.UpdateTicket(c.Context(), actor, c.Params("id"), service.TicketUpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		QueueID:     req.QueueID,
		AssigneeID:  req.AssigneeID,
		Tags:        req.Tags,
	}, patchFields)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(view))
}

// AddComment POST /api/tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	view, err := h.service.AddComment(c.Context(), actor, c.Params("id"), req.Content, req.IsInternal)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(view))
}

// AssignTicket PUT /api/tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	view, err := h.service.AssignTicket(c.Context(), actor, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(view))
}

// MoveToQueue PUT /api/tickets/:id/queue.
func (h *TicketsHandler) MoveToQueue(c *fiber.Ctx) error {
	actor, err := requireActor(c)
	if err != nil {
		return err
	}
	var req dto.MoveTicketQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	view, err := h.service.MoveToQueue(c.Context(), actor, c.Params("id"), req.QueueID)
	if err != nil {
		return err
	}
	return c.JSON(ticketDetail(view))
}

func requireActor(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal.User, nil
}

func parseTicketListQuery(c *fiber.Ctx) service.TicketListInput {
	input := service.TicketListInput{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			input.Statuses = append(input.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			input.Priorities = append(input.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if queueID := c.Query("queue"); queueID != "" {
		input.QueueID = &queueID
	}
	if assigneeID := c.Query("assignee"); assigneeID != "" {
		input.AssigneeID = &assigneeID
	}
	if customerID := c.Query("customer"); customerID != "" {
		input.CustomerID = &customerID
	}
	if search := c.Query("search"); search != "" {
		input.Search = &search
	}
	input.Page = parseInt(c.Query("page"), 1)
	input.PageSize = parseInt(c.Query("limit"), 20)
	return input
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

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Title:       ticket.Title,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		CustomerID:  ticket.CustomerID,
		AssigneeID:  ticket.AssigneeID,
		QueueID:     ticket.QueueID,
		Tags:        ticket.Tags,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketDetail(view *service.TicketView) dto.TicketDetailResponse {
	comments := make([]dto.CommentResponse, 0, len(view.Comments))
	for _, comment := range view.Comments {
		comments = append(comments, dto.CommentResponse{
			ID:         comment.Comment.ID,
			Content:    comment.Comment.Body,
			Author:     comment.Author,
			IsInternal: comment.Comment.IsInternal,
			CreatedAt:  comment.Comment.CreatedAt,
		})
	}
	ticket := view.Ticket
	return dto.TicketDetailResponse{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Title:       ticket.Title,
		Description: ticket.Description,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		Customer:    view.Customer,
		Assignee:    view.Assignee,
		Queue:       view.Queue,
		Tags:        ticket.Tags,
		Comments:    comments,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		ResolvedAt:  ticket.ResolvedAt,
		ClosedAt:    ticket.ClosedAt,
	}
}
