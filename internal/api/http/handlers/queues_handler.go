package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deskforge/helpdesk-service/internal/api/dto"
	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/service"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

// QueuesHandler manages queue directory endpoints.
type QueuesHandler struct {
	service *service.QueueService
}

// NewQueuesHandler constructs handler.
func NewQueuesHandler(queueService *service.QueueService) *QueuesHandler {
	return &QueuesHandler{service: queueService}
}

// CreateQueue POST /api/queues.
func (h *QueuesHandler) CreateQueue(c *fiber.Ctx) error {
	var req dto.CreateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	queue, err := h.service.CreateQueue(c.Context(), service.QueueCreateInput{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewQueueResponse(queue))
}

// ListQueues GET /api/queues.
func (h *QueuesHandler) ListQueues(c *fiber.Ctx) error {
	queues, err := h.service.ListQueues(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.QueueResponse, 0, len(queues))
	for i := range queues {
		items = append(items, dto.NewQueueResponse(&queues[i]))
	}
	return c.JSON(items)
}

// GetQueue GET /api/queues/:id.
func (h *QueuesHandler) GetQueue(c *fiber.Ctx) error {
	var queue *domain.Queue
	var err error
	if id := c.Params("id"); id == "default" {
		queue, err = h.service.GetDefaultQueue(c.Context())
	} else {
		queue, err = h.service.GetQueue(c.Context(), id)
	}
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueResponse(queue))
}

// UpdateQueue PUT /api/queues/:id.
func (h *QueuesHandler) UpdateQueue(c *fiber.Ctx) error {
	var req dto.UpdateQueueRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	queue, err := h.service.UpdateQueue(c.Context(), c.Params("id"), service.QueueUpdateInput{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		return err
	}
	return c.JSON(dto.NewQueueResponse(queue))
}

// DeleteQueue DELETE /api/queues/:id.
func (h *QueuesHandler) DeleteQueue(c *fiber.Ctx) error {
	if err := h.service.DeleteQueue(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.DeleteQueueResponse{
		Success: true,
		Message: "queue deleted",
	})
}
