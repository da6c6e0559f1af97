package dto

import (
	"time"

	"github.com/deskforge/helpdesk-service/internal/domain"
)

// CreateQueueRequest payload.
type CreateQueueRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

// UpdateQueueRequest is a partial queue patch.
type UpdateQueueRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsDefault   *bool   `json:"is_default"`
}

// QueueResponse is the serialized queue.
type QueueResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeleteQueueResponse confirms a deletion.
type DeleteQueueResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewQueueResponse maps a queue to its response shape.
func NewQueueResponse(queue *domain.Queue) QueueResponse {
	return QueueResponse{
		ID:          queue.ID,
		Name:        queue.Name,
		Description: queue.Description,
		IsDefault:   queue.IsDefault,
		CreatedAt:   queue.CreatedAt,
		UpdatedAt:   queue.UpdatedAt,
	}
}
