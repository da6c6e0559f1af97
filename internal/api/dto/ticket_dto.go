package dto

import (
	"time"

	"github.com/deskforge/helpdesk-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	CustomerID  string                `json:"customer_id"`
	QueueID     *string               `json:"queue_id"`
	Tags        []string              `json:"tags"`
}

// UpdateTicketRequest is a partial ticket patch. The comments key is
// accepted in the body but never applied; comments change only via the
// comment endpoint.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Status      *domain.TicketStatus   `json:"status"`
	Priority    *domain.TicketPriority `json:"priority"`
	QueueID     *string                `json:"queue_id"`
	AssigneeID  *string                `json:"assignee_id"`
	Tags        *[]string              `json:"tags"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"is_internal"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// MoveTicketQueueRequest payload.
type MoveTicketQueueRequest struct {
	QueueID string `json:"queue_id"`
}

// TicketSummary is the list-item shape; references stay as ids.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CustomerID  string                `json:"customer_id"`
	AssigneeID  *string               `json:"assignee_id"`
	QueueID     string                `json:"queue_id"`
	Tags        []string              `json:"tags"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketListResponse is one page of results.
type TicketListResponse struct {
	Items []TicketSummary `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Pages int             `json:"pages"`
}

// CommentResponse represents a ticket comment with its resolved author.
type CommentResponse struct {
	ID         string             `json:"id"`
	Content    string             `json:"content"`
	Author     domain.UserSummary `json:"author"`
	IsInternal bool               `json:"is_internal"`
	CreatedAt  time.Time          `json:"created_at"`
}

// TicketDetailResponse provides full ticket info with references resolved to
// summary views.
type TicketDetailResponse struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	Customer    domain.UserSummary    `json:"customer"`
	Assignee    *domain.UserSummary   `json:"assignee"`
	Queue       domain.QueueSummary   `json:"queue"`
	Tags        []string              `json:"tags"`
	Comments    []CommentResponse     `json:"comments"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	ResolvedAt  *time.Time            `json:"resolved_at"`
	ClosedAt    *time.Time            `json:"closed_at"`
}
