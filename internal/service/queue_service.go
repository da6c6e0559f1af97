package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/persistence"
	"github.com/deskforge/helpdesk-service/internal/repository"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

// defaultQueueCacheTTL bounds staleness of the cached default queue id.
const defaultQueueCacheTTL = 30 * time.Second

// QueueService owns the queue directory: a flat namespace of routing targets
// with at most one queue marked default at any time.
//
// The default swap is two storage operations (clear all, then set one) with
// no transaction around them. Two concurrent default-setting requests can
// transiently leave zero or two defaults; this window is accepted and
// documented in the tests.
type QueueService struct {
	queues  repository.QueueRepository
	tickets repository.TicketRepository
	cache   *persistence.Redis
}

// QueueDependencies bundles collaborators for the queue service.
type QueueDependencies struct {
	QueueRepo  repository.QueueRepository
	TicketRepo repository.TicketRepository
	Cache      *persistence.Redis
}

// QueueCreateInput describes queue creation payload.
type QueueCreateInput struct {
	Name        string
	Description string
	IsDefault   bool
}

// QueueUpdateInput describes a partial queue update.
type QueueUpdateInput struct {
	Name        *string
	Description *string
	IsDefault   *bool
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	return &QueueService{
		queues:  deps.QueueRepo,
		tickets: deps.TicketRepo,
		cache:   deps.Cache,
	}
}

// CreateQueue inserts a new queue. When the new queue is marked default,
// every other queue is unmarked first.
func (s *QueueService) CreateQueue(ctx context.Context, input QueueCreateInput) (*domain.Queue, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name required", map[string]any{"name": "required"})
	}

	if _, err := s.queues.GetByName(ctx, name); err == nil {
		return nil, apperrors.NewConflict("queue name already exists", map[string]any{"name": name})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	if input.IsDefault {
		if err := s.queues.ClearDefault(ctx); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	queue := &domain.Queue{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsDefault:   input.IsDefault,
	}
	if err := s.queues.Create(ctx, queue); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.InvalidateDefaultQueue(ctx)
	return queue, nil
}

// ListQueues returns all queues sorted by name ascending.
func (s *QueueService) ListQueues(ctx context.Context) ([]domain.Queue, error) {
	queues, err := s.queues.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return queues, nil
}

// GetQueue fetches a single queue.
func (s *QueueService) GetQueue(ctx context.Context, id string) (*domain.Queue, error) {
	queue, err := s.queues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("queue", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return queue, nil
}

// UpdateQueue applies a partial update. Marking a queue default unmarks every
// other queue first, same as on create.
func (s *QueueService) UpdateQueue(ctx context.Context, id string, input QueueUpdateInput) (*domain.Queue, error) {
	queue, err := s.GetQueue(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name cannot be empty", map[string]any{"name": "required"})
		}
		if name != queue.Name {
			if existing, err := s.queues.GetByName(ctx, name); err == nil && existing.ID != queue.ID {
				return nil, apperrors.NewConflict("queue name already exists", map[string]any{"name": name})
			} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.MapError(err)
			}
		}
		queue.Name = name
	}
	if input.Description != nil {
		queue.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsDefault != nil {
		if *input.IsDefault && !queue.IsDefault {
			if err := s.queues.ClearDefault(ctx); err != nil {
				return nil, apperrors.MapError(err)
			}
		}
		queue.IsDefault = *input.IsDefault
	}

	if err := s.queues.Update(ctx, queue); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.cache.InvalidateDefaultQueue(ctx)
	return queue, nil
}

// DeleteQueue removes a queue permanently. The default queue cannot be
// deleted. Tickets still filed in the deleted queue are re-filed to the
// current default queue.
func (s *QueueService) DeleteQueue(ctx context.Context, id string) error {
	queue, err := s.GetQueue(ctx, id)
	if err != nil {
		return err
	}
	if queue.IsDefault {
		return apperrors.NewConflict("Cannot delete the default queue", map[string]any{"id": id})
	}

	if fallback, err := s.queues.GetDefault(ctx); err == nil {
		if err := s.tickets.ReassignQueue(ctx, queue.ID, fallback.ID); err != nil {
			return apperrors.MapError(err)
		}
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return apperrors.MapError(err)
	}

	if err := s.queues.Delete(ctx, id); err != nil {
		return apperrors.MapError(err)
	}
	s.cache.InvalidateDefaultQueue(ctx)
	return nil
}

// GetDefaultQueue returns the queue currently marked default, consulting the
// cache first.
func (s *QueueService) GetDefaultQueue(ctx context.Context) (*domain.Queue, error) {
	if id := s.cache.CachedDefaultQueueID(ctx); id != "" {
		if queue, err := s.queues.GetByID(ctx, id); err == nil && queue.IsDefault {
			return queue, nil
		}
		s.cache.InvalidateDefaultQueue(ctx)
	}

	queue, err := s.queues.GetDefault(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("No default queue", nil)
		}
		return nil, apperrors.MapError(err)
	}
	s.cache.CacheDefaultQueueID(ctx, queue.ID, defaultQueueCacheTTL)
	return queue, nil
}

// EnsureDefaultQueue returns the default queue, creating the "General" queue
// when none is marked. Used by ticket creation when no queue is supplied.
func (s *QueueService) EnsureDefaultQueue(ctx context.Context) (*domain.Queue, error) {
	queue, err := s.queues.GetDefault(ctx)
	if err == nil {
		s.cache.CacheDefaultQueueID(ctx, queue.ID, defaultQueueCacheTTL)
		return queue, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	created := &domain.Queue{
		Name:        domain.DefaultQueueName,
		Description: "Default queue for unrouted tickets",
		IsDefault:   true,
	}
	if err := s.queues.Create(ctx, created); err != nil {
		// Another request may have created it concurrently.
		if existing, getErr := s.queues.GetDefault(ctx); getErr == nil {
			return existing, nil
		}
		// A queue named "General" can exist without being marked default;
		// promote it rather than failing on the name constraint.
		if existing, getErr := s.queues.GetByName(ctx, domain.DefaultQueueName); getErr == nil {
			if err := s.queues.ClearDefault(ctx); err != nil {
				return nil, apperrors.MapError(err)
			}
			existing.IsDefault = true
			if err := s.queues.Update(ctx, existing); err != nil {
				return nil, apperrors.MapError(err)
			}
			s.cache.CacheDefaultQueueID(ctx, existing.ID, defaultQueueCacheTTL)
			return existing, nil
		}
		return nil, apperrors.MapError(err)
	}
	s.cache.CacheDefaultQueueID(ctx, created.ID, defaultQueueCacheTTL)
	return created, nil
}
