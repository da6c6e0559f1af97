package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deskforge/helpdesk-service/internal/domain"
)

// QueueRepository manages queue persistence.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	Update(ctx context.Context, queue *domain.Queue) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	GetByName(ctx context.Context, name string) (*domain.Queue, error)
	GetDefault(ctx context.Context) (*domain.Queue, error)
	List(ctx context.Context) ([]domain.Queue, error)
	ClearDefault(ctx context.Context) error
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository builds the repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (name, description, is_default)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		queue.Name,
		queue.Description,
		queue.IsDefault,
	).Scan(&queue.ID, &queue.CreatedAt, &queue.UpdatedAt)
}

func (r *queueRepository) Update(ctx context.Context, queue *domain.Queue) error {
	const query = `
        UPDATE queues SET name=$1, description=$2, is_default=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query,
		queue.Name,
		queue.Description,
		queue.IsDefault,
		queue.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM queues WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	const query = `
        SELECT id, name, description, is_default, created_at, updated_at
        FROM queues WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *queueRepository) GetByName(ctx context.Context, name string) (*domain.Queue, error) {
	const query = `
        SELECT id, name, description, is_default, created_at, updated_at
        FROM queues WHERE name=$1`
	return r.fetchSingle(ctx, query, name)
}

// GetDefault returns the queue currently marked default. Returns
// pgx.ErrNoRows when no queue is marked.
func (r *queueRepository) GetDefault(ctx context.Context) (*domain.Queue, error) {
	const query = `
        SELECT id, name, description, is_default, created_at, updated_at
        FROM queues WHERE is_default = TRUE LIMIT 1`
	var queue domain.Queue
	if err := r.pool.QueryRow(ctx, query).Scan(
		&queue.ID,
		&queue.Name,
		&queue.Description,
		&queue.IsDefault,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *queueRepository) List(ctx context.Context) ([]domain.Queue, error) {
	const query = `
        SELECT id, name, description, is_default, created_at, updated_at
        FROM queues ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := rows.Scan(&queue.ID, &queue.Name, &queue.Description, &queue.IsDefault, &queue.CreatedAt, &queue.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}

// ClearDefault unmarks every queue. Part of the two-step default swap; see
// the queue service for the documented race window.
func (r *queueRepository) ClearDefault(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `UPDATE queues SET is_default = FALSE, updated_at = NOW() WHERE is_default = TRUE`)
	return err
}

func (r *queueRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Queue, error) {
	var queue domain.Queue
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&queue.ID,
		&queue.Name,
		&queue.Description,
		&queue.IsDefault,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}
