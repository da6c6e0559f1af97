package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/repository"
)

// In-memory repository fakes for service tests. Create calls stamp rows with
// a monotonically increasing clock so ordering assertions are deterministic.

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type memUserRepo struct {
	mu    sync.Mutex
	clock *fakeClock
	users map[string]*domain.User
}

func newMemUserRepo(clock *fakeClock) *memUserRepo {
	return &memUserRepo{clock: clock, users: map[string]*domain.User{}}
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = r.clock.next()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	user.UpdatedAt = r.clock.next()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memQueueRepo struct {
	mu     sync.Mutex
	clock  *fakeClock
	queues map[string]*domain.Queue
}

func newMemQueueRepo(clock *fakeClock) *memQueueRepo {
	return &memQueueRepo{clock: clock, queues: map[string]*domain.Queue{}}
}

func (r *memQueueRepo) Create(_ context.Context, queue *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.queues {
		if existing.Name == queue.Name {
			return &pgconn.PgError{Code: "23505", ConstraintName: "queues_name_key"}
		}
	}
	queue.ID = uuid.NewString()
	queue.CreatedAt = r.clock.next()
	queue.UpdatedAt = queue.CreatedAt
	clone := *queue
	r.queues[queue.ID] = &clone
	return nil
}

func (r *memQueueRepo) Update(_ context.Context, queue *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[queue.ID]; !ok {
		return pgx.ErrNoRows
	}
	queue.UpdatedAt = r.clock.next()
	clone := *queue
	r.queues[queue.ID] = &clone
	return nil
}

func (r *memQueueRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.queues, id)
	return nil
}

func (r *memQueueRepo) GetByID(_ context.Context, id string) (*domain.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue, ok := r.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *queue
	return &clone, nil
}

func (r *memQueueRepo) GetByName(_ context.Context, name string) (*domain.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, queue := range r.queues {
		if queue.Name == name {
			clone := *queue
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memQueueRepo) GetDefault(_ context.Context) (*domain.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, queue := range r.queues {
		if queue.IsDefault {
			clone := *queue
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memQueueRepo) List(_ context.Context) ([]domain.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]domain.Queue, 0, len(r.queues))
	for _, queue := range r.queues {
		result = append(result, *queue)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *memQueueRepo) ClearDefault(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, queue := range r.queues {
		queue.IsDefault = false
	}
	return nil
}

func (r *memQueueRepo) defaultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, queue := range r.queues {
		if queue.IsDefault {
			count++
		}
	}
	return count
}

type memTicketRepo struct {
	mu       sync.Mutex
	clock    *fakeClock
	tickets  map[string]*domain.Ticket
	comments map[string][]domain.Comment
}

func newMemTicketRepo(clock *fakeClock) *memTicketRepo {
	return &memTicketRepo{
		clock:    clock,
		tickets:  map[string]*domain.Ticket{},
		comments: map[string][]domain.Comment{},
	}
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = r.clock.next()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = r.clock.next()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	matched := r.match(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *memTicketRepo) CountWithFilter(_ context.Context, filter repository.TicketFilter) (int, error) {
	return len(r.match(filter)), nil
}

func (r *memTicketRepo) AppendComment(_ context.Context, comment *domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	comment.ID = uuid.NewString()
	comment.CreatedAt = r.clock.next()
	r.comments[comment.TicketID] = append(r.comments[comment.TicketID], *comment)
	return nil
}

func (r *memTicketRepo) ListComments(_ context.Context, ticketID string) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Comment{}, r.comments[ticketID]...), nil
}

func (r *memTicketRepo) ReassignQueue(_ context.Context, fromQueueID, toQueueID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.QueueID == fromQueueID {
			ticket.QueueID = toQueueID
		}
	}
	return nil
}

func (r *memTicketRepo) match(filter repository.TicketFilter) []domain.Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.CustomerID != nil && ticket.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *filter.AssigneeID) {
			continue
		}
		if filter.QueueID != nil && ticket.QueueID != *filter.QueueID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, ticket.Priority) {
			continue
		}
		if filter.Search != nil {
			needle := strings.ToLower(strings.TrimSpace(*filter.Search))
			if needle != "" &&
				!strings.Contains(strings.ToLower(ticket.Title), needle) &&
				!strings.Contains(strings.ToLower(ticket.Description), needle) {
				continue
			}
		}
		matched = append(matched, *ticket)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return matched
}

func containsStatus(list []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, priority domain.TicketPriority) bool {
	for _, candidate := range list {
		if candidate == priority {
			return true
		}
	}
	return false
}
