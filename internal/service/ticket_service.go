package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/events"
	"github.com/deskforge/helpdesk-service/internal/policy"
	"github.com/deskforge/helpdesk-service/internal/repository"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

// TicketService owns ticket state: creation, listing, status transitions,
// comments, assignment, and queue placement.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	queues     *QueueService
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Queues     *QueueService
	Dispatcher events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	CustomerID  string
	QueueID     *string
	Tags        []string
}

// TicketListInput describes listing filters and pagination.
type TicketListInput struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	QueueID    *string
	AssigneeID *string
	CustomerID *string
	Search     *string
	Page       int
	PageSize   int
}

// TicketUpdateInput describes a partial ticket update. Comments cannot be
// changed through this path; they are appended via AddComment only.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	QueueID     *string
	AssigneeID  *string
	Tags        *[]string
}

// TicketPage is one page of listing results.
type TicketPage struct {
	Items     []domain.Ticket
	Total     int
	Page      int
	PageCount int
}

// CommentView pairs a comment with its resolved author.
type CommentView struct {
	Comment domain.Comment
	Author  domain.UserSummary
}

// TicketView is the read-time projection of a ticket with its references
// resolved to summary views. Reference resolution lives here so the entity
// model stays free of view concerns.
type TicketView struct {
	Ticket   domain.Ticket
	Customer domain.UserSummary
	Assignee *domain.UserSummary
	Queue    domain.QueueSummary
	Comments []CommentView
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		queues:     deps.Queues,
		dispatcher: deps.Dispatcher,
	}
}

// CreateTicket files a new ticket. Without an explicit queue the ticket goes
// to the default queue, which is created as "General" when missing.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*TicketView, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if description == "" {
		details["description"] = "required"
	}

	customerID := input.CustomerID
	if !actor.Role.IsStaff() {
		customerID = actor.ID
	}
	if customerID == "" {
		details["customer_id"] = "required"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", details)
	}

	if customerID != actor.ID {
		if _, err := s.users.GetByID(ctx, customerID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("customer does not exist", map[string]any{"customer_id": customerID})
			}
			return nil, apperrors.MapError(err)
		}
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	var queue *domain.Queue
	var err error
	if input.QueueID != nil && *input.QueueID != "" {
		queue, err = s.queues.GetQueue(ctx, *input.QueueID)
	} else {
		queue, err = s.queues.EnsureDefaultQueue(ctx)
	}
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		CustomerID:  customerID,
		QueueID:     queue.ID,
		Title:       title,
		Description: description,
		Status:      domain.TicketStatusNew,
		Priority:    priority,
		Tags:        normalizeTags(input.Tags),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			QueueID:  ticket.QueueID,
			Priority: ticket.Priority,
			Title:    ticket.Title,
		},
	})
	return s.buildView(ctx, ticket, nil)
}

// ListTickets returns one page of tickets matching the filter, newest first.
// Customers only ever see their own tickets regardless of the filter.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, input TicketListInput) (*TicketPage, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	filter := repository.TicketFilter{
		CustomerID: policy.ScopeTicketFilter(actor, input.CustomerID),
		AssigneeID: input.AssigneeID,
		QueueID:    input.QueueID,
		Statuses:   input.Statuses,
		Priorities: input.Priorities,
		Search:     input.Search,
		Limit:      pageSize,
		Offset:     (page - 1) * pageSize,
	}

	total, err := s.tickets.CountWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	items, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	pageCount := 0
	if total > 0 {
		pageCount = (total + pageSize - 1) / pageSize
	}
	return &TicketPage{
		Items:     items,
		Total:     total,
		Page:      page,
		PageCount: pageCount,
	}, nil
}

// GetTicket fetches a ticket with references resolved. Internal comments are
// stripped from customer reads.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, id string) (*TicketView, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanViewTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}

	comments, err := s.tickets.ListComments(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !policy.CanSeeInternalComments(actor) {
		visible := make([]domain.Comment, 0, len(comments))
		for _, comment := range comments {
			if comment.IsInternal {
				continue
			}
			visible = append(visible, comment)
		}
		comments = visible
	}
	return s.buildView(ctx, ticket, comments)
}

// UpdateTicket applies a partial update. patchFields lists the keys present
// in the request body and is checked against the actor's field mask before
// anything is applied; a comments key in the patch is never applied.
//
// Entering resolved or closed from a different status stamps resolvedAt or
// closedAt; re-entering the same status leaves the stamp untouched.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, id string, input TicketUpdateInput, patchFields []string) (*TicketView, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanModifyTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if err := policy.CheckFieldMask(actor.Role, policy.ResourceTicket, policy.OpUpdate, patchFields); err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidationError("title cannot be empty", map[string]any{"title": "required"})
		}
		ticket.Title = title
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if description == "" {
			return nil, apperrors.NewValidationError("description cannot be empty", map[string]any{"description": "required"})
		}
		ticket.Description = description
	}

	oldStatus := ticket.Status
	if input.Status != nil {
		if !input.Status.Valid() {
			return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *input.Status})
		}
		applyStatusTransition(ticket, *input.Status, time.Now())
	}
	if input.Priority != nil {
		if !input.Priority.Valid() {
			return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *input.Priority})
		}
		ticket.Priority = *input.Priority
	}
	if input.QueueID != nil {
		queue, err := s.queues.GetQueue(ctx, *input.QueueID)
		if err != nil {
			return nil, err
		}
		ticket.QueueID = queue.ID
	}
	if input.AssigneeID != nil {
		if err := s.verifyAssignee(ctx, *input.AssigneeID); err != nil {
			return nil, err
		}
		assignee := *input.AssigneeID
		ticket.AssigneeID = &assignee
	}
	if input.Tags != nil {
		ticket.Tags = normalizeTags(*input.Tags)
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	if ticket.Status != oldStatus {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload: events.TicketStatusChangedPayload{
				OldStatus: oldStatus,
				NewStatus: ticket.Status,
			},
		})
	}
	return s.buildView(ctx, ticket, nil)
}

// AddComment appends a comment to the ticket's ordered sequence. Prior
// comments are never reordered or mutated.
func (s *TicketService) AddComment(ctx context.Context, actor *domain.User, ticketID, body string, isInternal bool) (*TicketView, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("content required", map[string]any{"content": "required"})
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !policy.CanModifyTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if err := policy.CheckInternalComment(actor, isInternal); err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		TicketID:   ticket.ID,
		AuthorID:   actor.ID,
		Body:       strings.TrimSpace(body),
		IsInternal: isInternal,
	}
	if err := s.tickets.AppendComment(ctx, comment); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCommentAdded,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.AuthorID,
			IsInternal:  comment.IsInternal,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return s.viewWithComments(ctx, actor, ticket)
}

// AssignTicket sets the assignee. A ticket still in "new" moves to "open" as
// a side effect; any other status is left unchanged.
func (s *TicketService) AssignTicket(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*TicketView, error) {
	if assigneeID == "" {
		return nil, apperrors.NewValidationError("assignee_id required", map[string]any{"assignee_id": "required"})
	}
	if err := s.verifyAssignee(ctx, assigneeID); err != nil {
		return nil, err
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	ticket.AssigneeID = &assigneeID
	if ticket.Status == domain.TicketStatusNew {
		ticket.Status = domain.TicketStatusOpen
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload:  events.TicketAssignedPayload{AssigneeID: assigneeID},
	})
	return s.buildView(ctx, ticket, nil)
}

// MoveToQueue re-files the ticket into another queue.
func (s *TicketService) MoveToQueue(ctx context.Context, actor *domain.User, ticketID, queueID string) (*TicketView, error) {
	if queueID == "" {
		return nil, apperrors.NewValidationError("queue_id required", map[string]any{"queue_id": "required"})
	}
	queue, err := s.queues.GetQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	oldQueueID := ticket.QueueID
	ticket.QueueID = queue.ID
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	if oldQueueID != queue.ID {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketQueueChanged,
			TicketID: ticket.ID,
			Actor:    eventActor(actor),
			Payload: events.TicketQueueChangedPayload{
				OldQueueID: oldQueueID,
				NewQueueID: queue.ID,
			},
		})
	}
	return s.buildView(ctx, ticket, nil)
}

// applyStatusTransition sets the new status and stamps resolvedAt/closedAt
// when the ticket enters resolved/closed from a different status.
func applyStatusTransition(ticket *domain.Ticket, next domain.TicketStatus, now time.Time) {
	if next == domain.TicketStatusResolved && ticket.Status != domain.TicketStatusResolved {
		stamp := now
		ticket.ResolvedAt = &stamp
	}
	if next == domain.TicketStatusClosed && ticket.Status != domain.TicketStatusClosed {
		stamp := now
		ticket.ClosedAt = &stamp
	}
	ticket.Status = next
}

func (s *TicketService) getTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) verifyAssignee(ctx context.Context, assigneeID string) error {
	if _, err := s.users.GetByID(ctx, assigneeID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("assignee does not exist", map[string]any{"assignee_id": assigneeID})
		}
		return apperrors.MapError(err)
	}
	return nil
}

func (s *TicketService) viewWithComments(ctx context.Context, actor *domain.User, ticket *domain.Ticket) (*TicketView, error) {
	comments, err := s.tickets.ListComments(ctx, ticket.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !policy.CanSeeInternalComments(actor) {
		visible := make([]domain.Comment, 0, len(comments))
		for _, comment := range comments {
			if !comment.IsInternal {
				visible = append(visible, comment)
			}
		}
		comments = visible
	}
	return s.buildView(ctx, ticket, comments)
}

// buildView resolves customer, assignee, queue, and comment-author
// references to their summary views.
func (s *TicketService) buildView(ctx context.Context, ticket *domain.Ticket, comments []domain.Comment) (*TicketView, error) {
	summaries := map[string]domain.UserSummary{}
	lookup := func(id string) domain.UserSummary {
		if summary, ok := summaries[id]; ok {
			return summary
		}
		summary := domain.UserSummary{ID: id}
		if user, err := s.users.GetByID(ctx, id); err == nil {
			summary = user.Summary()
		}
		summaries[id] = summary
		return summary
	}

	view := &TicketView{
		Ticket:   *ticket,
		Customer: lookup(ticket.CustomerID),
	}
	if ticket.AssigneeID != nil {
		assignee := lookup(*ticket.AssigneeID)
		view.Assignee = &assignee
	}
	if queue, err := s.queues.GetQueue(ctx, ticket.QueueID); err == nil {
		view.Queue = queue.Summary()
	} else {
		view.Queue = domain.QueueSummary{ID: ticket.QueueID}
	}
	view.Comments = make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		view.Comments = append(view.Comments, CommentView{
			Comment: comment,
			Author:  lookup(comment.AuthorID),
		})
	}
	return view, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func eventActor(actor *domain.User) events.Actor {
	return events.Actor{UserID: actor.ID, Role: actor.Role}
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}
	return result
}

// stringPreview truncates on rune boundaries so multi-byte text is never
// split mid-character.
func stringPreview(body string, max int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= max {
		return string(runes)
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
