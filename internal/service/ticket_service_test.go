package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskforge/helpdesk-service/internal/domain"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

type testEnv struct {
	users     *memUserRepo
	queues    *memQueueRepo
	tickets   *memTicketRepo
	queueSvc  *QueueService
	ticketSvc *TicketService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	users := newMemUserRepo(clock)
	queues := newMemQueueRepo(clock)
	tickets := newMemTicketRepo(clock)

	queueSvc := NewQueueService(QueueDependencies{
		QueueRepo:  queues,
		TicketRepo: tickets,
	})
	ticketSvc := NewTicketService(TicketDependencies{
		TicketRepo: tickets,
		UserRepo:   users,
		Queues:     queueSvc,
	})
	return &testEnv{
		users:     users,
		queues:    queues,
		tickets:   tickets,
		queueSvc:  queueSvc,
		ticketSvc: ticketSvc,
	}
}

func (e *testEnv) addUser(t *testing.T, name, email string, role domain.Role) *domain.User {
	t.Helper()
	user := &domain.User{Name: name, Email: email, PasswordHash: "x", Role: role}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

func (e *testEnv) addQueue(t *testing.T, name string, isDefault bool) *domain.Queue {
	t.Helper()
	queue, err := e.queueSvc.CreateQueue(context.Background(), QueueCreateInput{
		Name:      name,
		IsDefault: isDefault,
	})
	require.NoError(t, err)
	return queue
}

func requireHTTPStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	require.Equal(t, status, de.HTTPStatus)
}

func TestCreateTicketSynthesizesGeneralQueue(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)

	view, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Printer on fire",
		Description: "It is literally on fire",
	})
	require.NoError(t, err)

	queues, err := env.queueSvc.ListQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.Equal(t, domain.DefaultQueueName, queues[0].Name)
	assert.True(t, queues[0].IsDefault)
	assert.Equal(t, queues[0].ID, view.Ticket.QueueID)
	assert.Equal(t, domain.TicketStatusNew, view.Ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, view.Ticket.Priority)
}

func TestCreateTicketPromotesExistingGeneralQueue(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	general := env.addQueue(t, domain.DefaultQueueName, false)

	// No queue is marked default, so synthesis kicks in; the existing
	// "General" must be promoted rather than tripping the name constraint.
	view, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Unrouted",
		Description: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, general.ID, view.Ticket.QueueID)

	queues, err := env.queueSvc.ListQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, queues, 1)
	assert.True(t, queues[0].IsDefault)
	assert.Equal(t, 1, env.queues.defaultCount())
}

func TestCreateTicketUsesExistingDefaultQueue(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	billing := env.addQueue(t, "Billing", true)

	view, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Charged twice",
		Description: "Invoice 42 was billed two times",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.ID, view.Ticket.QueueID)

	queues, err := env.queueSvc.ListQueues(context.Background())
	require.NoError(t, err)
	assert.Len(t, queues, 1, "no extra queue should be created")
}

func TestCreateTicketExplicitQueue(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	env.addQueue(t, "General", true)
	tech := env.addQueue(t, "Tech", false)

	view, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "VPN broken",
		Description: "Cannot connect since this morning",
		QueueID:     &tech.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, tech.ID, view.Ticket.QueueID)

	missing := "no-such-queue"
	_, err = env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "x",
		Description: "y",
		QueueID:     &missing,
	})
	requireHTTPStatus(t, err, http.StatusNotFound)
}

func TestCreateTicketValidatesRequiredFields(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)

	_, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title: "no description",
	})
	requireHTTPStatus(t, err, http.StatusBadRequest)

	_, err = env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Description: "no title",
	})
	requireHTTPStatus(t, err, http.StatusBadRequest)
}

func TestCreateTicketStaffOnBehalfOfCustomer(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)

	view, err := env.ticketSvc.CreateTicket(context.Background(), agent, TicketCreateInput{
		Title:       "Phoned-in issue",
		Description: "Customer called the hotline",
		CustomerID:  customer.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, customer.ID, view.Ticket.CustomerID)

	_, err = env.ticketSvc.CreateTicket(context.Background(), agent, TicketCreateInput{
		Title:       "Bad customer",
		Description: "x",
		CustomerID:  "does-not-exist",
	})
	requireHTTPStatus(t, err, http.StatusBadRequest)
}

func TestUpdateTicketResolvedTimestampSemantics(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Slow laptop",
		Description: "Takes 10 minutes to boot",
	})
	require.NoError(t, err)
	id := created.Ticket.ID

	resolved := domain.TicketStatusResolved
	view, err := env.ticketSvc.UpdateTicket(context.Background(), agent, id, TicketUpdateInput{Status: &resolved}, []string{"status"})
	require.NoError(t, err)
	require.NotNil(t, view.Ticket.ResolvedAt)
	firstStamp := *view.Ticket.ResolvedAt

	// Updating while already resolved must not move the stamp.
	view, err = env.ticketSvc.UpdateTicket(context.Background(), agent, id, TicketUpdateInput{Status: &resolved}, []string{"status"})
	require.NoError(t, err)
	require.NotNil(t, view.Ticket.ResolvedAt)
	assert.Equal(t, firstStamp, *view.Ticket.ResolvedAt)

	// Leaving and re-entering resolved re-stamps.
	open := domain.TicketStatusOpen
	_, err = env.ticketSvc.UpdateTicket(context.Background(), agent, id, TicketUpdateInput{Status: &open}, []string{"status"})
	require.NoError(t, err)
	view, err = env.ticketSvc.UpdateTicket(context.Background(), agent, id, TicketUpdateInput{Status: &resolved}, []string{"status"})
	require.NoError(t, err)
	require.NotNil(t, view.Ticket.ResolvedAt)
	assert.True(t, view.Ticket.ResolvedAt.After(firstStamp))
}

func TestUpdateTicketClosedTimestamp(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Done deal",
		Description: "x",
	})
	require.NoError(t, err)

	closed := domain.TicketStatusClosed
	view, err := env.ticketSvc.UpdateTicket(context.Background(), agent, created.Ticket.ID, TicketUpdateInput{Status: &closed}, []string{"status"})
	require.NoError(t, err)
	require.NotNil(t, view.Ticket.ClosedAt)
	assert.Nil(t, view.Ticket.ResolvedAt)
}

func TestUpdateTicketCustomerFieldMask(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Original title",
		Description: "Original description",
	})
	require.NoError(t, err)
	id := created.Ticket.ID

	// Any field outside title/description rejects the whole patch.
	newTitle := "Hacked title"
	resolved := domain.TicketStatusResolved
	_, err = env.ticketSvc.UpdateTicket(context.Background(), customer, id, TicketUpdateInput{
		Title:  &newTitle,
		Status: &resolved,
	}, []string{"title", "status"})
	requireHTTPStatus(t, err, http.StatusForbidden)

	current, err := env.ticketSvc.GetTicket(context.Background(), customer, id)
	require.NoError(t, err)
	assert.Equal(t, "Original title", current.Ticket.Title, "no partial application")
	assert.Equal(t, domain.TicketStatusNew, current.Ticket.Status)

	// Title and description alone are allowed.
	view, err := env.ticketSvc.UpdateTicket(context.Background(), customer, id, TicketUpdateInput{
		Title: &newTitle,
	}, []string{"title"})
	require.NoError(t, err)
	assert.Equal(t, newTitle, view.Ticket.Title)
}

func TestUpdateTicketIgnoresCommentsField(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Commented",
		Description: "x",
	})
	require.NoError(t, err)
	_, err = env.ticketSvc.AddComment(context.Background(), agent, created.Ticket.ID, "first", false)
	require.NoError(t, err)

	// A staff patch carrying a comments key is accepted and the key ignored.
	newTitle := "Renamed"
	view, err := env.ticketSvc.UpdateTicket(context.Background(), agent, created.Ticket.ID, TicketUpdateInput{
		Title: &newTitle,
	}, []string{"title", "comments"})
	require.NoError(t, err)
	assert.Equal(t, newTitle, view.Ticket.Title)

	detail, err := env.ticketSvc.GetTicket(context.Background(), agent, created.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "first", detail.Comments[0].Comment.Body)
}

func TestGetTicketOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	other := env.addUser(t, "Oscar", "oscar@example.com", domain.RoleCustomer)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	created, err := env.ticketSvc.CreateTicket(context.Background(), owner, TicketCreateInput{
		Title:       "Mine",
		Description: "x",
	})
	require.NoError(t, err)

	_, err = env.ticketSvc.GetTicket(context.Background(), other, created.Ticket.ID)
	requireHTTPStatus(t, err, http.StatusForbidden)

	_, err = env.ticketSvc.GetTicket(context.Background(), owner, created.Ticket.ID)
	require.NoError(t, err)

	_, err = env.ticketSvc.GetTicket(context.Background(), agent, created.Ticket.ID)
	require.NoError(t, err)

	_, err = env.ticketSvc.GetTicket(context.Background(), agent, "missing")
	requireHTTPStatus(t, err, http.StatusNotFound)
}

func TestInternalCommentsPolicy(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Needs notes",
		Description: "x",
	})
	require.NoError(t, err)
	id := created.Ticket.ID

	_, err = env.ticketSvc.AddComment(context.Background(), customer, id, "let me in", true)
	requireHTTPStatus(t, err, http.StatusForbidden)

	_, err = env.ticketSvc.AddComment(context.Background(), customer, id, "public question", false)
	require.NoError(t, err)
	view, err := env.ticketSvc.AddComment(context.Background(), agent, id, "internal note", true)
	require.NoError(t, err)
	require.Len(t, view.Comments, 2)
	assert.Equal(t, "internal note", view.Comments[1].Comment.Body)
	assert.True(t, view.Comments[1].Comment.CreatedAt.After(view.Comments[0].Comment.CreatedAt))

	// Customer reads exclude the internal note.
	customerView, err := env.ticketSvc.GetTicket(context.Background(), customer, id)
	require.NoError(t, err)
	require.Len(t, customerView.Comments, 1)
	assert.Equal(t, "public question", customerView.Comments[0].Comment.Body)
}

func TestAssignTicketStatusSideEffect(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Fresh",
		Description: "x",
	})
	require.NoError(t, err)

	view, err := env.ticketSvc.AssignTicket(context.Background(), agent, created.Ticket.ID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, view.Ticket.Status)
	require.NotNil(t, view.Ticket.AssigneeID)
	assert.Equal(t, agent.ID, *view.Ticket.AssigneeID)

	// Any status other than "new" is left unchanged.
	pending := domain.TicketStatusPending
	_, err = env.ticketSvc.UpdateTicket(context.Background(), agent, created.Ticket.ID, TicketUpdateInput{Status: &pending}, []string{"status"})
	require.NoError(t, err)
	view, err = env.ticketSvc.AssignTicket(context.Background(), agent, created.Ticket.ID, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusPending, view.Ticket.Status)

	_, err = env.ticketSvc.AssignTicket(context.Background(), agent, created.Ticket.ID, "ghost")
	requireHTTPStatus(t, err, http.StatusBadRequest)
}

func TestMoveToQueue(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	env.addQueue(t, "General", true)
	tech := env.addQueue(t, "Tech", false)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Route me",
		Description: "x",
	})
	require.NoError(t, err)

	view, err := env.ticketSvc.MoveToQueue(context.Background(), agent, created.Ticket.ID, tech.ID)
	require.NoError(t, err)
	assert.Equal(t, tech.ID, view.Ticket.QueueID)
	assert.Equal(t, "Tech", view.Queue.Name)

	_, err = env.ticketSvc.MoveToQueue(context.Background(), agent, created.Ticket.ID, "missing")
	requireHTTPStatus(t, err, http.StatusNotFound)
}

func TestListTicketsFiltersAndPagination(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	env.addQueue(t, "General", true)

	open := domain.TicketStatusOpen
	high := domain.TicketPriorityHigh
	var matchingIDs []string
	for i := 0; i < 5; i++ {
		view, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
			Title:       "Hot issue",
			Description: "urgent matter",
			Priority:    high,
		})
		require.NoError(t, err)
		_, err = env.ticketSvc.UpdateTicket(context.Background(), agent, view.Ticket.ID, TicketUpdateInput{Status: &open}, []string{"status"})
		require.NoError(t, err)
		matchingIDs = append(matchingIDs, view.Ticket.ID)
	}
	// Noise that must not match the filters.
	_, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Low noise",
		Description: "not important",
		Priority:    domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	page, err := env.ticketSvc.ListTickets(context.Background(), agent, TicketListInput{
		Statuses:   []domain.TicketStatus{open},
		Priorities: []domain.TicketPriority{high},
		Page:       1,
		PageSize:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.PageCount)
	require.Len(t, page.Items, 2)
	// Newest first.
	assert.Equal(t, matchingIDs[4], page.Items[0].ID)
	assert.Equal(t, matchingIDs[3], page.Items[1].ID)

	last, err := env.ticketSvc.ListTickets(context.Background(), agent, TicketListInput{
		Statuses:   []domain.TicketStatus{open},
		Priorities: []domain.TicketPriority{high},
		Page:       3,
		PageSize:   2,
	})
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, matchingIDs[0], last.Items[0].ID)
}

func TestListTicketsSearch(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	env.addQueue(t, "General", true)

	_, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Printer jam",
		Description: "paper stuck in tray",
	})
	require.NoError(t, err)
	_, err = env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Login broken",
		Description: "cannot sign in, PRINTER unrelated",
	})
	require.NoError(t, err)

	search := "printer"
	page, err := env.ticketSvc.ListTickets(context.Background(), customer, TicketListInput{Search: &search})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total, "case-insensitive substring on title or description")
}

func TestListTicketsCustomerScope(t *testing.T) {
	env := newTestEnv(t)
	owner := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	other := env.addUser(t, "Oscar", "oscar@example.com", domain.RoleCustomer)
	env.addQueue(t, "General", true)

	_, err := env.ticketSvc.CreateTicket(context.Background(), owner, TicketCreateInput{Title: "a", Description: "b"})
	require.NoError(t, err)
	_, err = env.ticketSvc.CreateTicket(context.Background(), other, TicketCreateInput{Title: "c", Description: "d"})
	require.NoError(t, err)

	// The customer filter is pinned to the caller, even when they ask for
	// someone else's tickets.
	page, err := env.ticketSvc.ListTickets(context.Background(), owner, TicketListInput{CustomerID: &other.ID})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, owner.ID, page.Items[0].CustomerID)
}

func TestStringPreviewRuneSafe(t *testing.T) {
	assert.Equal(t, "héllo", stringPreview("héllo", 10))

	preview := stringPreview(strings.Repeat("ñ", 10), 7)
	assert.Equal(t, "ññññ...", preview)
	assert.True(t, utf8.ValidString(preview))

	short := stringPreview("日本語テスト", 2)
	assert.Equal(t, "日本", short)
	assert.True(t, utf8.ValidString(short))
}

func TestGetTicketResolvesReferences(t *testing.T) {
	env := newTestEnv(t)
	customer := env.addUser(t, "Cara", "cara@example.com", domain.RoleCustomer)
	agent := env.addUser(t, "Agnes", "agnes@example.com", domain.RoleAgent)
	env.addQueue(t, "General", true)
	created, err := env.ticketSvc.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:       "Who am I",
		Description: "x",
	})
	require.NoError(t, err)
	_, err = env.ticketSvc.AssignTicket(context.Background(), agent, created.Ticket.ID, agent.ID)
	require.NoError(t, err)
	_, err = env.ticketSvc.AddComment(context.Background(), agent, created.Ticket.ID, "looking into it", false)
	require.NoError(t, err)

	view, err := env.ticketSvc.GetTicket(context.Background(), customer, created.Ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cara", view.Customer.Name)
	assert.Equal(t, "cara@example.com", view.Customer.Email)
	require.NotNil(t, view.Assignee)
	assert.Equal(t, "Agnes", view.Assignee.Name)
	assert.Equal(t, domain.DefaultQueueName, view.Queue.Name)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "Agnes", view.Comments[0].Author.Name)
}
