package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/deskforge/helpdesk-service/internal/config"
	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/repository"
	apperrors "github.com/deskforge/helpdesk-service/pkg/util"
)

type memResetRepo struct {
	mu     sync.Mutex
	tokens map[string]*repository.PasswordResetToken
}

func newMemResetRepo() *memResetRepo {
	return &memResetRepo{tokens: map[string]*repository.PasswordResetToken{}}
}

func (r *memResetRepo) Create(_ context.Context, token *repository.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now()
	clone := *token
	r.tokens[token.ID] = &clone
	return nil
}

func (r *memResetRepo) GetByToken(_ context.Context, tokenStr string) (*repository.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.tokens {
		if token.Token == tokenStr {
			clone := *token
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memResetRepo) MarkUsed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.tokens[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	token.UsedAt = &now
	return nil
}

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo, *memResetRepo) {
	t.Helper()
	users := newMemUserRepo(newFakeClock())
	resets := newMemResetRepo()
	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 15
	cfg.Auth.PasswordResetTTLMinutes = 30
	cfg.Auth.BcryptCost = bcrypt.MinCost
	return NewAuthService(cfg, AuthDependencies{
		UserRepo:          users,
		PasswordResetRepo: resets,
	}), users, resets
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	user, token, exp, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Cara",
		Email:    "  Cara@Example.COM ",
		Password: "s3cret",
	})
	require.NoError(t, err)
	assert.Equal(t, "cara@example.com", user.Email, "email is normalized")
	assert.Equal(t, domain.RoleCustomer, user.Role, "role defaults to customer")
	assert.NotEmpty(t, token)
	assert.True(t, exp.After(time.Now()))

	logged, _, _, err := svc.Login(context.Background(), "cara@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Cara", Email: "cara@example.com", Password: "s3cret",
	})
	require.NoError(t, err)

	_, _, _, err = svc.Register(context.Background(), RegisterInput{
		Name: "Imposter", Email: "CARA@example.com", Password: "other",
	})
	requireHTTPStatus(t, err, http.StatusConflict)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, _, _, err := svc.Register(context.Background(), RegisterInput{Email: "x@example.com"})
	requireHTTPStatus(t, err, http.StatusBadRequest)

	_, _, _, err = svc.Register(context.Background(), RegisterInput{
		Name: "Rolf", Email: "rolf@example.com", Password: "x", Role: "superuser",
	})
	requireHTTPStatus(t, err, http.StatusBadRequest)

	user, _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Agnes", Email: "agnes@example.com", Password: "x", Role: domain.RoleAgent,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAgent, user.Role)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Cara", Email: "cara@example.com", Password: "s3cret",
	})
	require.NoError(t, err)

	_, _, _, unknownErr := svc.Login(context.Background(), "nobody@example.com", "s3cret")
	requireHTTPStatus(t, unknownErr, http.StatusUnauthorized)

	_, _, _, wrongErr := svc.Login(context.Background(), "cara@example.com", "wrong")
	requireHTTPStatus(t, wrongErr, http.StatusUnauthorized)

	var unknown, wrong *apperrors.DomainError
	require.ErrorAs(t, unknownErr, &unknown)
	require.ErrorAs(t, wrongErr, &wrong)
	assert.Equal(t, unknown.Message, wrong.Message, "no account existence disclosure")
}

func TestUpdateUserRoleImmutable(t *testing.T) {
	svc, users, _ := newTestAuthService(t)
	user, _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Cara", Email: "cara@example.com", Password: "s3cret",
	})
	require.NoError(t, err)

	newName := "Cara Renamed"
	updated, err := svc.UpdateUser(context.Background(), user.ID, UserUpdateInput{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Cara Renamed", updated.Name)
	assert.Equal(t, domain.RoleCustomer, updated.Role)

	stored, err := users.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, stored.Role)
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	user, _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Cara", Email: "cara@example.com", Password: "old-pass",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrong", "new-pass")
	requireHTTPStatus(t, err, http.StatusUnauthorized)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "old-pass", "new-pass"))

	_, _, _, err = svc.Login(context.Background(), "cara@example.com", "old-pass")
	requireHTTPStatus(t, err, http.StatusUnauthorized)
	_, _, _, err = svc.Login(context.Background(), "cara@example.com", "new-pass")
	require.NoError(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	_, _, _, err := svc.Register(context.Background(), RegisterInput{
		Name: "Cara", Email: "cara@example.com", Password: "old-pass",
	})
	require.NoError(t, err)

	token, err := svc.RequestPasswordReset(context.Background(), "cara@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	require.NoError(t, svc.ConfirmPasswordReset(context.Background(), token.Token, "fresh-pass"))

	_, _, _, err = svc.Login(context.Background(), "cara@example.com", "fresh-pass")
	require.NoError(t, err)

	// A token is single use.
	err = svc.ConfirmPasswordReset(context.Background(), token.Token, "again")
	requireHTTPStatus(t, err, http.StatusUnauthorized)

	err = svc.ConfirmPasswordReset(context.Background(), "bogus-token", "x")
	requireHTTPStatus(t, err, http.StatusUnauthorized)

	_, err = svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	requireHTTPStatus(t, err, http.StatusNotFound)
}
