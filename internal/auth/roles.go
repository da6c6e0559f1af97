package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/deskforge/helpdesk-service/internal/domain"
	"github.com/deskforge/helpdesk-service/internal/policy"
)

// requireRole builds a middleware that admits principals whose role passes
// the given policy predicate.
func requireRole(allowed func(domain.Role) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.User == nil {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if !allowed(principal.User.Role) {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// RequireStaff gates ticket assignment and queue moves.
func RequireStaff() fiber.Handler {
	return requireRole(policy.CanAssignTickets)
}

// RequireQueueManager gates queue mutations.
func RequireQueueManager() fiber.Handler {
	return requireRole(policy.CanManageQueues)
}

// RequireAuthenticated ensures the caller is authenticated with any role.
func RequireAuthenticated() fiber.Handler {
	return requireRole(func(domain.Role) bool { return true })
}
