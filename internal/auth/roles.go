package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// RequireRole ensures the authenticated user holds one of the allowed roles.
// Admins pass every role check.
func RequireRole(allowed ...domain.UserRole) fiber.Handler {
	allowedSet := make(map[domain.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.User.Role == domain.UserRoleAdmin {
			return c.Next()
		}
		if _, exists := allowedSet[principal.User.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAgent ensures an agent is authenticated.
func RequireAgent() fiber.Handler {
	return RequireRole(domain.UserRoleAgent)
}

// RequireEmployee ensures a ticket owner is authenticated.
func RequireEmployee() fiber.Handler {
	return RequireRole(domain.UserRoleEmployee)
}
