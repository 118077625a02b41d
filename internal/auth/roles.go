package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// RequireStaffRole ensures the staff principal has one of the allowed roles.
// ADMIN satisfies every role check.
func RequireStaffRole(allowed ...domain.StaffRole) fiber.Handler {
	allowedSet := make(map[domain.StaffRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.SubjectType != domain.SubjectTypeStaff {
			return apperrors.NewForbidden("staff role required")
		}
		if len(allowedSet) == 0 || principal.Role == domain.StaffRoleAdmin {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
