package middleware

import (
	"context"
	"slices"

	"go-reports/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// RoleService is the slice of the role feature the middleware needs.
// Declared here to avoid an import cycle between features and middleware.
type RoleService interface {
	GetPermissionsForRoles(ctx context.Context, roleNames []string) ([]string, error)
}

// RequirePermission checks if the user has a specific permission code
// (e.g. "reports.change_report").
func RequirePermission(roleService RoleService, skipAuth bool, requiredPermission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			return c.Next()
		}

		claims, ok := c.Locals(utils.UserClaimsKey).(*utils.UserClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		permissions, err := roleService.GetPermissionsForRoles(c.Context(), claims.Roles)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		}

		if !slices.Contains(permissions, requiredPermission) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Insufficient permissions",
			})
		}

		return c.Next()
	}
}
