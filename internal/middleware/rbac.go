package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRoles ensures the requester's role is one of the allowed roles.
// Usage: g.Use(RequireRoles(RoleEmployer))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("role").(string)
			if role == "" {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "role missing"})
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
		}
	}
}

// EmployerScope rejects employer tokens that carry no employer_id.
func EmployerScope(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id, _ := c.Get("employer_id").(string); id == "" {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "employer_id claim missing"})
		}
		return next(c)
	}
}

// AdminGuard ensures only admin users can access admin routes.
var AdminGuard = RequireRoles(RoleAdmin)
