package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apimw "github.com/jordanlanch/contentforge/pkg/api/middleware"
	"github.com/jordanlanch/contentforge/pkg/auth"
	"github.com/jordanlanch/contentforge/pkg/models"
)

// RequireAdmin ensures the authenticated user carries the admin role.
// Apply it AFTER the JWT middleware.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apimw.UserID(c) == "" {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Authentication required",
				})
			}

			if apimw.UserRole(c) != auth.RoleAdmin {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"error":   "insufficient_permissions",
					"message": "Admin access required",
					"details": map[string]interface{}{
						"required_role": auth.RoleAdmin,
						"current_role":  apimw.UserRole(c),
					},
				})
			}

			return next(c)
		}
	}
}
