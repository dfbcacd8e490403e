package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/auth"
	"github.com/jordanlanch/contentforge/pkg/models"
)

// Context keys set by the JWT middlewares
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
)

// JWTMiddleware creates a JWT authentication middleware
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return jwtMiddleware(secret, false)
}

// JWTFromQueryOrHeader creates a JWT middleware that also accepts a token query parameter.
// Download links use it because they cannot set headers.
func JWTFromQueryOrHeader(secret string) echo.MiddlewareFunc {
	return jwtMiddleware(secret, true)
}

func jwtMiddleware(secret string, allowQuery bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, errResp := bearerToken(c, allowQuery)
			if errResp != nil {
				return c.JSON(http.StatusUnauthorized, errResp)
			}

			claims, err := auth.ValidateJWT(token, secret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "invalid_token",
					Message: "Token is invalid or expired",
				})
			}

			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUserEmail, claims.Email)
			c.Set(ContextUserRole, claims.Role)

			return next(c)
		}
	}
}

func bearerToken(c echo.Context, allowQuery bool) (string, *models.ErrorResponse) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := c.QueryParam("token"); token != "" {
				return token, nil
			}
		}
		return "", &models.ErrorResponse{
			Error:   "missing_token",
			Message: "Authorization header is required",
		}
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", &models.ErrorResponse{
			Error:   "invalid_token_format",
			Message: "Authorization header must be 'Bearer {token}'",
		}
	}
	return parts[1], nil
}

// UserID returns the authenticated user id, or "" when the request is anonymous
func UserID(c echo.Context) string {
	id, _ := c.Get(ContextUserID).(string)
	return id
}

// UserEmail returns the authenticated user's email
func UserEmail(c echo.Context) string {
	email, _ := c.Get(ContextUserEmail).(string)
	return email
}

// UserRole returns the authenticated user's role
func UserRole(c echo.Context) string {
	role, _ := c.Get(ContextUserRole).(string)
	return role
}
