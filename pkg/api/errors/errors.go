// Package errors turns service errors into sanitized JSON responses.
package errors

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/models"
)

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// DatabaseError returns a generic database error without exposing internal details
func DatabaseError(c echo.Context, err error) error {
	log.Printf("[DATABASE ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "A database error occurred. Please try again later.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnavailableError is returned for transient failures the client may retry
func UnavailableError(c echo.Context, err error) error {
	log.Printf("[TRANSIENT ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	c.Response().Header().Set("Retry-After", "1")
	return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
		Error:   "temporarily_unavailable",
		Message: "The service is temporarily unavailable. Please retry shortly.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, reason string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// ForbiddenError returns a generic forbidden error
func ForbiddenError(c echo.Context, reason string) error {
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "You do not have permission to access this resource.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// ConflictError returns a conflict error. The message is shown to the caller.
func ConflictError(c echo.Context, code, message string) error {
	if code == "" {
		code = "conflict"
	}
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// FromDomain maps a service error onto the matching response.
// Domain messages are written for callers; anything else is logged and hidden.
func FromDomain(c echo.Context, err error) error {
	switch domain.GetErrorCode(err) {
	case domain.ErrCodeValidation:
		log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: domain.Message(err),
		})
	case domain.ErrCodeNotFound:
		return NotFoundError(c, domain.Message(err))
	case domain.ErrCodeUnauthorized:
		return UnauthorizedError(c, domain.Message(err))
	case domain.ErrCodeForbidden:
		return ForbiddenError(c, domain.Message(err))
	case domain.ErrCodeConflict:
		return ConflictError(c, "conflict", domain.Message(err))
	case domain.ErrCodeAlreadyTerminal:
		return ConflictError(c, "already_terminal", domain.Message(err))
	case domain.ErrCodeDuplicateInvoice:
		return ConflictError(c, "duplicate_invoice", domain.Message(err))
	case domain.ErrCodeTransient:
		return UnavailableError(c, err)
	default:
		return InternalError(c, err)
	}
}
