package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/api/errors"
	apimw "github.com/jordanlanch/contentforge/pkg/api/middleware"
	"github.com/jordanlanch/contentforge/pkg/generation"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/recovery"
)

// GenerationFailedResponse explains a generation that could not be recovered
type GenerationFailedResponse struct {
	Error   string           `json:"error"`
	Kind    recovery.Kind    `json:"kind"`
	Message recovery.Message `json:"message"`
}

// GenerationHandler serves caption generation
type GenerationHandler struct {
	generator *generation.Generator
	timeout   time.Duration
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(g *generation.Generator) *GenerationHandler {
	return &GenerationHandler{generator: g, timeout: 90 * time.Second}
}

// GenerateCaptions godoc
// @Summary Generate social media captions
// @Description Retries, repairs or falls back to templates when the model misbehaves.
// @Description The request_id (or Idempotency-Key header) rejects duplicates while one is in flight.
// @Tags Generation
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Request id when the body has none"
// @Param request body generation.CaptionRequest true "Caption request"
// @Success 200 {object} generation.CaptionResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "Duplicate request in flight"
// @Failure 429 {object} GenerationFailedResponse
// @Failure 502 {object} GenerationFailedResponse
// @Security BearerAuth
// @Router /api/v1/generate/captions [post]
func (h *GenerationHandler) GenerateCaptions(c echo.Context) error {
	var req generation.CaptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	req.UserID = apimw.UserID(c)
	if req.RequestID == "" {
		req.RequestID = c.Request().Header.Get("Idempotency-Key")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Language == "" {
		req.Language = recovery.ParseAcceptLanguage(c.Request().Header.Get("Accept-Language")).String()
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	result, err := h.generator.GenerateCaptions(ctx, req)
	if err != nil {
		var failed *generation.FailedError
		if stderrors.As(err, &failed) {
			return c.JSON(statusForKind(failed.Kind), GenerationFailedResponse{
				Error:   "generation_failed",
				Kind:    failed.Kind,
				Message: failed.Message,
			})
		}
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func statusForKind(kind recovery.Kind) int {
	switch kind {
	case recovery.KindRateLimited, recovery.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case recovery.KindValidation:
		return http.StatusUnprocessableEntity
	case recovery.KindTimeout:
		return http.StatusGatewayTimeout
	case recovery.KindOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
