package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/api/errors"
	apimw "github.com/jordanlanch/contentforge/pkg/api/middleware"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/referral"
)

// ReferralHandler serves code validation and signup attribution
type ReferralHandler struct {
	validator    *referral.Validator
	orchestrator *referral.Orchestrator
	validate     *validator.Validate
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(v *referral.Validator, o *referral.Orchestrator) *ReferralHandler {
	return &ReferralHandler{
		validator:    v,
		orchestrator: o,
		validate:     validator.New(),
	}
}

// ValidateCode godoc
// @Summary Validate a referral code
// @Description Check whether a referral code can currently be used. Results may be served from cache.
// @Tags Referrals
// @Produce json
// @Param code query string true "Referral code to validate"
// @Success 200 {object} referral.Validation
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/referrals/validate [get]
func (h *ReferralHandler) ValidateCode(c echo.Context) error {
	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" || len(code) > 32 {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_code",
			Message: "referral code is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	result, err := h.validator.ValidateCached(ctx, code)
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// Attribute godoc
// @Summary Attribute the signed-in customer to a partner
// @Description Called by the signup flow after registration. Always answers 200; the outcome says what happened.
// @Tags Referrals
// @Accept json
// @Produce json
// @Param request body models.AttributeRequest true "Attribution data"
// @Success 200 {object} referral.AttributionResult
// @Failure 400 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/referrals/attribute [post]
func (h *ReferralHandler) Attribute(c echo.Context) error {
	var req models.AttributeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if req.Email == "" {
		req.Email = apimw.UserEmail(c)
	}
	if err := h.validate.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	profile := models.CustomerProfile{
		DisplayName: req.DisplayName,
		Email:       req.Email,
	}
	meta := models.AttributionMetadata{
		Source:      models.ReferralSource(req.Source),
		IPAddress:   c.RealIP(),
		UserAgent:   c.Request().UserAgent(),
		LandingPage: req.LandingPage,
	}

	result := h.orchestrator.Attribute(ctx, req.ReferralCode, apimw.UserID(c), profile, meta)
	return c.JSON(http.StatusOK, result)
}
