package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/api/errors"
	apimw "github.com/jordanlanch/contentforge/pkg/api/middleware"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/partner"
)

// PartnerHandler serves the partner-facing endpoints
type PartnerHandler struct {
	partners *partner.Service
	validate *validator.Validate
}

// NewPartnerHandler creates a new partner handler
func NewPartnerHandler(partners *partner.Service) *PartnerHandler {
	return &PartnerHandler{
		partners: partners,
		validate: validator.New(),
	}
}

// Apply godoc
// @Summary Apply to the partner program
// @Description The signed-in user applies as a partner. The application starts pending.
// @Tags Partners
// @Accept json
// @Produce json
// @Param request body models.PartnerApplyRequest true "Application"
// @Success 201 {object} models.Partner
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "Already applied"
// @Security BearerAuth
// @Router /api/v1/partners/apply [post]
func (h *PartnerHandler) Apply(c echo.Context) error {
	var req models.PartnerApplyRequest
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

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.partners.Apply(ctx, apimw.UserID(c), req.Email, req.DisplayName)
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusCreated, p)
}

// Dashboard godoc
// @Summary Partner dashboard
// @Description Partner profile, codes, referred customers and ledger totals
// @Tags Partners
// @Produce json
// @Success 200 {object} models.PartnerDashboard
// @Failure 404 {object} models.ErrorResponse "Not a partner"
// @Security BearerAuth
// @Router /api/v1/partners/me/dashboard [get]
func (h *PartnerHandler) Dashboard(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	dashboard, err := h.partners.Dashboard(ctx, apimw.UserID(c))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	return c.JSON(http.StatusOK, dashboard)
}
