package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/api/errors"
	"github.com/jordanlanch/contentforge/pkg/commission"
	"github.com/jordanlanch/contentforge/pkg/export"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/partner"
	"github.com/jordanlanch/contentforge/pkg/referral"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves partner administration and ledger settlement
type AdminHandler struct {
	partners  *partner.Service
	validator *referral.Validator
	ledger    *commission.Ledger
	exporter  *export.Service
	validate  *validator.Validate
	logger    logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	partners *partner.Service,
	v *referral.Validator,
	ledger *commission.Ledger,
	exporter *export.Service,
	log logger.Logger,
) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{
		partners:  partners,
		validator: v,
		ledger:    ledger,
		exporter:  exporter,
		validate:  validator.New(),
		logger:    log.With("component", "admin_api"),
	}
}

// bind decodes and validates req. When it reports false the error response is already written.
func (h *AdminHandler) bind(c echo.Context, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validate.Struct(req); err != nil {
		return false, errors.ValidationError(c, err)
	}
	return true, nil
}

// ListPartners godoc
// @Summary List partners
// @Tags Admin
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {array} models.Partner
// @Security BearerAuth
// @Router /api/v1/admin/partners [get]
func (h *AdminHandler) ListPartners(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	partners, err := h.partners.List(ctx, models.PartnerStatus(c.QueryParam("status")))
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, partners)
}

// SetStatus godoc
// @Summary Change a partner's status
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Partner ID"
// @Param request body models.PartnerStatusRequest true "New status"
// @Success 200 {object} models.Partner
// @Failure 400 {object} models.ErrorResponse "Transition not allowed"
// @Security BearerAuth
// @Router /api/v1/admin/partners/{id}/status [post]
func (h *AdminHandler) SetStatus(c echo.Context) error {
	var req models.PartnerStatusRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.partners.SetStatus(ctx, c.Param("id"), models.PartnerStatus(req.Status))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	// cached validations embed the partner's status
	h.validator.ForgetAll(ctx)
	return c.JSON(http.StatusOK, p)
}

// SetRate godoc
// @Summary Change a partner's commission rate
// @Description Applies to future accruals only; existing ledger entries keep their rate.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Partner ID"
// @Param request body models.CommissionRateRequest true "New rate"
// @Success 200 {object} models.Partner
// @Security BearerAuth
// @Router /api/v1/admin/partners/{id}/rate [put]
func (h *AdminHandler) SetRate(c echo.Context) error {
	var req models.CommissionRateRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.partners.UpdateCommissionRate(ctx, c.Param("id"), req.Rate)
	if err != nil {
		return errors.FromDomain(c, err)
	}

	h.validator.ForgetAll(ctx)
	return c.JSON(http.StatusOK, p)
}

// CreateCode godoc
// @Summary Create a referral code for a partner
// @Description Leave code empty to generate one
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Partner ID"
// @Param request body models.CreateCodeRequest true "Code options"
// @Success 201 {object} models.PartnerCode
// @Failure 409 {object} models.ErrorResponse "Code taken"
// @Security BearerAuth
// @Router /api/v1/admin/partners/{id}/codes [post]
func (h *AdminHandler) CreateCode(c echo.Context) error {
	var req models.CreateCodeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	code, err := h.partners.CreateCode(ctx, c.Param("id"), partner.CodeOptions{
		Code:      req.Code,
		MaxUses:   req.MaxUses,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return errors.FromDomain(c, err)
	}

	// a previous "not found" may be cached
	h.validator.Forget(ctx, code.Code)
	return c.JSON(http.StatusCreated, code)
}

// DeactivateCode godoc
// @Summary Deactivate a referral code
// @Tags Admin
// @Produce json
// @Param code path string true "Referral code"
// @Success 200 {object} models.SuccessResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/codes/{code} [delete]
func (h *AdminHandler) DeactivateCode(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	code := c.Param("code")
	if err := h.partners.DeactivateCode(ctx, code); err != nil {
		return errors.FromDomain(c, err)
	}

	h.validator.Forget(ctx, code)
	return c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Code deactivated",
	})
}

// ListLedger godoc
// @Summary List a partner's ledger entries
// @Tags Admin
// @Produce json
// @Param id path string true "Partner ID"
// @Success 200 {array} models.LedgerEntry
// @Security BearerAuth
// @Router /api/v1/admin/partners/{id}/ledger [get]
func (h *AdminHandler) ListLedger(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	entries, err := h.ledger.List(ctx, c.Param("id"))
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

// MarkPaid godoc
// @Summary Mark a ledger entry paid
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Ledger entry ID"
// @Param request body models.MarkPaidRequest true "Payment reference"
// @Success 200 {object} models.LedgerEntry
// @Failure 409 {object} models.ErrorResponse "Entry already paid or reversed"
// @Security BearerAuth
// @Router /api/v1/admin/ledger/{id}/pay [post]
func (h *AdminHandler) MarkPaid(c echo.Context) error {
	var req models.MarkPaidRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.ledger.MarkPaid(ctx, c.Param("id"), req.PaymentTxID)
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// Reverse godoc
// @Summary Reverse a ledger entry
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Ledger entry ID"
// @Param request body models.ReverseRequest true "Reason"
// @Success 200 {object} models.LedgerEntry
// @Failure 409 {object} models.ErrorResponse "Entry already paid or reversed"
// @Security BearerAuth
// @Router /api/v1/admin/ledger/{id}/reverse [post]
func (h *AdminHandler) Reverse(c echo.Context) error {
	var req models.ReverseRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entry, err := h.ledger.Reverse(ctx, c.Param("id"), req.Reason)
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// Statement godoc
// @Summary Download a partner's commission statement
// @Tags Admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Partner ID"
// @Param token query string false "JWT, for download links"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /api/v1/admin/partners/{id}/statement.xlsx [get]
func (h *AdminHandler) Statement(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	data, name, err := h.exporter.Statement(ctx, c.Param("id"))
	if err != nil {
		return errors.FromDomain(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
