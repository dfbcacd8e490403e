package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/contentforge/pkg/api/errors"
	"github.com/jordanlanch/contentforge/pkg/billing"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/models"
)

const maxWebhookBody = 1 << 20

// BillingHandler receives Stripe webhooks
type BillingHandler struct {
	billing *billing.Service
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(svc *billing.Service) *BillingHandler {
	return &BillingHandler{billing: svc}
}

// HandleWebhook handles Stripe webhook events
// @Summary Handle Stripe webhook
// @Description Links subscriptions to referrals, accrues commission on paid invoices and reverses it on refunds
// @Tags Billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe webhook signature for verification"
// @Param payload body object true "Stripe webhook event payload"
// @Success 200 {object} models.WebhookAck "Event acknowledged"
// @Failure 400 {object} models.ErrorResponse "Invalid request or signature"
// @Failure 500 {object} models.ErrorResponse "Processing failed, Stripe will retry"
// @Router /webhook/stripe [post]
func (h *BillingHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "missing_signature",
		})
	}

	ack, err := h.billing.HandleWebhook(c.Request().Context(), body, signature)
	if err != nil {
		if domain.IsValidation(err) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_signature",
				Message: "Webhook signature verification failed",
			})
		}
		return errors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, ack)
}
