package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/jordanlanch/contentforge/pkg/commission"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// Ledger is the part of the commission ledger the webhook drives
type Ledger interface {
	AccrueCommission(ctx context.Context, req commission.AccrueRequest) (*models.LedgerEntry, error)
	ReverseInvoice(ctx context.Context, invoiceID, reason string) ([]*models.LedgerEntry, error)
}

// Service turns Stripe webhook events into referral and ledger updates
type Service struct {
	store         *store.Store
	ledger        Ledger
	webhookSecret string
	metrics       *metrics.Metrics
	logger        logger.Logger
}

// NewService creates a billing webhook service
func NewService(st *store.Store, ledger Ledger, webhookSecret string, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:         st,
		ledger:        ledger,
		webhookSecret: webhookSecret,
		logger:        log.With("component", "stripe_webhook"),
	}
}

// WithMetrics counts handled events
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// HandleWebhook verifies the Stripe signature and handles the event.
// A returned error asks Stripe to redeliver; anything acknowledged will not come back.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*models.WebhookAck, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.metrics.RecordWebhookEvent("unknown", "bad_signature")
		return nil, domain.NewValidationError(fmt.Sprintf("webhook signature verification failed: %v", err))
	}
	return s.HandleEvent(ctx, event)
}

// HandleEvent dispatches a verified event
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) (*models.WebhookAck, error) {
	eventType := string(event.Type)
	log := s.logger.With("event_id", event.ID, "event_type", eventType)
	log.Info("stripe webhook received")

	if event.Data == nil {
		s.metrics.RecordWebhookEvent(eventType, "ignored")
		return ack(eventType, "event has no data"), nil
	}

	var (
		note string
		err  error
	)
	switch eventType {
	case "checkout.session.completed":
		note, err = s.handleCheckoutCompleted(ctx, event.Data.Raw)
	case "invoice.paid":
		note, err = s.handleInvoicePaid(ctx, event.Data.Raw)
	case "charge.refunded":
		note, err = s.handleChargeRefunded(ctx, event.Data.Raw)
	case "customer.subscription.deleted":
		note, err = s.handleSubscriptionDeleted(ctx, event.Data.Raw)
	default:
		note = "unhandled event type"
	}

	if err != nil {
		s.metrics.RecordWebhookEvent(eventType, "error")
		log.Error("stripe webhook failed", "error", err)
		return nil, err
	}

	result := "handled"
	if note != "" {
		result = "ignored"
		log.Info("stripe webhook acknowledged without changes", "note", note)
	}
	s.metrics.RecordWebhookEvent(eventType, result)
	return ack(eventType, note), nil
}

// handleCheckoutCompleted links the billing customer to the signup's referral.
// client_reference_id carries the customer's auth uid.
func (s *Service) handleCheckoutCompleted(ctx context.Context, raw json.RawMessage) (string, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return "", fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if sess.ClientReferenceID == "" {
		return "no client reference", nil
	}
	if sess.Customer == nil || sess.Customer.ID == "" {
		return "no billing customer", nil
	}

	ref, err := s.store.FirstReferralByCustomer(ctx, sess.ClientReferenceID)
	if errors.Is(err, store.ErrNotFound) {
		return "customer was not referred", nil
	}
	if err != nil {
		return "", err
	}

	subscriptionID := ""
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
	}
	if err := s.store.LinkBilling(ctx, ref.ID, sess.Customer.ID, subscriptionID, s.store.Now()); err != nil {
		return "", err
	}

	s.logger.Info("referral linked to billing customer",
		"referral_id", ref.ID,
		"partner_id", ref.PartnerID,
		"stripe_customer_id", sess.Customer.ID,
		"stripe_subscription_id", subscriptionID,
	)
	return "", nil
}

// handleInvoicePaid accrues commission for a referred customer's paid invoice
func (s *Service) handleInvoicePaid(ctx context.Context, raw json.RawMessage) (string, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return "", fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Customer == nil || invoice.Customer.ID == "" {
		return "no billing customer", nil
	}
	if invoice.AmountPaid <= 0 {
		return "nothing paid", nil
	}

	ref, err := s.store.FirstReferralByStripeCustomer(ctx, invoice.Customer.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "customer was not referred", nil
	}
	if err != nil {
		return "", err
	}

	start, end := invoicePeriod(&invoice)
	subscriptionID := ""
	if invoice.Subscription != nil {
		subscriptionID = invoice.Subscription.ID
	}

	entry, err := s.ledger.AccrueCommission(ctx, commission.AccrueRequest{
		PartnerID:      ref.PartnerID,
		ReferralID:     ref.ID,
		InvoiceID:      invoice.ID,
		SubscriptionID: subscriptionID,
		GrossAmount:    invoice.AmountPaid,
		Currency:       string(invoice.Currency),
		PeriodStart:    start,
		PeriodEnd:      end,
	})
	switch {
	case err == nil:
	case domain.IsDuplicateInvoice(err):
		s.logger.Warn("invoice already accrued", "invoice_id", invoice.ID, "partner_id", ref.PartnerID)
		return "duplicate invoice", nil
	case domain.IsValidation(err), domain.IsNotFound(err):
		s.logger.Warn("invoice not eligible for commission", "invoice_id", invoice.ID, "error", err)
		return "not eligible", nil
	default:
		return "", err
	}

	if _, err := s.store.RecordSpend(ctx, ref.PartnerID, ref.CustomerUID, invoice.AmountPaid, s.store.Now()); err != nil {
		s.logger.Warn("failed to update customer spend", "invoice_id", invoice.ID, "error", err)
	}

	s.logger.Info("commission accrued from invoice",
		"invoice_id", invoice.ID,
		"entry_id", entry.ID,
		"commission_amount", entry.CommissionAmount,
	)
	return "", nil
}

// handleChargeRefunded reverses the commission of a refunded invoice
func (s *Service) handleChargeRefunded(ctx context.Context, raw json.RawMessage) (string, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return "", fmt.Errorf("failed to unmarshal charge: %w", err)
	}

	if charge.Invoice == nil || charge.Invoice.ID == "" {
		return "charge has no invoice", nil
	}

	reversed, err := s.ledger.ReverseInvoice(ctx, charge.Invoice.ID, "refunded")
	if err != nil {
		return "", err
	}
	if len(reversed) == 0 {
		return "no accrued commission", nil
	}

	s.logger.Info("commission reversed for refund", "invoice_id", charge.Invoice.ID, "entries", len(reversed))
	return "", nil
}

// handleSubscriptionDeleted marks a referred customer as churned
func (s *Service) handleSubscriptionDeleted(ctx context.Context, raw json.RawMessage) (string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return "", fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	if sub.Customer == nil || sub.Customer.ID == "" {
		return "no billing customer", nil
	}

	ref, err := s.store.FirstReferralByStripeCustomer(ctx, sub.Customer.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "customer was not referred", nil
	}
	if err != nil {
		return "", err
	}

	if _, err := s.store.SetCustomerStatus(ctx, ref.PartnerID, ref.CustomerUID, models.CustomerStatusChurned, s.store.Now()); err != nil {
		return "", err
	}
	return "", nil
}

// invoicePeriod prefers the first line item's service period.
// Invoice-level periods on a first invoice are often empty.
func invoicePeriod(invoice *stripe.Invoice) (time.Time, time.Time) {
	if invoice.Lines != nil {
		for _, line := range invoice.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > line.Period.Start {
				return time.Unix(line.Period.Start, 0).UTC(), time.Unix(line.Period.End, 0).UTC()
			}
		}
	}
	return time.Unix(invoice.PeriodStart, 0).UTC(), time.Unix(invoice.PeriodEnd, 0).UTC()
}

func ack(eventType, note string) *models.WebhookAck {
	return &models.WebhookAck{Received: true, Event: eventType, Note: note}
}
