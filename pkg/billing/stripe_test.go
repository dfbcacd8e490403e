package billing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/jordanlanch/contentforge/pkg/commission"
	"github.com/jordanlanch/contentforge/pkg/database/dbtest"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
	"github.com/jordanlanch/contentforge/pkg/testdata"
)

const testSecret = "whsec_test_secret"

var (
	lineStart = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	lineEnd   = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc      *Service
	store    *store.Store
	metrics  *metrics.Metrics
	partner  *models.Partner
	referral *models.Referral
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.New(dbtest.Open(t))
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(st, commission.NewLedger(st, nil), testSecret, nil).WithMetrics(m)

	p, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Rate: 0.6, Code: "SAVE10"})
	require.NoError(t, err)

	uid := testdata.CustomerUID()
	now := time.Now().UTC()
	ref := &models.Referral{
		ID:          uuid.NewString(),
		PartnerID:   p.ID,
		Code:        "SAVE10",
		CustomerUID: uid,
		Source:      models.ReferralSourceLink,
		CreatedAt:   now,
	}
	require.NoError(t, st.InsertReferral(ctx, ref))

	profile := testdata.CustomerProfile()
	require.NoError(t, st.InsertCustomer(ctx, &models.CustomerRecord{
		ID:             uuid.NewString(),
		PartnerID:      p.ID,
		CustomerUID:    uid,
		DisplayName:    profile.DisplayName,
		Email:          profile.Email,
		Status:         models.CustomerStatusActive,
		ReferralCode:   "SAVE10",
		Source:         models.ReferralSourceLink,
		JoinedAt:       now,
		LastActivityAt: now,
	}))

	return &fixture{svc: svc, store: st, metrics: m, partner: p, referral: ref}
}

func deliver(t *testing.T, f *fixture, eventType string, object map[string]any) (*models.WebhookAck, error) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"id":          "evt_" + uuid.NewString(),
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return f.svc.HandleWebhook(context.Background(), signed.Payload, signed.Header)
}

func checkoutSession(uid, customerID string) map[string]any {
	return map[string]any{
		"id":                  "cs_" + uuid.NewString(),
		"object":              "checkout.session",
		"client_reference_id": uid,
		"customer":            customerID,
		"subscription":        "sub_123",
	}
}

func paidInvoice(id, customerID string, amount int64) map[string]any {
	return map[string]any{
		"id":           id,
		"object":       "invoice",
		"customer":     customerID,
		"subscription": "sub_123",
		"amount_paid":  amount,
		"currency":     "usd",
		"period_start": lineStart.Unix(),
		"period_end":   lineStart.Unix(),
		"lines": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{
					"id":     "il_1",
					"object": "line_item",
					"period": map[string]any{"start": lineStart.Unix(), "end": lineEnd.Unix()},
				},
			},
		},
	}
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := setup(t)

	_, err := f.svc.HandleWebhook(context.Background(), []byte(`{"id":"evt_1"}`), "t=1,v1=deadbeef")

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature")))
}

func TestHandleWebhook_ReferralLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("checkout links the billing customer", func(t *testing.T) {
		res, err := deliver(t, f, "checkout.session.completed", checkoutSession(f.referral.CustomerUID, "cus_abc"))

		require.NoError(t, err)
		assert.True(t, res.Received)
		assert.Empty(t, res.Note)

		ref, err := f.store.GetReferralByID(ctx, f.referral.ID)
		require.NoError(t, err)
		require.NotNil(t, ref.StripeCustomerID)
		assert.Equal(t, "cus_abc", *ref.StripeCustomerID)
		require.NotNil(t, ref.StripeSubscriptionID)
		assert.Equal(t, "sub_123", *ref.StripeSubscriptionID)
		assert.NotNil(t, ref.SubscribedAt)
	})

	t.Run("paid invoice accrues commission", func(t *testing.T) {
		res, err := deliver(t, f, "invoice.paid", paidInvoice("in_1", "cus_abc", 999))

		require.NoError(t, err)
		assert.Empty(t, res.Note)

		entry, err := f.store.GetEntryByInvoice(ctx, f.partner.ID, "in_1")
		require.NoError(t, err)
		assert.Equal(t, int64(999), entry.GrossAmount)
		assert.Equal(t, int64(599), entry.CommissionAmount)
		assert.Equal(t, "usd", entry.Currency)
		assert.Equal(t, "sub_123", entry.SubscriptionID)
		assert.True(t, lineStart.Equal(entry.PeriodStart))
		assert.True(t, lineEnd.Equal(entry.PeriodEnd))

		customer, err := f.store.GetCustomer(ctx, f.partner.ID, f.referral.CustomerUID)
		require.NoError(t, err)
		assert.Equal(t, int64(999), customer.TotalSpent)
	})

	t.Run("redelivered invoice is acknowledged without a second entry", func(t *testing.T) {
		res, err := deliver(t, f, "invoice.paid", paidInvoice("in_1", "cus_abc", 999))

		require.NoError(t, err)
		assert.True(t, res.Received)
		assert.Equal(t, "duplicate invoice", res.Note)

		entries, err := f.store.ListEntries(ctx, f.partner.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		customer, err := f.store.GetCustomer(ctx, f.partner.ID, f.referral.CustomerUID)
		require.NoError(t, err)
		assert.Equal(t, int64(999), customer.TotalSpent)
	})

	t.Run("refund reverses the commission", func(t *testing.T) {
		res, err := deliver(t, f, "charge.refunded", map[string]any{
			"id":       "ch_1",
			"object":   "charge",
			"invoice":  "in_1",
			"refunded": true,
		})

		require.NoError(t, err)
		assert.Empty(t, res.Note)

		entry, err := f.store.GetEntryByInvoice(ctx, f.partner.ID, "in_1")
		require.NoError(t, err)
		assert.Equal(t, models.LedgerStatusReversed, entry.Status)
		require.NotNil(t, entry.ReversalReason)
		assert.Equal(t, "refunded", *entry.ReversalReason)

		p, err := f.store.GetPartner(ctx, f.partner.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), p.CommissionEarned)
	})

	t.Run("subscription deletion churns the customer", func(t *testing.T) {
		_, err := deliver(t, f, "customer.subscription.deleted", map[string]any{
			"id":       "sub_123",
			"object":   "subscription",
			"customer": "cus_abc",
		})
		require.NoError(t, err)

		customer, err := f.store.GetCustomer(ctx, f.partner.ID, f.referral.CustomerUID)
		require.NoError(t, err)
		assert.Equal(t, models.CustomerStatusChurned, customer.Status)
	})
}

func TestHandleWebhook_IgnoredEvents(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name      string
		eventType string
		object    map[string]any
		note      string
	}{
		{name: "checkout without reference", eventType: "checkout.session.completed", object: checkoutSession("", "cus_x"), note: "no client reference"},
		{name: "checkout for unreferred customer", eventType: "checkout.session.completed", object: checkoutSession("stranger", "cus_x"), note: "customer was not referred"},
		{name: "invoice for unknown customer", eventType: "invoice.paid", object: paidInvoice("in_9", "cus_unknown", 500), note: "customer was not referred"},
		{name: "zero invoice", eventType: "invoice.paid", object: paidInvoice("in_10", "cus_unknown", 0), note: "nothing paid"},
		{name: "refund of an invoice with no commission", eventType: "charge.refunded", object: map[string]any{"id": "ch_9", "object": "charge", "invoice": "in_none"}, note: "no accrued commission"},
		{name: "unhandled type", eventType: "customer.created", object: map[string]any{"id": "cus_1", "object": "customer"}, note: "unhandled event type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := deliver(t, f, tt.eventType, tt.object)

			require.NoError(t, err)
			assert.True(t, res.Received)
			assert.Equal(t, tt.eventType, res.Event)
			assert.Equal(t, tt.note, res.Note)
		})
	}
}

func TestInvoicePeriod(t *testing.T) {
	t.Run("line item period wins", func(t *testing.T) {
		inv := &stripe.Invoice{
			PeriodStart: 10,
			PeriodEnd:   10,
			Lines: &stripe.InvoiceLineItemList{Data: []*stripe.InvoiceLineItem{
				{Period: &stripe.Period{Start: 100, End: 200}},
			}},
		}
		start, end := invoicePeriod(inv)
		assert.Equal(t, int64(100), start.Unix())
		assert.Equal(t, int64(200), end.Unix())
	})

	t.Run("falls back to the invoice period", func(t *testing.T) {
		start, end := invoicePeriod(&stripe.Invoice{PeriodStart: 10, PeriodEnd: 20})
		assert.Equal(t, int64(10), start.Unix())
		assert.Equal(t, int64(20), end.Unix())
	})
}
