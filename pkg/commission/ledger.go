// Package commission keeps the partner commission ledger.
//
// Every entry freezes the partner's rate at accrual time. Entries move from
// accrued to paid or reversed exactly once; both of those are terminal.
package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// AccrueRequest describes one paid invoice of a referred customer
type AccrueRequest struct {
	PartnerID      string
	ReferralID     string
	InvoiceID      string
	SubscriptionID string
	GrossAmount    int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// CommissionAmount applies rate to gross, rounding half away from zero to the minor unit
func CommissionAmount(gross int64, rate float64) int64 {
	return decimal.NewFromInt(gross).
		Mul(decimal.NewFromFloat(rate)).
		Round(0).
		IntPart()
}

// Ledger records and settles commission entries
type Ledger struct {
	store   *store.Store
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewLedger creates a ledger over st
func NewLedger(st *store.Store, log logger.Logger) *Ledger {
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{
		store:  st,
		logger: log.With("component", "commission_ledger"),
	}
}

// WithMetrics records ledger transitions
func (l *Ledger) WithMetrics(m *metrics.Metrics) *Ledger {
	l.metrics = m
	return l
}

// AccrueCommission creates an accrued entry for an invoice at the partner's current rate.
//
// A second accrual for the same (partner, invoice) is rejected with a
// DUPLICATE_INVOICE error; the entry already on file is returned with it.
func (l *Ledger) AccrueCommission(ctx context.Context, req AccrueRequest) (*models.LedgerEntry, error) {
	if err := validateAccrual(&req); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := l.store.Tx(ctx, func(ctx context.Context, tx *store.Store) error {
		existing, err := tx.GetEntryByInvoice(ctx, req.PartnerID, req.InvoiceID)
		if err == nil {
			entry = existing
			return domain.NewDuplicateInvoiceError(req.PartnerID, req.InvoiceID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		p, err := tx.GetPartner(ctx, req.PartnerID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NewNotFoundError("partner")
		}
		if err != nil {
			return err
		}
		if p.Status != models.PartnerStatusActive && p.Status != models.PartnerStatusSuspended {
			return domain.NewValidationError(fmt.Sprintf("partner is %s and cannot accrue commission", p.Status))
		}

		ref, err := tx.GetReferralByID(ctx, req.ReferralID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NewNotFoundError("referral")
		}
		if err != nil {
			return err
		}
		if ref.PartnerID != p.ID {
			return domain.NewValidationError("referral belongs to another partner")
		}

		now := tx.Now()
		entry = &models.LedgerEntry{
			ID:               uuid.NewString(),
			PartnerID:        p.ID,
			ReferralID:       ref.ID,
			InvoiceID:        req.InvoiceID,
			SubscriptionID:   req.SubscriptionID,
			GrossAmount:      req.GrossAmount,
			CommissionRate:   p.CommissionRate,
			CommissionAmount: CommissionAmount(req.GrossAmount, p.CommissionRate),
			Currency:         req.Currency,
			PeriodStart:      req.PeriodStart.UTC(),
			PeriodEnd:        req.PeriodEnd.UTC(),
			Status:           models.LedgerStatusAccrued,
			AccruedAt:        now,
		}
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return err
		}

		converted, err := tx.MarkConverted(ctx, ref.ID, now)
		if err != nil {
			return err
		}
		delta := store.PartnerDelta{Earned: entry.CommissionAmount}
		if converted {
			delta.Conversions = 1
		}
		return tx.AdjustPartner(ctx, p.ID, delta)
	})

	var de *domain.DomainError
	switch {
	case err == nil:
	case domain.IsDuplicateInvoice(err):
		return entry, err
	case errors.As(err, &de):
		return nil, err
	case database.IsUniqueViolation(err):
		existing, gerr := l.store.GetEntryByInvoice(ctx, req.PartnerID, req.InvoiceID)
		if gerr != nil {
			return nil, l.wrap("failed to load existing ledger entry", gerr)
		}
		return existing, domain.NewDuplicateInvoiceError(req.PartnerID, req.InvoiceID)
	default:
		return nil, l.wrap("failed to accrue commission", err)
	}

	l.metrics.RecordLedgerTransition(string(models.LedgerStatusAccrued))
	l.metrics.RecordCommissionAccrued(entry.Currency, entry.CommissionAmount)
	l.logger.Info("commission accrued",
		"entry_id", entry.ID,
		"partner_id", entry.PartnerID,
		"invoice_id", entry.InvoiceID,
		"gross_amount", entry.GrossAmount,
		"commission_rate", entry.CommissionRate,
		"commission_amount", entry.CommissionAmount,
	)
	return entry, nil
}

// MarkPaid settles an accrued entry with the payout transaction id
func (l *Ledger) MarkPaid(ctx context.Context, id, paymentTxID string) (*models.LedgerEntry, error) {
	paymentTxID = strings.TrimSpace(paymentTxID)
	if paymentTxID == "" {
		return nil, domain.NewValidationError("payment transaction id is required")
	}
	return l.transition(ctx, id, models.LedgerStatusPaid, func(ctx context.Context, tx *store.Store, e *models.LedgerEntry) (bool, error) {
		ok, err := tx.MarkEntryPaid(ctx, e.ID, paymentTxID, tx.Now())
		if err != nil || !ok {
			return ok, err
		}
		return true, tx.AdjustPartner(ctx, e.PartnerID, store.PartnerDelta{Paid: e.CommissionAmount})
	})
}

// Reverse cancels an accrued entry, removing its amount from the partner's earnings
func (l *Ledger) Reverse(ctx context.Context, id, reason string) (*models.LedgerEntry, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("reversal reason is required")
	}
	return l.transition(ctx, id, models.LedgerStatusReversed, func(ctx context.Context, tx *store.Store, e *models.LedgerEntry) (bool, error) {
		ok, err := tx.MarkEntryReversed(ctx, e.ID, reason, tx.Now())
		if err != nil || !ok {
			return ok, err
		}
		return true, tx.AdjustPartner(ctx, e.PartnerID, store.PartnerDelta{Earned: -e.CommissionAmount})
	})
}

// ReverseInvoice reverses every accrued entry of a refunded invoice.
// Entries already settled are left alone.
func (l *Ledger) ReverseInvoice(ctx context.Context, invoiceID, reason string) ([]*models.LedgerEntry, error) {
	entries, err := l.store.ListEntriesByInvoice(ctx, invoiceID, models.LedgerStatusAccrued)
	if err != nil {
		return nil, l.wrap("failed to list invoice entries", err)
	}

	reversed := make([]*models.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		r, err := l.Reverse(ctx, e.ID, reason)
		if domain.IsAlreadyTerminal(err) {
			continue
		}
		if err != nil {
			return reversed, err
		}
		reversed = append(reversed, r)
	}
	return reversed, nil
}

// Get returns one entry
func (l *Ledger) Get(ctx context.Context, id string) (*models.LedgerEntry, error) {
	e, err := l.store.GetEntry(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NewNotFoundError("ledger entry")
	}
	if err != nil {
		return nil, l.wrap("failed to get ledger entry", err)
	}
	return e, nil
}

// List returns a partner's entries, oldest first
func (l *Ledger) List(ctx context.Context, partnerID string) ([]*models.LedgerEntry, error) {
	entries, err := l.store.ListEntries(ctx, partnerID)
	if err != nil {
		return nil, l.wrap("failed to list ledger entries", err)
	}
	return entries, nil
}

// Summary totals a partner's entries per status
func (l *Ledger) Summary(ctx context.Context, partnerID string) (*models.LedgerSummary, error) {
	s, err := l.store.SummarizeLedger(ctx, partnerID)
	if err != nil {
		return nil, l.wrap("failed to summarize ledger", err)
	}
	return s, nil
}

type applyFunc func(ctx context.Context, tx *store.Store, e *models.LedgerEntry) (bool, error)

func (l *Ledger) transition(ctx context.Context, id string, to models.LedgerStatus, apply applyFunc) (*models.LedgerEntry, error) {
	var updated *models.LedgerEntry
	err := l.store.Tx(ctx, func(ctx context.Context, tx *store.Store) error {
		e, err := tx.GetEntry(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return domain.NewNotFoundError("ledger entry")
		}
		if err != nil {
			return err
		}
		if e.Status.Terminal() {
			return domain.NewAlreadyTerminalError(e.ID, string(e.Status))
		}

		ok, err := apply(ctx, tx, e)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another transition.
			current, err := tx.GetEntry(ctx, id)
			if err != nil {
				return err
			}
			return domain.NewAlreadyTerminalError(current.ID, string(current.Status))
		}

		updated, err = tx.GetEntry(ctx, id)
		return err
	})
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, l.wrap("failed to update ledger entry", err)
	}

	l.metrics.RecordLedgerTransition(string(to))
	l.logger.Info("ledger entry updated",
		"entry_id", updated.ID,
		"partner_id", updated.PartnerID,
		"status", updated.Status,
	)
	return updated, nil
}

func validateAccrual(req *AccrueRequest) error {
	req.PartnerID = strings.TrimSpace(req.PartnerID)
	req.ReferralID = strings.TrimSpace(req.ReferralID)
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))

	switch {
	case req.PartnerID == "" || req.ReferralID == "" || req.InvoiceID == "":
		return domain.NewValidationError("partner id, referral id and invoice id are required")
	case req.GrossAmount <= 0:
		return domain.NewValidationError("gross amount must be positive")
	case len(req.Currency) != 3:
		return domain.NewValidationError("currency must be a three-letter ISO code")
	case !req.PeriodStart.Before(req.PeriodEnd):
		return domain.NewValidationError("period start must be before period end")
	}
	return nil
}

func (l *Ledger) wrap(msg string, err error) error {
	if database.IsTransient(err) {
		return domain.NewTransientError(msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
