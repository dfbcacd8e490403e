package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/models"
)

var ledgerColumns = []string{
	"id", "partner_id", "referral_id", "invoice_id", "subscription_id",
	"gross_amount", "commission_rate", "commission_amount", "currency",
	"period_start", "period_end", "status", "payment_tx_id", "reversal_reason",
	"accrued_at", "paid_at", "reversed_at",
}

func (s *Store) selectLedger() *entsql.Selector {
	return s.sql().Select(ledgerColumns...).From(s.table(database.TableCommissionLedger))
}

// GetEntry returns a ledger entry by id
func (s *Store) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	e, err := one[models.LedgerEntry](ctx, s, s.selectLedger().Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %s: %w", id, err)
	}
	return e, nil
}

// GetEntryByInvoice returns the entry accrued for (partnerID, invoiceID)
func (s *Store) GetEntryByInvoice(ctx context.Context, partnerID, invoiceID string) (*models.LedgerEntry, error) {
	e, err := one[models.LedgerEntry](ctx, s, s.selectLedger().Where(entsql.And(
		entsql.EQ("partner_id", partnerID),
		entsql.EQ("invoice_id", invoiceID),
	)))
	if err != nil {
		return nil, fmt.Errorf("get ledger entry for invoice %s: %w", invoiceID, err)
	}
	return e, nil
}

// ListEntries returns a partner's ledger, oldest first
func (s *Store) ListEntries(ctx context.Context, partnerID string) ([]*models.LedgerEntry, error) {
	return all[models.LedgerEntry](ctx, s, s.selectLedger().
		Where(entsql.EQ("partner_id", partnerID)).
		OrderBy("accrued_at"))
}

// ListEntriesByInvoice returns every entry of an invoice in the given status
func (s *Store) ListEntriesByInvoice(ctx context.Context, invoiceID string, status models.LedgerStatus) ([]*models.LedgerEntry, error) {
	return all[models.LedgerEntry](ctx, s, s.selectLedger().
		Where(entsql.And(entsql.EQ("invoice_id", invoiceID), entsql.EQ("status", string(status)))).
		OrderBy("accrued_at"))
}

// CountEntriesForReferral returns how many entries were accrued for a referral
func (s *Store) CountEntriesForReferral(ctx context.Context, referralID string) (int, error) {
	b := s.sql()
	n, err := database.Int64(ctx, s.q, b.Select(entsql.Count("*")).
		From(b.Table(database.TableCommissionLedger)).
		Where(entsql.EQ("referral_id", referralID)))
	if err != nil {
		return 0, fmt.Errorf("count ledger entries for referral %s: %w", referralID, err)
	}
	return int(n), nil
}

// InsertEntry stores a new accrued entry
func (s *Store) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := s.exec(ctx, s.sql().Insert(database.TableCommissionLedger).
		Columns(ledgerColumns...).
		Values(e.ID, e.PartnerID, e.ReferralID, e.InvoiceID, e.SubscriptionID,
			e.GrossAmount, e.CommissionRate, e.CommissionAmount, e.Currency,
			e.PeriodStart, e.PeriodEnd, string(e.Status), e.PaymentTxID, e.ReversalReason,
			e.AccruedAt, e.PaidAt, e.ReversedAt))
	if err != nil {
		return fmt.Errorf("insert ledger entry %s: %w", e.ID, err)
	}
	return nil
}

// MarkEntryPaid moves an accrued entry to paid. It reports false when the entry was not accrued.
func (s *Store) MarkEntryPaid(ctx context.Context, id, paymentTxID string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TableCommissionLedger).
		Set("status", string(models.LedgerStatusPaid)).
		Set("payment_tx_id", paymentTxID).
		Set("paid_at", at).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(models.LedgerStatusAccrued)))))
	if err != nil {
		return false, fmt.Errorf("mark ledger entry %s paid: %w", id, err)
	}
	return n == 1, nil
}

// MarkEntryReversed moves an accrued entry to reversed. It reports false when the entry was not accrued.
func (s *Store) MarkEntryReversed(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TableCommissionLedger).
		Set("status", string(models.LedgerStatusReversed)).
		Set("reversal_reason", reason).
		Set("reversed_at", at).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(models.LedgerStatusAccrued)))))
	if err != nil {
		return false, fmt.Errorf("mark ledger entry %s reversed: %w", id, err)
	}
	return n == 1, nil
}

// SummarizeLedger totals a partner's commission per status
func (s *Store) SummarizeLedger(ctx context.Context, partnerID string) (*models.LedgerSummary, error) {
	b := s.sql()
	sel := b.Select("status", "COUNT(*)", "COALESCE(SUM(commission_amount), 0)").
		From(b.Table(database.TableCommissionLedger)).
		Where(entsql.EQ("partner_id", partnerID)).
		GroupBy("status")

	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := s.q.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("summarize ledger %s: %w", partnerID, err)
	}
	defer rows.Close()

	summary := &models.LedgerSummary{}
	for rows.Next() {
		var (
			status string
			count  int64
			total  int64
		)
		if err := rows.Scan(&status, &count, &total); err != nil {
			return nil, fmt.Errorf("summarize ledger %s: %w", partnerID, err)
		}
		summary.Entries += int(count)
		switch models.LedgerStatus(status) {
		case models.LedgerStatusAccrued:
			summary.Accrued = total
		case models.LedgerStatusPaid:
			summary.Paid = total
		case models.LedgerStatusReversed:
			summary.Reversed = total
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize ledger %s: %w", partnerID, err)
	}
	return summary, nil
}
