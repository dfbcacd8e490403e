package store

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/models"
)

var partnerColumns = []string{
	"id", "email", "display_name", "commission_rate", "status",
	"total_referrals", "total_conversions", "commission_earned", "commission_paid",
	"last_calculated", "approved_at", "created_at", "updated_at",
}

func (s *Store) selectPartners() *entsql.Selector {
	return s.sql().Select(partnerColumns...).From(s.table(database.TablePartners))
}

// GetPartner returns the partner with id
func (s *Store) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	p, err := one[models.Partner](ctx, s, s.selectPartners().Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, fmt.Errorf("get partner %s: %w", id, err)
	}
	return p, nil
}

// ListPartners returns partners, optionally filtered by status
func (s *Store) ListPartners(ctx context.Context, status models.PartnerStatus) ([]*models.Partner, error) {
	sel := s.selectPartners().OrderBy("created_at")
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}
	return all[models.Partner](ctx, s, sel)
}

// InsertPartner stores a new partner
func (s *Store) InsertPartner(ctx context.Context, p *models.Partner) error {
	_, err := s.exec(ctx, s.sql().Insert(database.TablePartners).
		Columns("id", "email", "display_name", "commission_rate", "status",
			"total_referrals", "total_conversions", "commission_earned", "commission_paid",
			"approved_at", "created_at", "updated_at").
		Values(p.ID, p.Email, p.DisplayName, p.CommissionRate, string(p.Status),
			p.TotalReferrals, p.TotalConversions, p.CommissionEarned, p.CommissionPaid,
			p.ApprovedAt, p.CreatedAt, p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert partner %s: %w", p.ID, err)
	}
	return nil
}

// TransitionPartner moves a partner from one status to another.
// It reports false when the partner was no longer in status from.
func (s *Store) TransitionPartner(ctx context.Context, id string, from, to models.PartnerStatus, approvedAt *time.Time) (bool, error) {
	upd := s.sql().Update(database.TablePartners).
		Set("status", string(to)).
		Set("updated_at", s.Now())
	if approvedAt != nil {
		upd.Set("approved_at", *approvedAt)
	}
	n, err := s.exec(ctx, upd.Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(from)))))
	if err != nil {
		return false, fmt.Errorf("transition partner %s: %w", id, err)
	}
	return n == 1, nil
}

// SetPartnerRate changes the commission rate applied to future accruals
func (s *Store) SetPartnerRate(ctx context.Context, id string, rate float64) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TablePartners).
		Set("commission_rate", rate).
		Set("updated_at", s.Now()).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return false, fmt.Errorf("set partner rate %s: %w", id, err)
	}
	return n == 1, nil
}

// IncrementReferrals adds one referral to an active partner and stamps last_calculated.
// It reports false when the partner is missing or no longer active.
func (s *Store) IncrementReferrals(ctx context.Context, id string) (bool, error) {
	now := s.Now()
	n, err := s.exec(ctx, s.sql().Update(database.TablePartners).
		Add("total_referrals", 1).
		Set("last_calculated", now).
		Set("updated_at", now).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(models.PartnerStatusActive)))))
	if err != nil {
		return false, fmt.Errorf("increment referrals %s: %w", id, err)
	}
	return n == 1, nil
}

// PartnerDelta is a set of counter adjustments applied in one statement
type PartnerDelta struct {
	Conversions int
	Earned      int64
	Paid        int64
}

// AdjustPartner applies counter deltas to a partner
func (s *Store) AdjustPartner(ctx context.Context, id string, d PartnerDelta) error {
	upd := s.sql().Update(database.TablePartners).Set("updated_at", s.Now())
	if d.Conversions != 0 {
		upd.Add("total_conversions", d.Conversions)
	}
	if d.Earned != 0 {
		upd.Add("commission_earned", d.Earned)
	}
	if d.Paid != 0 {
		upd.Add("commission_paid", d.Paid)
	}
	n, err := s.exec(ctx, upd.Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("adjust partner %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("adjust partner %s: %w", id, ErrNotFound)
	}
	return nil
}

// LockPartner reads a partner and, on Postgres, holds its row lock until
// the surrounding transaction ends. Call it on a transaction-bound store.
func (s *Store) LockPartner(ctx context.Context, id string) (*models.Partner, error) {
	sel := s.selectPartners().Where(entsql.EQ("id", id))
	if s.db.Dialect() == dialect.Postgres {
		sel.ForUpdate()
	}
	p, err := one[models.Partner](ctx, s, sel)
	if err != nil {
		return nil, fmt.Errorf("lock partner %s: %w", id, err)
	}
	return p, nil
}

// RecalculatePartnerTotals rebuilds a partner's cumulative stats from the
// customer, referral and ledger tables in a single statement, so counters
// bumped concurrently are never overwritten with stale values.
func (s *Store) RecalculatePartnerTotals(ctx context.Context, id string) error {
	b := s.sql()
	customers := b.Select(entsql.Count("*")).
		From(b.Table(database.TableReferralCustomers)).
		Where(entsql.EQ("partner_id", id))
	conversions := b.Select(entsql.Count("*")).
		From(b.Table(database.TableReferrals)).
		Where(entsql.And(entsql.EQ("partner_id", id), entsql.NotNull("converted_at")))
	earned := b.Select("COALESCE(SUM(commission_amount), 0)").
		From(b.Table(database.TableCommissionLedger)).
		Where(entsql.And(entsql.EQ("partner_id", id),
			entsql.In("status", string(models.LedgerStatusAccrued), string(models.LedgerStatusPaid))))
	paid := b.Select("COALESCE(SUM(commission_amount), 0)").
		From(b.Table(database.TableCommissionLedger)).
		Where(entsql.And(entsql.EQ("partner_id", id), entsql.EQ("status", string(models.LedgerStatusPaid))))

	now := s.Now()
	n, err := s.exec(ctx, b.Update(database.TablePartners).
		Set("total_referrals", subquery(customers)).
		Set("total_conversions", subquery(conversions)).
		Set("commission_earned", subquery(earned)).
		Set("commission_paid", subquery(paid)).
		Set("last_calculated", now).
		Set("updated_at", now).
		Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("recalculate partner totals %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("recalculate partner totals %s: %w", id, ErrNotFound)
	}
	return nil
}

// subquery wraps a selector in parentheses for use as a scalar value
func subquery(sel *entsql.Selector) entsql.Querier {
	return entsql.ExprFunc(func(b *entsql.Builder) {
		b.Wrap(func(b *entsql.Builder) { b.Join(sel) })
	})
}
