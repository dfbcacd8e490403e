package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/models"
)

var referralColumns = []string{
	"id", "partner_id", "code", "customer_uid", "stripe_customer_id", "stripe_subscription_id",
	"source", "created_at", "converted_at", "subscribed_at",
	"ip_address", "user_agent", "landing_page",
}

func (s *Store) selectReferrals() *entsql.Selector {
	return s.sql().Select(referralColumns...).From(s.table(database.TableReferrals))
}

// GetReferral returns the referral linking partnerID and customerUID
func (s *Store) GetReferral(ctx context.Context, partnerID, customerUID string) (*models.Referral, error) {
	r, err := one[models.Referral](ctx, s, s.selectReferrals().Where(entsql.And(
		entsql.EQ("partner_id", partnerID),
		entsql.EQ("customer_uid", customerUID),
	)))
	if err != nil {
		return nil, fmt.Errorf("get referral %s/%s: %w", partnerID, customerUID, err)
	}
	return r, nil
}

// GetReferralByID returns a referral by id
func (s *Store) GetReferralByID(ctx context.Context, id string) (*models.Referral, error) {
	r, err := one[models.Referral](ctx, s, s.selectReferrals().Where(entsql.EQ("id", id)))
	if err != nil {
		return nil, fmt.Errorf("get referral %s: %w", id, err)
	}
	return r, nil
}

// FirstReferralByCustomer returns the earliest referral of a customer
func (s *Store) FirstReferralByCustomer(ctx context.Context, customerUID string) (*models.Referral, error) {
	r, err := one[models.Referral](ctx, s, s.selectReferrals().
		Where(entsql.EQ("customer_uid", customerUID)).
		OrderBy("created_at"))
	if err != nil {
		return nil, fmt.Errorf("get referral for customer %s: %w", customerUID, err)
	}
	return r, nil
}

// FirstReferralByStripeCustomer returns the earliest referral linked to a billing customer
func (s *Store) FirstReferralByStripeCustomer(ctx context.Context, stripeCustomerID string) (*models.Referral, error) {
	r, err := one[models.Referral](ctx, s, s.selectReferrals().
		Where(entsql.EQ("stripe_customer_id", stripeCustomerID)).
		OrderBy("created_at"))
	if err != nil {
		return nil, fmt.Errorf("get referral for billing customer %s: %w", stripeCustomerID, err)
	}
	return r, nil
}

// ListReferrals returns a partner's referrals, oldest first
func (s *Store) ListReferrals(ctx context.Context, partnerID string) ([]*models.Referral, error) {
	return all[models.Referral](ctx, s, s.selectReferrals().
		Where(entsql.EQ("partner_id", partnerID)).
		OrderBy("created_at"))
}

// InsertReferral stores a new referral event
func (s *Store) InsertReferral(ctx context.Context, r *models.Referral) error {
	_, err := s.exec(ctx, s.sql().Insert(database.TableReferrals).
		Columns(referralColumns...).
		Values(r.ID, r.PartnerID, r.Code, r.CustomerUID, r.StripeCustomerID, r.StripeSubscriptionID,
			string(r.Source), r.CreatedAt, r.ConvertedAt, r.SubscribedAt,
			r.IPAddress, r.UserAgent, r.LandingPage))
	if err != nil {
		return fmt.Errorf("insert referral %s: %w", r.ID, err)
	}
	return nil
}

// LinkBilling records the billing customer and subscription of a referral
func (s *Store) LinkBilling(ctx context.Context, id, stripeCustomerID, stripeSubscriptionID string, at time.Time) error {
	upd := s.sql().Update(database.TableReferrals).Set("stripe_customer_id", stripeCustomerID)
	if stripeSubscriptionID != "" {
		upd.Set("stripe_subscription_id", stripeSubscriptionID).Set("subscribed_at", at)
	}
	n, err := s.exec(ctx, upd.Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("link billing on referral %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("link billing on referral %s: %w", id, ErrNotFound)
	}
	return nil
}

// MarkConverted stamps converted_at once. It reports whether this call stamped it.
func (s *Store) MarkConverted(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TableReferrals).
		Set("converted_at", at).
		Where(entsql.And(entsql.EQ("id", id), entsql.IsNull("converted_at"))))
	if err != nil {
		return false, fmt.Errorf("mark referral %s converted: %w", id, err)
	}
	return n == 1, nil
}

// CountReferrals returns how many referrals a partner has, and how many converted
func (s *Store) CountReferrals(ctx context.Context, partnerID string) (total, converted int, err error) {
	b := s.sql()
	t, err := database.Int64(ctx, s.q, b.Select(entsql.Count("*")).
		From(b.Table(database.TableReferrals)).
		Where(entsql.EQ("partner_id", partnerID)))
	if err != nil {
		return 0, 0, fmt.Errorf("count referrals %s: %w", partnerID, err)
	}
	c, err := database.Int64(ctx, s.q, b.Select(entsql.Count("*")).
		From(b.Table(database.TableReferrals)).
		Where(entsql.And(entsql.EQ("partner_id", partnerID), entsql.NotNull("converted_at"))))
	if err != nil {
		return 0, 0, fmt.Errorf("count converted referrals %s: %w", partnerID, err)
	}
	return int(t), int(c), nil
}
