package store

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/models"
)

var customerColumns = []string{
	"id", "partner_id", "customer_uid", "display_name", "email", "status",
	"total_spent", "referral_code", "source", "joined_at", "last_activity_at",
}

func (s *Store) selectCustomers() *entsql.Selector {
	return s.sql().Select(customerColumns...).From(s.table(database.TableReferralCustomers))
}

// GetCustomer returns the customer record for (partnerID, customerUID)
func (s *Store) GetCustomer(ctx context.Context, partnerID, customerUID string) (*models.CustomerRecord, error) {
	c, err := one[models.CustomerRecord](ctx, s, s.selectCustomers().Where(entsql.And(
		entsql.EQ("partner_id", partnerID),
		entsql.EQ("customer_uid", customerUID),
	)))
	if err != nil {
		return nil, fmt.Errorf("get customer %s/%s: %w", partnerID, customerUID, err)
	}
	return c, nil
}

// ListCustomers returns a partner's customer records, most recent first
func (s *Store) ListCustomers(ctx context.Context, partnerID string) ([]*models.CustomerRecord, error) {
	return all[models.CustomerRecord](ctx, s, s.selectCustomers().
		Where(entsql.EQ("partner_id", partnerID)).
		OrderBy(entsql.Desc("joined_at")))
}

// CountCustomers returns how many customer records a partner has
func (s *Store) CountCustomers(ctx context.Context, partnerID string) (int, error) {
	b := s.sql()
	n, err := database.Int64(ctx, s.q, b.Select(entsql.Count("*")).
		From(b.Table(database.TableReferralCustomers)).
		Where(entsql.EQ("partner_id", partnerID)))
	if err != nil {
		return 0, fmt.Errorf("count customers %s: %w", partnerID, err)
	}
	return int(n), nil
}

// InsertCustomer stores a new customer record
func (s *Store) InsertCustomer(ctx context.Context, c *models.CustomerRecord) error {
	_, err := s.exec(ctx, s.sql().Insert(database.TableReferralCustomers).
		Columns(customerColumns...).
		Values(c.ID, c.PartnerID, c.CustomerUID, c.DisplayName, c.Email, string(c.Status),
			c.TotalSpent, c.ReferralCode, string(c.Source), c.JoinedAt, c.LastActivityAt))
	if err != nil {
		return fmt.Errorf("insert customer %s/%s: %w", c.PartnerID, c.CustomerUID, err)
	}
	return nil
}

// RecordSpend adds a paid amount to a customer's running total
func (s *Store) RecordSpend(ctx context.Context, partnerID, customerUID string, amount int64, at time.Time) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TableReferralCustomers).
		Add("total_spent", amount).
		Set("last_activity_at", at).
		Set("status", string(models.CustomerStatusActive)).
		Where(entsql.And(entsql.EQ("partner_id", partnerID), entsql.EQ("customer_uid", customerUID))))
	if err != nil {
		return false, fmt.Errorf("record spend %s/%s: %w", partnerID, customerUID, err)
	}
	return n == 1, nil
}

// SetCustomerStatus changes the dashboard status of a customer record
func (s *Store) SetCustomerStatus(ctx context.Context, partnerID, customerUID string, status models.CustomerStatus, at time.Time) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TableReferralCustomers).
		Set("status", string(status)).
		Set("last_activity_at", at).
		Where(entsql.And(entsql.EQ("partner_id", partnerID), entsql.EQ("customer_uid", customerUID))))
	if err != nil {
		return false, fmt.Errorf("set customer status %s/%s: %w", partnerID, customerUID, err)
	}
	return n == 1, nil
}
