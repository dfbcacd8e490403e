package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/models"
)

var codeColumns = []string{"code", "partner_id", "active", "uses", "max_uses", "expires_at", "created_at"}

func (s *Store) selectCodes() *entsql.Selector {
	return s.sql().Select(codeColumns...).From(s.table(database.TablePartnerCodes))
}

// GetCode returns a referral code by its normalized value
func (s *Store) GetCode(ctx context.Context, code string) (*models.PartnerCode, error) {
	c, err := one[models.PartnerCode](ctx, s, s.selectCodes().Where(entsql.EQ("code", code)))
	if err != nil {
		return nil, fmt.Errorf("get code %s: %w", code, err)
	}
	return c, nil
}

// ListCodes returns a partner's codes, newest first
func (s *Store) ListCodes(ctx context.Context, partnerID string) ([]*models.PartnerCode, error) {
	return all[models.PartnerCode](ctx, s, s.selectCodes().
		Where(entsql.EQ("partner_id", partnerID)).
		OrderBy(entsql.Desc("created_at")))
}

// InsertCode stores a new referral code
func (s *Store) InsertCode(ctx context.Context, c *models.PartnerCode) error {
	_, err := s.exec(ctx, s.sql().Insert(database.TablePartnerCodes).
		Columns(codeColumns...).
		Values(c.Code, c.PartnerID, c.Active, c.Uses, c.MaxUses, c.ExpiresAt, c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert code %s: %w", c.Code, err)
	}
	return nil
}

// DeactivateCode clears the active flag
func (s *Store) DeactivateCode(ctx context.Context, code string) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TablePartnerCodes).
		Set("active", false).
		Where(entsql.EQ("code", code)))
	if err != nil {
		return false, fmt.Errorf("deactivate code %s: %w", code, err)
	}
	return n == 1, nil
}

// ConsumeCode increments the use counter of an active code that still has uses left.
// It reports false when the code is inactive or exhausted.
func (s *Store) ConsumeCode(ctx context.Context, code string) (bool, error) {
	n, err := s.exec(ctx, s.sql().Update(database.TablePartnerCodes).
		Add("uses", 1).
		Where(entsql.And(
			entsql.EQ("code", code),
			entsql.IsTrue("active"),
			entsql.Or(entsql.IsNull("max_uses"), entsql.ColumnsLT("uses", "max_uses")),
		)))
	if err != nil {
		return false, fmt.Errorf("consume code %s: %w", code, err)
	}
	return n == 1, nil
}
