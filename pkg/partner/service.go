package partner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jordanlanch/contentforge/config"
	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// Notifier is told about partner lifecycle events
type Notifier interface {
	PartnerApproved(ctx context.Context, p *models.Partner) error
}

// transitions lists the statuses each status may move to
var transitions = map[models.PartnerStatus][]models.PartnerStatus{
	models.PartnerStatusPending:   {models.PartnerStatusActive, models.PartnerStatusRejected},
	models.PartnerStatusActive:    {models.PartnerStatusSuspended, models.PartnerStatusTerminated},
	models.PartnerStatusSuspended: {models.PartnerStatusActive, models.PartnerStatusTerminated},
}

// CanTransition reports whether a partner may move from one status to another
func CanTransition(from, to models.PartnerStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NormalizeCode trims and upper-cases a referral code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CodeOptions describes a code to create
type CodeOptions struct {
	Code      string
	MaxUses   *int
	ExpiresAt *time.Time
}

// Service handles partner accounts and their referral codes
type Service struct {
	store       *store.Store
	notifier    Notifier
	logger      logger.Logger
	validate    *validator.Validate
	defaultRate float64
}

// NewService creates a new partner service
func NewService(st *store.Store, defaultRate float64, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:       st,
		logger:      log.With("component", "partner"),
		validate:    validator.New(),
		defaultRate: defaultRate,
	}
}

// WithNotifier sets the notifier used on activation
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Apply registers the authenticated user uid as a pending partner
func (s *Service) Apply(ctx context.Context, uid, email, displayName string) (*models.Partner, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, domain.NewValidationError("partner id is required")
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, domain.NewValidationError("a valid email is required")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, domain.NewValidationError("display name is required")
	}

	now := s.store.Now()
	p := &models.Partner{
		ID:             uid,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		DisplayName:    displayName,
		CommissionRate: s.defaultRate,
		Status:         models.PartnerStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.InsertPartner(ctx, p); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.NewConflictError("partner application already exists")
		}
		return nil, fmt.Errorf("failed to create partner: %w", err)
	}

	s.logger.Info("partner applied", "partner_id", p.ID)
	return p, nil
}

// Get returns a partner by id
func (s *Service) Get(ctx context.Context, id string) (*models.Partner, error) {
	p, err := s.store.GetPartner(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domain.NewNotFoundError("partner")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	return p, nil
}

// SetStatus moves a partner through its lifecycle.
// Activation stamps approved_at and notifies the partner.
func (s *Service) SetStatus(ctx context.Context, id string, to models.PartnerStatus) (*models.Partner, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(p.Status, to) {
		return nil, domain.NewValidationError(fmt.Sprintf("cannot move partner from %s to %s", p.Status, to))
	}

	var approvedAt *time.Time
	if to == models.PartnerStatusActive && p.ApprovedAt == nil {
		now := s.store.Now()
		approvedAt = &now
	}

	ok, err := s.store.TransitionPartner(ctx, id, p.Status, to, approvedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update partner status: %w", err)
	}
	if !ok {
		return nil, domain.NewConflictError("partner status changed concurrently")
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("partner status changed", "partner_id", id, "from", p.Status, "to", to)

	if to == models.PartnerStatusActive && p.Status == models.PartnerStatusPending && s.notifier != nil {
		if err := s.notifier.PartnerApproved(ctx, updated); err != nil {
			s.logger.Warn("partner approval email failed", "partner_id", id, "error", err)
		}
	}

	return updated, nil
}

// UpdateCommissionRate changes the rate applied to future accruals only
func (s *Service) UpdateCommissionRate(ctx context.Context, id string, rate float64) (*models.Partner, error) {
	if !config.IsAllowedCommissionRate(rate) {
		return nil, domain.NewValidationError(fmt.Sprintf("commission rate %.2f is not allowed", rate))
	}

	ok, err := s.store.SetPartnerRate(ctx, id, rate)
	if err != nil {
		return nil, fmt.Errorf("failed to update commission rate: %w", err)
	}
	if !ok {
		return nil, domain.NewNotFoundError("partner")
	}

	s.logger.Info("partner commission rate changed", "partner_id", id, "rate", rate)
	return s.Get(ctx, id)
}

// CreateCode issues a referral code for a partner.
// An empty code gets a generated 8-character one.
func (s *Service) CreateCode(ctx context.Context, partnerID string, opts CodeOptions) (*models.PartnerCode, error) {
	p, err := s.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	if p.Status == models.PartnerStatusRejected || p.Status == models.PartnerStatusTerminated {
		return nil, domain.NewValidationError("partner can no longer receive codes")
	}

	if opts.MaxUses != nil && *opts.MaxUses <= 0 {
		return nil, domain.NewValidationError("max uses must be positive")
	}
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(s.store.Now()) {
		return nil, domain.NewValidationError("expiry must be in the future")
	}

	code := NormalizeCode(opts.Code)
	generated := code == ""
	if !generated {
		if err := s.validate.Var(code, "alphanum,min=4,max=32"); err != nil {
			return nil, domain.NewValidationError("code must be 4-32 letters or digits")
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		if generated {
			code, err = generateCode()
			if err != nil {
				return nil, fmt.Errorf("failed to generate code: %w", err)
			}
		}

		c := &models.PartnerCode{
			Code:      code,
			PartnerID: partnerID,
			Active:    true,
			MaxUses:   opts.MaxUses,
			ExpiresAt: utcPtr(opts.ExpiresAt),
			CreatedAt: s.store.Now(),
		}

		err = s.store.InsertCode(ctx, c)
		if err == nil {
			s.logger.Info("referral code created", "partner_id", partnerID, "code", code)
			return c, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("failed to create code: %w", err)
		}
		if !generated {
			break
		}
	}

	return nil, domain.NewConflictError(fmt.Sprintf("code %s is already taken", code))
}

// DeactivateCode stops a code from attributing new customers
func (s *Service) DeactivateCode(ctx context.Context, code string) error {
	ok, err := s.store.DeactivateCode(ctx, NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("failed to deactivate code: %w", err)
	}
	if !ok {
		return domain.NewNotFoundError("referral code")
	}
	s.logger.Info("referral code deactivated", "code", NormalizeCode(code))
	return nil
}

// List returns partners, optionally only those with status
func (s *Service) List(ctx context.Context, status models.PartnerStatus) ([]*models.Partner, error) {
	switch status {
	case "", models.PartnerStatusPending, models.PartnerStatusActive, models.PartnerStatusSuspended,
		models.PartnerStatusRejected, models.PartnerStatusTerminated:
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown partner status %q", status))
	}
	partners, err := s.store.ListPartners(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	return partners, nil
}

// ListCodes returns a partner's codes
func (s *Service) ListCodes(ctx context.Context, partnerID string) ([]*models.PartnerCode, error) {
	codes, err := s.store.ListCodes(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	return codes, nil
}

// ListCustomers returns a partner's referred customers
func (s *Service) ListCustomers(ctx context.Context, partnerID string) ([]*models.CustomerRecord, error) {
	customers, err := s.store.ListCustomers(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

// Dashboard gathers everything the partner dashboard shows
func (s *Service) Dashboard(ctx context.Context, partnerID string) (*models.PartnerDashboard, error) {
	p, err := s.Get(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	codes, err := s.ListCodes(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	customers, err := s.ListCustomers(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	summary, err := s.store.SummarizeLedger(ctx, partnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize ledger: %w", err)
	}

	return &models.PartnerDashboard{
		Partner:   p,
		Codes:     codes,
		Customers: customers,
		Ledger:    summary,
	}, nil
}

// RecalculateStats recomputes every partner's cumulative stats from
// customer records, referrals and the ledger. It returns how many partners were updated.
func (s *Service) RecalculateStats(ctx context.Context) (int, error) {
	partners, err := s.store.ListPartners(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list partners: %w", err)
	}

	updated := 0
	for _, p := range partners {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		var before, after *models.Partner
		err := s.store.Tx(ctx, func(ctx context.Context, tx *store.Store) error {
			var err error
			if before, err = tx.LockPartner(ctx, p.ID); err != nil {
				return err
			}
			if err := tx.RecalculatePartnerTotals(ctx, p.ID); err != nil {
				return err
			}
			after, err = tx.GetPartner(ctx, p.ID)
			return err
		})
		if err != nil {
			return updated, err
		}

		if after.TotalReferrals != before.TotalReferrals || after.CommissionEarned != before.CommissionEarned || after.CommissionPaid != before.CommissionPaid {
			s.logger.Warn("partner stats drifted",
				"partner_id", p.ID,
				"referrals", before.TotalReferrals, "recomputed_referrals", after.TotalReferrals,
				"earned", before.CommissionEarned, "recomputed_earned", after.CommissionEarned)
		}
		updated++
	}

	s.logger.Info("partner stats recalculated", "partners", updated)
	return updated, nil
}

// generateCode generates an 8-character referral code
func generateCode() (string, error) {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(bytes)), nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
