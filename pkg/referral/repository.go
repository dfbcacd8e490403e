package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/partner"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// CreateStatus is the result of writing a customer record
type CreateStatus string

const (
	StatusCreated        CreateStatus = "created"
	StatusAlreadyExists  CreateStatus = "already_exists"
	StatusPartnerInvalid CreateStatus = "partner_invalid"
	// StatusCodeExhausted also covers a code deactivated or expired after validation
	StatusCodeExhausted CreateStatus = "code_exhausted"
)

// CreateResult carries the status and, when one exists, the stored record
type CreateResult struct {
	Status CreateStatus
	Record *models.CustomerRecord
}

// outcome aborts the transaction without it being a failure
type outcome struct {
	status CreateStatus
}

func (o *outcome) Error() string {
	return "customer record not written: " + string(o.status)
}

// CustomerRepository writes customer records under the one-per-(partner, customer) rule
type CustomerRepository struct {
	store    *store.Store
	validate *validator.Validate
	logger   logger.Logger
}

// NewCustomerRepository creates a repository over st
func NewCustomerRepository(st *store.Store, log logger.Logger) *CustomerRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &CustomerRepository{
		store:    st,
		validate: validator.New(),
		logger:   log.With("component", "customer_repository"),
	}
}

// CreateCustomerRecord records customerUID as referred by partnerID.
//
// The write is atomic: the code use, the customer record and the partner's
// referral counter commit together or not at all. A concurrent duplicate
// resolves to StatusAlreadyExists with the winning record. Errors wrapping
// domain.ErrCodeTransient leave the outcome unknown; callers may retry.
func (r *CustomerRepository) CreateCustomerRecord(
	ctx context.Context,
	partnerID, customerUID string,
	profile models.CustomerProfile,
	meta models.AttributionMetadata,
) (*CreateResult, error) {
	partnerID = strings.TrimSpace(partnerID)
	customerUID = strings.TrimSpace(customerUID)
	if partnerID == "" || customerUID == "" {
		return nil, domain.NewValidationError("partner id and customer uid are required")
	}
	if err := r.validate.Struct(profile); err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid customer profile: %v", err))
	}
	if customerUID == partnerID {
		return nil, domain.NewValidationError("partners cannot refer themselves")
	}

	existing, err := r.store.GetCustomer(ctx, partnerID, customerUID)
	if err == nil {
		return &CreateResult{Status: StatusAlreadyExists, Record: existing}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, r.wrap("failed to check existing customer", err)
	}

	p, err := r.store.GetPartner(ctx, partnerID)
	if errors.Is(err, store.ErrNotFound) {
		return &CreateResult{Status: StatusPartnerInvalid}, nil
	}
	if err != nil {
		return nil, r.wrap("failed to load partner", err)
	}
	if !p.IsActive() {
		return &CreateResult{Status: StatusPartnerInvalid}, nil
	}

	source := meta.Source
	if !source.Valid() {
		source = models.ReferralSourceLink
	}
	code := partner.NormalizeCode(meta.ReferralCode)
	now := r.store.Now()

	record := &models.CustomerRecord{
		ID:             uuid.NewString(),
		PartnerID:      partnerID,
		CustomerUID:    customerUID,
		DisplayName:    strings.TrimSpace(profile.DisplayName),
		Email:          strings.ToLower(strings.TrimSpace(profile.Email)),
		Status:         models.CustomerStatusActive,
		ReferralCode:   code,
		Source:         source,
		JoinedAt:       now,
		LastActivityAt: now,
	}

	err = r.store.Tx(ctx, func(ctx context.Context, tx *store.Store) error {
		if _, err := tx.GetCustomer(ctx, partnerID, customerUID); err == nil {
			return &outcome{status: StatusAlreadyExists}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if code != "" {
			if err := consume(ctx, tx, code, partnerID); err != nil {
				return err
			}
		}

		if err := tx.InsertCustomer(ctx, record); err != nil {
			if database.IsUniqueViolation(err) {
				return &outcome{status: StatusAlreadyExists}
			}
			return err
		}

		ok, err := tx.IncrementReferrals(ctx, partnerID)
		if err != nil {
			return err
		}
		if !ok {
			return &outcome{status: StatusPartnerInvalid}
		}
		return nil
	})

	var o *outcome
	switch {
	case err == nil:
		r.logger.Info("customer record created",
			"partner_id", partnerID,
			"customer_uid", customerUID,
			"code", code,
		)
		return &CreateResult{Status: StatusCreated, Record: record}, nil
	case errors.As(err, &o):
		if o.status != StatusAlreadyExists {
			return &CreateResult{Status: o.status}, nil
		}
		winner, err := r.store.GetCustomer(ctx, partnerID, customerUID)
		if err != nil {
			return nil, r.wrap("failed to load existing customer", err)
		}
		return &CreateResult{Status: StatusAlreadyExists, Record: winner}, nil
	case database.IsUniqueViolation(err):
		// Some drivers only report the conflict at commit.
		winner, err := r.store.GetCustomer(ctx, partnerID, customerUID)
		if err != nil {
			return nil, r.wrap("failed to load existing customer", err)
		}
		return &CreateResult{Status: StatusAlreadyExists, Record: winner}, nil
	default:
		return nil, r.wrap("failed to write customer record", err)
	}
}

// consume re-checks the code inside the transaction and takes one use
func consume(ctx context.Context, tx *store.Store, code, partnerID string) error {
	c, err := tx.GetCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return &outcome{status: StatusCodeExhausted}
	}
	if err != nil {
		return err
	}
	if c.PartnerID != partnerID {
		return &outcome{status: StatusPartnerInvalid}
	}
	if CheckCode(c, tx.Now()) != "" {
		return &outcome{status: StatusCodeExhausted}
	}

	ok, err := tx.ConsumeCode(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return &outcome{status: StatusCodeExhausted}
	}
	return nil
}

func (r *CustomerRepository) wrap(msg string, err error) error {
	if database.IsTransient(err) {
		return domain.NewTransientError(msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
