package referral

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jordanlanch/contentforge/pkg/database"
	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/partner"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// Outcome is what an attribution attempt ended with
type Outcome string

const (
	OutcomeNoCode            Outcome = "no_code"
	OutcomeInvalidCode       Outcome = "invalid_code"
	OutcomePartnerInvalid    Outcome = "partner_invalid"
	OutcomeCodeExhausted     Outcome = "code_exhausted"
	OutcomeAttributed        Outcome = "attributed"
	OutcomeAlreadyAttributed Outcome = "already_attributed"
	OutcomeFailed            Outcome = "failed"
)

// Success reports whether the customer ends up attributed to a partner
func (o Outcome) Success() bool {
	return o == OutcomeAttributed || o == OutcomeAlreadyAttributed
}

const warnReferralNotSaved = "customer attributed but the referral event was not saved"

// maxUserAgent matches the referrals.user_agent column size
const maxUserAgent = 512

// AttributionResult is returned to the signup flow. It never blocks registration.
type AttributionResult struct {
	Outcome   Outcome                `json:"outcome"`
	Success   bool                   `json:"success"`
	Reason    Reason                 `json:"reason,omitempty"`
	PartnerID string                 `json:"partner_id,omitempty"`
	Record    *models.CustomerRecord `json:"record,omitempty"`
	Referral  *models.Referral       `json:"referral,omitempty"`
	Warning   string                 `json:"warning,omitempty"`
	Attempts  int                    `json:"attempts"`
}

// ReferralWriter persists Referral events. *store.Store implements it.
type ReferralWriter interface {
	InsertReferral(ctx context.Context, r *models.Referral) error
	GetReferral(ctx context.Context, partnerID, customerUID string) (*models.Referral, error)
}

// RecordCreator writes customer records. *CustomerRepository implements it.
type RecordCreator interface {
	CreateCustomerRecord(ctx context.Context, partnerID, customerUID string, profile models.CustomerProfile, meta models.AttributionMetadata) (*CreateResult, error)
}

// Notifier tells a partner about a new referred customer
type Notifier interface {
	NewReferral(ctx context.Context, p *models.Partner, customer *models.CustomerRecord) error
}

// Orchestrator ties code validation, the customer record and the referral event together
type Orchestrator struct {
	validator   *Validator
	repo        RecordCreator
	store       *store.Store
	referrals   ReferralWriter
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      logger.Logger
	maxAttempts int
	backoff     func(attempt int) time.Duration
}

// NewOrchestrator creates an orchestrator. maxAttempts below 1 means a single attempt.
func NewOrchestrator(v *Validator, repo RecordCreator, st *store.Store, maxAttempts int, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Orchestrator{
		validator:   v,
		repo:        repo,
		store:       st,
		referrals:   st,
		logger:      log.With("component", "attribution"),
		maxAttempts: maxAttempts,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * 100 * time.Millisecond
		},
	}
}

// WithReferralWriter replaces where Referral events are written
func (o *Orchestrator) WithReferralWriter(w ReferralWriter) *Orchestrator {
	o.referrals = w
	return o
}

// WithNotifier sets who hears about new attributions
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// WithMetrics records attribution outcomes
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithBackoff sets the wait before retry number attempt
func (o *Orchestrator) WithBackoff(fn func(attempt int) time.Duration) *Orchestrator {
	o.backoff = fn
	return o
}

// Attribute records customerUID as referred through code.
// Failures come back as an outcome; the caller's signup always proceeds.
func (o *Orchestrator) Attribute(
	ctx context.Context,
	code, customerUID string,
	profile models.CustomerProfile,
	meta models.AttributionMetadata,
) *AttributionResult {
	result := o.attribute(ctx, code, customerUID, profile, meta)
	result.Success = result.Outcome.Success()
	o.metrics.RecordAttribution(string(result.Outcome), result.Attempts)
	return result
}

func (o *Orchestrator) attribute(
	ctx context.Context,
	code, customerUID string,
	profile models.CustomerProfile,
	meta models.AttributionMetadata,
) *AttributionResult {
	code = partner.NormalizeCode(code)
	if code == "" {
		return &AttributionResult{Outcome: OutcomeNoCode}
	}

	log := o.logger.With("code", code, "customer_uid", customerUID)

	validation, err := o.validate(ctx, code)
	if err != nil {
		log.Warn("attribution skipped: code lookup failed", "error", err)
		return &AttributionResult{Outcome: OutcomeFailed, Attempts: o.maxAttempts}
	}
	if !validation.Valid {
		outcome := OutcomeInvalidCode
		if validation.Reason == ReasonPartnerInactive {
			outcome = OutcomePartnerInvalid
		}
		log.Info("attribution skipped", "reason", validation.Reason)
		return &AttributionResult{Outcome: outcome, Reason: validation.Reason}
	}

	partnerID := validation.Partner.PartnerID
	meta.ReferralCode = code
	if !meta.Source.Valid() {
		meta.Source = models.ReferralSourceLink
	}

	var (
		created  *CreateResult
		attempts int
	)
	for attempts = 1; ; attempts++ {
		created, err = o.repo.CreateCustomerRecord(ctx, partnerID, customerUID, profile, meta)
		if err == nil || !domain.IsTransient(err) || attempts >= o.maxAttempts {
			break
		}
		log.Warn("customer record write outcome unknown, retrying", "attempt", attempts, "error", err)
		if !sleep(ctx, o.backoff(attempts)) {
			break
		}
	}
	if err != nil {
		log.Warn("attribution failed", "partner_id", partnerID, "attempts", attempts, "error", err)
		return &AttributionResult{Outcome: OutcomeFailed, PartnerID: partnerID, Attempts: attempts}
	}

	result := &AttributionResult{PartnerID: partnerID, Record: created.Record, Attempts: attempts}

	switch created.Status {
	case StatusPartnerInvalid:
		result.Outcome = OutcomePartnerInvalid
		result.Reason = ReasonPartnerInactive
		return result
	case StatusCodeExhausted:
		result.Outcome = OutcomeCodeExhausted
		result.Reason = ReasonExhausted
		return result
	case StatusAlreadyExists:
		result.Outcome = OutcomeAlreadyAttributed
	default:
		result.Outcome = OutcomeAttributed
	}

	ref, err := o.ensureReferral(ctx, created.Record, meta)
	if err != nil {
		log.Warn("referral event write failed, keeping customer record",
			"partner_id", partnerID,
			"record_id", created.Record.ID,
			"error", err,
		)
		result.Warning = warnReferralNotSaved
	}
	result.Referral = ref

	if created.Status == StatusCreated {
		o.notify(ctx, partnerID, created.Record)
	}
	return result
}

// validate retries transient lookup failures with the same budget as the write
func (o *Orchestrator) validate(ctx context.Context, code string) (*Validation, error) {
	var err error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		var v *Validation
		v, err = o.validator.Validate(ctx, code)
		if err == nil {
			return v, nil
		}
		if !database.IsTransient(err) || attempt == o.maxAttempts || !sleep(ctx, o.backoff(attempt)) {
			break
		}
	}
	return nil, err
}

// ensureReferral writes the Referral event for record unless one exists.
// An already-attributed retry repairs a Referral that failed to save earlier.
func (o *Orchestrator) ensureReferral(ctx context.Context, record *models.CustomerRecord, meta models.AttributionMetadata) (*models.Referral, error) {
	existing, err := o.referrals.GetReferral(ctx, record.PartnerID, record.CustomerUID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	code := record.ReferralCode
	if code == "" {
		code = meta.ReferralCode
	}
	ref := &models.Referral{
		ID:          uuid.NewString(),
		PartnerID:   record.PartnerID,
		Code:        code,
		CustomerUID: record.CustomerUID,
		Source:      record.Source,
		CreatedAt:   record.JoinedAt,
		IPAddress:   meta.IPAddress,
		UserAgent:   truncate(meta.UserAgent, maxUserAgent),
		LandingPage: meta.LandingPage,
	}
	if err := o.referrals.InsertReferral(ctx, ref); err != nil {
		if database.IsUniqueViolation(err) {
			return o.referrals.GetReferral(ctx, record.PartnerID, record.CustomerUID)
		}
		return nil, err
	}
	return ref, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (o *Orchestrator) notify(ctx context.Context, partnerID string, record *models.CustomerRecord) {
	if o.notifier == nil {
		return
	}
	p, err := o.store.GetPartner(ctx, partnerID)
	if err != nil {
		o.logger.Warn("failed to load partner for referral notification", "partner_id", partnerID, "error", err)
		return
	}
	if err := o.notifier.NewReferral(ctx, p, record); err != nil {
		o.logger.Warn("failed to send referral notification", "partner_id", partnerID, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
