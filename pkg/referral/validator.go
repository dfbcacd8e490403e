package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/contentforge/pkg/cache"
	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/partner"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// Reason explains why a code cannot be used
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonInactive        Reason = "inactive"
	ReasonExpired         Reason = "expired"
	ReasonExhausted       Reason = "exhausted"
	ReasonPartnerInactive Reason = "partner_inactive"
)

// Validation is the outcome of checking a referral code
type Validation struct {
	Code      string              `json:"code"`
	Valid     bool                `json:"valid"`
	Reason    Reason              `json:"reason,omitempty"`
	Partner   *models.PartnerInfo `json:"partner,omitempty"`
	CheckedAt time.Time           `json:"checked_at"`
}

// CheckCode applies the code-level rules: active, not expired, uses below the cap.
// An empty reason means the code itself is usable.
func CheckCode(c *models.PartnerCode, now time.Time) Reason {
	switch {
	case !c.Active:
		return ReasonInactive
	case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
		return ReasonExpired
	case c.MaxUses != nil && c.Uses >= *c.MaxUses:
		return ReasonExhausted
	}
	return ""
}

// Validator resolves referral codes to the partner that owns them
type Validator struct {
	store   *store.Store
	cache   *cache.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewValidator creates a validator reading from st
func NewValidator(st *store.Store, log logger.Logger) *Validator {
	if log == nil {
		log = logger.Nop()
	}
	return &Validator{
		store:  st,
		logger: log.With("component", "referral_validator"),
	}
}

// WithCache enables ValidateCached backed by Redis
func (v *Validator) WithCache(c *cache.Client, ttl time.Duration) *Validator {
	v.cache = c
	v.ttl = ttl
	return v
}

// WithMetrics records validation results
func (v *Validator) WithMetrics(m *metrics.Metrics) *Validator {
	v.metrics = m
	return v
}

// Validate checks code against the store. It never serves cached data.
// An unusable code is reported through Validation, not as an error.
func (v *Validator) Validate(ctx context.Context, code string) (*Validation, error) {
	now := v.store.Now()
	code = partner.NormalizeCode(code)
	result := &Validation{Code: code, CheckedAt: now}

	if code == "" {
		return v.invalid(result, ReasonNotFound), nil
	}

	c, err := v.store.GetCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return v.invalid(result, ReasonNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}

	if reason := CheckCode(c, now); reason != "" {
		return v.invalid(result, reason), nil
	}

	p, err := v.store.GetPartner(ctx, c.PartnerID)
	if errors.Is(err, store.ErrNotFound) {
		return v.invalid(result, ReasonPartnerInactive), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up partner: %w", err)
	}
	if !p.IsActive() {
		return v.invalid(result, ReasonPartnerInactive), nil
	}

	result.Valid = true
	result.Partner = &models.PartnerInfo{
		PartnerID:      p.ID,
		DisplayName:    p.DisplayName,
		CommissionRate: p.CommissionRate,
		Status:         p.Status,
		Code:           c.Code,
	}
	v.metrics.RecordCodeValidation("valid")
	return result, nil
}

// ValidateCached serves landing-page checks from Redis for the configured TTL.
// Attribution must call Validate instead.
func (v *Validator) ValidateCached(ctx context.Context, code string) (*Validation, error) {
	if v.cache == nil || v.ttl <= 0 {
		return v.Validate(ctx, code)
	}

	key := cacheKey(partner.NormalizeCode(code))

	var cached Validation
	err := v.cache.GetJSON(ctx, key, &cached)
	switch {
	case err == nil:
		v.metrics.RecordCacheHit("redis")
		return &cached, nil
	case errors.Is(err, cache.ErrMiss):
		v.metrics.RecordCacheMiss("redis")
	default:
		v.logger.Warn("referral code cache read failed", "error", err)
	}

	result, err := v.Validate(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := v.cache.SetJSON(ctx, key, result, v.ttl); err != nil {
		v.logger.Warn("referral code cache write failed", "error", err)
	}
	return result, nil
}

// Forget drops a cached validation, used when a code or its partner changes
func (v *Validator) Forget(ctx context.Context, code string) {
	if v.cache == nil {
		return
	}
	if err := v.cache.Delete(ctx, cacheKey(partner.NormalizeCode(code))); err != nil {
		v.logger.Warn("referral code cache delete failed", "error", err)
	}
}

// ForgetAll drops every cached validation
func (v *Validator) ForgetAll(ctx context.Context) {
	if v.cache == nil {
		return
	}
	if _, err := v.cache.DeletePattern(ctx, cacheKey("*")); err != nil {
		v.logger.Warn("referral code cache flush failed", "error", err)
	}
}

func (v *Validator) invalid(result *Validation, reason Reason) *Validation {
	result.Valid = false
	result.Reason = reason
	v.metrics.RecordCodeValidation(string(reason))
	return result
}

func cacheKey(code string) string {
	return "referral:code:" + code
}
