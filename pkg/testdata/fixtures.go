// Package testdata builds realistic partners, codes and customers for tests and local seeding.
package testdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
)

// PartnerOptions controls the partner and code SeedPartner creates
type PartnerOptions struct {
	ID     string
	Status models.PartnerStatus
	Rate   float64

	// Code settings; an empty Code seeds no code
	Code         string
	CodeInactive bool
	Uses         int
	MaxUses      *int
	ExpiresAt    *time.Time
}

// NewPartner returns an unsaved partner with fake identity fields
func NewPartner(opts PartnerOptions) *models.Partner {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := opts.Status
	if status == "" {
		status = models.PartnerStatusActive
	}
	rate := opts.Rate
	if rate == 0 {
		rate = 0.6
	}

	now := time.Now().UTC()
	p := &models.Partner{
		ID:             id,
		Email:          strings.ToLower(gofakeit.Email()),
		DisplayName:    gofakeit.Name(),
		CommissionRate: rate,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status == models.PartnerStatusActive {
		p.ApprovedAt = &now
	}
	return p
}

// SeedPartner stores a partner and, when opts.Code is set, one code owned by it
func SeedPartner(ctx context.Context, st *store.Store, opts PartnerOptions) (*models.Partner, *models.PartnerCode, error) {
	p := NewPartner(opts)
	if err := st.InsertPartner(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("seed partner: %w", err)
	}

	if opts.Code == "" {
		return p, nil, nil
	}

	c := &models.PartnerCode{
		Code:      strings.ToUpper(opts.Code),
		PartnerID: p.ID,
		Active:    !opts.CodeInactive,
		Uses:      opts.Uses,
		MaxUses:   opts.MaxUses,
		ExpiresAt: opts.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertCode(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("seed code: %w", err)
	}
	return p, c, nil
}

// CustomerUID returns a fresh auth uid
func CustomerUID() string {
	return gofakeit.UUID()
}

// CustomerProfile returns a fake signup profile
func CustomerProfile() models.CustomerProfile {
	return models.CustomerProfile{
		DisplayName: gofakeit.Name(),
		Email:       strings.ToLower(gofakeit.Email()),
	}
}

// Metadata returns attribution metadata for a code
func Metadata(code string) models.AttributionMetadata {
	return models.AttributionMetadata{
		ReferralCode: code,
		Source:       models.ReferralSourceLink,
		IPAddress:    gofakeit.IPv4Address(),
		UserAgent:    gofakeit.UserAgent(),
		LandingPage:  "https://contentforge.test/?ref=" + code,
	}
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t
func TimePtr(t time.Time) *time.Time {
	return &t
}
