package models

import "time"

// PartnerStatus is the lifecycle status of a partner account
type PartnerStatus string

const (
	PartnerStatusPending    PartnerStatus = "pending"
	PartnerStatusActive     PartnerStatus = "active"
	PartnerStatusSuspended  PartnerStatus = "suspended"
	PartnerStatusRejected   PartnerStatus = "rejected"
	PartnerStatusTerminated PartnerStatus = "terminated"
)

// Partner is a registered affiliate entitled to referral codes and commission
type Partner struct {
	ID               string        `json:"id"`
	Email            string        `json:"email"`
	DisplayName      string        `json:"display_name"`
	CommissionRate   float64       `json:"commission_rate"`
	Status           PartnerStatus `json:"status"`
	TotalReferrals   int           `json:"total_referrals"`
	TotalConversions int           `json:"total_conversions"`
	CommissionEarned int64         `json:"commission_earned"`
	CommissionPaid   int64         `json:"commission_paid"`
	LastCalculated   *time.Time    `json:"last_calculated,omitempty"`
	ApprovedAt       *time.Time    `json:"approved_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsActive reports whether the partner may receive new attributions
func (p *Partner) IsActive() bool {
	return p.Status == PartnerStatusActive
}

// PartnerCode is a short token bound to exactly one partner
type PartnerCode struct {
	Code      string     `json:"code"`
	PartnerID string     `json:"partner_id"`
	Active    bool       `json:"active"`
	Uses      int        `json:"uses"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PartnerInfo is what a successful code validation reveals about the owning partner
type PartnerInfo struct {
	PartnerID      string        `json:"partner_id"`
	DisplayName    string        `json:"display_name"`
	CommissionRate float64       `json:"commission_rate"`
	Status         PartnerStatus `json:"status"`
	Code           string        `json:"code"`
}

// PartnerApplyRequest is the body of a partner application
type PartnerApplyRequest struct {
	Email       string `json:"email" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required,min=2,max=80"`
}

// PartnerStatusRequest changes a partner's lifecycle status
type PartnerStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active suspended rejected terminated"`
}

// CommissionRateRequest changes a partner's commission rate
type CommissionRateRequest struct {
	Rate float64 `json:"rate" validate:"required,gt=0,lt=1"`
}

// CreateCodeRequest creates a referral code for a partner
type CreateCodeRequest struct {
	Code      string     `json:"code" validate:"omitempty,alphanum,min=4,max=32"`
	MaxUses   *int       `json:"max_uses,omitempty" validate:"omitempty,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PartnerDashboard aggregates everything the partner-facing dashboard shows
type PartnerDashboard struct {
	Partner   *Partner          `json:"partner"`
	Codes     []*PartnerCode    `json:"codes"`
	Customers []*CustomerRecord `json:"customers"`
	Ledger    *LedgerSummary    `json:"ledger"`
}
