package models

import "time"

// ReferralSource tells how the referral code reached the customer
type ReferralSource string

const (
	ReferralSourceLink          ReferralSource = "link"
	ReferralSourceManual        ReferralSource = "manual"
	ReferralSourcePromotionCode ReferralSource = "promotion_code"
	ReferralSourceWidget        ReferralSource = "widget"
)

// Valid reports whether s is a known source
func (s ReferralSource) Valid() bool {
	switch s {
	case ReferralSourceLink, ReferralSourceManual, ReferralSourcePromotionCode, ReferralSourceWidget:
		return true
	}
	return false
}

// Referral is the source-of-truth event of one code-driven signup
type Referral struct {
	ID                   string         `json:"id"`
	PartnerID            string         `json:"partner_id"`
	Code                 string         `json:"code"`
	CustomerUID          string         `json:"customer_uid"`
	StripeCustomerID     *string        `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string        `json:"stripe_subscription_id,omitempty"`
	Source               ReferralSource `json:"source"`
	CreatedAt            time.Time      `json:"created_at"`
	ConvertedAt          *time.Time     `json:"converted_at,omitempty"`
	SubscribedAt         *time.Time     `json:"subscribed_at,omitempty"`
	IPAddress            string         `json:"ip_address,omitempty"`
	UserAgent            string         `json:"user_agent,omitempty"`
	LandingPage          string         `json:"landing_page,omitempty"`
}

// CustomerStatus is the dashboard status of a referred customer
type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "active"
	CustomerStatusInactive CustomerStatus = "inactive"
	CustomerStatusChurned  CustomerStatus = "churned"
)

// CustomerRecord is the dashboard-facing projection of a Referral.
// At most one exists per (PartnerID, CustomerUID).
type CustomerRecord struct {
	ID             string         `json:"id"`
	PartnerID      string         `json:"partner_id"`
	CustomerUID    string         `json:"customer_uid"`
	DisplayName    string         `json:"display_name"`
	Email          string         `json:"email"`
	Status         CustomerStatus `json:"status"`
	TotalSpent     int64          `json:"total_spent"`
	ReferralCode   string         `json:"referral_code,omitempty"`
	Source         ReferralSource `json:"source"`
	JoinedAt       time.Time      `json:"joined_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// CustomerProfile is the referred customer's identity at signup
type CustomerProfile struct {
	DisplayName string `json:"display_name" validate:"max=120"`
	Email       string `json:"email" validate:"required"`
}

// AttributionMetadata describes where an attribution came from
type AttributionMetadata struct {
	ReferralCode string         `json:"referral_code,omitempty"`
	Source       ReferralSource `json:"source,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	LandingPage  string         `json:"landing_page,omitempty"`
}

// AttributeRequest is the body the signup flow posts after registration
type AttributeRequest struct {
	ReferralCode string `json:"referral_code" validate:"omitempty,max=32"`
	DisplayName  string `json:"display_name" validate:"max=120"`
	Email        string `json:"email" validate:"required,email"`
	Source       string `json:"source" validate:"omitempty,oneof=link manual promotion_code widget"`
	LandingPage  string `json:"landing_page" validate:"omitempty,max=2048"`
}
