package models

import "time"

// LedgerStatus is the state of a commission ledger entry
type LedgerStatus string

const (
	LedgerStatusAccrued  LedgerStatus = "accrued"
	LedgerStatusPaid     LedgerStatus = "paid"
	LedgerStatusReversed LedgerStatus = "reversed"
)

// Terminal reports whether no further transition is allowed
func (s LedgerStatus) Terminal() bool {
	return s == LedgerStatusPaid || s == LedgerStatusReversed
}

// LedgerEntry is one commission accrual tied to one billing invoice
type LedgerEntry struct {
	ID               string       `json:"id"`
	PartnerID        string       `json:"partner_id"`
	ReferralID       string       `json:"referral_id"`
	InvoiceID        string       `json:"invoice_id"`
	SubscriptionID   string       `json:"subscription_id"`
	GrossAmount      int64        `json:"gross_amount"`
	CommissionRate   float64      `json:"commission_rate"`
	CommissionAmount int64        `json:"commission_amount"`
	Currency         string       `json:"currency"`
	PeriodStart      time.Time    `json:"period_start"`
	PeriodEnd        time.Time    `json:"period_end"`
	Status           LedgerStatus `json:"status"`
	PaymentTxID      *string      `json:"payment_tx_id,omitempty"`
	ReversalReason   *string      `json:"reversal_reason,omitempty"`
	AccruedAt        time.Time    `json:"accrued_at"`
	PaidAt           *time.Time   `json:"paid_at,omitempty"`
	ReversedAt       *time.Time   `json:"reversed_at,omitempty"`
}

// LedgerSummary totals a partner's ledger per status, in minor units
type LedgerSummary struct {
	Accrued  int64 `json:"accrued"`
	Paid     int64 `json:"paid"`
	Reversed int64 `json:"reversed"`
	Entries  int   `json:"entries"`
}

// MarkPaidRequest settles an accrued entry
type MarkPaidRequest struct {
	PaymentTxID string `json:"payment_tx_id" validate:"required,max=128"`
}

// ReverseRequest reverses an accrued entry
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
