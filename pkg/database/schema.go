package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// PartnersColumns holds the columns for the "partners" table.
	PartnersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "email", Type: field.TypeString},
		{Name: "display_name", Type: field.TypeString},
		{Name: "commission_rate", Type: field.TypeFloat64},
		{Name: "status", Type: field.TypeString, Default: "pending"},
		{Name: "total_referrals", Type: field.TypeInt64, Default: 0},
		{Name: "total_conversions", Type: field.TypeInt64, Default: 0},
		{Name: "commission_earned", Type: field.TypeInt64, Default: 0},
		{Name: "commission_paid", Type: field.TypeInt64, Default: 0},
		{Name: "last_calculated", Type: field.TypeTime, Nullable: true},
		{Name: "approved_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// PartnersTable holds the schema information for the "partners" table.
	PartnersTable = &schema.Table{
		Name:       "partners",
		Columns:    PartnersColumns,
		PrimaryKey: []*schema.Column{PartnersColumns[0]},
		Indexes: []*schema.Index{
			{Name: "partner_status", Unique: false, Columns: []*schema.Column{PartnersColumns[4]}},
		},
	}

	// PartnerCodesColumns holds the columns for the "partner_codes" table.
	PartnerCodesColumns = []*schema.Column{
		{Name: "code", Type: field.TypeString},
		{Name: "partner_id", Type: field.TypeString},
		{Name: "active", Type: field.TypeBool, Default: true},
		{Name: "uses", Type: field.TypeInt64, Default: 0},
		{Name: "max_uses", Type: field.TypeInt64, Nullable: true},
		{Name: "expires_at", Type: field.TypeTime, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
	}
	// PartnerCodesTable holds the schema information for the "partner_codes" table.
	PartnerCodesTable = &schema.Table{
		Name:       "partner_codes",
		Columns:    PartnerCodesColumns,
		PrimaryKey: []*schema.Column{PartnerCodesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "partnercode_partner_id", Unique: false, Columns: []*schema.Column{PartnerCodesColumns[1]}},
		},
	}

	// ReferralsColumns holds the columns for the "referrals" table.
	ReferralsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "partner_id", Type: field.TypeString},
		{Name: "code", Type: field.TypeString},
		{Name: "customer_uid", Type: field.TypeString},
		{Name: "stripe_customer_id", Type: field.TypeString, Nullable: true},
		{Name: "stripe_subscription_id", Type: field.TypeString, Nullable: true},
		{Name: "source", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "converted_at", Type: field.TypeTime, Nullable: true},
		{Name: "subscribed_at", Type: field.TypeTime, Nullable: true},
		{Name: "ip_address", Type: field.TypeString, Default: ""},
		{Name: "user_agent", Type: field.TypeString, Size: 512, Default: ""},
		{Name: "landing_page", Type: field.TypeString, Size: 2048, Default: ""},
	}
	// ReferralsTable holds the schema information for the "referrals" table.
	ReferralsTable = &schema.Table{
		Name:       "referrals",
		Columns:    ReferralsColumns,
		PrimaryKey: []*schema.Column{ReferralsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "referral_partner_id_customer_uid", Unique: true, Columns: []*schema.Column{ReferralsColumns[1], ReferralsColumns[3]}},
			{Name: "referral_customer_uid", Unique: false, Columns: []*schema.Column{ReferralsColumns[3]}},
			{Name: "referral_stripe_customer_id", Unique: false, Columns: []*schema.Column{ReferralsColumns[4]}},
		},
	}

	// ReferralCustomersColumns holds the columns for the "referral_customers" table.
	ReferralCustomersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "partner_id", Type: field.TypeString},
		{Name: "customer_uid", Type: field.TypeString},
		{Name: "display_name", Type: field.TypeString, Default: ""},
		{Name: "email", Type: field.TypeString},
		{Name: "status", Type: field.TypeString, Default: "active"},
		{Name: "total_spent", Type: field.TypeInt64, Default: 0},
		{Name: "referral_code", Type: field.TypeString, Default: ""},
		{Name: "source", Type: field.TypeString},
		{Name: "joined_at", Type: field.TypeTime},
		{Name: "last_activity_at", Type: field.TypeTime},
	}
	// ReferralCustomersTable holds the schema information for the "referral_customers" table.
	ReferralCustomersTable = &schema.Table{
		Name:       "referral_customers",
		Columns:    ReferralCustomersColumns,
		PrimaryKey: []*schema.Column{ReferralCustomersColumns[0]},
		Indexes: []*schema.Index{
			{Name: "referralcustomer_partner_id_customer_uid", Unique: true, Columns: []*schema.Column{ReferralCustomersColumns[1], ReferralCustomersColumns[2]}},
		},
	}

	// CommissionLedgerColumns holds the columns for the "commission_ledger" table.
	CommissionLedgerColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "partner_id", Type: field.TypeString},
		{Name: "referral_id", Type: field.TypeString},
		{Name: "invoice_id", Type: field.TypeString},
		{Name: "subscription_id", Type: field.TypeString, Default: ""},
		{Name: "gross_amount", Type: field.TypeInt64},
		{Name: "commission_rate", Type: field.TypeFloat64},
		{Name: "commission_amount", Type: field.TypeInt64},
		{Name: "currency", Type: field.TypeString},
		{Name: "period_start", Type: field.TypeTime},
		{Name: "period_end", Type: field.TypeTime},
		{Name: "status", Type: field.TypeString, Default: "accrued"},
		{Name: "payment_tx_id", Type: field.TypeString, Nullable: true},
		{Name: "reversal_reason", Type: field.TypeString, Nullable: true},
		{Name: "accrued_at", Type: field.TypeTime},
		{Name: "paid_at", Type: field.TypeTime, Nullable: true},
		{Name: "reversed_at", Type: field.TypeTime, Nullable: true},
	}
	// CommissionLedgerTable holds the schema information for the "commission_ledger" table.
	CommissionLedgerTable = &schema.Table{
		Name:       "commission_ledger",
		Columns:    CommissionLedgerColumns,
		PrimaryKey: []*schema.Column{CommissionLedgerColumns[0]},
		Indexes: []*schema.Index{
			{Name: "commissionledger_partner_id_invoice_id", Unique: true, Columns: []*schema.Column{CommissionLedgerColumns[1], CommissionLedgerColumns[3]}},
			{Name: "commissionledger_invoice_id", Unique: false, Columns: []*schema.Column{CommissionLedgerColumns[3]}},
			{Name: "commissionledger_referral_id", Unique: false, Columns: []*schema.Column{CommissionLedgerColumns[2]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		PartnersTable,
		PartnerCodesTable,
		ReferralsTable,
		ReferralCustomersTable,
		CommissionLedgerTable,
	}
)

// Table names
const (
	TablePartners          = "partners"
	TablePartnerCodes      = "partner_codes"
	TableReferrals         = "referrals"
	TableReferralCustomers = "referral_customers"
	TableCommissionLedger  = "commission_ledger"
)

// Migrate creates or updates every table the service owns
func (c *Client) Migrate(ctx context.Context, opts ...schema.MigrateOption) error {
	migrate, err := schema.NewMigrate(c.Driver, opts...)
	if err != nil {
		return fmt.Errorf("failed creating migrator: %w", err)
	}
	if err := migrate.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("failed creating schema resources: %w", err)
	}
	return nil
}
