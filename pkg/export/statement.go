// Package export renders commission statements as spreadsheets.
package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/jordanlanch/contentforge/pkg/models"
)

const sheetName = "Statement"

// PartnerSource loads the partner a statement is for
type PartnerSource interface {
	Get(ctx context.Context, id string) (*models.Partner, error)
}

// LedgerSource loads a partner's ledger entries and totals
type LedgerSource interface {
	List(ctx context.Context, partnerID string) ([]*models.LedgerEntry, error)
	Summary(ctx context.Context, partnerID string) (*models.LedgerSummary, error)
}

// zeroDecimal lists currencies whose minor unit is the major unit
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// MajorUnits converts an amount in minor units of currency to major units
func MajorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimal[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

// Service builds commission statement workbooks
type Service struct {
	partners PartnerSource
	ledger   LedgerSource
	now      func() time.Time
}

// NewService creates a new export service
func NewService(partners PartnerSource, ledger LedgerSource) *Service {
	return &Service{partners: partners, ledger: ledger, now: time.Now}
}

// Statement renders a partner's commission statement as an .xlsx file.
// It returns the file contents and a suggested file name.
func (s *Service) Statement(ctx context.Context, partnerID string) ([]byte, string, error) {
	partner, err := s.partners.Get(ctx, partnerID)
	if err != nil {
		return nil, "", err
	}
	entries, err := s.ledger.List(ctx, partnerID)
	if err != nil {
		return nil, "", err
	}
	summary, err := s.ledger.Summary(ctx, partnerID)
	if err != nil {
		return nil, "", err
	}

	data, err := s.render(partner, entries, summary)
	if err != nil {
		return nil, "", err
	}

	name := fmt.Sprintf("commission-statement-%s-%s.xlsx", partner.ID, s.now().UTC().Format("2006-01-02"))
	return data, name, nil
}

var headers = []string{
	"Entry ID", "Invoice", "Subscription", "Period Start", "Period End",
	"Gross", "Rate", "Commission", "Currency", "Status", "Accrued At", "Paid At", "Payment Tx",
}

func (s *Service) render(partner *models.Partner, entries []*models.LedgerEntry, summary *models.LedgerSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	set := func(col, row int, v interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cell, v)
	}

	// partner block
	meta := [][2]interface{}{
		{"Partner", partner.DisplayName},
		{"Partner ID", partner.ID},
		{"Commission Rate", partner.CommissionRate},
		{"Generated At", s.now().UTC().Format(time.RFC3339)},
	}
	for i, kv := range meta {
		if err := set(1, i+1, kv[0]); err != nil {
			return nil, err
		}
		if err := set(2, i+1, kv[1]); err != nil {
			return nil, err
		}
	}

	headerRow := len(meta) + 2
	for i, header := range headers {
		if err := set(i+1, headerRow, header); err != nil {
			return nil, err
		}
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(headers), headerRow)
	if err := f.SetCellStyle(sheetName, first, last, headerStyle); err != nil {
		return nil, err
	}

	row := headerRow
	for _, e := range entries {
		row++
		values := []interface{}{
			e.ID,
			e.InvoiceID,
			e.SubscriptionID,
			e.PeriodStart.UTC().Format("2006-01-02"),
			e.PeriodEnd.UTC().Format("2006-01-02"),
			MajorUnits(e.GrossAmount, e.Currency).InexactFloat64(),
			e.CommissionRate,
			MajorUnits(e.CommissionAmount, e.Currency).InexactFloat64(),
			strings.ToUpper(e.Currency),
			string(e.Status),
			e.AccruedAt.UTC().Format(time.RFC3339),
			formatTime(e.PaidAt),
			deref(e.PaymentTxID),
		}
		for col, v := range values {
			if err := set(col+1, row, v); err != nil {
				return nil, err
			}
		}
	}

	// totals are in the first entry's currency; mixed-currency ledgers are not summed across
	currency := "usd"
	if len(entries) > 0 {
		currency = entries[0].Currency
	}
	row += 2
	totals := [][2]interface{}{
		{"Accrued", MajorUnits(summary.Accrued, currency).InexactFloat64()},
		{"Paid", MajorUnits(summary.Paid, currency).InexactFloat64()},
		{"Reversed", MajorUnits(summary.Reversed, currency).InexactFloat64()},
		{"Entries", summary.Entries},
	}
	for i, kv := range totals {
		if err := set(1, row+i, kv[0]); err != nil {
			return nil, err
		}
		if err := set(2, row+i, kv[1]); err != nil {
			return nil, err
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetName, col, col, 16); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
