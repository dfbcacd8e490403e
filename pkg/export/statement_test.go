package export

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/models"
)

type fakePartners map[string]*models.Partner

func (f fakePartners) Get(_ context.Context, id string) (*models.Partner, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, domain.NewNotFoundError("partner")
}

type fakeLedger struct {
	entries []*models.LedgerEntry
	summary *models.LedgerSummary
	err     error
}

func (f *fakeLedger) List(context.Context, string) ([]*models.LedgerEntry, error) {
	return f.entries, f.err
}

func (f *fakeLedger) Summary(context.Context, string) (*models.LedgerSummary, error) {
	return f.summary, f.err
}

func TestMajorUnits(t *testing.T) {
	assert.Equal(t, "9.99", MajorUnits(999, "usd").String())
	assert.Equal(t, "-5", MajorUnits(-500, "EUR").String())
	assert.Equal(t, "1500", MajorUnits(1500, "jpy").String())
}

func TestStatement(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	paidAt := now.Add(-time.Hour)
	tx := "po_123"

	partners := fakePartners{"p1": {ID: "p1", DisplayName: "Ana Creates", CommissionRate: 0.6}}
	ledger := &fakeLedger{
		entries: []*models.LedgerEntry{
			{
				ID: "e1", InvoiceID: "in_1", SubscriptionID: "sub_1",
				PeriodStart: now.AddDate(0, -1, 0), PeriodEnd: now,
				GrossAmount: 9990, CommissionRate: 0.6, CommissionAmount: 5994, Currency: "usd",
				Status: models.LedgerStatusPaid, AccruedAt: now.AddDate(0, 0, -2), PaidAt: &paidAt, PaymentTxID: &tx,
			},
			{
				ID: "e2", InvoiceID: "in_2", SubscriptionID: "sub_1",
				PeriodStart: now, PeriodEnd: now.AddDate(0, 1, 0),
				GrossAmount: 999, CommissionRate: 0.6, CommissionAmount: 599, Currency: "usd",
				Status: models.LedgerStatusAccrued, AccruedAt: now,
			},
		},
		summary: &models.LedgerSummary{Accrued: 599, Paid: 5994, Entries: 2},
	}

	svc := NewService(partners, ledger)
	svc.now = func() time.Time { return now }

	data, name, err := svc.Statement(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "commission-statement-p1-2026-03-01.xlsx", name)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	cell := func(axis string) string {
		v, err := f.GetCellValue(sheetName, axis)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Ana Creates", cell("B1"))
	assert.Equal(t, "p1", cell("B2"))
	assert.Equal(t, "Entry ID", cell("A6"))
	assert.Equal(t, "Payment Tx", cell("M6"))

	assert.Equal(t, "e1", cell("A7"))
	assert.Equal(t, "99.9", cell("F7"))
	assert.Equal(t, "59.94", cell("H7"))
	assert.Equal(t, "USD", cell("I7"))
	assert.Equal(t, "paid", cell("J7"))
	assert.Equal(t, "po_123", cell("M7"))

	assert.Equal(t, "e2", cell("A8"))
	assert.Equal(t, "5.99", cell("H8"))
	assert.Empty(t, cell("L8"))

	assert.Equal(t, "Accrued", cell("A10"))
	assert.Equal(t, "5.99", cell("B10"))
	assert.Equal(t, "Paid", cell("A11"))
	assert.Equal(t, "59.94", cell("B11"))
	assert.Equal(t, "2", cell("B13"))
}

func TestStatement_Errors(t *testing.T) {
	svc := NewService(fakePartners{}, &fakeLedger{summary: &models.LedgerSummary{}})
	_, _, err := svc.Statement(context.Background(), "missing")
	assert.True(t, domain.IsNotFound(err))

	boom := errors.New("ledger down")
	svc = NewService(fakePartners{"p1": {ID: "p1"}}, &fakeLedger{err: boom})
	_, _, err = svc.Statement(context.Background(), "p1")
	assert.ErrorIs(t, err, boom)
}

func TestStatement_EmptyLedger(t *testing.T) {
	svc := NewService(fakePartners{"p1": {ID: "p1", DisplayName: "New"}}, &fakeLedger{summary: &models.LedgerSummary{}})

	data, _, err := svc.Statement(context.Background(), "p1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(sheetName, "A8")
	require.NoError(t, err)
	assert.Equal(t, "Accrued", v)
}
