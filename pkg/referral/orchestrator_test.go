package referral

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/contentforge/pkg/domain"
	"github.com/jordanlanch/contentforge/pkg/metrics"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
	"github.com/jordanlanch/contentforge/pkg/testdata"
)

type recordingNotifier struct {
	sent []string
}

func (n *recordingNotifier) NewReferral(_ context.Context, p *models.Partner, customer *models.CustomerRecord) error {
	n.sent = append(n.sent, p.ID+":"+customer.CustomerUID)
	return errors.New("smtp down")
}

// failingWriter loses every Referral insert
type failingWriter struct {
	*store.Store
}

func (failingWriter) InsertReferral(context.Context, *models.Referral) error {
	return errors.New("write rejected")
}

// flakyCreator fails the first n calls with a transient error
type flakyCreator struct {
	next  RecordCreator
	fails int
	calls int
	err   error
}

func (f *flakyCreator) CreateCustomerRecord(ctx context.Context, partnerID, customerUID string, profile models.CustomerProfile, meta models.AttributionMetadata) (*CreateResult, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}
	return f.next.CreateCustomerRecord(ctx, partnerID, customerUID, profile, meta)
}

type fixedCreator struct {
	status CreateStatus
}

func (f fixedCreator) CreateCustomerRecord(context.Context, string, string, models.CustomerProfile, models.AttributionMetadata) (*CreateResult, error) {
	return &CreateResult{Status: f.status}, nil
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	st := setupStore(t)
	o := NewOrchestrator(NewValidator(st, nil), NewCustomerRepository(st, nil), st, 3, nil).
		WithBackoff(func(int) time.Duration { return 0 })
	return o, st
}

func TestAttribute_HappyPath(t *testing.T) {
	o, st := setupOrchestrator(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	o.WithNotifier(notifier)

	p, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "SAVE10", Rate: 0.6})
	require.NoError(t, err)
	uid := testdata.CustomerUID()

	res := o.Attribute(ctx, "SAVE10", uid, testdata.CustomerProfile(), testdata.Metadata("SAVE10"))

	assert.Equal(t, OutcomeAttributed, res.Outcome)
	assert.True(t, res.Success)
	assert.Equal(t, p.ID, res.PartnerID)
	assert.Empty(t, res.Warning)
	assert.Equal(t, 1, res.Attempts)
	require.NotNil(t, res.Record)
	require.NotNil(t, res.Referral)
	assert.Equal(t, "SAVE10", res.Referral.Code)
	assert.Equal(t, uid, res.Referral.CustomerUID)

	record, err := st.GetCustomer(ctx, p.ID, uid)
	require.NoError(t, err)
	assert.Equal(t, res.Record.ID, record.ID)

	stored, err := st.GetPartner(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalReferrals)

	assert.Equal(t, []string{p.ID + ":" + uid}, notifier.sent, "notification failure must not affect the outcome")
}

func TestAttribute_StoresRequestMetadata(t *testing.T) {
	o, st := setupOrchestrator(t)
	ctx := context.Background()

	p, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "SAVE10"})
	require.NoError(t, err)
	uid := testdata.CustomerUID()

	meta := models.AttributionMetadata{
		Source:      models.ReferralSourceWidget,
		IPAddress:   "203.0.113.7",
		UserAgent:   strings.Repeat("a", maxUserAgent+40),
		LandingPage: "https://contentforge.test/pricing?ref=SAVE10",
	}
	res := o.Attribute(ctx, "SAVE10", uid, testdata.CustomerProfile(), meta)
	require.Equal(t, OutcomeAttributed, res.Outcome)

	stored, err := st.GetReferral(ctx, p.ID, uid)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", stored.IPAddress)
	assert.Len(t, stored.UserAgent, maxUserAgent)
	assert.Equal(t, "https://contentforge.test/pricing?ref=SAVE10", stored.LandingPage)
	assert.Equal(t, models.ReferralSourceWidget, stored.Source)
}

func TestAttribute_DuplicateSignupRetry(t *testing.T) {
	o, st := setupOrchestrator(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	o.WithNotifier(notifier)

	p, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "SAVE10"})
	require.NoError(t, err)
	uid := testdata.CustomerUID()
	profile := testdata.CustomerProfile()

	first := o.Attribute(ctx, "SAVE10", uid, profile, testdata.Metadata("SAVE10"))
	second := o.Attribute(ctx, "save10", uid, profile, testdata.Metadata("SAVE10"))

	assert.Equal(t, OutcomeAttributed, first.Outcome)
	assert.Equal(t, OutcomeAlreadyAttributed, second.Outcome)
	assert.True(t, second.Success)
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Equal(t, first.Referral.ID, second.Referral.ID)

	stored, err := st.GetPartner(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalReferrals)
	assert.Len(t, notifier.sent, 1)
}

func TestAttribute_Skipped(t *testing.T) {
	o, st := setupOrchestrator(t)
	ctx := context.Background()

	_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "OFF", CodeInactive: true})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "GONE", Status: models.PartnerStatusTerminated})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "USEDUP", Uses: 1, MaxUses: testdata.IntPtr(1)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		code    string
		outcome Outcome
		reason  Reason
	}{
		{name: "no code", code: "   ", outcome: OutcomeNoCode},
		{name: "unknown code", code: "NOPE", outcome: OutcomeInvalidCode, reason: ReasonNotFound},
		{name: "inactive code", code: "OFF", outcome: OutcomeInvalidCode, reason: ReasonInactive},
		{name: "exhausted code", code: "USEDUP", outcome: OutcomeInvalidCode, reason: ReasonExhausted},
		{name: "terminated partner", code: "GONE", outcome: OutcomePartnerInvalid, reason: ReasonPartnerInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid := testdata.CustomerUID()
			res := o.Attribute(ctx, tt.code, uid, testdata.CustomerProfile(), testdata.Metadata(tt.code))

			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
			assert.False(t, res.Success)
			assert.Nil(t, res.Record)

			_, err := st.FirstReferralByCustomer(ctx, uid)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestAttribute_ReferralWriteFailureKeepsRecord(t *testing.T) {
	o, st := setupOrchestrator(t)
	ctx := context.Background()

	p, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "SAVE10"})
	require.NoError(t, err)
	uid := testdata.CustomerUID()
	profile := testdata.CustomerProfile()

	o.WithReferralWriter(failingWriter{Store: st})
	partial := o.Attribute(ctx, "SAVE10", uid, profile, testdata.Metadata("SAVE10"))

	assert.Equal(t, OutcomeAttributed, partial.Outcome)
	assert.True(t, partial.Success)
	assert.Equal(t, warnReferralNotSaved, partial.Warning)
	assert.Nil(t, partial.Referral)

	_, err = st.GetCustomer(ctx, p.ID, uid)
	require.NoError(t, err, "customer record must survive the failed referral write")
	_, err = st.GetReferral(ctx, p.ID, uid)
	assert.ErrorIs(t, err, store.ErrNotFound)

	o.WithReferralWriter(st)
	healed := o.Attribute(ctx, "SAVE10", uid, profile, testdata.Metadata("SAVE10"))

	assert.Equal(t, OutcomeAlreadyAttributed, healed.Outcome)
	assert.Empty(t, healed.Warning)
	require.NotNil(t, healed.Referral)

	ref, err := st.GetReferral(ctx, p.ID, uid)
	require.NoError(t, err)
	assert.Equal(t, healed.Referral.ID, ref.ID)

	stored, err := st.GetPartner(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalReferrals)
}

func TestAttribute_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	transient := domain.NewTransientError("tx deadline", context.DeadlineExceeded)

	t.Run("Success - recovers within the attempt budget", func(t *testing.T) {
		st := setupStore(t)
		_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "RETRY"})
		require.NoError(t, err)

		flaky := &flakyCreator{next: NewCustomerRepository(st, nil), fails: 2, err: transient}
		o := NewOrchestrator(NewValidator(st, nil), flaky, st, 3, nil).WithBackoff(func(int) time.Duration { return 0 })

		res := o.Attribute(ctx, "RETRY", testdata.CustomerUID(), testdata.CustomerProfile(), testdata.Metadata("RETRY"))

		assert.Equal(t, OutcomeAttributed, res.Outcome)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("Failure - gives up after the last attempt", func(t *testing.T) {
		st := setupStore(t)
		_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "RETRY"})
		require.NoError(t, err)

		flaky := &flakyCreator{next: NewCustomerRepository(st, nil), fails: 10, err: transient}
		o := NewOrchestrator(NewValidator(st, nil), flaky, st, 3, nil).WithBackoff(func(int) time.Duration { return 0 })

		res := o.Attribute(ctx, "RETRY", testdata.CustomerUID(), testdata.CustomerProfile(), testdata.Metadata("RETRY"))

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.False(t, res.Success)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, 3, flaky.calls)
	})

	t.Run("Failure - permanent errors are not retried", func(t *testing.T) {
		st := setupStore(t)
		_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "RETRY"})
		require.NoError(t, err)

		flaky := &flakyCreator{next: NewCustomerRepository(st, nil), fails: 10, err: domain.NewValidationError("bad profile")}
		o := NewOrchestrator(NewValidator(st, nil), flaky, st, 3, nil).WithBackoff(func(int) time.Duration { return 0 })

		res := o.Attribute(ctx, "RETRY", testdata.CustomerUID(), testdata.CustomerProfile(), testdata.Metadata("RETRY"))

		assert.Equal(t, OutcomeFailed, res.Outcome)
		assert.Equal(t, 1, flaky.calls)
	})
}

func TestAttribute_RepositoryOutcomes(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "RACY"})
	require.NoError(t, err)

	tests := []struct {
		status  CreateStatus
		outcome Outcome
		reason  Reason
	}{
		{status: StatusCodeExhausted, outcome: OutcomeCodeExhausted, reason: ReasonExhausted},
		{status: StatusPartnerInvalid, outcome: OutcomePartnerInvalid, reason: ReasonPartnerInactive},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			o := NewOrchestrator(NewValidator(st, nil), fixedCreator{status: tt.status}, st, 3, nil)

			res := o.Attribute(ctx, "RACY", testdata.CustomerUID(), testdata.CustomerProfile(), testdata.Metadata("RACY"))

			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.reason, res.Reason)
			assert.False(t, res.Success)
		})
	}
}

func TestAttribute_RecordsMetrics(t *testing.T) {
	o, st := setupOrchestrator(t)
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	o.WithMetrics(m)

	_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "SAVE10"})
	require.NoError(t, err)

	o.Attribute(ctx, "SAVE10", testdata.CustomerUID(), testdata.CustomerProfile(), testdata.Metadata("SAVE10"))
	o.Attribute(ctx, "", testdata.CustomerUID(), testdata.CustomerProfile(), models.AttributionMetadata{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attributions.WithLabelValues(string(OutcomeAttributed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attributions.WithLabelValues(string(OutcomeNoCode))))
}
