package referral

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/contentforge/pkg/cache"
	"github.com/jordanlanch/contentforge/pkg/database/dbtest"
	"github.com/jordanlanch/contentforge/pkg/models"
	"github.com/jordanlanch/contentforge/pkg/store"
	"github.com/jordanlanch/contentforge/pkg/testdata"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *store.Store {
	return store.New(dbtest.Open(t)).WithClock(func() time.Time { return fixedNow })
}

func TestCheckCode(t *testing.T) {
	tests := []struct {
		name string
		code models.PartnerCode
		want Reason
	}{
		{name: "active without limits", code: models.PartnerCode{Active: true}},
		{name: "inactive", code: models.PartnerCode{Active: false}, want: ReasonInactive},
		{name: "uses one below max", code: models.PartnerCode{Active: true, Uses: 4, MaxUses: testdata.IntPtr(5)}},
		{name: "uses equal to max", code: models.PartnerCode{Active: true, Uses: 5, MaxUses: testdata.IntPtr(5)}, want: ReasonExhausted},
		{name: "expired one second ago", code: models.PartnerCode{Active: true, ExpiresAt: testdata.TimePtr(fixedNow.Add(-time.Second))}, want: ReasonExpired},
		{name: "expires exactly now", code: models.PartnerCode{Active: true, ExpiresAt: testdata.TimePtr(fixedNow)}},
		{name: "inactive wins over expired", code: models.PartnerCode{Active: false, ExpiresAt: testdata.TimePtr(fixedNow.Add(-time.Hour))}, want: ReasonInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckCode(&tt.code, fixedNow))
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	v := NewValidator(st, nil)

	p, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "SAVE10"})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "OFF", CodeInactive: true})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "FULL", Uses: 3, MaxUses: testdata.IntPtr(3)})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "LAST", Uses: 2, MaxUses: testdata.IntPtr(3)})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "OLD", ExpiresAt: testdata.TimePtr(fixedNow.Add(-time.Second))})
	require.NoError(t, err)
	_, _, err = testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "PAUSED", Status: models.PartnerStatusSuspended})
	require.NoError(t, err)

	t.Run("Success - valid code resolves partner", func(t *testing.T) {
		res, err := v.Validate(ctx, "  save10 ")

		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Empty(t, res.Reason)
		require.NotNil(t, res.Partner)
		assert.Equal(t, p.ID, res.Partner.PartnerID)
		assert.Equal(t, "SAVE10", res.Partner.Code)
		assert.Equal(t, 0.6, res.Partner.CommissionRate)
		assert.Equal(t, fixedNow, res.CheckedAt)
	})

	tests := []struct {
		code  string
		valid bool
		want  Reason
	}{
		{code: "MISSING", want: ReasonNotFound},
		{code: "", want: ReasonNotFound},
		{code: "OFF", want: ReasonInactive},
		{code: "FULL", want: ReasonExhausted},
		{code: "LAST", valid: true},
		{code: "OLD", want: ReasonExpired},
		{code: "PAUSED", want: ReasonPartnerInactive},
	}
	for _, tt := range tests {
		t.Run("code "+tt.code, func(t *testing.T) {
			res, err := v.Validate(ctx, tt.code)

			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.want, res.Reason)
			if !tt.valid {
				assert.Nil(t, res.Partner)
			}
		})
	}
}

func TestValidator_ValidateCached(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	c := cache.NewFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	v := NewValidator(st, nil).WithCache(c, time.Minute)

	_, _, err := testdata.SeedPartner(ctx, st, testdata.PartnerOptions{Code: "CACHED"})
	require.NoError(t, err)

	first, err := v.ValidateCached(ctx, "cached")
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.True(t, mr.Exists("referral:code:CACHED"))

	_, err = st.DeactivateCode(ctx, "CACHED")
	require.NoError(t, err)

	t.Run("cached path serves the stale result", func(t *testing.T) {
		res, err := v.ValidateCached(ctx, "CACHED")
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})

	t.Run("direct path always reads the store", func(t *testing.T) {
		res, err := v.Validate(ctx, "CACHED")
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonInactive, res.Reason)
	})

	t.Run("forget drops the entry", func(t *testing.T) {
		v.Forget(ctx, "CACHED")
		assert.False(t, mr.Exists("referral:code:CACHED"))

		res, err := v.ValidateCached(ctx, "CACHED")
		require.NoError(t, err)
		assert.False(t, res.Valid)
	})

	t.Run("entries expire with the TTL", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		assert.False(t, mr.Exists("referral:code:CACHED"))
	})
}

func TestValidator_ValidateCachedWithoutCache(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()
	v := NewValidator(st, nil)

	res, err := v.ValidateCached(ctx, "NOPE")
	require.NoError(t, err)
	assert.Equal(t, ReasonNotFound, res.Reason)
}
