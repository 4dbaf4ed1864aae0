package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestListing(t *testing.T, storeOwned bool) *Listing {
	t.Helper()
	l, err := NewListing("listing-1", "owner-1", "City bike", 250, storeOwned, 30*24*time.Hour)
	require.NoError(t, err)
	return l
}

func TestNewListing_Validation(t *testing.T) {
	_, err := NewListing("", "owner-1", "Bike", 100, false, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewListing("id", "", "Bike", 100, false, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewListing("id", "owner-1", "Bike", 100, false, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListing_ApplyPromotion_DerivesFlags(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		adType    AdType
		premium   bool
		featured  bool
		vip       bool
	}{
		{AdTypePremium, true, false, false},
		{AdTypeFeatured, false, true, false},
		{AdTypeVip, true, true, true},
	}

	for _, tc := range cases {
		l := newTestListing(t, false)
		require.NoError(t, l.ApplyPromotion(tc.adType, 7, now))

		assert.Equal(t, tc.adType, l.AdType)
		assert.Equal(t, tc.premium, l.IsPremium, "premium flag for %s", tc.adType)
		assert.Equal(t, tc.featured, l.IsFeatured, "featured flag for %s", tc.adType)
		assert.Equal(t, tc.vip, l.IsVip, "vip flag for %s", tc.adType)
	}
}

func TestListing_ApplyPromotion_RejectsFreeTier(t *testing.T) {
	l := newTestListing(t, false)
	err := l.ApplyPromotion(AdTypeFree, 7, time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListing_ApplyPromotion_EndDateCoversListingExpiry(t *testing.T) {
	now := time.Now().UTC()
	l := newTestListing(t, false)

	// A 7-day promotion on a 30-day listing is stretched to the listing expiry.
	require.NoError(t, l.ApplyPromotion(AdTypePremium, 7, now))
	require.NotNil(t, l.PromotionEndDate)
	assert.True(t, l.PromotionEndDate.Equal(l.ExpiresAt))

	// A promotion longer than the remaining lifetime keeps its own end date.
	require.NoError(t, l.ApplyPromotion(AdTypePremium, 60, now))
	assert.True(t, l.PromotionEndDate.Equal(now.Add(60*24*time.Hour)))
}

func TestListing_ApplyPromotion_GracePeriod(t *testing.T) {
	now := time.Now().UTC()

	personal := newTestListing(t, false)
	require.NoError(t, personal.ApplyPromotion(AdTypeVip, 60, now))
	require.NotNil(t, personal.GracePeriodEndDate)
	assert.True(t, personal.GracePeriodEndDate.Equal(personal.PromotionEndDate.Add(GracePeriod)))

	store := newTestListing(t, true)
	require.NoError(t, store.ApplyPromotion(AdTypeVip, 60, now))
	assert.Nil(t, store.GracePeriodEndDate)
}

func TestListing_ClearPromotion(t *testing.T) {
	l := newTestListing(t, false)
	require.NoError(t, l.ApplyPromotion(AdTypeVip, 60, time.Now().UTC()))

	l.ClearPromotion()

	assert.Equal(t, AdTypeFree, l.AdType)
	assert.False(t, l.IsPremium)
	assert.False(t, l.IsFeatured)
	assert.False(t, l.IsVip)
	assert.Nil(t, l.PromotionEndDate)
	assert.Nil(t, l.GracePeriodEndDate)
}

func TestListing_DaysRemaining_RoundsUp(t *testing.T) {
	l := newTestListing(t, false)

	now := l.ExpiresAt.Add(-25 * time.Hour)
	assert.Equal(t, 2, l.DaysRemaining(now))

	now = l.ExpiresAt.Add(-24 * time.Hour)
	assert.Equal(t, 1, l.DaysRemaining(now))

	now = l.ExpiresAt.Add(-time.Minute)
	assert.Equal(t, 1, l.DaysRemaining(now))

	now = l.ExpiresAt.Add(time.Minute)
	assert.LessOrEqual(t, l.DaysRemaining(now), 0)
}

func TestListing_ViewTargetLifecycle(t *testing.T) {
	l := newTestListing(t, false)
	l.Views = 50

	l.SetViewTarget(100)

	require.NotNil(t, l.TargetViewsForFeatured)
	assert.Equal(t, int64(150), *l.TargetViewsForFeatured)
	assert.Equal(t, int64(100), l.PurchasedViews)
	assert.True(t, l.FeaturedByViews)

	var reached bool
	for i := 0; i < 100; i++ {
		reached = l.RegisterView()
	}

	assert.True(t, reached, "last increment should report the target as reached")
	assert.Equal(t, int64(150), l.Views)
	assert.False(t, l.FeaturedByViews)
}

func TestListing_ViewTargetShortfall(t *testing.T) {
	l := newTestListing(t, false)
	l.Views = 120
	target := int64(200)
	l.TargetViewsForFeatured = &target

	assert.Equal(t, int64(80), l.ViewTargetShortfall())

	l.Views = 250
	assert.Equal(t, int64(0), l.ViewTargetShortfall())

	l.ClearViewTarget()
	assert.Equal(t, int64(0), l.ViewTargetShortfall())
}

func TestListing_RegisterView_CapsCounting(t *testing.T) {
	l := newTestListing(t, false)
	l.Views = maxOrganicViews

	l.RegisterView()
	assert.Equal(t, int64(maxOrganicViews), l.Views)
}

func TestListing_ArchiveAndSoftDelete(t *testing.T) {
	now := time.Now().UTC()
	l := newTestListing(t, false)

	l.Archive(now)
	assert.True(t, l.IsArchived)
	require.NotNil(t, l.ArchivedAt)
	assert.True(t, l.ArchivedAt.Equal(now))

	assert.False(t, l.IsDeleted())
	l.SoftDelete(now)
	assert.True(t, l.IsDeleted())
}

func TestListing_PromotionWindows(t *testing.T) {
	now := time.Now().UTC()
	l := newTestListing(t, false)
	require.NoError(t, l.ApplyPromotion(AdTypePremium, 60, now))

	assert.True(t, l.HasActivePromotion(now))
	assert.False(t, l.PromotionExpired(now))

	afterEnd := l.PromotionEndDate.Add(time.Hour)
	assert.False(t, l.HasActivePromotion(afterEnd))
	assert.True(t, l.PromotionExpired(afterEnd))
	assert.True(t, l.InGracePeriod(afterEnd))

	afterGrace := l.GracePeriodEndDate.Add(time.Hour)
	assert.False(t, l.InGracePeriod(afterGrace))
}
