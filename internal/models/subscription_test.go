package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitsForTier(t *testing.T) {
	limits, err := LimitsForTier(TierFree)
	require.NoError(t, err)
	assert.Equal(t, 1, limits.StoriesPerDay)
	assert.Equal(t, 5, limits.AIRequestsPerDay)
	assert.Equal(t, 1, limits.ExportsPerMonth)

	limits, err = LimitsForTier(TierPro)
	require.NoError(t, err)
	assert.Equal(t, -1, limits.StoriesPerDay, "pro stories are unlimited")
	assert.Equal(t, 300, limits.AIRequestsPerDay)

	_, err = LimitsForTier(Tier("platinum"))
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestIsValidTier(t *testing.T) {
	for _, tier := range []Tier{TierFree, TierBasic, TierPremium, TierPro} {
		assert.True(t, IsValidTier(tier), string(tier))
	}
	assert.False(t, IsValidTier(Tier("gold")))
}

func TestSubscriptionRemaining(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	day := now.Truncate(24 * time.Hour)
	month := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	sub := &Subscription{
		Tier:             TierBasic,
		UsageDay:         day,
		StoriesToday:     2,
		AIRequestsToday:  25,
		UsageMonth:       month,
		ExportsThisMonth: 3,
	}

	assert.Equal(t, 1, sub.Remaining(QuotaStories, now), "3 per day minus 2 used")
	assert.Equal(t, 0, sub.Remaining(QuotaAIRequests, now), "daily AI budget exhausted")
	assert.Equal(t, 7, sub.Remaining(QuotaExports, now))
}

func TestSubscriptionRemainingStaleWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	sub := &Subscription{
		Tier:             TierFree,
		UsageDay:         now.AddDate(0, 0, -1),
		StoriesToday:     1,
		AIRequestsToday:  5,
		UsageMonth:       time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		ExportsThisMonth: 1,
	}

	// Counters from a previous window do not count against today.
	assert.Equal(t, 1, sub.Remaining(QuotaStories, now))
	assert.Equal(t, 5, sub.Remaining(QuotaAIRequests, now))
	assert.Equal(t, 1, sub.Remaining(QuotaExports, now))
}

func TestSubscriptionRemainingUnlimited(t *testing.T) {
	now := time.Now()
	sub := &Subscription{Tier: TierPro, UsageDay: now.UTC().Truncate(24 * time.Hour), StoriesToday: 9000}
	assert.Equal(t, -1, sub.Remaining(QuotaStories, now), "negative limit means unlimited")
	assert.Equal(t, -1, sub.Remaining(QuotaExports, now))
}

func TestSubscriptionLimitsUnknownTierFallsBackToFree(t *testing.T) {
	sub := &Subscription{Tier: Tier("legacy")}
	assert.Equal(t, tierLimitTable[TierFree], sub.Limits())
}
