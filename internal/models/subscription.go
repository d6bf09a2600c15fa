package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription plan level with an associated static limits table.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// TierLimits holds the static per-tier quotas. A negative value means
// unlimited.
type TierLimits struct {
	StoriesPerDay    int
	AIRequestsPerDay int
	ExportsPerMonth  int
}

// tierLimitTable is the source of truth for plan quotas. Billing only
// switches a subscription between rows of this table; the numbers are
// never stored per user.
var tierLimitTable = map[Tier]TierLimits{
	TierFree:    {StoriesPerDay: 1, AIRequestsPerDay: 5, ExportsPerMonth: 1},
	TierBasic:   {StoriesPerDay: 3, AIRequestsPerDay: 25, ExportsPerMonth: 10},
	TierPremium: {StoriesPerDay: 10, AIRequestsPerDay: 100, ExportsPerMonth: 50},
	TierPro:     {StoriesPerDay: -1, AIRequestsPerDay: 300, ExportsPerMonth: -1},
}

// LimitsForTier returns the quota table row for the given tier.
func LimitsForTier(tier Tier) (TierLimits, error) {
	limits, ok := tierLimitTable[tier]
	if !ok {
		return TierLimits{}, ErrUnknownTier
	}
	return limits, nil
}

// IsValidTier reports whether the given string is a known plan tier.
func IsValidTier(tier Tier) bool {
	_, ok := tierLimitTable[tier]
	return ok
}

// SubscriptionStatus mirrors the Stripe subscription lifecycle states we
// care about.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// QuotaKind names one of the tracked usage counters.
type QuotaKind string

const (
	QuotaStories    QuotaKind = "stories"
	QuotaAIRequests QuotaKind = "ai_requests"
	QuotaExports    QuotaKind = "exports"
)

// Subscription is the per-user billing and usage-limit record.
//
// Daily counters are valid for UsageDay (UTC date); monthly counters for
// UsageMonth (first day of the UTC month). Stale windows are reset inside
// the same atomic statement that consumes quota, so there is no separate
// reset job and no check-then-increment race between concurrent requests.
type Subscription struct {
	ID     uuid.UUID          `db:"id" json:"id"`
	UserID uuid.UUID          `db:"user_id" json:"user_id"`
	Tier   Tier               `db:"tier" json:"tier"`
	Status SubscriptionStatus `db:"status" json:"status"`

	StripeCustomerID     string     `db:"stripe_customer_id" json:"-"`
	StripeSubscriptionID string     `db:"stripe_subscription_id" json:"-"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `db:"cancel_at_period_end" json:"cancel_at_period_end"`

	UsageDay        time.Time `db:"usage_day" json:"-"`
	StoriesToday    int       `db:"stories_today" json:"stories_today"`
	AIRequestsToday int       `db:"ai_requests_today" json:"ai_requests_today"`

	UsageMonth       time.Time `db:"usage_month" json:"-"`
	ExportsThisMonth int       `db:"exports_this_month" json:"exports_this_month"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Limits returns the quota row for the subscription's tier. Unknown tiers
// fall back to free limits rather than failing an in-flight request.
func (s *Subscription) Limits() TierLimits {
	limits, err := LimitsForTier(s.Tier)
	if err != nil {
		return tierLimitTable[TierFree]
	}
	return limits
}

// Remaining computes how much of the given quota is left for the current
// window, accounting for stale windows that have not been reset yet.
// A negative result means unlimited.
func (s *Subscription) Remaining(kind QuotaKind, now time.Time) int {
	limits := s.Limits()
	day := now.UTC().Truncate(24 * time.Hour)
	month := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)

	switch kind {
	case QuotaStories:
		if limits.StoriesPerDay < 0 {
			return -1
		}
		if !s.UsageDay.Equal(day) {
			return limits.StoriesPerDay
		}
		return maxInt(0, limits.StoriesPerDay-s.StoriesToday)
	case QuotaAIRequests:
		if limits.AIRequestsPerDay < 0 {
			return -1
		}
		if !s.UsageDay.Equal(day) {
			return limits.AIRequestsPerDay
		}
		return maxInt(0, limits.AIRequestsPerDay-s.AIRequestsToday)
	case QuotaExports:
		if limits.ExportsPerMonth < 0 {
			return -1
		}
		if !s.UsageMonth.Equal(month) {
			return limits.ExportsPerMonth
		}
		return maxInt(0, limits.ExportsPerMonth-s.ExportsThisMonth)
	default:
		return 0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
