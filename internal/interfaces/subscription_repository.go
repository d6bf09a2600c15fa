package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mintoons-server/internal/models"
)

// SubscriptionRepository defines persistence for billing and usage records.
type SubscriptionRepository interface {
	// Create inserts the initial (free) subscription row for a new user.
	Create(ctx context.Context, sub *models.Subscription) error

	// GetByUserID returns models.ErrSubscriptionNotFound when no row matches.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)

	// GetByStripeCustomerID resolves the row for webhook processing.
	GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)

	// ConsumeQuota atomically resets a stale usage window and increments
	// the counter for kind, but only while the counter is below limit.
	// This is one conditional UPDATE, so two concurrent requests can never
	// both pass a nearly-exhausted quota. Returns models.ErrQuotaExceeded
	// when the counter is already at the limit. A negative limit means
	// unlimited (the counter still increments for statistics).
	ConsumeQuota(ctx context.Context, userID uuid.UUID, kind models.QuotaKind, limit int, now time.Time) error

	// SetStripeCustomerID stores the Stripe customer handle once created.
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error

	// ApplyBillingUpdate moves the subscription to a new tier/status as
	// dictated by a Stripe event.
	ApplyBillingUpdate(ctx context.Context, userID uuid.UUID, tier models.Tier, status models.SubscriptionStatus, stripeSubscriptionID string, periodEnd *time.Time, cancelAtPeriodEnd bool) error
}
