package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

// Compile-time check to ensure pgSubscriptionRepository implements SubscriptionRepository
var _ interfaces.SubscriptionRepository = (*pgSubscriptionRepository)(nil)

const subscriptionColumns = `id, user_id, tier, status, stripe_customer_id, stripe_subscription_id,
	current_period_end, cancel_at_period_end, usage_day, stories_today, ai_requests_today,
	usage_month, exports_this_month, created_at, updated_at`

type pgSubscriptionRepository struct {
	db     interfaces.DBTX
	logger *zap.Logger
}

// NewPgSubscriptionRepository creates a new PostgreSQL-backed SubscriptionRepository.
func NewPgSubscriptionRepository(db interfaces.DBTX, logger *zap.Logger) interfaces.SubscriptionRepository {
	return &pgSubscriptionRepository{
		db:     db,
		logger: logger.Named("PgSubscriptionRepo"),
	}
}

// Create inserts the initial subscription row for a new user.
func (r *pgSubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `INSERT INTO subscriptions (user_id, tier, status, usage_day, usage_month)
		VALUES ($1, $2, $3, date_trunc('day', now() AT TIME ZONE 'UTC'), date_trunc('month', now() AT TIME ZONE 'UTC'))
		RETURNING id, usage_day, usage_month, created_at, updated_at`
	err := r.db.QueryRow(ctx, query, sub.UserID, sub.Tier, sub.Status).
		Scan(&sub.ID, &sub.UsageDay, &sub.UsageMonth, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create subscription in postgres", zap.Error(err), zap.String("userID", sub.UserID.String()))
		return fmt.Errorf("failed to create subscription in postgres: %w", err)
	}
	return nil
}

func (r *pgSubscriptionRepository) getWhere(ctx context.Context, where string, arg any) (*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE %s`, subscriptionColumns, where)
	sub := &models.Subscription{}
	if err := pgxscan.Get(ctx, r.db, sub, query, arg); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrSubscriptionNotFound
		}
		r.logger.Error("Failed to get subscription from postgres", zap.Error(err), zap.String("where", where))
		return nil, fmt.Errorf("failed to get subscription from postgres: %w", err)
	}
	return sub, nil
}

// GetByUserID retrieves the subscription record for a user.
func (r *pgSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	return r.getWhere(ctx, "user_id = $1", userID)
}

// GetByStripeCustomerID resolves the row for webhook processing.
func (r *pgSubscriptionRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	return r.getWhere(ctx, "stripe_customer_id = $1", customerID)
}

// Quota consumption statements. Each is one conditional UPDATE that
// resets a stale window and increments the counter only while it is
// below the limit, so concurrent requests serialize on the row and can
// never jointly overshoot. $2 is the limit (negative = unlimited), $3
// the current UTC day/month.
const (
	consumeStoriesQuery = `UPDATE subscriptions SET
		stories_today     = CASE WHEN usage_day = $3 THEN stories_today + 1 ELSE 1 END,
		ai_requests_today = CASE WHEN usage_day = $3 THEN ai_requests_today ELSE 0 END,
		usage_day         = $3,
		updated_at        = now()
		WHERE user_id = $1
		  AND ($2 < 0 OR (CASE WHEN usage_day = $3 THEN stories_today ELSE 0 END) < $2)`

	consumeAIRequestsQuery = `UPDATE subscriptions SET
		ai_requests_today = CASE WHEN usage_day = $3 THEN ai_requests_today + 1 ELSE 1 END,
		stories_today     = CASE WHEN usage_day = $3 THEN stories_today ELSE 0 END,
		usage_day         = $3,
		updated_at        = now()
		WHERE user_id = $1
		  AND ($2 < 0 OR (CASE WHEN usage_day = $3 THEN ai_requests_today ELSE 0 END) < $2)`

	consumeExportsQuery = `UPDATE subscriptions SET
		exports_this_month = CASE WHEN usage_month = $3 THEN exports_this_month + 1 ELSE 1 END,
		usage_month        = $3,
		updated_at         = now()
		WHERE user_id = $1
		  AND ($2 < 0 OR (CASE WHEN usage_month = $3 THEN exports_this_month ELSE 0 END) < $2)`
)

// ConsumeQuota atomically resets a stale window and takes one unit of the
// given quota. Returns models.ErrQuotaExceeded when the counter is
// already at the limit.
func (r *pgSubscriptionRepository) ConsumeQuota(ctx context.Context, userID uuid.UUID, kind models.QuotaKind, limit int, now time.Time) error {
	var query string
	var window time.Time
	utcNow := now.UTC()
	switch kind {
	case models.QuotaStories:
		query = consumeStoriesQuery
		window = utcNow.Truncate(24 * time.Hour)
	case models.QuotaAIRequests:
		query = consumeAIRequestsQuery
		window = utcNow.Truncate(24 * time.Hour)
	case models.QuotaExports:
		query = consumeExportsQuery
		window = time.Date(utcNow.Year(), utcNow.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return fmt.Errorf("unknown quota kind %q", kind)
	}

	logFields := []zap.Field{
		zap.String("userID", userID.String()),
		zap.String("kind", string(kind)),
		zap.Int("limit", limit),
	}

	tag, err := r.db.Exec(ctx, query, userID, limit, window)
	if err != nil {
		r.logger.Error("Failed to consume quota in postgres", append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to consume quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the quota is spent or the subscription row is missing.
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check subscription existence: %w", err)
		}
		if !exists {
			return models.ErrSubscriptionNotFound
		}
		r.logger.Debug("Quota exhausted", logFields...)
		return models.ErrQuotaExceeded
	}
	return nil
}

// SetStripeCustomerID stores the Stripe customer handle once created.
func (r *pgSubscriptionRepository) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	query := `UPDATE subscriptions SET stripe_customer_id = $2, updated_at = now() WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, customerID)
	if err != nil {
		r.logger.Error("Failed to set stripe customer id", zap.Error(err), zap.String("userID", userID.String()))
		return fmt.Errorf("failed to set stripe customer id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSubscriptionNotFound
	}
	return nil
}

// ApplyBillingUpdate moves the subscription to the tier/status dictated
// by a Stripe event.
func (r *pgSubscriptionRepository) ApplyBillingUpdate(ctx context.Context, userID uuid.UUID, tier models.Tier, status models.SubscriptionStatus, stripeSubscriptionID string, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	query := `UPDATE subscriptions SET tier = $2, status = $3, stripe_subscription_id = $4,
		current_period_end = $5, cancel_at_period_end = $6, updated_at = now()
		WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, tier, status, stripeSubscriptionID, periodEnd, cancelAtPeriodEnd)
	if err != nil {
		r.logger.Error("Failed to apply billing update", zap.Error(err), zap.String("userID", userID.String()))
		return fmt.Errorf("failed to apply billing update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSubscriptionNotFound
	}
	r.logger.Info("Billing update applied",
		zap.String("userID", userID.String()),
		zap.String("tier", string(tier)),
		zap.String("status", string(status)))
	return nil
}
