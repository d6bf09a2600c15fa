package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"

	"mintoons-server/internal/config"
	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

// Usage is the subscription view returned to the client: the record plus
// the static limits and remaining amounts for the current windows.
type Usage struct {
	Subscription *models.Subscription `json:"subscription"`
	Limits       models.TierLimits    `json:"limits"`

	StoriesRemaining    int `json:"stories_remaining"`     // -1 = unlimited
	AIRequestsRemaining int `json:"ai_requests_remaining"` // -1 = unlimited
	ExportsRemaining    int `json:"exports_remaining"`     // -1 = unlimited
}

// SubscriptionService handles plans, usage and Stripe billing.
type SubscriptionService interface {
	GetUsage(ctx context.Context, userID uuid.UUID) (*Usage, error)

	// CreateCheckoutSession starts a Stripe Checkout for the paid tier
	// and returns the redirect URL.
	CreateCheckoutSession(ctx context.Context, userID uuid.UUID, tier models.Tier) (string, error)

	// CancelSubscription schedules cancellation at period end (or
	// immediately), keeping the paid tier until then.
	CancelSubscription(ctx context.Context, userID uuid.UUID, immediately bool) error

	// HandleWebhook verifies and applies one Stripe webhook delivery.
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

// Compile-time check to ensure subscriptionServiceImpl implements SubscriptionService
var _ SubscriptionService = (*subscriptionServiceImpl)(nil)

type subscriptionServiceImpl struct {
	subRepo  interfaces.SubscriptionRepository
	userRepo interfaces.UserRepository
	notifier NotificationService
	cfg      *config.Config
	logger   *zap.Logger
}

// NewSubscriptionService creates a new instance of subscriptionServiceImpl.
// The global stripe.Key must be set by the caller before use.
func NewSubscriptionService(
	subRepo interfaces.SubscriptionRepository,
	userRepo interfaces.UserRepository,
	notifier NotificationService,
	cfg *config.Config,
	logger *zap.Logger,
) SubscriptionService {
	return &subscriptionServiceImpl{
		subRepo:  subRepo,
		userRepo: userRepo,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("SubscriptionService"),
	}
}

func (s *subscriptionServiceImpl) priceIDForTier(tier models.Tier) (string, error) {
	switch tier {
	case models.TierBasic:
		return s.cfg.StripePriceIDBasic, nil
	case models.TierPremium:
		return s.cfg.StripePriceIDPremium, nil
	case models.TierPro:
		return s.cfg.StripePriceIDPro, nil
	default:
		return "", fmt.Errorf("tier %q is not purchasable: %w", tier, models.ErrInvalidInput)
	}
}

func (s *subscriptionServiceImpl) tierForPriceID(priceID string) (models.Tier, bool) {
	switch priceID {
	case s.cfg.StripePriceIDBasic:
		return models.TierBasic, priceID != ""
	case s.cfg.StripePriceIDPremium:
		return models.TierPremium, priceID != ""
	case s.cfg.StripePriceIDPro:
		return models.TierPro, priceID != ""
	default:
		return models.TierFree, false
	}
}

// GetUsage returns the subscription with remaining quota amounts.
func (s *subscriptionServiceImpl) GetUsage(ctx context.Context, userID uuid.UUID) (*Usage, error) {
	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Usage{
		Subscription:        sub,
		Limits:              sub.Limits(),
		StoriesRemaining:    sub.Remaining(models.QuotaStories, now),
		AIRequestsRemaining: sub.Remaining(models.QuotaAIRequests, now),
		ExportsRemaining:    sub.Remaining(models.QuotaExports, now),
	}, nil
}

// CreateCheckoutSession starts a Stripe Checkout for a plan upgrade.
func (s *subscriptionServiceImpl) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, tier models.Tier) (string, error) {
	log := s.logger.With(zap.String("userID", userID.String()), zap.String("tier", string(tier)))

	priceID, err := s.priceIDForTier(tier)
	if err != nil {
		return "", err
	}
	if priceID == "" {
		log.Error("No Stripe price configured for tier")
		return "", models.ErrInternalServer
	}

	customerID, err := s.getOrCreateCustomer(ctx, userID)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(customerID),
		SuccessURL: stripe.String(s.cfg.FrontendBaseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.cfg.FrontendBaseURL + "/billing/cancel"),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"user_id": userID.String(),
			"tier":    string(tier),
		},
	}

	sess, err := session.New(params)
	if err != nil {
		log.Error("Failed to create Stripe checkout session", zap.Error(err))
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Info("Checkout session created", zap.String("sessionID", sess.ID))
	return sess.URL, nil
}

func (s *subscriptionServiceImpl) getOrCreateCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub.StripeCustomerID != "" {
		return sub.StripeCustomerID, nil
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(user.Email),
		Name:  stripe.String(user.DisplayName),
		Metadata: map[string]string{
			"user_id": userID.String(),
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		s.logger.Error("Failed to create Stripe customer", zap.Error(err), zap.String("userID", userID.String()))
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}

	if err := s.subRepo.SetStripeCustomerID(ctx, userID, cust.ID); err != nil {
		return "", err
	}
	return cust.ID, nil
}

// CancelSubscription cancels the Stripe subscription.
func (s *subscriptionServiceImpl) CancelSubscription(ctx context.Context, userID uuid.UUID, immediately bool) error {
	log := s.logger.With(zap.String("userID", userID.String()), zap.Bool("immediately", immediately))

	sub, err := s.subRepo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if sub.StripeSubscriptionID == "" {
		return models.ErrSubscriptionNotFound
	}

	var stripeSub *stripe.Subscription
	if immediately {
		stripeSub, err = subscription.Cancel(sub.StripeSubscriptionID, nil)
	} else {
		stripeSub, err = subscription.Update(sub.StripeSubscriptionID, &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		})
	}
	if err != nil {
		log.Error("Failed to cancel subscription in Stripe", zap.Error(err))
		return fmt.Errorf("failed to cancel subscription in Stripe: %w", err)
	}

	// The webhook will confirm, but apply eagerly so the UI reflects the
	// cancellation right away.
	s.applyStripeSubscription(ctx, sub.UserID, stripeSub)
	log.Info("Subscription cancellation requested")
	return nil
}

// HandleWebhook verifies the signature and applies the event.
func (s *subscriptionServiceImpl) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := webhook.ConstructEvent(payload, signatureHeader, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		return models.ErrUnauthorized
	}

	log := s.logger.With(zap.String("eventID", event.ID), zap.String("eventType", string(event.Type)))
	log.Debug("Processing Stripe webhook event")

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Error("Failed to unmarshal checkout session", zap.Error(err))
			return models.ErrBadRequest
		}
		return s.handleCheckoutCompleted(ctx, &sess)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var stripeSub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
			log.Error("Failed to unmarshal subscription event", zap.Error(err))
			return models.ErrBadRequest
		}
		return s.handleSubscriptionChanged(ctx, &stripeSub)

	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			log.Error("Failed to unmarshal invoice event", zap.Error(err))
			return models.ErrBadRequest
		}
		return s.handlePaymentFailed(ctx, &invoice)

	default:
		log.Debug("Ignoring unhandled Stripe event type")
		return nil
	}
}

func (s *subscriptionServiceImpl) handleCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	userIDStr := sess.Metadata["user_id"]
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		s.logger.Error("Checkout session without valid user_id metadata", zap.String("sessionID", sess.ID))
		return models.ErrBadRequest
	}
	log := s.logger.With(zap.String("userID", userID.String()), zap.String("sessionID", sess.ID))

	if sess.Customer != nil {
		if err := s.subRepo.SetStripeCustomerID(ctx, userID, sess.Customer.ID); err != nil {
			log.Error("Failed to store Stripe customer ID", zap.Error(err))
		}
	}

	tier := models.Tier(sess.Metadata["tier"])
	if !models.IsValidTier(tier) {
		log.Error("Checkout session with unknown tier metadata", zap.String("tier", string(tier)))
		return models.ErrBadRequest
	}

	subID := ""
	if sess.Subscription != nil {
		subID = sess.Subscription.ID
	}
	if err := s.applyTierChange(ctx, userID, tier, models.SubscriptionActive, subID, nil, false); err != nil {
		return err
	}

	s.notifier.Notify(ctx, &models.Notification{
		UserID: userID,
		Type:   models.NotificationBilling,
		Title:  "Plan upgraded",
		Body:   fmt.Sprintf("Welcome to the %s plan!", tier),
	})
	log.Info("Checkout completed, tier applied", zap.String("tier", string(tier)))
	return nil
}

func (s *subscriptionServiceImpl) handleSubscriptionChanged(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub.Customer == nil {
		return models.ErrBadRequest
	}
	sub, err := s.subRepo.GetByStripeCustomerID(ctx, stripeSub.Customer.ID)
	if err != nil {
		s.logger.Warn("Subscription event for unknown customer", zap.String("customerID", stripeSub.Customer.ID), zap.Error(err))
		return nil
	}
	s.applyStripeSubscription(ctx, sub.UserID, stripeSub)
	return nil
}

// applyStripeSubscription maps a Stripe subscription object onto the
// local record: tier from the price, status from the Stripe status.
func (s *subscriptionServiceImpl) applyStripeSubscription(ctx context.Context, userID uuid.UUID, stripeSub *stripe.Subscription) {
	log := s.logger.With(zap.String("userID", userID.String()), zap.String("stripeSubID", stripeSub.ID))

	tier := models.TierFree
	if len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
		if mapped, ok := s.tierForPriceID(stripeSub.Items.Data[0].Price.ID); ok {
			tier = mapped
		} else {
			log.Warn("Stripe price not mapped to any tier", zap.String("priceID", stripeSub.Items.Data[0].Price.ID))
		}
	}

	var status models.SubscriptionStatus
	switch stripeSub.Status {
	case stripe.SubscriptionStatusActive:
		status = models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		status = models.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		status = models.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled:
		status = models.SubscriptionCanceled
		tier = models.TierFree
	default:
		status = models.SubscriptionInactive
		tier = models.TierFree
	}

	var periodEnd *time.Time
	if stripeSub.CurrentPeriodEnd > 0 {
		end := time.Unix(stripeSub.CurrentPeriodEnd, 0)
		periodEnd = &end
	}

	if err := s.applyTierChange(ctx, userID, tier, status, stripeSub.ID, periodEnd, stripeSub.CancelAtPeriodEnd); err != nil {
		log.Error("Failed to apply billing update", zap.Error(err))
		return
	}
	log.Info("Billing update applied", zap.String("tier", string(tier)), zap.String("status", string(status)))
}

// applyTierChange persists the billing state and mirrors the tier onto
// the user row so quota checks stay a single read.
func (s *subscriptionServiceImpl) applyTierChange(ctx context.Context, userID uuid.UUID, tier models.Tier, status models.SubscriptionStatus, stripeSubID string, periodEnd *time.Time, cancelAtPeriodEnd bool) error {
	if err := s.subRepo.ApplyBillingUpdate(ctx, userID, tier, status, stripeSubID, periodEnd, cancelAtPeriodEnd); err != nil {
		return err
	}
	if err := s.userRepo.SetTier(ctx, userID, tier); err != nil {
		s.logger.Error("Failed to mirror tier onto user row", zap.Error(err), zap.String("userID", userID.String()))
	}
	return nil
}

func (s *subscriptionServiceImpl) handlePaymentFailed(ctx context.Context, invoice *stripe.Invoice) error {
	if invoice.Customer == nil {
		return nil
	}
	sub, err := s.subRepo.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		s.logger.Warn("Payment failure for unknown customer", zap.String("customerID", invoice.Customer.ID), zap.Error(err))
		return nil
	}

	if err := s.subRepo.ApplyBillingUpdate(ctx, sub.UserID, sub.Tier, models.SubscriptionPastDue,
		sub.StripeSubscriptionID, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd); err != nil {
		return err
	}

	s.notifier.Notify(ctx, &models.Notification{
		UserID: sub.UserID,
		Type:   models.NotificationBilling,
		Title:  "Payment failed",
		Body:   "We could not process your last payment. Please update your payment method to keep your plan.",
	})
	s.logger.Info("Subscription marked past due after failed payment", zap.String("userID", sub.UserID.String()))
	return nil
}
