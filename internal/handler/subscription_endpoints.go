package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mintoons-server/internal/models"
)

// Stripe recommends rejecting webhook bodies above a sane bound.
const maxWebhookBodySize = 64 * 1024

func (h *Handler) getUsage(c *gin.Context) {
	usage, err := h.subService.GetUsage(c.Request.Context(), currentUserID(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *Handler) createCheckoutSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	tier := models.Tier(req.Tier)
	if !models.IsValidTier(tier) || tier == models.TierFree {
		abortBadRequest(c, "Unknown or non-purchasable tier")
		return
	}

	url, err := h.subService.CreateCheckoutSession(c.Request.Context(), currentUserID(c), tier)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	checkoutSessionsTotal.Inc()
	c.JSON(http.StatusOK, gin.H{"checkout_url": url})
}

func (h *Handler) cancelSubscription(c *gin.Context) {
	var req cancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.subService.CancelSubscription(c.Request.Context(), currentUserID(c), req.Immediately); err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Subscription cancellation scheduled"})
}

// stripeWebhook verifies the signature over the raw body, so it must
// never run through any body-rewriting middleware.
func (h *Handler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		webhookEventsTotal.WithLabelValues("read_error").Inc()
		abortBadRequest(c, "Failed to read request body")
		return
	}

	err = h.subService.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		// Stripe retries on non-2xx. A bad signature gets 400 so a
		// misconfigured secret shows up in their dashboard quickly.
		h.logger.Warn("Stripe webhook processing failed", zap.Error(err))
		webhookEventsTotal.WithLabelValues("failure").Inc()
		handleServiceError(c, err)
		return
	}

	webhookEventsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, gin.H{"received": true})
}
