package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mintoons_registrations_total",
		Help: "Total number of successful user registrations.",
	})

	tokenVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mintoons_token_verifications_total",
		Help: "Total number of token verifications by type and result.",
	}, []string{"type", "result"})

	storiesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mintoons_stories_created_total",
		Help: "Total number of stories created.",
	})

	storiesPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mintoons_stories_published_total",
		Help: "Total number of stories approved and published.",
	})

	assistRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mintoons_assist_requests_total",
		Help: "Total number of accepted AI assist requests by kind.",
	}, []string{"kind"})

	checkoutSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mintoons_checkout_sessions_total",
		Help: "Total number of Stripe Checkout sessions created.",
	})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mintoons_stripe_webhook_events_total",
		Help: "Total number of processed Stripe webhook events by result.",
	}, []string{"result"})
)
