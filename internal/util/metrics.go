package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Total number of payment gateway checkout sessions created",
	})

	CheckoutSessionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_failed_total",
		Help: "Total number of failed checkout session creations",
	}, []string{"reason"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of webhook events received by type",
	}, []string{"type"})

	WebhookEventsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_rejected_total",
		Help: "Total number of webhook events rejected by signature verification",
	})

	WebhookEventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_events_duplicate_total",
		Help: "Total number of completion events absorbed as idempotent no-ops",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders materialized from completed checkouts",
	})

	StockDecrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrements_total",
		Help: "Total number of product stock decrements applied",
	})

	CompletionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_completion_latency_seconds",
		Help:    "Latency of the checkout completion sequence",
		Buckets: prometheus.DefBuckets,
	})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of order confirmation notifications that failed",
	})

	CartMutationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_failed_total",
		Help: "Total number of rejected cart mutations",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
