package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GuestSessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "guest_sessions_created_total",
		Help: "Total number of guest sessions created against the backend",
	})

	SessionReuseTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_reuse_total",
		Help: "Total number of stored sessions revalidated and reused",
	})

	AccountConversionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "account_conversions_total",
		Help: "Total number of guest accounts upgraded to credentialed accounts",
	})

	CartItemsAddedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_items_added_total",
		Help: "Total number of cart add operations (including merges)",
	})

	CartSyncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_syncs_total",
		Help: "Total number of debounced cart quantity syncs sent to the backend",
	}, []string{"result"})

	CartSyncsCoalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_syncs_coalesced_total",
		Help: "Total number of quantity updates absorbed by the debounce window",
	})

	PaymentsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_started_total",
		Help: "Total number of payment intents created",
	}, []string{"method", "source"})

	PaymentsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Total number of payments resolved as completed",
	})

	PaymentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Total number of payments rejected or resolved as failed",
	}, []string{"reason"})

	ReconcileOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_outcomes_total",
		Help: "Outcomes of pending payment reference reconciliation",
	}, []string{"outcome"})

	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Latency of calls to the commerce backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "status"})

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
