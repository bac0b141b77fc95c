// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "geargrab"

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route, method and status.",
}, []string{"route", "method", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route and method.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method"})

var GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payment_gateway",
	Name:      "calls_total",
	Help:      "Payment gateway calls by provider, operation and outcome.",
}, []string{"provider", "operation", "outcome"})

var GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "payment_gateway",
	Name:      "call_duration_seconds",
	Help:      "Payment gateway call latency by provider and operation.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"provider", "operation"})

var Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "booking",
	Name:      "resolutions_total",
	Help:      "Owner approve/deny attempts by action and outcome code.",
}, []string{"action", "outcome"})

var NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "notify",
	Name:      "failures_total",
	Help:      "Notification deliveries that failed, by sink.",
}, []string{"sink"})

var UnreconciledPayments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "payment",
	Name:      "unreconciled_total",
	Help:      "Gateway effects left in place after their booking write was lost, by kind.",
}, []string{"kind"})
