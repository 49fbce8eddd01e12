// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded by AIReplies.
const (
	OutcomeAI       = "ai"
	OutcomeFallback = "fallback"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "heartwise",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heartwise",
		Name:      "auth_attempts_total",
		Help:      "Login and signup attempts by action and result.",
	}, []string{"action", "result"})

	AIReplies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "heartwise",
		Name:      "ai_replies_total",
		Help:      "Assistant messages written, by outcome.",
	}, []string{"outcome"})

	DispatchQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "heartwise",
		Name:      "ai_dispatch_queue_depth",
		Help:      "Reply jobs dispatched but not yet picked up by a worker.",
	})

	VersesGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "heartwise",
		Name:      "verses_generated_total",
		Help:      "Daily verses written by the generator.",
	})
)

func init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AuthAttempts)
	prometheus.MustRegister(AIReplies)
	prometheus.MustRegister(DispatchQueueDepth)
	prometheus.MustRegister(VersesGenerated)
}
