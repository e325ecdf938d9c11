// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsTotal counts packets handed to the pipeline.
	PacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spindle_packets_total",
			Help: "Total number of packets processed",
		},
	)

	// SkippedTotal counts packets that skipped inspection, by reason. All
	// skipped packets are still forwarded.
	SkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindle_skipped_total",
			Help: "Total number of packets that skipped inspection",
		},
		[]string{"reason"},
	)

	// SessionsCreated counts sessions created, by protocol variant.
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spindle_sessions_created_total",
			Help: "Total number of sessions created",
		},
		[]string{"type"},
	)

	// SessionsExpired counts sessions reclaimed by the timer wheel.
	SessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spindle_sessions_expired_total",
			Help: "Total number of sessions expired",
		},
	)

	// SessionsActive tracks the current session count.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spindle_sessions_active",
			Help: "Current number of live sessions",
		},
	)

	// RTTSeconds observes RTT samples per protocol variant.
	RTTSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spindle_rtt_seconds",
			Help:    "Estimated round-trip time per sample",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"type"},
	)
)

// Skip reasons, matching the pipeline error surface.
const (
	ReasonShortHeader        = "short_header"
	ReasonUnknownDestination = "unknown_destination"
	ReasonUnsupportedVersion = "ipv6_or_unsupported"
	ReasonBadOptions         = "bad_options"
	ReasonRewriteMismatch    = "rewrite_mismatch"
	ReasonPoolExhausted      = "pool_exhausted"
	ReasonUninspected        = "uninspected"
)
