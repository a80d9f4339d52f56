// Package metrics exposes Prometheus counters for the pass engine.
// Scraped from /metrics on the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CreditsApplied counts successful top-up credits by payment method.
var CreditsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "passengine",
	Subsystem: "ledger",
	Name:      "credits_total",
	Help:      "Total credit events appended, by payment method.",
}, []string{"method"})

// DebitsApplied counts successful debit events by reason.
var DebitsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "passengine",
	Subsystem: "ledger",
	Name:      "debits_total",
	Help:      "Total debit events appended, by reason.",
}, []string{"reason"})

// TokensIssued counts redemption tokens issued.
var TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "passengine",
	Subsystem: "token",
	Name:      "issued_total",
	Help:      "Total redemption tokens issued.",
})

// TokensResolved counts successful token resolutions.
var TokensResolved = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "passengine",
	Subsystem: "token",
	Name:      "resolved_total",
	Help:      "Total redemption tokens successfully resolved.",
})

// TokensRejected counts failed resolutions by reason
// (not_found, expired, consumed, insufficient_balance).
var TokensRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "passengine",
	Subsystem: "token",
	Name:      "rejected_total",
	Help:      "Total failed token resolutions, by reason.",
}, []string{"reason"})

// TokensPurged counts expired tokens removed by the janitor.
var TokensPurged = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "passengine",
	Subsystem: "token",
	Name:      "purged_total",
	Help:      "Total expired tokens purged from storage.",
})
