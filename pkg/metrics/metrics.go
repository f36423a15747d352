// Package metrics exposes the node's prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelaysMetered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crosslane",
		Name:      "relays_metered_total",
		Help:      "Messages relayed and metered on this domain.",
	})

	ClaimsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crosslane",
		Name:      "claims_settled_total",
		Help:      "Receipts successfully claimed on this domain.",
	})

	ClaimsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crosslane",
		Name:      "claims_rejected_total",
		Help:      "Claims rejected, by reason.",
	}, []string{"reason"})

	WithdrawalsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crosslane",
		Name:      "withdrawals_finalized_total",
		Help:      "Withdrawals paid out after the delay.",
	})
)
