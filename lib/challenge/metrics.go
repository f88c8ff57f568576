package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletauth_challenges_issued_total",
		Help: "The total number of login challenges issued",
	})

	// TimeToSign is observed when a challenge is redeemed successfully.
	TimeToSign = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "walletauth_challenge_time_to_sign_seconds",
		Help:    "Time between issuing a login challenge and redeeming it",
		Buckets: prometheus.ExponentialBucketsRange(0.5, 300, 12),
	})
)
