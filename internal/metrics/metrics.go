package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrank_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_generations_total",
			Help: "Keyword generation requests by outcome.",
		},
		[]string{"outcome"},
	)

	SuggestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelrank_suggestion_duration_seconds",
			Help:    "Latency of upstream keyword suggestion calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	BonusClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_bonus_claims_total",
			Help: "Email bonus claims by result.",
		},
		[]string{"result"},
	)

	ReferralsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_referrals_applied_total",
			Help: "Referral codes newly applied, by source.",
		},
		[]string{"source"},
	)

	ReferralMessagesRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrank_referral_messages_rejected_total",
			Help: "Cross-frame referral messages rejected by the origin allow-list.",
		},
	)

	QuotaStoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_quota_store_errors_total",
			Help: "Quota store failures the tracker failed open on.",
		},
		[]string{"op"},
	)

	AnalyticsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_analytics_events_total",
			Help: "Analytics deliveries per sink and status.",
		},
		[]string{"sink", "status"},
	)

	AnalyticsEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrank_analytics_events_dropped_total",
			Help: "Analytics events dropped because the dispatch queue was full or closed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		SuggestionDuration,
		BonusClaimsTotal,
		ReferralsAppliedTotal,
		ReferralMessagesRejectedTotal,
		QuotaStoreErrorsTotal,
		AnalyticsEventsTotal,
		AnalyticsEventsDropped,
	)
}
