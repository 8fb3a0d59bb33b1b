package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtrack_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adtrack_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// ad events recorded, labelled by ad type and confirmation type
	AdEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtrack_ad_events_total",
			Help: "Total ad events recorded",
		},
		[]string{"ad_type", "confirmation_type"},
	)

	// cache entries dropped by the retention purge
	CachePurgedEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adtrack_cache_purged_entries_total",
			Help: "Total cache timestamps purged past the retention window",
		},
	)

	// conversion queue activity, labelled by outcome
	ConversionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtrack_conversions_total",
			Help: "Total conversion queue outcomes",
		},
		[]string{"outcome"},
	)

	// current number of pending conversion confirmations
	ConversionQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "adtrack_conversion_queue_depth",
			Help: "Pending conversion confirmations",
		},
	)

	// rows removed by table purges, labelled by purge kind
	PurgedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtrack_purged_rows_total",
			Help: "Total ad event rows purged",
		},
		[]string{"kind"},
	)

	// eligibility pipeline results, labelled by outcome
	EligibilityOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adtrack_eligibility_outcomes_total",
			Help: "Total eligibility pipeline outcomes",
		},
		[]string{"outcome"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		AdEventCount,
		CachePurgedEntries,
		ConversionCount,
		ConversionQueueDepth,
		PurgedRows,
		EligibilityOutcomes,
	)
}
