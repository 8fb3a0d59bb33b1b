package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the global Prometheus
// collectors directly.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Ad event metrics
	IncrementAdEvent(adType, confirmationType string)
	AddCachePurgedEntries(n int)

	// Conversion queue metrics
	IncrementConversion(outcome string)
	SetConversionQueueDepth(n int)

	// Purge metrics
	AddPurgedRows(kind string, n int64)

	// Eligibility metrics
	IncrementEligibilityOutcome(outcome string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementAdEvent(adType, confirmationType string) {
	AdEventCount.WithLabelValues(adType, confirmationType).Inc()
}

func (r *PrometheusRegistry) AddCachePurgedEntries(n int) {
	CachePurgedEntries.Add(float64(n))
}

func (r *PrometheusRegistry) IncrementConversion(outcome string) {
	ConversionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) SetConversionQueueDepth(n int) {
	ConversionQueueDepth.Set(float64(n))
}

func (r *PrometheusRegistry) AddPurgedRows(kind string, n int64) {
	PurgedRows.WithLabelValues(kind).Add(float64(n))
}

func (r *PrometheusRegistry) IncrementEligibilityOutcome(outcome string) {
	EligibilityOutcomes.WithLabelValues(outcome).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementAdEvent(adType, confirmationType string)                     {}
func (r *NoOpRegistry) AddCachePurgedEntries(n int)                                          {}
func (r *NoOpRegistry) IncrementConversion(outcome string)                                   {}
func (r *NoOpRegistry) SetConversionQueueDepth(n int)                                        {}
func (r *NoOpRegistry) AddPurgedRows(kind string, n int64)                                   {}
func (r *NoOpRegistry) IncrementEligibilityOutcome(outcome string)                           {}
