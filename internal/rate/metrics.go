package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	blockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobed_rate_blocked_total",
			Help: "Requests blocked by the local rate guard",
		},
		[]string{"provider"},
	)
	remainingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gobed_rate_remaining",
			Help: "Provider-reported remaining request budget",
		},
		[]string{"provider"},
	)
	retryAfterGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gobed_rate_retry_after_seconds",
			Help: "Last provider-reported Retry-After",
		},
		[]string{"provider"},
	)
	lastStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gobed_rate_last_status",
			Help: "Last HTTP status observed from the provider",
		},
		[]string{"provider"},
	)
)

// MetricsCollectors returns collectors for the rate module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		blockedTotal,
		remainingGauge,
		retryAfterGauge,
		lastStatus,
	}
}
