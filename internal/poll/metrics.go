package poll

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobed_poll_fetch_success_total",
			Help: "Successful poll fetches",
		},
		[]string{"cache"},
	)
	fetchFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobed_poll_fetch_failure_total",
			Help: "Failed poll fetches",
		},
		[]string{"cache"},
	)
	pollingActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gobed_poll_active",
			Help: "Polling loop state (1=polling, 0=idle)",
		},
		[]string{"cache"},
	)
	lastFetch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gobed_poll_last_value_timestamp_seconds",
			Help: "Timestamp of the last held value (epoch seconds)",
		},
		[]string{"cache"},
	)
)

// MetricsCollectors returns collectors for the shared poll module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		fetchSuccess,
		fetchFailure,
		pollingActive,
		lastFetch,
	}
}
