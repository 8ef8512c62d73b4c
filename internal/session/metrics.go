package session

import "github.com/prometheus/client_golang/prometheus"

var (
	loginSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobed_session_login_success_total",
		Help: "Successful credential logins",
	})
	loginFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobed_session_login_failure_total",
		Help: "Failed credential logins",
	})
	cacheHit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobed_session_cache_hit_total",
		Help: "Sessions reused from the disk or blob cache",
	})
	sessionValid = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobed_session_valid",
		Help: "Session validity (1=usable, 0=absent or stale)",
	})
	blobPersistOK = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobed_session_blob_persist_ok",
		Help: "Blob mirror persistence health (1=ok, 0=error)",
	})
)

// MetricsCollectors returns collectors for the session module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		loginSuccess,
		loginFailure,
		cacheHit,
		sessionValid,
		blobPersistOK,
	}
}
