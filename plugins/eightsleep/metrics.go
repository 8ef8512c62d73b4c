package eightsleep

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	currentTempDesc = prometheus.NewDesc(
		"gobed_eightsleep_current_temperature_fahrenheit",
		"Measured bed temperature for a side",
		[]string{"side"}, nil)
	targetTempDesc = prometheus.NewDesc(
		"gobed_eightsleep_target_temperature_fahrenheit",
		"Target bed temperature for a side",
		[]string{"side"}, nil)
	currentLevelDesc = prometheus.NewDesc(
		"gobed_eightsleep_current_level",
		"Measured vendor level for a side",
		[]string{"side"}, nil)
	targetLevelDesc = prometheus.NewDesc(
		"gobed_eightsleep_target_level",
		"Target vendor level for a side",
		[]string{"side"}, nil)
	intentDesc = prometheus.NewDesc(
		"gobed_eightsleep_intent_on",
		"Whether the side is set to hold its target (1 = on)",
		[]string{"side"}, nil)
	primingDesc = prometheus.NewDesc(
		"gobed_eightsleep_priming",
		"Whether the pod is currently priming",
		[]string{"side"}, nil)
	hasWaterDesc = prometheus.NewDesc(
		"gobed_eightsleep_has_water",
		"Whether the pod reservoir has water",
		[]string{"side"}, nil)
	stateKnownDesc = prometheus.NewDesc(
		"gobed_eightsleep_state_known",
		"Whether a held state exists for the side (0 means the caches are cold)",
		[]string{"side"}, nil)
)

// Collector exports the held thermostat state. Scrapes read through
// PeekStatus only, so Prometheus never keeps the vendor polling loops
// alive on its own.
type Collector struct {
	service *Service
}

func NewCollector(service *Service) *Collector {
	return &Collector{service: service}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- currentTempDesc
	ch <- targetTempDesc
	ch <- currentLevelDesc
	ch <- targetLevelDesc
	ch <- intentDesc
	ch <- primingDesc
	ch <- hasWaterDesc
	ch <- stateKnownDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, side := range c.service.Sides() {
		label := string(side)

		status, ok := c.service.PeekStatus(side)
		ch <- prometheus.MustNewConstMetric(stateKnownDesc, prometheus.GaugeValue, boolGauge(ok), label)
		if !ok {
			continue
		}

		ch <- prometheus.MustNewConstMetric(currentTempDesc, prometheus.GaugeValue, status.CurrentTempF, label)
		ch <- prometheus.MustNewConstMetric(targetTempDesc, prometheus.GaugeValue, status.TargetTempF, label)
		ch <- prometheus.MustNewConstMetric(currentLevelDesc, prometheus.GaugeValue, float64(status.CurrentLevel), label)
		ch <- prometheus.MustNewConstMetric(targetLevelDesc, prometheus.GaugeValue, float64(status.TargetLevel), label)
		ch <- prometheus.MustNewConstMetric(intentDesc, prometheus.GaugeValue, boolGauge(status.IntentOn), label)
		ch <- prometheus.MustNewConstMetric(primingDesc, prometheus.GaugeValue, boolGauge(status.Priming), label)
		ch <- prometheus.MustNewConstMetric(hasWaterDesc, prometheus.GaugeValue, boolGauge(status.HasWater), label)
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
