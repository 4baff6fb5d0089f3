package status

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbtap/orb-gateway/internal/proximity"
)

// Metrics holds the gateway's Prometheus metrics. Each Metrics instance
// carries its own registry so tests can construct them freely.
type Metrics struct {
	registry *prometheus.Registry

	SamplesTotal  prometheus.Counter
	EventsTotal   *prometheus.CounterVec
	SettlesTotal  *prometheus.CounterVec
	TrackedOrbs   prometheus.Gauge
	MQTTConnected prometheus.Gauge
}

// NewMetrics creates and registers the gateway metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SamplesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_samples_total",
				Help: "Total number of signal strength samples processed",
			},
		),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_zone_events_total",
				Help: "Total number of zone transition events emitted by zone",
			},
			[]string{"zone"},
		),

		SettlesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_settles_total",
				Help: "Total number of ledger settlements by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),

		TrackedOrbs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_tracked_orbs",
				Help: "Number of orbs currently tracked by the classifier",
			},
		),

		MQTTConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gateway_mqtt_connected",
				Help: "Whether the MQTT broker connection is up (1) or down (0)",
			},
		),
	}

	m.registry.MustRegister(
		m.SamplesTotal,
		m.EventsTotal,
		m.SettlesTotal,
		m.TrackedOrbs,
		m.MQTTConnected,
	)
	return m
}

// RecordSample counts one processed sample.
func (m *Metrics) RecordSample() {
	m.SamplesTotal.Inc()
}

// RecordEvent counts one emitted zone event.
func (m *Metrics) RecordEvent(zone proximity.Zone) {
	m.EventsTotal.WithLabelValues(string(zone)).Inc()
}

// RecordSettle counts one settlement by direction and outcome.
func (m *Metrics) RecordSettle(direction, outcome string) {
	m.SettlesTotal.WithLabelValues(direction, outcome).Inc()
}

// SetTrackedOrbs updates the tracked orb gauge.
func (m *Metrics) SetTrackedOrbs(n int) {
	m.TrackedOrbs.Set(float64(n))
}

// SetMQTTConnected updates the connection gauge.
func (m *Metrics) SetMQTTConnected(connected bool) {
	if connected {
		m.MQTTConnected.Set(1)
	} else {
		m.MQTTConnected.Set(0)
	}
}

// Handler returns the HTTP handler exposing this instance's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
