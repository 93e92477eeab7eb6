package astarte

import "github.com/prometheus/client_golang/prometheus"

// metrics is a handful of prometheus.Collectors registered once per
// process, covering the quantities any long-lived connection owner wants
// visibility into.
type metrics struct {
	ConnectionState  prometheus.Gauge
	Published        prometheus.Counter
	Received         prometheus.Counter
	Reconnects       prometheus.Counter
	ReinitAttempts   prometheus.Counter
	PropertyPurges   prometheus.Counter
	HandshakeSeconds prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "astarte_device_connected", Help: "1 if the device is currently connected to the broker, else 0",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "astarte_device_published_total", Help: "Total number of MQTT publishes issued by the device",
		}),
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "astarte_device_received_total", Help: "Total number of MQTT messages received from the broker",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "astarte_device_reconnects_total", Help: "Total number of broker reconnections",
		}),
		ReinitAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "astarte_device_reinit_attempts_total", Help: "Total number of credential reinitialization attempts",
		}),
		PropertyPurges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "astarte_device_property_purges_total", Help: "Total number of property purge reconciliations processed",
		}),
		HandshakeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "astarte_device_handshake_seconds", Help: "Duration of the post-connect handshake",
		}),
	}
}

// register is a no-op if called twice for the same metrics value is not
// guaranteed by prometheus.MustRegister, so callers must only call this
// once per process per Device.
func (m *metrics) register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ConnectionState,
		m.Published,
		m.Received,
		m.Reconnects,
		m.ReinitAttempts,
		m.PropertyPurges,
		m.HandshakeSeconds,
	)
}
