package remote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the supervision server's own Prometheus instrumentation,
// scraped from /metrics. Grounded on the counter/gauge-vec conventions
// linkerd2's service-mirror metrics use: registration at construction
// time, one labeled vec per concern rather than ad hoc globals.
type metrics struct {
	phaseTransitions *prometheus.CounterVec
	navVetoes        *prometheus.CounterVec
	remoteIntents    *prometheus.CounterVec
	mjpegClients     prometheus.Gauge
	sessionActive    prometheus.Gauge
}

// newMetrics registers this server's collectors against reg rather
// than the global default registry, so more than one Server can exist
// in the same process — as every test in this package does — without
// a duplicate-registration panic. Each Server gets its own registry
// (see NewServer), matching promauto.With's documented use for
// non-singleton components.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		phaseTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcar_phase_transitions_total",
				Help: "Count of orchestrator phase transitions observed via display.state.",
			},
			[]string{"phase"},
		),
		navVetoes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcar_nav_vetoes_total",
				Help: "Count of nav.command forward requests refused by the safety veto.",
			},
			[]string{"reason"},
		),
		remoteIntents: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smartcar_remote_intents_total",
				Help: "Count of remote.intent requests received on /intent, by intent name.",
			},
			[]string{"intent"},
		),
		mjpegClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "smartcar_mjpeg_clients",
				Help: "Number of clients currently attached to /stream/mjpeg.",
			},
		),
		sessionActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "smartcar_remote_session_active",
				Help: "1 if a remote teleoperation session is currently active, else 0.",
			},
		),
	}
}
