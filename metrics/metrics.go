package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	linesReceived *prometheus.CounterVec
	unrecognized  prometheus.Counter
	ledCommands   *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	openDevices   prometheus.Gauge
	roleConflicts prometheus.Counter
	droppedSample prometheus.Counter
	patternRuns   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		linesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_lines_received_total",
			Help: "Device lines received, by decoded message kind.",
		}, []string{"kind"}),
		unrecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_lines_unrecognized_total",
			Help: "Device lines that matched no known message shape.",
		}),
		ledCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_led_commands_total",
			Help: "LED commands issued, by role and target state.",
		}, []string{"role", "state"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_write_failures_total",
			Help: "Failed serial writes, by port.",
		}, []string{"port"}),
		openDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arcade_open_devices",
			Help: "Serial connections currently open.",
		}),
		roleConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_role_conflicts_total",
			Help: "Role claims that displaced another live connection.",
		}),
		droppedSample: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcade_cadence_samples_dropped_total",
			Help: "Cadence samples rejected as invalid.",
		}),
		patternRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcade_pattern_runs_total",
			Help: "LED pattern runs, by pattern and outcome.",
		}, []string{"pattern", "outcome"}),
	}

	m.registry.MustRegister(
		m.linesReceived,
		m.unrecognized,
		m.ledCommands,
		m.writeFailures,
		m.openDevices,
		m.roleConflicts,
		m.droppedSample,
		m.patternRuns,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) LineReceived(kind string) {
	if m == nil {
		return
	}
	m.linesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) Unrecognized() {
	if m == nil {
		return
	}
	m.unrecognized.Inc()
}

func (m *Metrics) LedCommand(role string, on bool) {
	if m == nil {
		return
	}
	state := "off"
	if on {
		state = "on"
	}
	m.ledCommands.WithLabelValues(role, state).Inc()
}

func (m *Metrics) WriteFailed(port string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(port).Inc()
}

func (m *Metrics) DeviceOpened() {
	if m == nil {
		return
	}
	m.openDevices.Inc()
}

func (m *Metrics) DeviceClosed() {
	if m == nil {
		return
	}
	m.openDevices.Dec()
}

func (m *Metrics) RoleConflict() {
	if m == nil {
		return
	}
	m.roleConflicts.Inc()
}

func (m *Metrics) SampleDropped() {
	if m == nil {
		return
	}
	m.droppedSample.Inc()
}

func (m *Metrics) PatternRun(pattern, outcome string) {
	if m == nil {
		return
	}
	m.patternRuns.WithLabelValues(pattern, outcome).Inc()
}
