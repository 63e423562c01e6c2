// Package metrics exposes controller gauges and counters on a private
// Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jeeves_climate"

// Metrics holds the collectors of one agent
type Metrics struct {
	registry *prometheus.Registry

	RoomTemperature    *prometheus.GaugeVec
	OutsideTemperature *prometheus.GaugeVec
	Setpoint           *prometheus.GaugeVec
	HeatPumpOn         *prometheus.GaugeVec
	Decisions          *prometheus.CounterVec
	Dispatches         *prometheus.CounterVec
	DispatchAttempts   *prometheus.CounterVec
	ContactAlerts      *prometheus.CounterVec
	TickErrors         *prometheus.CounterVec
	VentilationRunning *prometheus.GaugeVec
	VentilationPhase   *prometheus.GaugeVec
	Humidity           *prometheus.GaugeVec
	StatesIngested     prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RoomTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_temperature_celsius",
			Help:      "Room temperature seen by the last climate tick",
		}, []string{"controller"}),
		OutsideTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outside_temperature_celsius",
			Help:      "Outside temperature used for weather compensation",
		}, []string{"controller"}),
		Setpoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "setpoint_celsius",
			Help:      "Target temperature of the last decision",
		}, []string{"controller"}),
		HeatPumpOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heat_pump_on",
			Help:      "1 when the last decision turned the heat pump on",
		}, []string{"controller", "mode"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Climate decisions by action",
		}, []string{"controller", "action"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Heat pump dispatches by outcome",
		}, []string{"controller", "outcome"}),
		DispatchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_attempts_total",
			Help:      "Service calls sent to the heat pump",
		}, []string{"controller"}),
		ContactAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_checks_total",
			Help:      "Heat pump contact verifications by result",
		}, []string{"controller", "result"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_errors_total",
			Help:      "Failed ticks by subsystem",
		}, []string{"controller", "subsystem"}),
		VentilationRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ventilation_running",
			Help:      "1 while a ventilation run is active",
		}, []string{"controller"}),
		VentilationPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ventilation_phase",
			Help:      "1 for the active ventilation phase",
		}, []string{"controller", "phase"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "humidity_percent",
			Help:      "Highest humidity per fan group",
		}, []string{"controller", "group"}),
		StatesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "states_ingested_total",
			Help:      "Entity states stored by the collector",
		}),
	}

	m.registry.MustRegister(
		m.RoomTemperature,
		m.OutsideTemperature,
		m.Setpoint,
		m.HeatPumpOn,
		m.Decisions,
		m.Dispatches,
		m.DispatchAttempts,
		m.ContactAlerts,
		m.TickErrors,
		m.VentilationRunning,
		m.VentilationPhase,
		m.Humidity,
		m.StatesIngested,
	)

	return m
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Bool converts a flag into a gauge value
func Bool(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
