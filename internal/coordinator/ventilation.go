package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/journal"
	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/internal/store"
	"github.com/saaga0h/jeeves-climate/internal/ventilation"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
)

// VentilationTick runs one ventilation step
func (a *Agent) VentilationTick(ctx context.Context) {
	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	if err := a.safeVentilationTick(ctx); err != nil {
		a.logger.Error("Error in ventilation update", "controller", a.name, "error", err)
		if a.metrics != nil {
			a.metrics.TickErrors.WithLabelValues(a.name, "ventilation").Inc()
		}
	}
}

func (a *Agent) safeVentilationTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ent := a.cfg.Controller.Entities
	a.humidity = ventilation.Inputs{
		HumidityA: sensors.MaxFloat(ctx, a.reader, ent.HumiditySensorsA),
		HumidityB: sensors.MaxFloat(ctx, a.reader, ent.HumiditySensorsB),
	}

	out, err := a.machine.Step(a.humidity, a.ventSettings, a.now())
	a.applyVentilation(ctx, out)
	return err
}

// applyVentilation drives the fans, publishes events and persists what
// changed. ventMu must be held.
func (a *Agent) applyVentilation(ctx context.Context, out ventilation.Output) {
	a.fans.Execute(ctx, out.Commands)

	for _, ev := range out.Events {
		a.logger.Info("Ventilation event",
			"controller", a.name,
			"event", ev.Kind,
			"reason", ev.Reason,
			"phase", ev.Phase)
		a.publishVentilationEvent(ev)
		if ev.Kind != ventilation.EventPhaseChanged {
			a.journalVentilationEvent(ctx, ev)
		}
	}

	if out.Persist {
		snap := a.vent
		settings := a.ventSettings
		a.persist(ctx, func(s *store.Settings) {
			s.VentEnabled = snap.Enabled
			s.LastVentAutoRun = snap.LastAutoRun
			s.FanSpeed = snap.FanSpeed
			s.HumidityThreshold = settings.HumidityThreshold
			s.CycleTime = settings.CycleTime
			s.RunDuration = settings.RunDuration
		})
	}

	a.recordVentilationMetrics()
}

func (a *Agent) recordVentilationMetrics() {
	m := a.metrics
	if m == nil {
		return
	}

	m.VentilationRunning.WithLabelValues(a.name).Set(metrics.Bool(a.vent.Running()))
	for _, p := range []ventilation.Phase{ventilation.PhaseOff, ventilation.PhaseAOut, ventilation.PhaseBOut} {
		m.VentilationPhase.WithLabelValues(a.name, p.String()).Set(metrics.Bool(a.vent.Phase == p))
	}
	m.Humidity.WithLabelValues(a.name, "a").Set(a.humidity.HumidityA)
	m.Humidity.WithLabelValues(a.name, "b").Set(a.humidity.HumidityB)
}

func (a *Agent) journalVentilationEvent(ctx context.Context, ev ventilation.Event) {
	if a.journal == nil {
		return
	}

	details := map[string]interface{}{
		"trigger":   ev.Trigger,
		"phase":     ev.Phase.String(),
		"fan_speed": a.vent.FanSpeed,
	}
	if ev.Duration > 0 {
		details["duration_min"] = int(ev.Duration / time.Minute)
	}

	err := a.journal.Record(ctx, journal.Entry{
		Kind:       journal.KindVentilation,
		Action:     string(ev.Kind),
		Reason:     ev.Reason,
		Details:    details,
		RecordedAt: a.now(),
	})
	if err != nil {
		a.logger.Warn("Failed to journal ventilation event", "error", err)
	}
}
