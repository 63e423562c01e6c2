package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/actuator"
	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/journal"
	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/internal/store"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
)

const statusSmartControlDisabled = "Smart control disabled"

// ClimateTick runs one climate decision. Errors and panics are logged and
// surfaced in the status text; the next tick starts afresh. Ticks do
// nothing once the agent is stopping.
func (a *Agent) ClimateTick(ctx context.Context) {
	a.tickMu.Lock()
	defer a.tickMu.Unlock()

	if a.stopped() {
		return
	}

	err := a.safeClimateTick(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && a.stopped() {
		a.logger.Info("Climate update interrupted by shutdown", "controller", a.name)
		return
	}

	a.logger.Error("Error in climate control update", "controller", a.name, "error", err)
	a.climateMu.Lock()
	a.status = "Error: " + err.Error()
	a.climateMu.Unlock()
	if a.metrics != nil {
		a.metrics.TickErrors.WithLabelValues(a.name, "climate").Inc()
	}
}

func (a *Agent) safeClimateTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.climateTick(ctx)
}

// evaluation is a decision together with what it was made from
type evaluation struct {
	decision  climate.Decision
	inputs    climate.Inputs
	lastStart time.Time
	now       time.Time
}

func (a *Agent) climateTick(ctx context.Context) error {
	ev, enabled, release := a.evaluate(ctx)
	if !enabled {
		if release {
			a.release(ctx)
		}
		return nil
	}
	d := ev.decision

	a.logger.Debug("Climate decision",
		"controller", a.name,
		"action", d.Action,
		"temperature", d.Temperature,
		"reason", d.Reason)

	res, err := a.dispatcher.Dispatch(ctx, actuator.Command{
		Action:      d.Action,
		Temperature: d.Temperature,
		Mode:        d.Mode,
		WindowStop:  d.WindowStop,
	}, ev.lastStart, ev.now)
	if err != nil {
		return fmt.Errorf("failed to control heat pump: %w", err)
	}

	contact := actuator.ContactSkipped
	if d.Action == climate.ActionOn && res.Outcome != actuator.OutcomeSuppressed && res.Outcome != actuator.OutcomeMissing {
		contact, err = a.dispatcher.VerifyContact(ctx, d.Mode, d.Temperature)
		if err != nil {
			return fmt.Errorf("failed to verify heat pump: %w", err)
		}
	}

	a.recordClimateMetrics(ev.inputs, d, res, contact)
	a.publishDecision(d)
	a.journalDecision(ctx, d, res)

	return nil
}

// evaluate reads the sensors, applies the rules and updates the status
// snapshot under climateMu. enabled is false when smart control is off;
// release is then set if the heat pump was still under control.
func (a *Agent) evaluate(ctx context.Context) (ev evaluation, enabled, release bool) {
	a.climateMu.Lock()
	defer a.climateMu.Unlock()

	if !a.climate.SmartControlEnabled {
		release = a.controlActive
		if release {
			a.controlActive = false
			a.climate.Action = climate.ActionOff
			a.lastDecision = nil
		}
		a.status = statusSmartControlDisabled
		return ev, false, release
	}
	a.controlActive = true

	ev.now = a.now()
	ev.inputs = a.readClimateInputs(ctx)

	prevStart := a.climate.LastHeatPumpStart
	d, next := climate.Decide(a.climate, ev.inputs, a.climateSettings, ev.now)
	a.climate = next
	a.lastDecision = &d
	a.status = d.Debug
	ev.decision = d
	ev.lastStart = a.climate.LastHeatPumpStart

	if !ev.lastStart.Equal(prevStart) {
		start := ev.lastStart
		a.persist(ctx, func(s *store.Settings) { s.LastHeatPumpStart = start })
	}

	return ev, true, false
}

// release turns the heat pump off once and stops controlling it. tickMu
// must be held.
func (a *Agent) release(ctx context.Context) {
	if err := a.dispatcher.Release(ctx); err != nil {
		a.logger.Error("Failed to release heat pump", "error", err)
	}
	a.logger.Info("Smart control released heat pump", "controller", a.name)
}

func (a *Agent) readClimateInputs(ctx context.Context) climate.Inputs {
	ent := a.cfg.Controller.Entities

	in := climate.Inputs{
		RoomTemp:    a.readOptional(ctx, ent.RoomSensor),
		OpenWindows: sensors.OpenEntities(ctx, a.reader, ent.Openings()),
		Present:     sensors.Present(ctx, a.reader, ent.PresenceTracker),
	}

	if ent.OutsideSensor != "" {
		in.OutsideTemp = a.readOptional(ctx, ent.OutsideSensor)
	}

	if a.climate.Mode == climate.ModeHeat {
		in.HouseAvgTemp = a.readOptional(ctx, ent.AverageSensor)

		if len(ent.BedSensors) > 0 {
			if st, err := a.reader.State(ctx, ent.BedSensors[0]); err == nil {
				asleep := st.State == "on"
				in.Asleep = &asleep
			}
		}
	}

	return in
}

func (a *Agent) readOptional(ctx context.Context, entityID string) *float64 {
	if entityID == "" {
		return nil
	}
	v, ok := sensors.ReadFloat(ctx, a.reader, entityID)
	if !ok {
		return nil
	}
	return &v
}

func (a *Agent) recordClimateMetrics(in climate.Inputs, d climate.Decision, res actuator.Result, contact actuator.ContactResult) {
	m := a.metrics
	if m == nil {
		return
	}

	if in.RoomTemp != nil {
		m.RoomTemperature.WithLabelValues(a.name).Set(*in.RoomTemp)
	}
	outside := climate.DefaultOutsideTemp
	if in.OutsideTemp != nil {
		outside = *in.OutsideTemp
	}
	m.OutsideTemperature.WithLabelValues(a.name).Set(outside)
	m.Setpoint.WithLabelValues(a.name).Set(d.Temperature)
	m.HeatPumpOn.WithLabelValues(a.name, string(d.Mode)).Set(metrics.Bool(d.Action == climate.ActionOn))
	m.Decisions.WithLabelValues(a.name, string(d.Action)).Inc()
	m.Dispatches.WithLabelValues(a.name, string(res.Outcome)).Inc()
	if res.Attempts > 0 {
		m.DispatchAttempts.WithLabelValues(a.name).Add(float64(res.Attempts))
	}
	if contact != actuator.ContactSkipped {
		m.ContactAlerts.WithLabelValues(a.name, string(contact)).Inc()
	}
}

// journalDecision writes decisions that reached the heat pump
func (a *Agent) journalDecision(ctx context.Context, d climate.Decision, res actuator.Result) {
	if a.journal == nil {
		return
	}
	if res.Outcome == actuator.OutcomeUnchanged || res.Outcome == actuator.OutcomeSuppressed {
		return
	}

	temperature := d.Temperature
	err := a.journal.Record(ctx, journal.Entry{
		Kind:        journal.KindClimate,
		Action:      string(d.Action),
		Temperature: &temperature,
		Reason:      d.Reason,
		Debug:       d.Debug,
		Details: map[string]interface{}{
			"hvac_mode":              d.Mode,
			"outcome":                res.Outcome,
			"attempts":               res.Attempts,
			"base_temperature":       d.BaseTemperature,
			"weather_compensation":   d.WeatherCompensation,
			"comfort_offset_applied": d.ComfortOffsetApplied,
			"window_stop":            d.WindowStop,
		},
		RecordedAt: a.now(),
	})
	if err != nil {
		a.logger.Warn("Failed to journal climate decision", "error", err)
	}
}
