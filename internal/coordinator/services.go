package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/store"
	"github.com/saaga0h/jeeves-climate/internal/ventilation"
	"github.com/saaga0h/jeeves-climate/pkg/config"
)

var (
	// ErrUnknownService is returned for a service name the controller does not offer
	ErrUnknownService = errors.New("unknown service")

	// ErrInvalidValue is returned when a setting is outside its allowed range
	ErrInvalidValue = errors.New("invalid value")
)

// Service names accepted by CallService
const (
	ServiceForceEco           = "force_eco"
	ServiceForceComfort       = "force_comfort"
	ServiceOverride           = "override"
	ServiceCoolingMode        = "cooling_mode"
	ServiceSmartControl       = "smart_control"
	ServiceVentilation        = "ventilation"
	ServiceVentilationManual  = "ventilation_manual"
	ServiceTriggerVentilation = "trigger_ventilation"
	ServiceResetTemperatures  = "reset_temperatures"
)

// ServiceRequest carries the optional service parameters
type ServiceRequest struct {
	// Enable switches a mode on or off; services treat a missing value as on
	Enable *bool `json:"enable,omitempty"`

	// Duration of a triggered ventilation run in minutes; 0 uses the setting
	Duration float64 `json:"duration,omitempty"`
}

func (r ServiceRequest) enabled() bool {
	return r.Enable == nil || *r.Enable
}

type valueRange struct{ min, max float64 }

var setpointRanges = map[string]valueRange{
	"comfort": {16, 25},
	"eco":     {16, 25},
	"boost":   {16, 25},
	"cooling": {18, 28},
}

var ventilationRanges = map[string]valueRange{
	"humidity":   {30, 90},
	"cycle_time": {30, 300},
	"duration":   {10, 240},
	"fan_speed":  {10, 100},
}

// CallService runs a named control service
func (a *Agent) CallService(ctx context.Context, name string, req ServiceRequest) error {
	a.logger.Info("Service called", "controller", a.name, "service", name)

	switch name {
	case ServiceForceEco:
		a.updateClimate(ctx, func(st *climate.State) {
			st.ForceEco = req.enabled()
			if st.ForceEco {
				st.Mode = climate.ModeHeat
				st.ForceComfort = false
				st.Override = false
			}
		})
	case ServiceForceComfort:
		a.updateClimate(ctx, func(st *climate.State) {
			st.ForceComfort = req.enabled()
			if st.ForceComfort {
				st.ForceEco = false
			}
		})
	case ServiceOverride:
		a.updateClimate(ctx, func(st *climate.State) {
			st.Override = req.enabled()
			if st.Override {
				st.Mode = climate.ModeHeat
				st.ForceEco = false
			}
		})
	case ServiceCoolingMode:
		a.updateClimate(ctx, func(st *climate.State) {
			if req.enabled() {
				st.Mode = climate.ModeCool
				st.Override = false
				st.ForceEco = false
			} else {
				st.Mode = climate.ModeHeat
			}
		})
	case ServiceSmartControl:
		a.EnableSmartControl(ctx, req.enabled())
	case ServiceResetTemperatures:
		a.ResetTemperatures(ctx)
	case ServiceVentilation:
		return a.EnableVentilation(ctx, req.enabled())
	case ServiceVentilationManual:
		if req.enabled() {
			return a.StartVentilation(ctx)
		}
		return a.StopVentilation(ctx, "Manual Switch Off")
	case ServiceTriggerVentilation:
		if req.Duration < 0 {
			return fmt.Errorf("duration %g: %w", req.Duration, ErrInvalidValue)
		}
		return a.TriggerVentilation(ctx, time.Duration(req.Duration*float64(time.Minute)))
	default:
		return fmt.Errorf("%s: %w", name, ErrUnknownService)
	}
	return nil
}

// updateClimate applies a mode change and re-evaluates immediately
func (a *Agent) updateClimate(ctx context.Context, change func(*climate.State)) {
	a.climateMu.Lock()
	change(&a.climate)
	a.climateMu.Unlock()

	a.reevaluate()
}

// reevaluate runs a climate tick after a service call. The tick runs on
// the agent context so a caller going away does not cut a dispatch short.
func (a *Agent) reevaluate() {
	a.ClimateTick(a.runCtx)
}

// EnableSmartControl turns rule-based control on or off. Turning it off
// releases the heat pump.
func (a *Agent) EnableSmartControl(ctx context.Context, enable bool) {
	a.climateMu.Lock()
	a.climate.SmartControlEnabled = enable
	a.persist(ctx, func(s *store.Settings) { s.SmartControlEnabled = enable })
	a.climateMu.Unlock()

	a.reevaluate()
}

// ResetTemperatures restores the factory setpoints, not the ones from the
// controller file
func (a *Agent) ResetTemperatures(ctx context.Context) {
	setpoints := climate.ConfiguredSetpoints(config.DefaultControllerConfig().Climate)

	a.climateMu.Lock()
	a.climate.Setpoints = setpoints
	a.persist(ctx, func(s *store.Settings) { s.Setpoints = setpoints })
	a.climateMu.Unlock()

	a.reevaluate()
}

// SetSetpoint changes one of the comfort, eco, boost or cooling setpoints
func (a *Agent) SetSetpoint(ctx context.Context, kind string, value float64) error {
	r, ok := setpointRanges[kind]
	if !ok {
		return fmt.Errorf("setpoint %q: %w", kind, ErrUnknownService)
	}
	if value < r.min || value > r.max {
		return fmt.Errorf("%s %g outside %g-%g: %w", kind, value, r.min, r.max, ErrInvalidValue)
	}

	a.climateMu.Lock()
	sp := &a.climate.Setpoints
	switch kind {
	case "comfort":
		sp.Comfort = value
	case "eco":
		sp.Eco = value
	case "boost":
		sp.Boost = value
	case "cooling":
		sp.Cooling = value
	}
	setpoints := *sp
	a.persist(ctx, func(s *store.Settings) { s.Setpoints = setpoints })
	a.climateMu.Unlock()

	a.reevaluate()
	return nil
}

// SetVentilationParam changes the humidity threshold, cycle time (seconds),
// run duration (minutes) or fan speed (percent)
func (a *Agent) SetVentilationParam(ctx context.Context, param string, value float64) error {
	r, ok := ventilationRanges[param]
	if !ok {
		return fmt.Errorf("ventilation parameter %q: %w", param, ErrUnknownService)
	}
	if value < r.min || value > r.max {
		return fmt.Errorf("%s %g outside %g-%g: %w", param, value, r.min, r.max, ErrInvalidValue)
	}

	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	out := ventilation.Output{Persist: true}
	switch param {
	case "humidity":
		a.ventSettings.HumidityThreshold = value
	case "cycle_time":
		a.ventSettings.CycleTime = time.Duration(value * float64(time.Second))
	case "duration":
		a.ventSettings.RunDuration = time.Duration(value * float64(time.Minute))
	case "fan_speed":
		out = a.machine.SetFanSpeed(int(value), a.now())
	}

	a.applyVentilation(ctx, out)
	return nil
}

// EnableVentilation enables or disables the ventilation subsystem
func (a *Agent) EnableVentilation(ctx context.Context, enable bool) error {
	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	out, err := a.machine.SetEnabled(enable, a.now())
	a.applyVentilation(ctx, out)
	return err
}

// StartVentilation starts a manual run that lasts until stopped
func (a *Agent) StartVentilation(ctx context.Context) error {
	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	out, err := a.machine.StartManual(a.ventSettings, a.now())
	a.applyVentilation(ctx, out)
	return err
}

// TriggerVentilation starts a run bounded by duration; 0 uses the run duration setting
func (a *Agent) TriggerVentilation(ctx context.Context, duration time.Duration) error {
	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	out, err := a.machine.Trigger(duration, a.ventSettings, a.now())
	a.applyVentilation(ctx, out)
	return err
}

// StopVentilation ends a run in progress
func (a *Agent) StopVentilation(ctx context.Context, reason string) error {
	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	out, err := a.machine.Stop(reason, a.now())
	a.applyVentilation(ctx, out)
	return err
}
