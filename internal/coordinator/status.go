package coordinator

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/actuator"
	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/ventilation"
)

// Status is a snapshot of the controller for the control API
type Status struct {
	Controller          string            `json:"controller"`
	Status              string            `json:"status"`
	Mode                string            `json:"mode"`
	SmartControlEnabled bool              `json:"smart_control_enabled"`
	SmartControlActive  bool              `json:"smart_control_active"`
	CurrentAction       climate.Action    `json:"current_action"`
	HVACMode            climate.Mode      `json:"current_hvac_mode"`
	TargetTemperature   float64           `json:"target_temperature"`
	Setpoints           climate.Setpoints `json:"setpoints"`
	ForceEco            bool              `json:"force_eco"`
	ForceComfort        bool              `json:"force_comfort"`
	Override            bool              `json:"override"`
	SleepActive         bool              `json:"sleep_active"`

	Decision                   *climate.Decision `json:"decision,omitempty"`
	ComfortOffsetApplied       float64           `json:"comfort_offset_applied"`
	MinRuntimeRemainingMinutes int               `json:"min_runtime_remaining_minutes"`
	IsTemperating              bool              `json:"is_temperating"`
	HouseOverLimit             bool              `json:"last_avg_house_over_limit"`

	WindowOpenActive      bool     `json:"window_open_active"`
	WindowOpenDurationMin float64  `json:"window_open_duration_min"`
	WindowDelayMin        float64  `json:"window_delay_setting"`
	OpenWindows           []string `json:"open_windows,omitempty"`

	LastCommand actuator.Record   `json:"last_command"`
	HeatPump    *HeatPumpStatus   `json:"heat_pump,omitempty"`
	Ventilation VentilationStatus `json:"ventilation"`
}

// HeatPumpStatus is the heat pump as last reported
type HeatPumpStatus struct {
	EntityID    string   `json:"entity_id"`
	HVACMode    string   `json:"hvac_mode"`
	HVACAction  string   `json:"hvac_action,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	CurrentTemp *float64 `json:"current_temperature,omitempty"`
}

// VentilationStatus is the ventilation part of the snapshot
type VentilationStatus struct {
	Status            string     `json:"status"`
	Enabled           bool       `json:"enabled"`
	Running           bool       `json:"is_running"`
	Manual            bool       `json:"manual"`
	Reason            string     `json:"reason"`
	Phase             string     `json:"phase"`
	PhaseDescription  string     `json:"current_phase_desc"`
	FanSpeed          int        `json:"fan_speed"`
	CycleTimeSec      float64    `json:"cycle_time_setting"`
	CycleElapsedSec   int        `json:"cycle_elapsed_sec"`
	RunDurationMin    float64    `json:"run_duration_setting"`
	RunElapsedMin     float64    `json:"run_elapsed_min"`
	AutoIntervalHours float64    `json:"auto_interval_hours"`
	HumidityThreshold float64    `json:"humidity_threshold"`
	HumidityA         float64    `json:"humidity_a"`
	HumidityB         float64    `json:"humidity_b"`
	LastAutoRun       *time.Time `json:"last_auto_run,omitempty"`
}

// Status returns a snapshot of both subsystems
func (a *Agent) Status(ctx context.Context) Status {
	now := a.now()

	a.climateMu.Lock()
	st := a.climate
	s := Status{
		Controller:          a.name,
		Status:              a.status,
		Mode:                modeText(st),
		SmartControlEnabled: st.SmartControlEnabled,
		SmartControlActive:  a.controlActive,
		CurrentAction:       st.Action,
		HVACMode:            st.Mode,
		TargetTemperature:   st.BaseTemperature(),
		Setpoints:           st.Setpoints,
		ForceEco:            st.ForceEco,
		ForceComfort:        st.ForceComfort,
		Override:            st.Override,
		SleepActive:         st.SleepActive,
		HouseOverLimit:      st.HouseOverLimit,
		WindowOpenActive:    !st.WindowOpenSince.IsZero(),
		WindowDelayMin:      a.climateSettings.WindowDelay.Minutes(),
		OpenWindows:         append([]string(nil), st.OpenWindows...),
		LastCommand:         a.dispatcher.Last(),
	}
	if st.Mode == climate.ModeCool {
		s.TargetTemperature = st.Setpoints.Cooling
	}
	if !st.SmartControlEnabled {
		s.Status = statusSmartControlDisabled
	}
	if d := a.lastDecision; d != nil {
		dc := *d
		s.Decision = &dc
		s.ComfortOffsetApplied = d.ComfortOffsetApplied
		s.MinRuntimeRemainingMinutes = d.MinRuntimeRemainingMinutes()
		s.IsTemperating = strings.Contains(d.Reason, "Temperating")
	}
	if s.WindowOpenActive {
		s.WindowOpenDurationMin = roundTenth(now.Sub(st.WindowOpenSince).Minutes())
	}
	a.climateMu.Unlock()

	s.HeatPump = a.heatPumpStatus(ctx)

	a.ventMu.Lock()
	s.Ventilation = a.ventilationStatus(now)
	a.ventMu.Unlock()

	return s
}

func (a *Agent) heatPumpStatus(ctx context.Context) *HeatPumpStatus {
	entityID := a.cfg.Controller.Entities.HeatPump
	st, err := a.reader.State(ctx, entityID)
	if err != nil {
		return nil
	}

	hp := &HeatPumpStatus{
		EntityID:   entityID,
		HVACMode:   st.State,
		HVACAction: st.StringAttribute("hvac_action"),
	}
	if v, ok := st.FloatAttribute("temperature"); ok {
		hp.Temperature = &v
	}
	if v, ok := st.FloatAttribute("current_temperature"); ok {
		hp.CurrentTemp = &v
	}
	return hp
}

func (a *Agent) ventilationStatus(now time.Time) VentilationStatus {
	v := a.vent
	vs := VentilationStatus{
		Enabled:           v.Enabled,
		Running:           v.Running(),
		Manual:            v.Manual,
		Reason:            v.Reason,
		Phase:             v.Phase.String(),
		PhaseDescription:  phaseText(v.Phase),
		FanSpeed:          v.FanSpeed,
		CycleTimeSec:      a.ventSettings.CycleTime.Seconds(),
		RunDurationMin:    a.ventSettings.RunDuration.Minutes(),
		AutoIntervalHours: a.ventSettings.AutoInterval.Hours(),
		HumidityThreshold: a.ventSettings.HumidityThreshold,
		HumidityA:         a.humidity.HumidityA,
		HumidityB:         a.humidity.HumidityB,
	}

	switch {
	case !v.Enabled:
		vs.Status = "Disabled"
	case v.Running():
		vs.Status = "Running (" + v.Reason + ")"
	default:
		vs.Status = "Idle"
	}

	if v.Running() {
		vs.CycleElapsedSec = int(now.Sub(v.CycleStartedAt).Seconds())
		vs.RunElapsedMin = roundTenth(now.Sub(v.StartedAt).Minutes())
	}
	if !v.LastAutoRun.IsZero() {
		t := v.LastAutoRun
		vs.LastAutoRun = &t
	}
	return vs
}

func modeText(st climate.State) string {
	switch {
	case !st.SmartControlEnabled:
		return "Disabled"
	case st.Mode == climate.ModeCool:
		return "Cooling"
	case st.ForceEco:
		return "Force Eco"
	case st.SleepActive && !st.ForceComfort && !st.Override:
		return "Sleep Eco"
	case st.Override || st.ForceComfort:
		return "Force Comfort"
	default:
		return "Comfort"
	}
}

func phaseText(p ventilation.Phase) string {
	switch p {
	case ventilation.PhaseAOut:
		return "Phase 1 (A OUT / B IN)"
	case ventilation.PhaseBOut:
		return "Phase 2 (A IN / B OUT)"
	default:
		return "OFF"
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
