package climate

import (
	"fmt"
	"math"
	"time"
)

// Decide evaluates one climate tick.
//
// It returns the decision for the heat pump and the state to carry into the
// next tick. The passed state is not modified.
func Decide(st State, in Inputs, cfg Settings, now time.Time) (Decision, State) {
	next := st
	next.OpenWindows = append([]string(nil), st.OpenWindows...)

	if in.Asleep != nil {
		next.SleepActive = *in.Asleep
	}

	windowStop := evaluateWindows(&next, in.OpenWindows, cfg.WindowDelay, now)

	var d Decision
	if next.Mode == ModeCool {
		d = decideCooling(&next, in, cfg, windowStop)
	} else {
		d = decideHeating(&next, in, cfg, windowStop, now)
	}
	d.WindowStop = windowStop
	d.Mode = next.Mode

	next.Action = d.Action
	return d, next
}

func decideHeating(st *State, in Inputs, cfg Settings, windowStop bool, now time.Time) Decision {
	outside := DefaultOutsideTemp
	hasOutside := in.OutsideTemp != nil
	if hasOutside {
		outside = *in.OutsideTemp
	}

	base := st.BaseTemperature()
	action, reason, temperating := heatingAction(st, in, cfg, base, outside, windowStop, now)

	d := Decision{
		Action:          action,
		Temperature:     base,
		BaseTemperature: base,
		Reason:          reason,
	}

	if action == ActionOn {
		if !temperating && st.ComfortModeActive() && cfg.ComfortOffset > 0 {
			d.Temperature += cfg.ComfortOffset
			d.ComfortOffsetApplied = cfg.ComfortOffset
		}

		if hasOutside && outside < 0 {
			d.WeatherCompensation = weatherCompensation(outside, cfg.WeatherCompFactor)
			d.Temperature = clampCompensated(d.Temperature+d.WeatherCompensation, cfg.MinCompTemp, cfg.MaxCompTemp)
		}

		if !st.LastHeatPumpStart.IsZero() {
			remaining := cfg.MinRuntime - now.Sub(st.LastHeatPumpStart)
			if remaining > 0 {
				d.MinRuntimeRemaining = remaining
			}
		}
	}

	d.Debug = heatingDebug(st, d, in, outside, hasOutside)
	return d
}

// heatingAction runs the heating rule cascade. The third return value is
// true when the heat pump runs in temperating mode.
func heatingAction(st *State, in Inputs, cfg Settings, base, outside float64, windowStop bool, now time.Time) (Action, string, bool) {
	if windowStop {
		return ActionOff, windowStopReason(st), false
	}

	if !st.LastHeatPumpStart.IsZero() && now.Sub(st.LastHeatPumpStart) < cfg.MinRuntime {
		return ActionOn, "Minimum runtime active", false
	}

	if st.Override {
		return ActionOn, "Manual override", false
	}

	if !in.Present {
		return ActionOff, "Nobody home", false
	}

	if in.HouseAvgTemp != nil {
		avg := *in.HouseAvgTemp
		switch {
		case st.HouseOverLimit && avg > cfg.MaxHouseTemp-houseLimitRelease:
			return ActionOff, "House temp limit", false
		case !st.HouseOverLimit && avg > cfg.MaxHouseTemp:
			st.HouseOverLimit = true
			return ActionOff, "House temp limit", false
		default:
			st.HouseOverLimit = false
		}
	}

	if in.RoomTemp == nil {
		return ActionOff, "No room temp data", false
	}
	room := *in.RoomTemp

	turnOn := base - cfg.DeadbandBelow
	turnOff := base + cfg.DeadbandAbove

	switch {
	case room <= turnOn:
		st.LastHeatPumpStart = now
		return ActionOn, fmt.Sprintf("Heating needed (%.1f°C <= %.1f°C)", room, turnOn), false

	case room >= turnOff:
		if st.ComfortModeActive() && outside < cfg.LowTempThreshold {
			if room >= turnOff+cfg.SafetyCutoff {
				return ActionOff, fmt.Sprintf("Overheating protection (%.1f°C)", room), false
			}
			return ActionOn, fmt.Sprintf("Temperating (Low Temp: %.1f°C < %s°C)", outside, formatTemp(cfg.LowTempThreshold)), true
		}
		return ActionOff, fmt.Sprintf("Too hot (%.1f°C >= %.1f°C)", room, turnOff), false
	}

	if st.Action == ActionOn && !st.LastHeatPumpStart.IsZero() && now.Sub(st.LastHeatPumpStart) < cfg.MinRuntime {
		return ActionOn, "Min runtime active", false
	}
	return currentAction(st), "In deadband", false
}

func decideCooling(st *State, in Inputs, cfg Settings, windowStop bool) Decision {
	base := st.Setpoints.Cooling
	d := Decision{
		Temperature:     base,
		BaseTemperature: base,
	}

	switch {
	case windowStop:
		d.Action, d.Reason = ActionOff, windowStopReason(st)
	case !in.Present:
		d.Action, d.Reason = ActionOff, "Nobody home"
	case in.RoomTemp == nil:
		d.Action, d.Reason = ActionOff, "No room temp data"
	default:
		room := *in.RoomTemp
		turnOn := base + cfg.DeadbandAbove
		turnOff := base - cfg.DeadbandBelow

		switch {
		case room >= turnOn:
			d.Action, d.Reason = ActionOn, fmt.Sprintf("Cooling needed (%.1f°C >= %.1f°C)", room, turnOn)
		case room <= turnOff:
			d.Action, d.Reason = ActionOff, fmt.Sprintf("Too cold (%.1f°C <= %.1f°C)", room, turnOff)
		default:
			d.Action, d.Reason = currentAction(st), "In deadband"
		}
	}

	d.Debug = coolingDebug(d, in)
	return d
}

// weatherCompensation returns the setpoint boost for a sub-zero outside temperature
func weatherCompensation(outside, factor float64) float64 {
	return math.Min(math.Abs(outside)*factor, maxWeatherBoost)
}

// clampCompensated bounds a compensated setpoint and rounds it half-to-even
// to whole degrees
func clampCompensated(temp, minTemp, maxTemp float64) float64 {
	temp = math.Min(temp, maxTemp)
	temp = math.Max(temp, minTemp)
	return math.RoundToEven(temp)
}

func currentAction(st *State) Action {
	if st.Action == "" {
		return ActionOff
	}
	return st.Action
}
