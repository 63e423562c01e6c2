// Package climate decides what a heat pump should do on each tick.
//
// Decide is pure: it takes the controller state, a snapshot of the sensor
// inputs and the tuning, and returns the decision together with the next
// state. Reading sensors and driving the heat pump are left to callers.
package climate

import (
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/config"
)

// Action is the on/off command for the heat pump
type Action string

const (
	ActionOn  Action = "on"
	ActionOff Action = "off"
)

// Mode is the hvac mode the heat pump runs in
type Mode string

const (
	ModeHeat Mode = "heat"
	ModeCool Mode = "cool"
)

const (
	// DefaultOutsideTemp stands in for a missing outside sensor
	DefaultOutsideTemp = 5.0

	// maxWeatherBoost caps the weather compensation offset
	maxWeatherBoost = 5.0

	// houseLimitRelease is how far the house average must fall below the
	// ceiling before heating is allowed again
	houseLimitRelease = 0.5
)

// Setpoints are the user-adjustable target temperatures
type Setpoints struct {
	Comfort float64 `json:"comfort"`
	Eco     float64 `json:"eco"`
	Boost   float64 `json:"boost"`
	Cooling float64 `json:"cooling"`
}

// State is the mutable controller state carried from tick to tick
type State struct {
	Action    Action
	Mode      Mode
	Setpoints Setpoints

	SmartControlEnabled bool
	Override            bool
	ForceEco            bool
	ForceComfort        bool
	SleepActive         bool

	// HouseOverLimit latches once the house average passes the ceiling
	HouseOverLimit bool

	WindowOpenSince     time.Time
	WindowCooldownSince time.Time
	OpenWindows         []string

	LastHeatPumpStart time.Time
}

// NewState returns the start-up state: heating, off, smart control enabled
func NewState(setpoints Setpoints) State {
	return State{
		Action:              ActionOff,
		Mode:                ModeHeat,
		Setpoints:           setpoints,
		SmartControlEnabled: true,
	}
}

// ComfortModeActive reports whether comfort rules (offset, temperating) apply
func (s State) ComfortModeActive() bool {
	if s.ForceComfort || s.Override {
		return true
	}
	if s.ForceEco || s.SleepActive {
		return false
	}
	return true
}

// BaseTemperature returns the heating target before offset and compensation
func (s State) BaseTemperature() float64 {
	if s.ForceComfort {
		return s.Setpoints.Comfort
	}
	if s.ForceEco || s.SleepActive {
		return s.Setpoints.Eco
	}
	return s.Setpoints.Comfort
}

// Inputs is the sensor snapshot of one tick. Nil pointers mean the
// reading is not configured or not available.
type Inputs struct {
	RoomTemp     *float64
	OutsideTemp  *float64
	HouseAvgTemp *float64

	// OpenWindows names every window or door currently open
	OpenWindows []string

	Present bool

	// Asleep is nil when no bed sensor reported; the previous value is kept
	Asleep *bool
}

// Settings is the tuning of the heating and cooling rules
type Settings struct {
	DeadbandBelow     float64
	DeadbandAbove     float64
	MaxHouseTemp      float64
	WeatherCompFactor float64
	MaxCompTemp       float64
	MinCompTemp       float64
	ComfortOffset     float64
	LowTempThreshold  float64
	SafetyCutoff      float64
	WindowDelay       time.Duration
	MinRuntime        time.Duration
}

// Decision is the outcome of one tick
type Decision struct {
	Action          Action  `json:"action"`
	Mode            Mode    `json:"hvac_mode"`
	Temperature     float64 `json:"temperature"`
	BaseTemperature float64 `json:"base_temperature"`
	Reason          string  `json:"reason"`
	Debug           string  `json:"debug"`

	WeatherCompensation  float64       `json:"weather_compensation"`
	ComfortOffsetApplied float64       `json:"comfort_offset_applied"`
	MinRuntimeRemaining  time.Duration `json:"-"`

	// WindowStop is set when an open window forced the decision; the
	// minimum runtime guard does not hold the heat pump on in that case
	WindowStop bool `json:"window_stop"`
}

// MinRuntimeRemainingMinutes returns the remaining lock in whole minutes
func (d Decision) MinRuntimeRemainingMinutes() int {
	return int(d.MinRuntimeRemaining / time.Minute)
}

// NewSettings converts the configured tuning into decision settings
func NewSettings(t config.ClimateTuning) Settings {
	return Settings{
		DeadbandBelow:     t.DeadbandBelow,
		DeadbandAbove:     t.DeadbandAbove,
		MaxHouseTemp:      t.MaxHouseTemp,
		WeatherCompFactor: t.WeatherCompFactor,
		MaxCompTemp:       t.MaxCompTemp,
		MinCompTemp:       t.MinCompTemp,
		ComfortOffset:     t.ComfortOffset,
		LowTempThreshold:  t.LowTempThreshold,
		SafetyCutoff:      t.SafetyCutoff,
		WindowDelay:       t.WindowDelay.Duration(),
		MinRuntime:        t.MinRunTime.Duration(),
	}
}

// ConfiguredSetpoints returns the setpoints from the configured tuning
func ConfiguredSetpoints(t config.ClimateTuning) Setpoints {
	return Setpoints{
		Comfort: t.ComfortTemp,
		Eco:     t.EcoTemp,
		Boost:   t.BoostTemp,
		Cooling: t.CoolingTemp,
	}
}
