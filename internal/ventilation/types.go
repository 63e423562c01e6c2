// Package ventilation cycles two fan groups in opposite directions.
//
// One group blows out while the other draws in; the direction swaps every
// cycle. Runs start on high humidity, on a fixed schedule or by hand and
// end on normalized humidity, a duration limit or by hand.
package ventilation

import (
	"fmt"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/config"
)

// Phase is the airflow direction of a running cycle
type Phase int

const (
	PhaseOff Phase = iota
	// PhaseAOut runs group A forward and group B in reverse
	PhaseAOut
	// PhaseBOut runs group B forward and group A in reverse
	PhaseBOut
)

func (p Phase) String() string {
	switch p {
	case PhaseOff:
		return "off"
	case PhaseAOut:
		return "a_out"
	case PhaseBOut:
		return "b_out"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Direction is a fan direction as understood by fan.set_direction
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// Directions returns the directions of group A and group B in this phase
func (p Phase) Directions() (a, b Direction) {
	if p == PhaseBOut {
		return DirectionReverse, DirectionForward
	}
	return DirectionForward, DirectionReverse
}

// TriggerKind records what started the current run
type TriggerKind string

const (
	TriggerNone      TriggerKind = ""
	TriggerHumidity  TriggerKind = "humidity"
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
	TriggerService   TriggerKind = "service"
)

const (
	// humidityHysteresis is how far humidity must fall below the threshold
	// to end a humidity run and re-arm the trigger
	humidityHysteresis = 5.0

	idleReason = "Idle"
)

// State is the ventilation state carried from tick to tick
type State struct {
	Enabled bool
	Phase   Phase
	Manual  bool
	Trigger TriggerKind
	Reason  string

	StartedAt      time.Time
	CycleStartedAt time.Time
	LastAutoRun    time.Time

	// RunDuration bounds the current run, together with the max duration
	RunDuration time.Duration

	// HumidityArmed is cleared when a humidity run starts and set again
	// once humidity has dropped below threshold minus the hysteresis
	HumidityArmed bool

	FanSpeed int
}

// NewState returns an enabled, idle ventilation state
func NewState(fanSpeed int) State {
	return State{
		Enabled:       true,
		Phase:         PhaseOff,
		Reason:        idleReason,
		HumidityArmed: true,
		FanSpeed:      fanSpeed,
	}
}

// Running reports whether a run is in progress
func (s State) Running() bool {
	return s.Phase != PhaseOff
}

// Settings is the tuning of the ventilation rules
type Settings struct {
	CycleTime         time.Duration
	RunDuration       time.Duration
	MaxDuration       time.Duration
	AutoInterval      time.Duration
	HumidityThreshold float64
}

// NewSettings converts the configured tuning into ventilation settings
func NewSettings(t config.VentilationTuning) Settings {
	return Settings{
		CycleTime:         t.CycleTime.Duration(),
		RunDuration:       t.RunDuration.Duration(),
		MaxDuration:       t.MaxDuration.Duration(),
		AutoInterval:      t.AutoInterval.Duration(),
		HumidityThreshold: t.HumidityThreshold,
	}
}

// limit returns how long a non-manual run may last
func (s Settings) limit(runDuration time.Duration) time.Duration {
	if s.MaxDuration > 0 && s.MaxDuration < runDuration {
		return s.MaxDuration
	}
	return runDuration
}

// Inputs holds the highest humidity reading of each group's sensors
type Inputs struct {
	HumidityA float64
	HumidityB float64
}

// CommandKind is what the fan driver must do
type CommandKind string

const (
	CommandApply CommandKind = "apply"
	CommandStop  CommandKind = "stop"
)

// Command is an instruction for the fan driver
type Command struct {
	Kind     CommandKind
	Phase    Phase
	FanSpeed int
}

// EventKind names a ventilation event
type EventKind string

const (
	EventStarted      EventKind = "started"
	EventStopped      EventKind = "stopped"
	EventPhaseChanged EventKind = "phase_changed"
)

// Event describes a ventilation state change for publishing
type Event struct {
	Kind     EventKind
	Reason   string
	Trigger  TriggerKind
	Phase    Phase
	Duration time.Duration
}

// Output collects what a ventilation operation wants done
type Output struct {
	Commands []Command
	Events   []Event

	// Persist is set when state worth persisting changed
	Persist bool
}
