package ventilation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/qmuntal/stateless"
)

const (
	triggerStart  = "start"
	triggerToggle = "toggle"
	triggerStop   = "stop"
)

type startRequest struct {
	phase    Phase
	kind     TriggerKind
	reason   string
	duration time.Duration
	manual   bool
}

// Machine drives the ventilation phases of a State it does not own.
//
// The phase lives in the State; the state machine only governs which
// transitions are allowed and what happens on entry. Machine is not safe
// for concurrent use.
type Machine struct {
	st  *State
	fsm *stateless.StateMachine

	now time.Time
	out *Output
}

// NewMachine wraps st. Every operation reads and updates st in place.
func NewMachine(st *State) *Machine {
	m := &Machine{st: st}

	fsm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return m.st.Phase, nil
		},
		func(_ context.Context, s stateless.State) error {
			m.st.Phase = s.(Phase)
			return nil
		},
		stateless.FiringImmediate,
	)

	fsm.Configure(PhaseOff).
		PermitDynamic(triggerStart, func(_ context.Context, args ...any) (stateless.State, error) {
			return args[0].(startRequest).phase, nil
		}).
		Ignore(triggerToggle).
		Ignore(triggerStop).
		OnEntryFrom(triggerStop, m.onStopped)

	fsm.Configure(PhaseAOut).
		Permit(triggerToggle, PhaseBOut).
		Permit(triggerStop, PhaseOff).
		Ignore(triggerStart).
		OnEntryFrom(triggerStart, m.onStarted).
		OnEntryFrom(triggerToggle, m.onToggled)

	fsm.Configure(PhaseBOut).
		Permit(triggerToggle, PhaseAOut).
		Permit(triggerStop, PhaseOff).
		Ignore(triggerStart).
		OnEntryFrom(triggerStart, m.onStarted).
		OnEntryFrom(triggerToggle, m.onToggled)

	m.fsm = fsm
	return m
}

// State returns a copy of the current ventilation state
func (m *Machine) State() State {
	return *m.st
}

// Step runs one ventilation tick
func (m *Machine) Step(in Inputs, cfg Settings, now time.Time) (Output, error) {
	out := m.begin(now)
	defer m.end()

	st := m.st
	maxHumidity := math.Max(in.HumidityA, in.HumidityB)

	if !st.HumidityArmed && maxHumidity < cfg.HumidityThreshold-humidityHysteresis {
		st.HumidityArmed = true
	}

	if !st.Enabled {
		if st.Running() {
			if err := m.fsm.Fire(triggerStop, "Ventilation disabled"); err != nil {
				return *out, fmt.Errorf("failed to stop ventilation: %w", err)
			}
		}
		return *out, nil
	}

	if !st.Running() {
		return *out, m.checkTriggers(in, cfg, maxHumidity)
	}

	return *out, m.manageCycle(cfg, maxHumidity)
}

func (m *Machine) checkTriggers(in Inputs, cfg Settings, maxHumidity float64) error {
	st := m.st
	thr := cfg.HumidityThreshold

	if st.HumidityArmed && (in.HumidityA >= thr || in.HumidityB >= thr) {
		phase := PhaseAOut
		if in.HumidityB >= thr && in.HumidityB > in.HumidityA {
			phase = PhaseBOut
		}

		st.HumidityArmed = false
		return m.start(startRequest{
			phase:    phase,
			kind:     TriggerHumidity,
			reason:   fmt.Sprintf("High Humidity (%.1f%%)", maxHumidity),
			duration: cfg.RunDuration,
		})
	}

	if cfg.AutoInterval <= 0 {
		return nil
	}

	if st.LastAutoRun.IsZero() {
		st.LastAutoRun = m.now
		m.out.Persist = true
		return nil
	}

	if m.now.Sub(st.LastAutoRun) < cfg.AutoInterval {
		return nil
	}

	st.LastAutoRun = m.now
	m.out.Persist = true
	return m.start(startRequest{
		phase:    PhaseAOut,
		kind:     TriggerScheduled,
		reason:   fmt.Sprintf("Scheduled Run (%gh)", cfg.AutoInterval.Hours()),
		duration: cfg.RunDuration,
	})
}

func (m *Machine) manageCycle(cfg Settings, maxHumidity float64) error {
	st := m.st

	if st.Trigger == TriggerHumidity && maxHumidity < cfg.HumidityThreshold-humidityHysteresis {
		return m.stop("Humidity normalized")
	}

	limit := cfg.limit(st.RunDuration)
	if !st.Manual && m.now.Sub(st.StartedAt) >= limit {
		return m.stop(fmt.Sprintf("Duration reached (%dm)", int(limit.Minutes())))
	}

	if cfg.CycleTime > 0 && m.now.Sub(st.CycleStartedAt) >= cfg.CycleTime {
		next := PhaseBOut
		if st.Phase == PhaseBOut {
			next = PhaseAOut
		}
		if err := m.fsm.Fire(triggerToggle, next); err != nil {
			return fmt.Errorf("failed to toggle ventilation phase: %w", err)
		}
	}

	return nil
}

// StartManual starts an unbounded run, as the manual switch does. A run
// already in progress is kept but no longer ends on the duration limit.
func (m *Machine) StartManual(cfg Settings, now time.Time) (Output, error) {
	out := m.begin(now)
	defer m.end()

	m.st.Manual = true
	err := m.start(startRequest{
		phase:    PhaseAOut,
		kind:     TriggerManual,
		reason:   "Manual Switch",
		duration: cfg.RunDuration,
		manual:   true,
	})
	return *out, err
}

// Trigger starts a bounded run. A zero duration uses the configured one.
// A non-zero duration given while a run is in progress becomes the bound
// of that run.
func (m *Machine) Trigger(duration time.Duration, cfg Settings, now time.Time) (Output, error) {
	out := m.begin(now)
	defer m.end()

	if m.st.Running() {
		if duration > 0 {
			m.st.RunDuration = duration
		}
		return *out, nil
	}

	if duration <= 0 {
		duration = cfg.RunDuration
	}
	err := m.start(startRequest{
		phase:    PhaseAOut,
		kind:     TriggerService,
		reason:   "Manual Service Call",
		duration: duration,
	})
	return *out, err
}

// Stop ends a run in progress
func (m *Machine) Stop(reason string, now time.Time) (Output, error) {
	out := m.begin(now)
	defer m.end()

	m.st.Manual = false
	return *out, m.stop(reason)
}

// SetEnabled enables or disables ventilation; disabling stops a running cycle
func (m *Machine) SetEnabled(enabled bool, now time.Time) (Output, error) {
	out := m.begin(now)
	defer m.end()

	m.st.Enabled = enabled
	out.Persist = true
	if enabled {
		return *out, nil
	}
	return *out, m.stop("Disabled by User")
}

// SetFanSpeed changes the fan speed and re-applies the directions of a
// running cycle so the new speed takes effect immediately
func (m *Machine) SetFanSpeed(speed int, now time.Time) Output {
	out := m.begin(now)
	defer m.end()

	m.st.FanSpeed = speed
	out.Persist = true
	if m.st.Running() {
		out.Commands = append(out.Commands, Command{Kind: CommandApply, Phase: m.st.Phase, FanSpeed: speed})
	}
	return *out
}

func (m *Machine) begin(now time.Time) *Output {
	m.now = now
	m.out = &Output{}
	return m.out
}

func (m *Machine) end() {
	m.out = nil
}

func (m *Machine) start(req startRequest) error {
	if err := m.fsm.Fire(triggerStart, req); err != nil {
		return fmt.Errorf("failed to start ventilation: %w", err)
	}
	return nil
}

func (m *Machine) stop(reason string) error {
	if err := m.fsm.Fire(triggerStop, reason); err != nil {
		return fmt.Errorf("failed to stop ventilation: %w", err)
	}
	return nil
}

func (m *Machine) onStarted(_ context.Context, args ...any) error {
	req := args[0].(startRequest)
	st := m.st

	st.Trigger = req.kind
	st.Reason = req.reason
	st.Manual = req.manual
	st.RunDuration = req.duration
	st.StartedAt = m.now
	st.CycleStartedAt = m.now

	m.out.Commands = append(m.out.Commands, Command{Kind: CommandApply, Phase: req.phase, FanSpeed: st.FanSpeed})
	m.out.Events = append(m.out.Events, Event{
		Kind:     EventStarted,
		Reason:   req.reason,
		Trigger:  req.kind,
		Phase:    req.phase,
		Duration: req.duration,
	})
	return nil
}

func (m *Machine) onToggled(_ context.Context, args ...any) error {
	phase := args[0].(Phase)
	m.st.CycleStartedAt = m.now

	m.out.Commands = append(m.out.Commands, Command{Kind: CommandApply, Phase: phase, FanSpeed: m.st.FanSpeed})
	m.out.Events = append(m.out.Events, Event{
		Kind:    EventPhaseChanged,
		Reason:  m.st.Reason,
		Trigger: m.st.Trigger,
		Phase:   phase,
	})
	return nil
}

func (m *Machine) onStopped(_ context.Context, args ...any) error {
	reason := args[0].(string)
	st := m.st

	m.out.Events = append(m.out.Events, Event{
		Kind:    EventStopped,
		Reason:  reason,
		Trigger: st.Trigger,
		Phase:   PhaseOff,
	})
	m.out.Commands = append(m.out.Commands, Command{Kind: CommandStop, Phase: PhaseOff})

	st.Manual = false
	st.Trigger = TriggerNone
	st.Reason = idleReason
	return nil
}
