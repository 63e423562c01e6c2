package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/pkg/config"
)

// AlertNotificationID identifies the persistent alert raised when the heat
// pump does not run although it was commanded on
const AlertNotificationID = "smart_climate_heat_pump_alert"

// Command is what the climate decision wants the heat pump to do
type Command struct {
	Action      climate.Action
	Temperature float64
	Mode        climate.Mode

	// WindowStop lets an off command through the minimum runtime guard
	WindowStop bool
}

// Record is the last command sent to the heat pump
type Record struct {
	Action      climate.Action `json:"action"`
	Temperature float64        `json:"temperature"`
	Mode        climate.Mode   `json:"hvac_mode"`
	Valid       bool           `json:"valid"`
}

func (r Record) matches(cmd Command) bool {
	return r.Valid && r.Action == cmd.Action && r.Temperature == cmd.Temperature && r.Mode == cmd.Mode
}

// Outcome is how a dispatch ended
type Outcome string

const (
	OutcomeSuppressed   Outcome = "suppressed"
	OutcomeUnchanged    Outcome = "unchanged"
	OutcomeMissing      Outcome = "missing"
	OutcomeAcknowledged Outcome = "acknowledged"
	OutcomeUnconfirmed  Outcome = "unconfirmed"
)

// Result describes a dispatch
type Result struct {
	Outcome  Outcome
	Attempts int

	// StartedAt is set when this dispatch recorded a new heat pump start
	StartedAt time.Time
}

// ContactResult is the outcome of a contact verification
type ContactResult string

const (
	ContactSkipped   ContactResult = "skipped"
	ContactRunning   ContactResult = "running"
	ContactRecovered ContactResult = "recovered"
	ContactAlerted   ContactResult = "alerted"
)

// Dispatcher sends heat pump commands idempotently and checks they took effect.
// Dispatch, Release and VerifyContact must not run concurrently; Last may
// be called at any time.
type Dispatcher struct {
	caller     ServiceCaller
	reader     sensors.Reader
	heatPump   string
	contact    string
	timing     Timing
	minRuntime time.Duration
	logger     *slog.Logger

	mu   sync.Mutex
	last Record

	// OnStart, when set, is called with the start time before an on command
	// is sent for the first time since the last start was cleared
	OnStart func(ctx context.Context, at time.Time)
}

// NewDispatcher creates a dispatcher for the heat pump in entities
func NewDispatcher(caller ServiceCaller, reader sensors.Reader, entities config.EntityConfig, timing Timing, minRuntime time.Duration, logger *slog.Logger) *Dispatcher {
	if timing.Attempts <= 0 {
		timing.Attempts = 1
	}
	return &Dispatcher{
		caller:     caller,
		reader:     reader,
		heatPump:   entities.HeatPump,
		contact:    entities.HeatPumpContact,
		timing:     timing,
		minRuntime: minRuntime,
		logger:     logger,
	}
}

// Last returns the last command sent
func (d *Dispatcher) Last() Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Forget clears the last command so the next dispatch is always sent
func (d *Dispatcher) Forget() {
	d.setLast(Record{})
}

func (d *Dispatcher) setLast(r Record) {
	d.mu.Lock()
	d.last = r
	d.mu.Unlock()
}

// Dispatch sends cmd to the heat pump unless it is suppressed by the
// minimum runtime guard or identical to the last command sent.
// lastStart is the last recorded heat pump start.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command, lastStart, now time.Time) (Result, error) {
	if cmd.Action == climate.ActionOff && !lastStart.IsZero() && !cmd.WindowStop {
		if runtime := now.Sub(lastStart); runtime < d.minRuntime {
			d.logger.Info("Minimum runtime not reached, keeping heat pump on",
				"runtime", runtime.Round(time.Second),
				"min_runtime", d.minRuntime)
			return Result{Outcome: OutcomeSuppressed}, nil
		}
	}

	if d.Last().matches(cmd) {
		return Result{Outcome: OutcomeUnchanged}, nil
	}

	if _, err := d.reader.State(ctx, d.heatPump); err != nil {
		if errors.Is(err, sensors.ErrNotFound) {
			d.logger.Error("Heat pump entity not found", "entity_id", d.heatPump)
			return Result{Outcome: OutcomeMissing}, nil
		}
		return Result{}, fmt.Errorf("failed to read heat pump state: %w", err)
	}

	d.setLast(Record{Action: cmd.Action, Temperature: cmd.Temperature, Mode: cmd.Mode, Valid: true})

	var (
		res Result
		err error
	)
	if cmd.Action == climate.ActionOn {
		if lastStart.IsZero() {
			res.StartedAt = now
			if d.OnStart != nil {
				d.OnStart(ctx, now)
			}
		}
		res, err = d.turnOn(ctx, cmd, res)
	} else {
		res, err = d.turnOff(ctx)
	}

	// An interrupted dispatch was never confirmed; the next one resends it
	if err != nil {
		d.Forget()
	}
	return res, err
}

func (d *Dispatcher) turnOn(ctx context.Context, cmd Command, res Result) (Result, error) {
	n := d.timing.Attempts

	for attempt := 1; attempt <= n; attempt++ {
		res.Attempts = attempt

		d.logger.Info("Sending heat pump command",
			"entity_id", d.heatPump,
			"hvac_mode", cmd.Mode,
			"temperature", cmd.Temperature,
			"attempt", attempt,
			"attempts", n)

		if err := d.caller.Call(ctx, setTemperatureCall(d.heatPump, cmd.Temperature, string(cmd.Mode))); err != nil {
			d.logger.Warn("Heat pump command failed", "attempt", attempt, "error", err)
		} else {
			if err := sleep(ctx, d.timing.OnSettle); err != nil {
				return res, err
			}

			st, err := d.reader.State(ctx, d.heatPump)
			if err == nil && acknowledgedOn(st, cmd) {
				d.logger.Info("Heat pump acknowledged command", "attempt", attempt)
				res.Outcome = OutcomeAcknowledged
				return res, nil
			}

			if err == nil {
				temp, _ := st.FloatAttribute("temperature")
				d.logger.Warn("Heat pump did not respond properly",
					"attempt", attempt,
					"hvac_mode", st.State,
					"hvac_action", hvacAction(st),
					"temperature", temp)
			}
		}

		if attempt < n {
			if err := sleep(ctx, d.timing.OnRetryPause); err != nil {
				return res, err
			}
		}
	}

	d.logger.Error("Failed to start heat pump", "attempts", n)
	res.Outcome = OutcomeUnconfirmed
	return res, nil
}

func (d *Dispatcher) turnOff(ctx context.Context) (Result, error) {
	var res Result
	n := d.timing.Attempts

	for attempt := 1; attempt <= n; attempt++ {
		res.Attempts = attempt

		d.logger.Info("Turning off heat pump", "entity_id", d.heatPump, "attempt", attempt, "attempts", n)

		if err := d.caller.Call(ctx, turnOffCall("climate", d.heatPump)); err != nil {
			d.logger.Warn("Heat pump command failed", "attempt", attempt, "error", err)
		} else {
			if err := sleep(ctx, d.timing.OffSettle); err != nil {
				return res, err
			}

			st, err := d.reader.State(ctx, d.heatPump)
			if err == nil && st.State == "off" {
				d.logger.Info("Heat pump turned off", "attempt", attempt)
				res.Outcome = OutcomeAcknowledged
				return res, nil
			}

			if err == nil {
				d.logger.Warn("Heat pump still on", "attempt", attempt, "state", st.State)
			}
		}

		if attempt < n {
			if err := sleep(ctx, d.timing.OffRetryPause); err != nil {
				return res, err
			}
		}
	}

	d.logger.Error("Failed to turn off heat pump", "attempts", n)
	res.Outcome = OutcomeUnconfirmed
	return res, nil
}

// Release turns the heat pump off once, without verification, and forgets
// the last command. Used when smart control is disabled or on shutdown.
func (d *Dispatcher) Release(ctx context.Context) error {
	d.Forget()

	if _, err := d.reader.State(ctx, d.heatPump); err != nil {
		if errors.Is(err, sensors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read heat pump state: %w", err)
	}

	if err := d.caller.Call(ctx, turnOffCall("climate", d.heatPump)); err != nil {
		return fmt.Errorf("failed to release heat pump: %w", err)
	}
	return nil
}

// VerifyContact checks the optional contact sensor that shows whether the
// heat pump really runs. When it does not, the command is resent with the
// heat pump's current setpoint; if it still does not run a persistent
// alert is raised. fallbackTemp is used when the heat pump reports no setpoint.
func (d *Dispatcher) VerifyContact(ctx context.Context, mode climate.Mode, fallbackTemp float64) (ContactResult, error) {
	if d.contact == "" {
		return ContactSkipped, nil
	}

	if err := sleep(ctx, d.timing.ContactSettle); err != nil {
		return ContactSkipped, err
	}

	contact, err := d.reader.State(ctx, d.contact)
	if err != nil {
		d.logger.Warn("Contact sensor not found", "entity_id", d.contact, "error", err)
		return ContactSkipped, nil
	}

	if contact.IsOpen() {
		d.logger.Debug("Heat pump verified running via contact sensor")
		return ContactRunning, d.dismissAlert(ctx)
	}

	d.logger.Warn("Heat pump command may have failed, contact sensor shows not running", "entity_id", d.contact)

	hp, err := d.reader.State(ctx, d.heatPump)
	if err != nil {
		return ContactSkipped, nil
	}

	temperature, ok := hp.FloatAttribute("temperature")
	if !ok {
		temperature = fallbackTemp
	}

	if err := d.caller.Call(ctx, setTemperatureCall(d.heatPump, temperature, string(mode))); err != nil {
		return ContactSkipped, fmt.Errorf("failed to resend heat pump command: %w", err)
	}

	if err := sleep(ctx, d.timing.ContactSettle); err != nil {
		return ContactSkipped, err
	}

	if contact, err := d.reader.State(ctx, d.contact); err == nil && contact.IsOpen() {
		d.logger.Info("Heat pump started after retry")
		return ContactRecovered, d.dismissAlert(ctx)
	}

	d.logger.Error("Heat pump still not running after retry", "entity_id", d.contact)
	return ContactAlerted, d.raiseAlert(ctx)
}

func (d *Dispatcher) raiseAlert(ctx context.Context) error {
	return d.caller.Call(ctx, ServiceCall{
		Domain:  "persistent_notification",
		Service: "create",
		Data: map[string]interface{}{
			"title":           "Smart Climate Control Alert",
			"message":         fmt.Sprintf("Heat pump may not be responding to commands. Contact sensor: %s", d.contact),
			"notification_id": AlertNotificationID,
		},
	})
}

func (d *Dispatcher) dismissAlert(ctx context.Context) error {
	return d.caller.Call(ctx, ServiceCall{
		Domain:  "persistent_notification",
		Service: "dismiss",
		Data:    map[string]interface{}{"notification_id": AlertNotificationID},
	})
}

func acknowledgedOn(st *sensors.EntityState, cmd Command) bool {
	temp, ok := st.FloatAttribute("temperature")
	if !ok || temp != cmd.Temperature {
		return false
	}
	if st.State != string(cmd.Mode) {
		return false
	}
	action := hvacAction(st)
	return action != "off" && action != "idle"
}

func hvacAction(st *sensors.EntityState) string {
	if action := st.StringAttribute("hvac_action"); action != "" {
		return action
	}
	return "off"
}
