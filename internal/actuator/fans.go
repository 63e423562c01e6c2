package actuator

import (
	"context"
	"log/slog"

	"github.com/saaga0h/jeeves-climate/internal/ventilation"
	"github.com/saaga0h/jeeves-climate/pkg/config"
)

// FanDriver turns ventilation commands into fan service calls.
// A failing fan is logged and skipped so the others still follow.
type FanDriver struct {
	caller ServiceCaller
	groupA []string
	groupB []string
	logger *slog.Logger
}

// NewFanDriver creates a driver for the fan groups in entities
func NewFanDriver(caller ServiceCaller, entities config.EntityConfig, logger *slog.Logger) *FanDriver {
	return &FanDriver{
		caller: caller,
		groupA: entities.FanGroupA,
		groupB: entities.FanGroupB,
		logger: logger,
	}
}

// Execute runs the commands in order
func (f *FanDriver) Execute(ctx context.Context, cmds []ventilation.Command) {
	for _, cmd := range cmds {
		switch cmd.Kind {
		case ventilation.CommandApply:
			f.Apply(ctx, cmd.Phase, cmd.FanSpeed)
		case ventilation.CommandStop:
			f.Stop(ctx)
		}
	}
}

// Apply sets speed and direction of both groups for a phase
func (f *FanDriver) Apply(ctx context.Context, phase ventilation.Phase, speed int) {
	dirA, dirB := phase.Directions()
	f.setFans(ctx, f.groupA, dirA, speed)
	f.setFans(ctx, f.groupB, dirB, speed)
}

// Stop turns every fan off
func (f *FanDriver) Stop(ctx context.Context) {
	for _, fan := range append(append([]string(nil), f.groupA...), f.groupB...) {
		if err := f.caller.Call(ctx, turnOffCall("fan", fan)); err != nil {
			f.logger.Warn("Failed to turn off fan", "entity_id", fan, "error", err)
		}
	}
}

func (f *FanDriver) setFans(ctx context.Context, fans []string, dir ventilation.Direction, speed int) {
	for _, fan := range fans {
		err := f.caller.Call(ctx, ServiceCall{
			Domain:  "fan",
			Service: "set_percentage",
			Data:    map[string]interface{}{"entity_id": fan, "percentage": speed},
		})
		if err == nil {
			err = f.caller.Call(ctx, ServiceCall{
				Domain:  "fan",
				Service: "set_direction",
				Data:    map[string]interface{}{"entity_id": fan, "direction": string(dir)},
			})
		}
		if err != nil {
			f.logger.Warn("Failed to set fan", "entity_id", fan, "direction", dir, "error", err)
		}
	}
}
