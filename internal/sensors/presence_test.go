package sensors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/internal/sensors/sensorstest"
)

func TestIsHome(t *testing.T) {
	tests := []struct {
		entity string
		state  string
		want   bool
	}{
		{"person.anna", "home", true},
		{"person.anna", "not_home", false},
		{"device_tracker.phone", "work", true},
		{"device_tracker.phone", "away", false},
		{"zone.home", "2", true},
		{"zone.home", "0", false},
		{"zone.home", "unknown", false},
		{"sensor.occupancy", "home", true},
		{"sensor.occupancy", "not home", false},
		{"sensor.occupancy", "cleaning", true},
		{"input_boolean.guest", "on", true},
		{"input_boolean.guest", "off", false},
		{"group.family", "home", true},
		{"group.family", "not_home", false},
		{"binary_sensor.presence", "off", false},
		{"binary_sensor.presence", "on", true},
	}

	for _, tt := range tests {
		t.Run(tt.entity+"="+tt.state, func(t *testing.T) {
			assert.Equal(t, tt.want, sensors.IsHome(&sensors.EntityState{EntityID: tt.entity, State: tt.state}))
		})
	}
}

func TestPresent_Defaults(t *testing.T) {
	ctx := context.Background()
	mem := sensorstest.New()

	assert.True(t, sensors.Present(ctx, mem, ""), "no tracker configured")
	assert.True(t, sensors.Present(ctx, mem, "person.anna"), "tracker without state")

	mem.Set("person.anna", "not_home")
	assert.False(t, sensors.Present(ctx, mem, "person.anna"))
}
