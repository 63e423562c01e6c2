package checker

import (
	"context"
	"testing"

	"github.com/saaga0h/jeeves-climate/e2e/internal/observer"
	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-climate/pkg/redis/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		expected interface{}
		ok       bool
	}{
		{name: "equal strings", actual: "on", expected: "on", ok: true},
		{name: "different strings", actual: "off", expected: "on"},
		{name: "wildcard", actual: 12.5, expected: "*", ok: true},
		{name: "regex", actual: "2026-01-15T07:00:00Z", expected: "~^2026-~", ok: true},
		{name: "regex miss", actual: "", expected: "~.+~"},
		{name: "greater", actual: 20.5, expected: ">20", ok: true},
		{name: "greater on text", actual: "20.5", expected: ">=20.5", ok: true},
		{name: "less fails", actual: 21.0, expected: "<21"},
		{name: "comparison on text", actual: "on", expected: ">1"},
		{name: "number vs int", actual: 1.0, expected: 1, ok: true},
		{name: "number vs text", actual: "60", expected: 60, ok: true},
		{name: "bool", actual: true, expected: true, ok: true},
		{name: "bool mismatch", actual: "true", expected: true},
		{name: "nil", actual: nil, expected: nil, ok: true},
		{name: "nil actual", actual: nil, expected: "on"},
		{
			name:     "nested map subset",
			actual:   map[string]interface{}{"action": "on", "temperature": 20.5, "extra": 1.0},
			expected: map[string]interface{}{"action": "on", "temperature": ">20"},
			ok:       true,
		},
		{
			name:     "missing key",
			actual:   map[string]interface{}{"action": "on"},
			expected: map[string]interface{}{"reason": "*"},
		},
		{
			name:     "array",
			actual:   []interface{}{"a", 1.0},
			expected: []interface{}{"a", 1},
			ok:       true,
		},
		{
			name:     "array length",
			actual:   []interface{}{"a"},
			expected: []interface{}{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := Match(tt.actual, tt.expected)
			if tt.ok {
				assert.Empty(t, reason)
			} else {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestCheckMessages_UsesLatest(t *testing.T) {
	topic := "automation/context/climate/living_room"
	messages := []observer.CapturedMessage{
		{Topic: topic, Payload: map[string]interface{}{"action": "off"}},
		{Topic: "automation/raw/state/sensor.t", Payload: "19"},
		{Topic: topic, Payload: map[string]interface{}{"action": "on"}},
	}

	ok, reason, actual := CheckMessages(scenario.Expectation{
		Topic:   topic,
		Payload: map[string]interface{}{"action": "on"},
	}, messages)
	assert.True(t, ok, reason)
	assert.Equal(t, map[string]interface{}{"action": "on"}, actual)

	ok, reason, _ = CheckMessages(scenario.Expectation{
		Topic:   "automation/context/ventilation/living_room",
		Payload: map[string]interface{}{"event": "started"},
	}, messages)
	assert.False(t, ok)
	assert.Contains(t, reason, "no messages")
}

func TestCheckRedis(t *testing.T) {
	ctx := context.Background()
	fake := redistest.New()
	require.NoError(t, fake.HSet(ctx, "climate:state:living_room", map[string]interface{}{
		"comfort_temp": "21.5",
	}))

	tests := []struct {
		name string
		exp  scenario.Expectation
		ok   bool
	}{
		{name: "match", exp: scenario.Expectation{RedisKey: "climate:state:living_room", RedisField: "comfort_temp", Expected: "21.5"}, ok: true},
		{name: "comparison", exp: scenario.Expectation{RedisKey: "climate:state:living_room", RedisField: "comfort_temp", Expected: ">21"}, ok: true},
		{name: "mismatch", exp: scenario.Expectation{RedisKey: "climate:state:living_room", RedisField: "comfort_temp", Expected: "20"}},
		{name: "missing field", exp: scenario.Expectation{RedisKey: "climate:state:living_room", RedisField: "eco_temp", Expected: "*"}},
		{name: "missing key", exp: scenario.Expectation{RedisKey: "climate:state:bedroom", RedisField: "comfort_temp", Expected: "*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason, _ := CheckRedis(ctx, fake, tt.exp)
			assert.Equal(t, tt.ok, ok, reason)
		})
	}
}
