package collector

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseMessage(t *testing.T) {
	processor := NewProcessor(testLogger())

	tests := []struct {
		name       string
		topic      string
		payload    string
		wantEntity string
		wantState  string
		wantName   string
		wantErr    bool
	}{
		{
			name:       "temperature sensor",
			topic:      "automation/raw/state/sensor.living_room_temperature",
			payload:    `{"entity_id":"sensor.living_room_temperature","state":"21.4","attributes":{"unit_of_measurement":"°C"}}`,
			wantEntity: "sensor.living_room_temperature",
			wantState:  "21.4",
		},
		{
			name:       "entity id from topic",
			topic:      "automation/raw/state/binary_sensor.balcony_door",
			payload:    `{"state":"on","name":"Balcony door"}`,
			wantEntity: "binary_sensor.balcony_door",
			wantState:  "on",
			wantName:   "Balcony door",
		},
		{
			name:       "wrapped in data",
			topic:      "automation/raw/state/sensor.outside",
			payload:    `{"data":{"state":"-3.5"}}`,
			wantEntity: "sensor.outside",
			wantState:  "-3.5",
		},
		{
			name:       "numeric state",
			topic:      "automation/raw/state/sensor.humidity_bath",
			payload:    `{"state":64.5}`,
			wantEntity: "sensor.humidity_bath",
			wantState:  "64.5",
		},
		{
			name:       "boolean state",
			topic:      "automation/raw/state/binary_sensor.window",
			payload:    `{"state":false}`,
			wantEntity: "binary_sensor.window",
			wantState:  "off",
		},
		{
			name:    "missing state",
			topic:   "automation/raw/state/sensor.x",
			payload: `{"entity_id":"sensor.x"}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON payload",
			topic:   "automation/raw/state/sensor.x",
			payload: `{invalid json}`,
			wantErr: true,
		},
		{
			name:    "topic without entity",
			topic:   "automation/raw/state/",
			payload: `{"state":"on"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := processor.ParseMessage(tt.topic, []byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantEntity, msg.State.EntityID)
			assert.Equal(t, tt.wantState, msg.State.State)
			assert.Equal(t, tt.wantName, msg.State.Name)
			assert.Equal(t, tt.topic, msg.OriginalTopic)
			assert.False(t, msg.State.UpdatedAt.IsZero())
		})
	}
}

func TestParseMessage_Attributes(t *testing.T) {
	processor := NewProcessor(testLogger())

	msg, err := processor.ParseMessage("automation/raw/state/climate.heat_pump",
		[]byte(`{"state":"heat","attributes":{"temperature":21,"hvac_action":"heating"}}`))
	require.NoError(t, err)

	v, ok := msg.State.FloatAttribute("temperature")
	assert.True(t, ok)
	assert.Equal(t, 21.0, v)
	assert.Equal(t, "heating", msg.State.StringAttribute("hvac_action"))
}

func TestBuildTriggerPayload(t *testing.T) {
	processor := NewProcessor(testLogger())

	msg, err := processor.ParseMessage("automation/raw/state/binary_sensor.window", []byte(`{"state":"on"}`))
	require.NoError(t, err)

	data, err := processor.BuildTriggerPayload(msg)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "binary_sensor.window", payload["entity_id"])
	assert.Equal(t, "on", payload["state"])
	assert.Equal(t, "automation/raw/state/binary_sensor.window", payload["original_topic"])
	assert.NotEmpty(t, payload["stored_at"])
}
