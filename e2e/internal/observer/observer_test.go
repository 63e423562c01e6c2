package observer

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/saaga0h/jeeves-climate/pkg/mqtt/mqtttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestObserver_Captures(t *testing.T) {
	client := mqtttest.New()
	obs := NewObserver(client, "", testLogger())
	require.NoError(t, obs.Start())

	require.True(t, client.Deliver("automation/context/climate/living_room", []byte(`{"action":"on"}`)))
	require.True(t, client.Deliver("automation/raw/state/sensor.t", []byte(`not json`)))

	assert.Equal(t, 2, obs.Count())

	climate := obs.MessagesByTopic("automation/context/climate/living_room")
	require.Len(t, climate, 1)
	assert.Equal(t, map[string]interface{}{"action": "on"}, climate[0].Payload)

	raw := obs.MessagesByTopic("automation/raw/state/sensor.t")
	require.Len(t, raw, 1)
	assert.Equal(t, "not json", raw[0].Payload)
}

func TestObserver_IgnoresOtherTopics(t *testing.T) {
	client := mqtttest.New()
	require.NoError(t, NewObserver(client, "", testLogger()).Start())

	assert.False(t, client.Deliver("homeassistant/status", []byte("online")))
}

func TestObserver_SaveCapture(t *testing.T) {
	client := mqtttest.New()
	obs := NewObserver(client, "", testLogger())
	require.NoError(t, obs.Start())
	client.Deliver("automation/context/ventilation/living_room", []byte(`{"event":"started"}`))

	path := filepath.Join(t.TempDir(), "captures", "run.json")
	require.NoError(t, obs.SaveCapture(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var captured []CapturedMessage
	require.NoError(t, json.Unmarshal(data, &captured))
	require.Len(t, captured, 1)
	assert.Equal(t, "automation/context/ventilation/living_room", captured[0].Topic)
}
