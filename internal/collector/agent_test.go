package collector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt/mqtttest"
	"github.com/saaga0h/jeeves-climate/pkg/redis/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) (*Agent, *mqtttest.Fake, *redistest.Fake, *metrics.Metrics) {
	t.Helper()
	mq := mqtttest.New()
	rd := redistest.New()
	m := metrics.New()
	cfg := config.NewConfig()

	agent := NewAgent(mq, rd, m, cfg, testLogger())
	require.NoError(t, mq.Subscribe(cfg.StateTopics[0], 0, agent.handleMessage))
	return agent, mq, rd, m
}

func TestAgent_StoresStateAndPublishesTrigger(t *testing.T) {
	_, mq, rd, m := newTestAgent(t)
	ctx := context.Background()

	delivered := mq.Deliver("automation/raw/state/sensor.bath_humidity",
		[]byte(`{"state":"67.5","name":"Bath humidity","attributes":{"unit_of_measurement":"%"}}`))
	require.True(t, delivered)

	st, err := sensors.NewRedisReader(rd, testLogger()).State(ctx, "sensor.bath_humidity")
	require.NoError(t, err)
	v, ok := st.Float()
	assert.True(t, ok)
	assert.Equal(t, 67.5, v)
	assert.Equal(t, "Bath humidity", st.DisplayName())
	assert.Equal(t, 24*time.Hour, rd.TTLs["state:sensor.bath_humidity"])

	triggers := mq.PublishedTo("automation/sensor/state/sensor.bath_humidity")
	require.Len(t, triggers, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(triggers[0].Payload, &payload))
	assert.Equal(t, "67.5", payload["state"])

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatesIngested))
}

func TestAgent_NewStateDropsOldAttributes(t *testing.T) {
	_, mq, rd, _ := newTestAgent(t)

	mq.Deliver("automation/raw/state/climate.heat_pump", []byte(`{"state":"heat","attributes":{"temperature":21}}`))
	mq.Deliver("automation/raw/state/climate.heat_pump", []byte(`{"state":"off"}`))

	st, err := sensors.NewRedisReader(rd, testLogger()).State(context.Background(), "climate.heat_pump")
	require.NoError(t, err)
	assert.Equal(t, "off", st.State)
	_, ok := st.FloatAttribute("temperature")
	assert.False(t, ok)
}

// splitWriteRedis fails any write made outside ReplaceHash
type splitWriteRedis struct {
	*redistest.Fake
	t *testing.T
}

func (r splitWriteRedis) Del(ctx context.Context, keys ...string) error {
	r.t.Errorf("state of %v cleared in a separate step", keys)
	return r.Fake.Del(ctx, keys...)
}

func (r splitWriteRedis) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	r.t.Errorf("state of %s written in a separate step", key)
	return r.Fake.HSet(ctx, key, fields)
}

func TestStorage_ReplacesStateInOneStep(t *testing.T) {
	rd := redistest.New()
	storage := NewStorage(splitWriteRedis{Fake: rd, t: t}, time.Hour, testLogger())
	ctx := context.Background()

	require.NoError(t, storage.StoreState(ctx, &sensors.EntityState{
		EntityID:   "binary_sensor.window",
		State:      "on",
		Attributes: map[string]interface{}{"device_class": "window"},
	}))
	require.NoError(t, storage.StoreState(ctx, &sensors.EntityState{EntityID: "binary_sensor.window", State: "off"}))

	st, err := sensors.NewRedisReader(rd, testLogger()).State(ctx, "binary_sensor.window")
	require.NoError(t, err)
	assert.Equal(t, "off", st.State)
	assert.Empty(t, st.StringAttribute("device_class"))
	assert.Equal(t, time.Hour, rd.TTLs["state:binary_sensor.window"])
}

func TestAgent_TriggerPublishedWhenStoreFails(t *testing.T) {
	_, mq, rd, m := newTestAgent(t)
	rd.Err = errors.New("redis down")

	mq.Deliver("automation/raw/state/binary_sensor.window", []byte(`{"state":"on"}`))

	assert.Len(t, mq.PublishedTo("automation/sensor/state/binary_sensor.window"), 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StatesIngested))
}

func TestAgent_InvalidMessageIgnored(t *testing.T) {
	_, mq, _, _ := newTestAgent(t)

	mq.Deliver("automation/raw/state/sensor.x", []byte(`not json`))

	assert.Empty(t, mq.Published())
}
