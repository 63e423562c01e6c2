package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/saaga0h/jeeves-climate/internal/actuator"
	"github.com/saaga0h/jeeves-climate/internal/actuator/actuatortest"
	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/journal"
	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/internal/sensors/sensorstest"
	"github.com/saaga0h/jeeves-climate/internal/store"
	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt/mqtttest"
	"github.com/saaga0h/jeeves-climate/pkg/redis/redistest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	heatPump     = "climate.living_room"
	roomSensor   = "sensor.living_room_temperature"
	window       = "binary_sensor.living_room_window"
	bathHumid    = "sensor.bathroom_humidity"
	controller   = "living_room"
	climateTopic = "automation/context/climate/living_room"
	ventTopic    = "automation/context/ventilation/living_room"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
}

func (j *memoryJournal) Record(ctx context.Context, e journal.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, e)
	return nil
}

func (j *memoryJournal) Entries() []journal.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]journal.Entry(nil), j.entries...)
}

type fixture struct {
	agent   *Agent
	mem     *sensorstest.Memory
	rec     *actuatortest.Recorder
	mqtt    *mqtttest.Fake
	redis   *redistest.Fake
	journal *memoryJournal
	metrics *metrics.Metrics
	now     time.Time
}

func (f *fixture) clock() time.Time { return f.now }

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Controller.Name = controller
	cfg.Controller.Entities = config.EntityConfig{
		HeatPump:         heatPump,
		RoomSensor:       roomSensor,
		WindowSensors:    []string{window},
		FanGroupA:        []string{"fan.bathroom"},
		FanGroupB:        []string{"fan.bedroom"},
		HumiditySensorsA: []string{bathHumid},
	}
	cfg.Controller.Dispatch = config.DispatchTuning{Attempts: 1}
	return cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		mem:     sensorstest.New(),
		rec:     &actuatortest.Recorder{},
		mqtt:    mqtttest.New(),
		redis:   redistest.New(),
		journal: &memoryJournal{},
		metrics: metrics.New(),
		now:     time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC),
	}

	f.mem.Set(heatPump, "off")
	f.rec.OnCall = func(call actuator.ServiceCall) {
		switch call.String() {
		case "climate.set_temperature":
			f.mem.SetWithAttributes(heatPump, call.Data["hvac_mode"].(string), map[string]interface{}{
				"temperature": call.Data["temperature"],
				"hvac_action": "heating",
			})
		case "climate.turn_off":
			f.mem.Set(heatPump, "off")
		}
	}

	f.agent = NewAgent(f.mqtt, f.redis, testConfig(), testLogger(),
		WithReader(f.mem),
		WithCaller(f.rec),
		WithJournal(f.journal),
		WithMetrics(f.metrics),
		WithClock(f.clock))
	return f
}

func (f *fixture) decisions(t *testing.T) []DecisionEvent {
	t.Helper()
	var out []DecisionEvent
	for _, p := range f.mqtt.PublishedTo(climateTopic) {
		var ev DecisionEvent
		require.NoError(t, json.Unmarshal(p.Payload, &ev))
		out = append(out, ev)
	}
	return out
}

func (f *fixture) statusText() string {
	f.agent.climateMu.Lock()
	defer f.agent.climateMu.Unlock()
	return f.agent.status
}

func (f *fixture) savedSettings(t *testing.T) store.Settings {
	t.Helper()
	saved, err := store.New(f.redis, controller, testLogger()).Load(context.Background(), store.Settings{})
	require.NoError(t, err)
	return saved
}

func TestClimateTick_HeatsColdRoom(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")

	f.agent.ClimateTick(context.Background())

	calls := f.rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "climate.set_temperature", calls[0].String())
	assert.Equal(t, 20.5, calls[0].Data["temperature"])
	assert.Equal(t, "heat", calls[0].Data["hvac_mode"])

	events := f.decisions(t)
	require.Len(t, events, 1)
	assert.Equal(t, climate.ActionOn, events[0].Action)
	assert.Equal(t, 0.5, events[0].ComfortOffsetApplied)
	assert.Equal(t, 30, events[0].MinRuntimeRemainingMinutes)
	assert.NotEmpty(t, events[0].EventID)

	assert.True(t, f.savedSettings(t).LastHeatPumpStart.Equal(f.now))

	entries := f.journal.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, journal.KindClimate, entries[0].Kind)
	assert.Equal(t, "on", entries[0].Action)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues(controller, "on")))
	assert.Equal(t, 19.0, testutil.ToFloat64(f.metrics.RoomTemperature.WithLabelValues(controller)))
}

func TestClimateTick_IdempotentAcrossTicks(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")

	f.agent.ClimateTick(context.Background())
	f.now = f.now.Add(time.Minute)
	f.agent.ClimateTick(context.Background())

	assert.Len(t, f.rec.Calls(), 1)
	assert.Len(t, f.decisions(t), 2, "every tick publishes its decision")
	assert.Len(t, f.journal.Entries(), 1, "only dispatched decisions are journaled")
}

func TestClimateTick_SmartControlDisabledReleasesOnce(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")
	ctx := context.Background()

	f.agent.ClimateTick(ctx)
	f.rec.Reset()

	f.agent.EnableSmartControl(ctx, false)
	assert.Equal(t, []string{"climate.turn_off"}, f.rec.Services())

	f.agent.ClimateTick(ctx)
	assert.Equal(t, []string{"climate.turn_off"}, f.rec.Services())

	st := f.agent.Status(ctx)
	assert.Equal(t, "Smart control disabled", st.Status)
	assert.Equal(t, "Disabled", st.Mode)
	assert.Equal(t, climate.ActionOff, st.CurrentAction)
	assert.False(t, f.savedSettings(t).SmartControlEnabled)

	f.rec.Reset()
	f.agent.EnableSmartControl(ctx, true)
	assert.Equal(t, []string{"climate.set_temperature"}, f.rec.Services(),
		"the forgotten command is sent again")
}

type panickyReader struct {
	sensors.Reader
	mu    sync.Mutex
	panic bool
}

func (p *panickyReader) State(ctx context.Context, id string) (*sensors.EntityState, error) {
	p.mu.Lock()
	fail := p.panic
	p.mu.Unlock()
	if fail {
		panic("sensor backend exploded")
	}
	return p.Reader.State(ctx, id)
}

func TestClimateTick_RecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")
	reader := &panickyReader{Reader: f.mem, panic: true}
	f.agent.reader = reader

	f.agent.ClimateTick(context.Background())

	assert.Equal(t, "Error: panic: sensor backend exploded", f.statusText())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TickErrors.WithLabelValues(controller, "climate")))

	reader.mu.Lock()
	reader.panic = false
	reader.mu.Unlock()

	f.agent.ClimateTick(context.Background())
	assert.Contains(t, f.statusText(), "ON | Comfort")
}

func TestClimateTick_DispatchErrorSurfacesInStatus(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")
	f.agent.dispatcher = actuator.NewDispatcher(f.rec, failingReader{}, testConfig().Controller.Entities,
		actuator.Timing{Attempts: 1}, 30*time.Minute, testLogger())

	f.agent.ClimateTick(context.Background())

	assert.Contains(t, f.agent.Status(context.Background()).Status, "Error: failed to control heat pump")
}

type failingReader struct{}

func (failingReader) State(ctx context.Context, id string) (*sensors.EntityState, error) {
	return nil, errors.New("redis: connection refused")
}

func TestWindowTrigger(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.agent.isOpening(window))
	assert.False(t, f.agent.isOpening(roomSensor))

	f.mem.Set(roomSensor, "19.0")
	require.NoError(t, f.mqtt.Subscribe("automation/sensor/state/+", 0, f.agent.handleStateTrigger))
	f.mqtt.Deliver("automation/sensor/state/"+window, []byte(`{"state":"off"}`))

	assert.Eventually(t, func() bool {
		return len(f.rec.Calls()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServices_ModeSwitches(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "17.0")
	ctx := context.Background()
	on, off := true, false

	require.NoError(t, f.agent.CallService(ctx, ServiceForceEco, ServiceRequest{}))
	st := f.agent.Status(ctx)
	assert.Equal(t, "Force Eco", st.Mode)
	assert.Equal(t, 18.0, st.TargetTemperature)
	assert.Equal(t, 18.0, f.rec.Calls()[0].Data["temperature"], "no comfort offset in eco")

	require.NoError(t, f.agent.CallService(ctx, ServiceOverride, ServiceRequest{Enable: &on}))
	st = f.agent.Status(ctx)
	assert.Equal(t, "Force Comfort", st.Mode)
	assert.False(t, st.ForceEco)

	require.NoError(t, f.agent.CallService(ctx, ServiceOverride, ServiceRequest{Enable: &off}))
	require.NoError(t, f.agent.CallService(ctx, ServiceCoolingMode, ServiceRequest{Enable: &on}))
	st = f.agent.Status(ctx)
	assert.Equal(t, climate.ModeCool, st.HVACMode)
	assert.Equal(t, 22.0, st.TargetTemperature)
	assert.Equal(t, "Cooling", st.Mode)

	require.NoError(t, f.agent.CallService(ctx, ServiceCoolingMode, ServiceRequest{Enable: &off}))
	assert.Equal(t, climate.ModeHeat, f.agent.Status(ctx).HVACMode)
}

func TestServices_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.agent.CallService(ctx, "make_coffee", ServiceRequest{}), ErrUnknownService)
	assert.ErrorIs(t, f.agent.SetSetpoint(ctx, "comfort", 30), ErrInvalidValue)
	assert.ErrorIs(t, f.agent.SetSetpoint(ctx, "tropical", 20), ErrUnknownService)
	assert.ErrorIs(t, f.agent.SetVentilationParam(ctx, "fan_speed", 5), ErrInvalidValue)
	assert.ErrorIs(t, f.agent.CallService(ctx, ServiceTriggerVentilation, ServiceRequest{Duration: -1}), ErrInvalidValue)
}

func TestServices_SetpointsPersistAndReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.agent.SetSetpoint(ctx, "comfort", 21.5))
	require.NoError(t, f.agent.SetSetpoint(ctx, "cooling", 24))
	assert.Equal(t, 21.5, f.savedSettings(t).Setpoints.Comfort)
	assert.Equal(t, 24.0, f.agent.Status(ctx).Setpoints.Cooling)

	f.agent.cfg.Controller.Climate.ComfortTemp = 22.5
	require.NoError(t, f.agent.CallService(ctx, ServiceResetTemperatures, ServiceRequest{}))
	saved := f.savedSettings(t)
	assert.Equal(t, 20.0, saved.Setpoints.Comfort, "factory setpoint, not the controller file")
	assert.Equal(t, 22.0, saved.Setpoints.Cooling)
	assert.Equal(t, 20.0, f.agent.Status(ctx).Setpoints.Comfort)
}

func TestServices_RunOnAgentContext(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")
	f.agent.dispatcher = actuator.NewDispatcher(f.rec, f.mem, testConfig().Controller.Entities,
		actuator.Timing{Attempts: 1, OnSettle: 10 * time.Millisecond}, 30*time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.agent.SetSetpoint(ctx, "comfort", 21))

	assert.Equal(t, []string{"climate.set_temperature"}, f.rec.Services())
	assert.True(t, f.agent.dispatcher.Last().Valid)
	assert.NotContains(t, f.statusText(), "Error")
}

func TestStatus_DoesNotWaitForHeatPump(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")
	ent := testConfig().Controller.Entities
	ent.HeatPumpContact = "binary_sensor.heat_pump_power"
	f.mem.Set(ent.HeatPumpContact, "off")
	f.agent.dispatcher = actuator.NewDispatcher(f.rec, f.mem, ent,
		actuator.Timing{Attempts: 1, ContactSettle: time.Hour}, 30*time.Minute, testLogger())

	done := make(chan struct{})
	go func() {
		f.agent.ClimateTick(f.agent.runCtx)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return len(f.rec.Calls()) == 1
	}, time.Second, 5*time.Millisecond)

	got := make(chan Status, 1)
	go func() { got <- f.agent.Status(context.Background()) }()

	select {
	case st := <-got:
		assert.Equal(t, climate.ActionOn, st.CurrentAction)
		assert.Contains(t, st.Status, "ON | Comfort")
		assert.True(t, st.LastCommand.Valid)
	case <-time.After(time.Second):
		t.Fatal("status blocked while the tick waits on the contact sensor")
	}

	f.agent.cancelRun()
	<-done
	assert.Equal(t, []string{"climate.set_temperature"}, f.rec.Services())
}

func TestStop_InterruptsDispatchAndReleases(t *testing.T) {
	f := newFixture(t)
	f.mem.Set(roomSensor, "19.0")
	f.rec.OnCall = nil
	f.agent.dispatcher = actuator.NewDispatcher(f.rec, f.mem, testConfig().Controller.Entities,
		actuator.Timing{Attempts: 3, OnSettle: time.Hour}, 30*time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan error, 1)
	go func() { started <- f.agent.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(f.rec.Calls()) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-started)

	stopped := make(chan error, 1)
	go func() { stopped <- f.agent.Stop() }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop waited for the heat pump retries")
	}

	assert.Equal(t, []string{"climate.set_temperature", "climate.turn_off"}, f.rec.Services())

	f.rec.Reset()
	assert.False(t, f.agent.goTick(f.agent.ClimateTick), "no ticks start once stopped")
	f.agent.ClimateTick(context.Background())
	assert.Empty(t, f.rec.Calls(), "a late tick does not command the heat pump again")
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved := f.agent.snapshotLocked()
	saved.Setpoints.Eco = 17
	saved.VentEnabled = false
	saved.FanSpeed = 80
	saved.CycleTime = 120 * time.Second
	require.NoError(t, store.New(f.redis, controller, testLogger()).Save(ctx, saved))

	f.agent.Restore(ctx)

	st := f.agent.Status(ctx)
	assert.Equal(t, 17.0, st.Setpoints.Eco)
	assert.False(t, st.Ventilation.Enabled)
	assert.Equal(t, "Disabled", st.Ventilation.Status)
	assert.Equal(t, 80, st.Ventilation.FanSpeed)
	assert.Equal(t, 120.0, st.Ventilation.CycleTimeSec)
}

func TestRestore_NothingSavedKeepsDefaults(t *testing.T) {
	f := newFixture(t)
	f.agent.Restore(context.Background())

	st := f.agent.Status(context.Background())
	assert.Equal(t, 20.0, st.Setpoints.Comfort)
	assert.True(t, st.SmartControlEnabled)
	assert.True(t, st.Ventilation.Enabled)
}
