// Package coordinator runs a climate and ventilation controller: it owns
// the controller state, reads sensors on every tick, applies the decision
// rules and drives the heat pump and fans.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/actuator"
	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/journal"
	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/internal/store"
	"github.com/saaga0h/jeeves-climate/internal/ventilation"
	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// Option customises an Agent
type Option func(*Agent)

// WithReader replaces the Redis-backed sensor reader
func WithReader(r sensors.Reader) Option {
	return func(a *Agent) { a.reader = r }
}

// WithCaller replaces the MQTT service caller
func WithCaller(c actuator.ServiceCaller) Option {
	return func(a *Agent) { a.caller = c }
}

// WithJournal records decisions and ventilation events
func WithJournal(j journal.Recorder) Option {
	return func(a *Agent) { a.journal = j }
}

// WithMetrics records controller metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// Agent is the climate and ventilation controller of one room.
//
// tickMu serialises heat pump control and is held for a whole climate
// tick, retries included. climateMu guards the climate state and is only
// held briefly, so Status never waits on the heat pump. Lock order is
// tickMu, then climateMu or ventMu, then persistMu.
type Agent struct {
	mqtt    mqtt.Client
	redis   redis.Client
	cfg     *config.Config
	logger  *slog.Logger
	name    string
	reader  sensors.Reader
	caller  actuator.ServiceCaller
	journal journal.Recorder
	metrics *metrics.Metrics
	store   *store.Store
	now     func() time.Time

	tickMu          sync.Mutex
	climateMu       sync.Mutex
	climate         climate.State
	climateSettings climate.Settings
	dispatcher      *actuator.Dispatcher
	controlActive   bool
	lastDecision    *climate.Decision
	status          string

	ventMu       sync.Mutex
	vent         ventilation.State
	ventSettings ventilation.Settings
	machine      *ventilation.Machine
	fans         *actuator.FanDriver
	humidity     ventilation.Inputs

	persistMu sync.Mutex
	persisted store.Settings

	// runCtx is cancelled on Stop and interrupts ticks waiting on actuators
	runCtx    context.Context
	cancelRun context.CancelFunc
	lifeMu    sync.Mutex
	stopping  bool

	climateTicker *time.Ticker
	ventTicker    *time.Ticker
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// NewAgent creates the controller described by cfg.Controller
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, cfg *config.Config, logger *slog.Logger, opts ...Option) *Agent {
	ctrl := cfg.Controller

	a := &Agent{
		mqtt:            mqttClient,
		redis:           redisClient,
		cfg:             cfg,
		logger:          logger,
		name:            ctrl.Name,
		now:             time.Now,
		climate:         climate.NewState(climate.ConfiguredSetpoints(ctrl.Climate)),
		climateSettings: climate.NewSettings(ctrl.Climate),
		vent:            ventilation.NewState(ctrl.Ventilation.FanSpeed),
		ventSettings:    ventilation.NewSettings(ctrl.Ventilation),
		status:          "Initializing",
		stopChan:        make(chan struct{}),
	}

	a.runCtx, a.cancelRun = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(a)
	}

	if a.reader == nil {
		a.reader = sensors.NewRedisReader(redisClient, logger.With("component", "sensors"))
	}
	if a.caller == nil {
		a.caller = actuator.NewMQTTCaller(mqttClient, logger.With("component", "caller"))
	}

	a.store = store.New(redisClient, a.name, logger.With("component", "store"))
	a.dispatcher = actuator.NewDispatcher(a.caller, a.reader, ctrl.Entities,
		actuator.NewTiming(ctrl.Dispatch), a.climateSettings.MinRuntime,
		logger.With("component", "dispatcher"))
	a.dispatcher.OnStart = a.recordHeatPumpStart
	a.fans = actuator.NewFanDriver(a.caller, ctrl.Entities, logger.With("component", "fans"))
	a.machine = ventilation.NewMachine(&a.vent)
	a.persisted = a.snapshotLocked()

	return a
}

// Start restores the saved settings, subscribes to window triggers and
// runs both tick loops until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting climate agent",
		"service_name", a.cfg.ServiceName,
		"controller", a.name,
		"heat_pump", a.cfg.Controller.Entities.HeatPump,
		"climate_interval_sec", a.cfg.ClimateIntervalSec,
		"ventilation_interval_sec", a.cfg.VentilationIntervalSec)

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	a.logger.Info("Connected to Redis", "address", a.cfg.RedisAddress())

	a.Restore(ctx)

	if err := a.mqtt.Subscribe(mqtt.TopicStateTriggers, 0, a.handleStateTrigger); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", mqtt.TopicStateTriggers, err)
	}
	a.logger.Info("Subscribed to entity state triggers", "topic", mqtt.TopicStateTriggers)

	a.startLoops()

	a.logger.Info("Climate agent started and ready")

	<-ctx.Done()
	a.logger.Info("Climate agent stopping")
	a.cancelRun()

	return nil
}

// Stop ends both loops, stops the fans, releases the heat pump and
// disconnects
func (a *Agent) Stop() error {
	a.logger.Info("Stopping climate agent")

	a.lifeMu.Lock()
	a.stopping = true
	if a.climateTicker != nil {
		a.climateTicker.Stop()
	}
	if a.ventTicker != nil {
		a.ventTicker.Stop()
	}
	a.lifeMu.Unlock()

	a.cancelRun()
	close(a.stopChan)
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Unload(ctx)

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Climate agent stopped")
	return nil
}

// Unload stops a running ventilation cycle and releases the heat pump
func (a *Agent) Unload(ctx context.Context) {
	a.ventMu.Lock()
	if a.vent.Running() {
		out, err := a.machine.Stop("Controller stopped", a.now())
		if err != nil {
			a.logger.Error("Failed to stop ventilation", "error", err)
		}
		a.fans.Execute(ctx, out.Commands)
	}
	a.ventMu.Unlock()

	a.tickMu.Lock()
	defer a.tickMu.Unlock()

	a.climateMu.Lock()
	a.controlActive = false
	a.climate.Action = climate.ActionOff
	a.climateMu.Unlock()

	if err := a.dispatcher.Release(ctx); err != nil {
		a.logger.Error("Failed to release heat pump", "error", err)
	}
}

// Restore loads the saved settings. Missing or unreadable settings keep
// the configured defaults.
func (a *Agent) Restore(ctx context.Context) {
	a.climateMu.Lock()
	defer a.climateMu.Unlock()
	a.ventMu.Lock()
	defer a.ventMu.Unlock()

	saved, err := a.store.Load(ctx, a.snapshotLocked())
	switch {
	case errors.Is(err, store.ErrNotFound):
		a.logger.Info("No saved controller settings, using defaults", "controller", a.name)
		return
	case err != nil:
		a.logger.Warn("Failed to load saved controller settings, using defaults", "error", err)
		return
	}

	a.climate.Setpoints = saved.Setpoints
	a.climate.SmartControlEnabled = saved.SmartControlEnabled
	a.climate.LastHeatPumpStart = saved.LastHeatPumpStart

	a.vent.Enabled = saved.VentEnabled
	a.vent.LastAutoRun = saved.LastVentAutoRun
	a.vent.FanSpeed = saved.FanSpeed
	a.ventSettings.HumidityThreshold = saved.HumidityThreshold
	a.ventSettings.CycleTime = saved.CycleTime
	a.ventSettings.RunDuration = saved.RunDuration

	a.persistMu.Lock()
	a.persisted = saved
	a.persistMu.Unlock()

	a.logger.Info("Restored controller settings",
		"controller", a.name,
		"smart_control_enabled", saved.SmartControlEnabled,
		"ventilation_enabled", saved.VentEnabled,
		"comfort_temp", saved.Setpoints.Comfort,
		"eco_temp", saved.Setpoints.Eco)
}

func (a *Agent) startLoops() {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.stopping {
		return
	}

	a.climateTicker = time.NewTicker(time.Duration(a.cfg.ClimateIntervalSec) * time.Second)
	a.ventTicker = time.NewTicker(time.Duration(a.cfg.VentilationIntervalSec) * time.Second)

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.logger.Info("Starting climate loop", "interval_sec", a.cfg.ClimateIntervalSec)
		a.ClimateTick(a.runCtx)
		for {
			select {
			case <-a.climateTicker.C:
				a.ClimateTick(a.runCtx)
			case <-a.stopChan:
				return
			}
		}
	}()

	go func() {
		defer a.wg.Done()
		a.logger.Info("Starting ventilation loop", "interval_sec", a.cfg.VentilationIntervalSec)
		for {
			select {
			case <-a.ventTicker.C:
				a.VentilationTick(a.runCtx)
			case <-a.stopChan:
				return
			}
		}
	}()
}

// goTick runs tick on the agent context in a tracked goroutine. Nothing
// runs once the agent is stopping.
func (a *Agent) goTick(tick func(ctx context.Context)) bool {
	a.lifeMu.Lock()
	defer a.lifeMu.Unlock()
	if a.stopping {
		return false
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		tick(a.runCtx)
	}()
	return true
}

// stopped reports whether Stop was called or the Start context ended
func (a *Agent) stopped() bool {
	return a.runCtx.Err() != nil
}

// handleStateTrigger runs an immediate climate tick when a window or door changes
func (a *Agent) handleStateTrigger(msg mqtt.Message) {
	entityID, err := mqtt.EntityFromTopic(msg.Topic())
	if err != nil {
		a.logger.Warn("Invalid state trigger topic", "topic", msg.Topic())
		return
	}

	if !a.isOpening(entityID) {
		return
	}

	a.logger.Debug("Window sensor changed, triggering immediate update", "entity_id", entityID)
	if !a.goTick(a.ClimateTick) {
		a.logger.Debug("Agent stopping, window trigger ignored", "entity_id", entityID)
	}
}

func (a *Agent) isOpening(entityID string) bool {
	for _, id := range a.cfg.Controller.Entities.Openings() {
		if id == entityID {
			return true
		}
	}
	return false
}

// persist merges a change into the saved settings and writes them.
// Callers may hold climateMu or ventMu; persistMu is always taken last.
func (a *Agent) persist(ctx context.Context, update func(*store.Settings)) {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()

	update(&a.persisted)
	if err := a.store.Save(ctx, a.persisted); err != nil {
		a.logger.Warn("Failed to save controller settings", "error", err)
	}
}

// snapshotLocked builds the persisted settings from the live state.
// Both climateMu and ventMu must be held, or the agent not yet running.
func (a *Agent) snapshotLocked() store.Settings {
	return store.Settings{
		Setpoints:           a.climate.Setpoints,
		SmartControlEnabled: a.climate.SmartControlEnabled,
		LastHeatPumpStart:   a.climate.LastHeatPumpStart,
		VentEnabled:         a.vent.Enabled,
		LastVentAutoRun:     a.vent.LastAutoRun,
		FanSpeed:            a.vent.FanSpeed,
		HumidityThreshold:   a.ventSettings.HumidityThreshold,
		CycleTime:           a.ventSettings.CycleTime,
		RunDuration:         a.ventSettings.RunDuration,
	}
}

// recordHeatPumpStart is the dispatcher hook for starts the rules did not record.
// It runs inside a climate tick, with tickMu held.
func (a *Agent) recordHeatPumpStart(ctx context.Context, at time.Time) {
	a.climateMu.Lock()
	defer a.climateMu.Unlock()

	a.climate.LastHeatPumpStart = at
	a.persist(ctx, func(s *store.Settings) { s.LastHeatPumpStart = at })
}
