// Package store persists the user-adjustable controller settings in Redis
// so they survive restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// ErrNotFound is returned by Load when nothing was saved yet
var ErrNotFound = errors.New("no saved controller settings")

// Settings is the persisted part of the controller state
type Settings struct {
	Setpoints           climate.Setpoints
	SmartControlEnabled bool
	LastHeatPumpStart   time.Time

	VentEnabled       bool
	LastVentAutoRun   time.Time
	FanSpeed          int
	HumidityThreshold float64
	CycleTime         time.Duration
	RunDuration       time.Duration
}

const (
	fieldComfort         = "comfort_temp"
	fieldEco             = "eco_temp"
	fieldBoost           = "boost_temp"
	fieldCooling         = "cooling_temp"
	fieldSmartControl    = "smart_control_enabled"
	fieldLastStart       = "last_heat_pump_start"
	fieldVentEnabled     = "vent_enabled"
	fieldLastVentAutoRun = "last_vent_auto_run"
	fieldFanSpeed        = "vent_fan_speed"
	fieldHumidity        = "humidity_threshold"
	fieldCycleTime       = "vent_cycle_time_sec"
	fieldRunDuration     = "vent_run_duration_sec"
)

// Store reads and writes the settings hash of one controller
type Store struct {
	redis  redis.Client
	key    string
	logger *slog.Logger
}

// New creates a store for the named controller
func New(redisClient redis.Client, controller string, logger *slog.Logger) *Store {
	return &Store{
		redis:  redisClient,
		key:    redis.ControllerStateKey(controller),
		logger: logger,
	}
}

// Load reads the saved settings on top of defaults. Fields that are
// missing or malformed keep their default value.
func (s *Store) Load(ctx context.Context, defaults Settings) (Settings, error) {
	fields, err := s.redis.HGetAll(ctx, s.key)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return defaults, ErrNotFound
		}
		return defaults, fmt.Errorf("failed to load controller settings: %w", err)
	}

	out := defaults
	p := parser{fields: fields, logger: s.logger}

	p.floatField(fieldComfort, &out.Setpoints.Comfort)
	p.floatField(fieldEco, &out.Setpoints.Eco)
	p.floatField(fieldBoost, &out.Setpoints.Boost)
	p.floatField(fieldCooling, &out.Setpoints.Cooling)
	p.boolField(fieldSmartControl, &out.SmartControlEnabled)
	p.timeField(fieldLastStart, &out.LastHeatPumpStart)
	p.boolField(fieldVentEnabled, &out.VentEnabled)
	p.timeField(fieldLastVentAutoRun, &out.LastVentAutoRun)
	p.intField(fieldFanSpeed, &out.FanSpeed)
	p.floatField(fieldHumidity, &out.HumidityThreshold)
	p.secondsField(fieldCycleTime, &out.CycleTime)
	p.secondsField(fieldRunDuration, &out.RunDuration)

	return out, nil
}

// Save writes all settings
func (s *Store) Save(ctx context.Context, st Settings) error {
	fields := map[string]interface{}{
		fieldComfort:         formatFloat(st.Setpoints.Comfort),
		fieldEco:             formatFloat(st.Setpoints.Eco),
		fieldBoost:           formatFloat(st.Setpoints.Boost),
		fieldCooling:         formatFloat(st.Setpoints.Cooling),
		fieldSmartControl:    strconv.FormatBool(st.SmartControlEnabled),
		fieldLastStart:       formatTime(st.LastHeatPumpStart),
		fieldVentEnabled:     strconv.FormatBool(st.VentEnabled),
		fieldLastVentAutoRun: formatTime(st.LastVentAutoRun),
		fieldFanSpeed:        strconv.Itoa(st.FanSpeed),
		fieldHumidity:        formatFloat(st.HumidityThreshold),
		fieldCycleTime:       formatFloat(st.CycleTime.Seconds()),
		fieldRunDuration:     formatFloat(st.RunDuration.Seconds()),
	}

	if err := s.redis.HSet(ctx, s.key, fields); err != nil {
		return fmt.Errorf("failed to save controller settings: %w", err)
	}

	s.logger.Debug("Saved controller settings", "key", s.key)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatTime encodes a timestamp; zero is stored as ""
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type parser struct {
	fields map[string]string
	logger *slog.Logger
}

func (p parser) raw(field string) (string, bool) {
	v, ok := p.fields[field]
	return v, ok && v != ""
}

func (p parser) warn(field, value string, err error) {
	p.logger.Warn("Ignoring malformed saved setting", "field", field, "value", value, "error", err)
}

func (p parser) floatField(field string, dst *float64) {
	v, ok := p.raw(field)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.warn(field, v, err)
		return
	}
	*dst = f
}

func (p parser) intField(field string, dst *int) {
	v, ok := p.raw(field)
	if !ok {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.warn(field, v, err)
		return
	}
	*dst = i
}

func (p parser) boolField(field string, dst *bool) {
	v, ok := p.raw(field)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.warn(field, v, err)
		return
	}
	*dst = b
}

func (p parser) secondsField(field string, dst *time.Duration) {
	secs := dst.Seconds()
	p.floatField(field, &secs)
	*dst = time.Duration(secs * float64(time.Second))
}

// timeField decodes a timestamp; an empty field clears it
func (p parser) timeField(field string, dst *time.Time) {
	v, present := p.fields[field]
	if !present {
		return
	}
	if v == "" {
		*dst = time.Time{}
		return
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		p.warn(field, v, err)
		return
	}
	*dst = t
}
