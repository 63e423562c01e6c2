package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ControllerConfig describes one climate/ventilation controller: which
// entities it reads and drives and how its rules are tuned.
type ControllerConfig struct {
	Name        string            `yaml:"name"`
	Entities    EntityConfig      `yaml:"entities"`
	Climate     ClimateTuning     `yaml:"climate"`
	Ventilation VentilationTuning `yaml:"ventilation"`
	Dispatch    DispatchTuning    `yaml:"dispatch"`
}

// EntityConfig maps controller roles to entity ids
type EntityConfig struct {
	HeatPump         string   `yaml:"heat_pump"`
	HeatPumpContact  string   `yaml:"heat_pump_contact"`
	RoomSensor       string   `yaml:"room_sensor"`
	OutsideSensor    string   `yaml:"outside_sensor"`
	AverageSensor    string   `yaml:"average_sensor"`
	DoorSensor       string   `yaml:"door_sensor"`
	WindowSensors    []string `yaml:"window_sensors"`
	BedSensors       []string `yaml:"bed_sensors"`
	PresenceTracker  string   `yaml:"presence_tracker"`
	FanGroupA        []string `yaml:"fan_group_a"`
	FanGroupB        []string `yaml:"fan_group_b"`
	HumiditySensorsA []string `yaml:"humidity_sensors_a"`
	HumiditySensorsB []string `yaml:"humidity_sensors_b"`
}

// Openings returns the window sensors followed by the door sensor
func (e EntityConfig) Openings() []string {
	openings := make([]string, 0, len(e.WindowSensors)+1)
	openings = append(openings, e.WindowSensors...)
	if e.DoorSensor != "" {
		openings = append(openings, e.DoorSensor)
	}
	return openings
}

// ClimateTuning holds setpoints and thresholds of the heating/cooling rules
type ClimateTuning struct {
	ComfortTemp       float64  `yaml:"comfort_temp"`
	EcoTemp           float64  `yaml:"eco_temp"`
	BoostTemp         float64  `yaml:"boost_temp"`
	CoolingTemp       float64  `yaml:"cooling_temp"`
	DeadbandBelow     float64  `yaml:"deadband_below"`
	DeadbandAbove     float64  `yaml:"deadband_above"`
	MaxHouseTemp      float64  `yaml:"max_house_temp"`
	WeatherCompFactor float64  `yaml:"weather_comp_factor"`
	MaxCompTemp       float64  `yaml:"max_comp_temp"`
	MinCompTemp       float64  `yaml:"min_comp_temp"`
	ComfortOffset     float64  `yaml:"comfort_temp_offset"`
	LowTempThreshold  float64  `yaml:"low_temp_threshold"`
	SafetyCutoff      float64  `yaml:"safety_cutoff"`
	WindowDelay       Duration `yaml:"window_delay"`
	MinRunTime        Duration `yaml:"min_run_time"`
}

// VentilationTuning holds the fan cycling parameters
type VentilationTuning struct {
	CycleTime         Duration `yaml:"cycle_time"`
	RunDuration       Duration `yaml:"run_duration"`
	MaxDuration       Duration `yaml:"max_duration"`
	HumidityThreshold float64  `yaml:"humidity_threshold"`
	AutoInterval      Duration `yaml:"auto_interval"`
	FanSpeed          int      `yaml:"fan_speed"`
}

// DispatchTuning holds actuator retry timing
type DispatchTuning struct {
	Attempts      int      `yaml:"attempts"`
	OnSettle      Duration `yaml:"on_settle"`
	OnRetryPause  Duration `yaml:"on_retry_pause"`
	OffSettle     Duration `yaml:"off_settle"`
	OffRetryPause Duration `yaml:"off_retry_pause"`
	ContactSettle Duration `yaml:"contact_settle"`
}

// DefaultControllerConfig returns the factory tuning with an empty entity map
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Name: "smart_climate",
		Climate: ClimateTuning{
			ComfortTemp:       20.0,
			EcoTemp:           18.0,
			BoostTemp:         23.0,
			CoolingTemp:       22.0,
			DeadbandBelow:     0.5,
			DeadbandAbove:     0.5,
			MaxHouseTemp:      25.0,
			WeatherCompFactor: 0.5,
			MaxCompTemp:       25.0,
			MinCompTemp:       16.0,
			ComfortOffset:     0.5,
			LowTempThreshold:  5.0,
			SafetyCutoff:      1.0,
			WindowDelay:       Duration(time.Minute),
			MinRunTime:        Duration(30 * time.Minute),
		},
		Ventilation: VentilationTuning{
			CycleTime:         Duration(75 * time.Second),
			RunDuration:       Duration(60 * time.Minute),
			MaxDuration:       Duration(120 * time.Minute),
			HumidityThreshold: 60.0,
			AutoInterval:      Duration(12 * time.Hour),
			FanSpeed:          50,
		},
		Dispatch: DispatchTuning{
			Attempts:      3,
			OnSettle:      Duration(8 * time.Second),
			OnRetryPause:  Duration(3 * time.Second),
			OffSettle:     Duration(12 * time.Second),
			OffRetryPause: Duration(5 * time.Second),
			ContactSettle: Duration(20 * time.Second),
		},
	}
}

// LoadController reads a controller YAML file on top of the defaults
func LoadController(path string) (*ControllerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read controller file: %w", err)
	}
	return ParseController(data)
}

// ParseController parses controller YAML on top of the defaults
func ParseController(data []byte) (*ControllerConfig, error) {
	controller := DefaultControllerConfig()
	if err := yaml.Unmarshal(data, &controller); err != nil {
		return nil, fmt.Errorf("failed to parse controller YAML: %w", err)
	}

	if err := controller.Validate(); err != nil {
		return nil, fmt.Errorf("controller validation failed: %w", err)
	}

	return &controller, nil
}

// Validate checks the entity map and tuning for values the rules cannot work with
func (c *ControllerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("controller name is required")
	}
	if c.Entities.HeatPump == "" {
		return fmt.Errorf("heat_pump entity is required")
	}
	if c.Entities.RoomSensor == "" {
		return fmt.Errorf("room_sensor entity is required")
	}
	if c.Climate.DeadbandBelow < 0 || c.Climate.DeadbandAbove < 0 {
		return fmt.Errorf("deadbands must not be negative")
	}
	if c.Climate.MinCompTemp > c.Climate.MaxCompTemp {
		return fmt.Errorf("min_comp_temp %.1f is above max_comp_temp %.1f", c.Climate.MinCompTemp, c.Climate.MaxCompTemp)
	}
	if c.Ventilation.CycleTime <= 0 {
		return fmt.Errorf("ventilation cycle_time must be positive")
	}
	if c.Ventilation.FanSpeed < 0 || c.Ventilation.FanSpeed > 100 {
		return fmt.Errorf("fan_speed must be between 0 and 100")
	}
	if c.Dispatch.Attempts <= 0 {
		return fmt.Errorf("dispatch attempts must be positive")
	}
	return nil
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
