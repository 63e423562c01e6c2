package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: cold_room_heats
description: A cold living room turns the heat pump on
setup:
  controller: living_room
  initial_state:
    binary_sensor.living_room_window: "off"
events:
  - time: 0
    entity: sensor.living_room_temperature
    state: "19.0"
    attributes:
      unit_of_measurement: "°C"
    description: Room is cold
wait:
  - time: 65
    description: One climate tick
expectations:
  decision:
    - time: 70
      topic: automation/context/climate/living_room
      payload:
        action: "on"
        temperature: ">20"
  settings:
    - time: 70
      redis_key: climate:state:living_room
      redis_field: last_heat_pump_start
      expected: "~.+~"
  journal:
    - time: 70
      postgres_query: SELECT count(*) FROM climate_journal WHERE action = 'on'
      postgres_expected: 1
`

func TestLoadScenarioFromBytes(t *testing.T) {
	s, err := LoadScenarioFromBytes([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "cold_room_heats", s.Name)
	assert.Equal(t, "living_room", s.Setup.Controller)
	assert.Equal(t, "off", s.Setup.InitialState["binary_sensor.living_room_window"])
	require.Len(t, s.Events, 1)
	assert.Equal(t, "sensor.living_room_temperature", s.Events[0].Entity)
	assert.Equal(t, "19.0", s.Events[0].State)
	assert.Equal(t, "°C", s.Events[0].Attributes["unit_of_measurement"])
	require.Len(t, s.Expectations["decision"], 1)
	assert.Equal(t, ">20", s.Expectations["decision"][0].Payload["temperature"])
	assert.Equal(t, "climate:state:living_room#last_heat_pump_start", s.Expectations["settings"][0].Target())
	assert.Equal(t, "postgres query", s.Expectations["journal"][0].Target())
}

func TestLoadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cold.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "cold_room_heats", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func validScenario() *Scenario {
	return &Scenario{
		Name:        "s",
		Description: "d",
		Setup:       SetupConfig{Controller: "living_room"},
		Events: []StateEvent{
			{Time: 0, Entity: "sensor.t", State: "19", Description: "cold"},
		},
		Expectations: map[string][]Expectation{
			"decision": {{Time: 1, Topic: "automation/context/climate/living_room", Payload: map[string]interface{}{"action": "on"}}},
		},
	}
}

func TestValidateScenario(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Scenario)
		errMsg string
	}{
		{name: "valid", mutate: func(s *Scenario) {}},
		{name: "missing controller", mutate: func(s *Scenario) { s.Setup.Controller = "" }, errMsg: "setup.controller"},
		{name: "no events", mutate: func(s *Scenario) { s.Events = nil }, errMsg: "at least one event"},
		{name: "bad entity", mutate: func(s *Scenario) { s.Events[0].Entity = "temperature" }, errMsg: "domain.object_id"},
		{name: "missing state", mutate: func(s *Scenario) { s.Events[0].State = nil }, errMsg: "state is required"},
		{name: "negative wait", mutate: func(s *Scenario) {
			s.Wait = []WaitPeriod{{Time: -1, Description: "x"}}
		}, errMsg: "negative"},
		{name: "two targets", mutate: func(s *Scenario) {
			s.Expectations["decision"][0].RedisKey = "climate:state:living_room"
		}, errMsg: "exactly one"},
		{name: "topic without payload", mutate: func(s *Scenario) {
			s.Expectations["decision"][0].Payload = nil
		}, errMsg: "require a payload"},
		{name: "redis without field", mutate: func(s *Scenario) {
			s.Expectations["decision"] = []Expectation{{RedisKey: "k", Expected: "1"}}
		}, errMsg: "redis_field"},
		{name: "postgres without expected", mutate: func(s *Scenario) {
			s.Expectations["decision"] = []Expectation{{PostgresQuery: "SELECT 1"}}
		}, errMsg: "postgres_expected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario()
			tt.mutate(s)
			err := ValidateScenario(s)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestBundledScenariosAreValid(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}

// The dispatcher sends nothing to a heat pump it has no state for, so
// scenarios checking heat pump commands must seed it
func TestBundledScenariosSeedHeatPump(t *testing.T) {
	ctrl, err := config.LoadController(filepath.Join("..", "..", "config", "living_room.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, ctrl.Entities.HeatPump)

	paths, err := filepath.Glob(filepath.Join("..", "..", "scenarios", "*.yaml"))
	require.NoError(t, err)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err)

		for _, exps := range s.Expectations {
			for _, e := range exps {
				if !strings.HasPrefix(e.Topic, "automation/command/climate/") {
					continue
				}
				assert.Contains(t, s.Setup.InitialState, ctrl.Entities.HeatPump,
					"%s checks %s without seeding the heat pump", s.Name, e.Topic)
			}
		}
	}
}
