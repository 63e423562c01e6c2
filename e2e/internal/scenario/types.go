package scenario

import "time"

// Scenario is a scripted run against a live climate stack: entity states
// are published, then the published commands, stored settings and journal
// rows are checked.
type Scenario struct {
	Name         string                   `yaml:"name"`
	Description  string                   `yaml:"description"`
	Setup        SetupConfig              `yaml:"setup"`
	Events       []StateEvent             `yaml:"events"`
	Wait         []WaitPeriod             `yaml:"wait"`
	Expectations map[string][]Expectation `yaml:"expectations"`
}

// SetupConfig names the controller under test and the states published
// before the first event
type SetupConfig struct {
	Controller   string                 `yaml:"controller"`
	InitialState map[string]interface{} `yaml:"initial_state"`
}

// StateEvent is one entity state published on the raw state topic
type StateEvent struct {
	Time        int                    `yaml:"time"` // Seconds from start
	Entity      string                 `yaml:"entity"`
	State       interface{}            `yaml:"state"`
	Attributes  map[string]interface{} `yaml:"attributes,omitempty"`
	Description string                 `yaml:"description"`
}

// WaitPeriod represents a pause in the scenario
type WaitPeriod struct {
	Time        int    `yaml:"time"` // Seconds from start
	Description string `yaml:"description"`
}

// Expectation is one check. Exactly one of Topic, RedisKey or
// PostgresQuery selects what is checked.
type Expectation struct {
	Time    int                    `yaml:"time"`
	Topic   string                 `yaml:"topic,omitempty"`
	Payload map[string]interface{} `yaml:"payload,omitempty"` // supports matchers, see checker

	RedisKey   string `yaml:"redis_key,omitempty"`
	RedisField string `yaml:"redis_field,omitempty"`
	Expected   string `yaml:"expected,omitempty"`

	PostgresQuery    string      `yaml:"postgres_query,omitempty"`
	PostgresExpected interface{} `yaml:"postgres_expected,omitempty"`
}

// Target describes what an expectation looks at
func (e Expectation) Target() string {
	switch {
	case e.PostgresQuery != "":
		return "postgres query"
	case e.RedisKey != "":
		return e.RedisKey + "#" + e.RedisField
	default:
		return e.Topic
	}
}

// TestResult represents the outcome of running a scenario
type TestResult struct {
	Scenario     *Scenario           `json:"-"`
	Name         string              `json:"name"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      time.Time           `json:"end_time"`
	Passed       bool                `json:"passed"`
	PassedCount  int                 `json:"passed_count"`
	FailedCount  int                 `json:"failed_count"`
	Expectations []ExpectationResult `json:"expectations"`
}

// ExpectationResult represents the result of checking a single expectation
type ExpectationResult struct {
	Layer       string      `json:"layer"`
	Expectation Expectation `json:"expectation"`
	Passed      bool        `json:"passed"`
	Reason      string      `json:"reason,omitempty"`
	Actual      interface{} `json:"actual,omitempty"`
}
