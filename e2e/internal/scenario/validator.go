package scenario

import (
	"fmt"
	"strings"
)

// ValidateScenario performs validation checks on a loaded scenario
func ValidateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("scenario description is required")
	}
	if s.Setup.Controller == "" {
		return fmt.Errorf("setup.controller is required")
	}

	if err := validateEvents(s.Events); err != nil {
		return fmt.Errorf("events validation failed: %w", err)
	}
	if err := validateWaitPeriods(s.Wait); err != nil {
		return fmt.Errorf("wait periods validation failed: %w", err)
	}
	if err := validateExpectations(s.Expectations); err != nil {
		return fmt.Errorf("expectations validation failed: %w", err)
	}

	return nil
}

func validateEvents(events []StateEvent) error {
	if len(events) == 0 {
		return fmt.Errorf("at least one event is required")
	}

	for i, event := range events {
		if event.Time < 0 {
			return fmt.Errorf("event %d: time cannot be negative", i)
		}
		if event.Entity == "" || !strings.Contains(event.Entity, ".") {
			return fmt.Errorf("event %d: entity must look like domain.object_id, got %q", i, event.Entity)
		}
		if event.State == nil {
			return fmt.Errorf("event %d: state is required", i)
		}
		if event.Description == "" {
			return fmt.Errorf("event %d: description is required", i)
		}
	}

	return nil
}

func validateWaitPeriods(waits []WaitPeriod) error {
	for i, wait := range waits {
		if wait.Time < 0 {
			return fmt.Errorf("wait period %d: time cannot be negative", i)
		}
		if wait.Description == "" {
			return fmt.Errorf("wait period %d: description is required", i)
		}
	}
	return nil
}

func validateExpectations(expectations map[string][]Expectation) error {
	if len(expectations) == 0 {
		return fmt.Errorf("at least one expectation is required")
	}

	for layer, exps := range expectations {
		if layer == "" {
			return fmt.Errorf("expectation layer name cannot be empty")
		}

		for i, exp := range exps {
			if exp.Time < 0 {
				return fmt.Errorf("layer %s, expectation %d: time cannot be negative", layer, i)
			}

			targets := 0
			for _, set := range []bool{exp.Topic != "", exp.RedisKey != "", exp.PostgresQuery != ""} {
				if set {
					targets++
				}
			}
			if targets != 1 {
				return fmt.Errorf("layer %s, expectation %d: exactly one of topic, redis_key or postgres_query is required", layer, i)
			}

			switch {
			case exp.Topic != "" && len(exp.Payload) == 0:
				return fmt.Errorf("layer %s, expectation %d: topic expectations require a payload", layer, i)
			case exp.RedisKey != "" && (exp.RedisField == "" || exp.Expected == ""):
				return fmt.Errorf("layer %s, expectation %d: redis_field and expected are required with redis_key", layer, i)
			case exp.PostgresQuery != "" && exp.PostgresExpected == nil:
				return fmt.Errorf("layer %s, expectation %d: postgres_expected is required with postgres_query", layer, i)
			}
		}
	}

	return nil
}
