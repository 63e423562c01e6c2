package checker

import (
	"fmt"

	"github.com/saaga0h/jeeves-climate/e2e/internal/observer"
	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
)

// CheckMessages matches the latest captured message on the expectation's
// topic. Earlier messages are skipped so a decision that changed during
// the run is judged by its final value.
func CheckMessages(exp scenario.Expectation, messages []observer.CapturedMessage) (bool, string, interface{}) {
	var latest *observer.CapturedMessage
	for i := range messages {
		if messages[i].Topic == exp.Topic {
			latest = &messages[i]
		}
	}
	if latest == nil {
		return false, fmt.Sprintf("no messages found for topic %q", exp.Topic), nil
	}

	if reason := Match(latest.Payload, exp.Payload); reason != "" {
		return false, reason, latest.Payload
	}
	return true, "", latest.Payload
}
