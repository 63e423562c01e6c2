package mqtt

import (
	"fmt"
	"strings"
)

// Topic constants for entity state and climate traffic
const (
	// Raw entity states published by the home bridge (input of the collector)
	TopicRawStates = "automation/raw/state/+"

	// Entity state triggers republished by the collector after storing
	TopicStateTriggers = "automation/sensor/state/+"

	// Base for actuator service calls: automation/command/{domain}/{service}
	TopicCommandBase = "automation/command"
)

// RawStateTopic constructs the raw state topic of an entity
// Pattern: automation/raw/state/{entity_id}
func RawStateTopic(entityID string) string {
	return fmt.Sprintf("automation/raw/state/%s", entityID)
}

// StateTriggerTopic constructs the processed trigger topic of an entity
// Pattern: automation/sensor/state/{entity_id}
func StateTriggerTopic(entityID string) string {
	return fmt.Sprintf("automation/sensor/state/%s", entityID)
}

// CommandTopic constructs the topic a service call is published on
// Pattern: automation/command/{domain}/{service}
func CommandTopic(domain, service string) string {
	return fmt.Sprintf("%s/%s/%s", TopicCommandBase, domain, service)
}

// ClimateContextTopic is where climate decisions of a controller are published
func ClimateContextTopic(controller string) string {
	return fmt.Sprintf("automation/context/climate/%s", controller)
}

// VentilationContextTopic is where ventilation events of a controller are published
func VentilationContextTopic(controller string) string {
	return fmt.Sprintf("automation/context/ventilation/%s", controller)
}

// EntityFromTopic returns the last topic level, which carries the entity id
func EntityFromTopic(topic string) (string, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return "", fmt.Errorf("topic %q carries no entity id", topic)
	}
	return topic[idx+1:], nil
}
