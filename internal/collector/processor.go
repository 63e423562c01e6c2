package collector

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/sensors"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
)

// Processor parses raw entity state messages
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a new message processor
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{
		logger: logger,
	}
}

// StateMessage is a parsed entity state with its origin
type StateMessage struct {
	State         *sensors.EntityState
	OriginalTopic string
}

type rawState struct {
	EntityID   string                 `json:"entity_id"`
	State      interface{}            `json:"state"`
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes"`
}

// ParseMessage parses a raw state message. The entity id comes from the
// payload and falls back to the last topic level. Payloads wrapped in
// {"data": {...}} are unwrapped.
func (p *Processor) ParseMessage(topic string, payload []byte) (*StateMessage, error) {
	topicEntity, err := mqtt.EntityFromTopic(topic)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	body := payload
	if data, ok := envelope["data"]; ok && len(data) > 0 && data[0] == '{' {
		body = data
	}

	var raw rawState
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse state payload: %w", err)
	}

	if raw.State == nil {
		return nil, fmt.Errorf("state payload for %s has no state", topicEntity)
	}

	entityID := raw.EntityID
	if entityID == "" {
		entityID = topicEntity
	}

	msg := &StateMessage{
		State: &sensors.EntityState{
			EntityID:   entityID,
			State:      stateString(raw.State),
			Name:       raw.Name,
			Attributes: raw.Attributes,
			UpdatedAt:  time.Now().UTC(),
		},
		OriginalTopic: topic,
	}

	p.logger.Debug("Parsed entity state",
		"entity_id", entityID,
		"state", msg.State.State,
		"topic", topic)

	return msg, nil
}

// stateString renders JSON scalars the way the bridge would as text
func stateString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case bool:
		if s {
			return "on"
		}
		return "off"
	default:
		b, _ := json.Marshal(s)
		return string(b)
	}
}

// BuildTriggerPayload creates the payload of the trigger published after storing
func (p *Processor) BuildTriggerPayload(msg *StateMessage) ([]byte, error) {
	payload := map[string]interface{}{
		"entity_id":      msg.State.EntityID,
		"state":          msg.State.State,
		"original_topic": msg.OriginalTopic,
		"stored_at":      msg.State.UpdatedAt.Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	return data, nil
}
