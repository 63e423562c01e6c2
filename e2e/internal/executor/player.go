package executor

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
)

// Player publishes entity states the way the home bridge does
type Player struct {
	client mqtt.Client
	logger *slog.Logger
}

// NewPlayer creates a player on a connected client
func NewPlayer(client mqtt.Client, logger *slog.Logger) *Player {
	return &Player{client: client, logger: logger}
}

// PublishState publishes one entity state on its raw state topic
func (p *Player) PublishState(entityID string, state interface{}, attributes map[string]interface{}) error {
	payload := map[string]interface{}{
		"entity_id": entityID,
		"state":     state,
	}
	if len(attributes) > 0 {
		payload["attributes"] = attributes
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal state of %s: %w", entityID, err)
	}

	topic := mqtt.RawStateTopic(entityID)
	if err := p.client.Publish(topic, 1, false, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.logger.Debug("Published state", "topic", topic, "payload", string(data))
	return nil
}

// PublishEvent publishes a scenario event
func (p *Player) PublishEvent(event scenario.StateEvent) error {
	return p.PublishState(event.Entity, event.State, event.Attributes)
}
