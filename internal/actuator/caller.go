// Package actuator sends commands to the heat pump and the fan groups.
package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
)

// ServiceCall is a command addressed to an actuator, e.g. climate.turn_off
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
}

// EntityID returns the entity the call addresses, if any
func (c ServiceCall) EntityID() string {
	id, _ := c.Data["entity_id"].(string)
	return id
}

func (c ServiceCall) String() string {
	return c.Domain + "." + c.Service
}

// ServiceCaller dispatches service calls
type ServiceCaller interface {
	Call(ctx context.Context, call ServiceCall) error
}

// commandMessage is the MQTT payload of a service call
type commandMessage struct {
	CallID      string                 `json:"call_id"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	Data        map[string]interface{} `json:"data"`
	RequestedAt string                 `json:"requested_at"`
}

// MQTTCaller publishes service calls on automation/command/{domain}/{service}
type MQTTCaller struct {
	client mqtt.Client
	logger *slog.Logger
}

// NewMQTTCaller creates a caller publishing through client
func NewMQTTCaller(client mqtt.Client, logger *slog.Logger) *MQTTCaller {
	return &MQTTCaller{client: client, logger: logger}
}

// Call publishes the service call. The bridge on the other side executes it.
func (c *MQTTCaller) Call(ctx context.Context, call ServiceCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := commandMessage{
		CallID:      uuid.New().String(),
		Domain:      call.Domain,
		Service:     call.Service,
		Data:        call.Data,
		RequestedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s call: %w", call, err)
	}

	topic := mqtt.CommandTopic(call.Domain, call.Service)
	if err := c.client.Publish(topic, 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish %s call: %w", call, err)
	}

	c.logger.Debug("Service call published",
		"service", call.String(),
		"entity_id", call.EntityID(),
		"call_id", msg.CallID)

	return nil
}

func setTemperatureCall(entityID string, temperature float64, hvacMode string) ServiceCall {
	return ServiceCall{
		Domain:  "climate",
		Service: "set_temperature",
		Data: map[string]interface{}{
			"entity_id":   entityID,
			"temperature": temperature,
			"hvac_mode":   hvacMode,
		},
	}
}

func turnOffCall(domain, entityID string) ServiceCall {
	return ServiceCall{
		Domain:  domain,
		Service: "turn_off",
		Data:    map[string]interface{}{"entity_id": entityID},
	}
}
