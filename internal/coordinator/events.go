package coordinator

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/saaga0h/jeeves-climate/internal/climate"
	"github.com/saaga0h/jeeves-climate/internal/ventilation"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
)

// DecisionEvent is published on automation/context/climate/{controller}
// after every climate tick
type DecisionEvent struct {
	EventID                    string         `json:"event_id"`
	Controller                 string         `json:"controller"`
	Action                     climate.Action `json:"action"`
	HVACMode                   climate.Mode   `json:"hvac_mode"`
	Temperature                float64        `json:"temperature"`
	Reason                     string         `json:"reason"`
	Debug                      string         `json:"debug"`
	ComfortOffsetApplied       float64        `json:"comfort_offset_applied"`
	MinRuntimeRemainingMinutes int            `json:"min_runtime_remaining_minutes"`
	WindowStop                 bool           `json:"window_stop"`
	Timestamp                  string         `json:"timestamp"`
}

// VentilationEvent is published on automation/context/ventilation/{controller}
type VentilationEvent struct {
	EventID     string                `json:"event_id"`
	Controller  string                `json:"controller"`
	Event       ventilation.EventKind `json:"event"`
	Reason      string                `json:"reason"`
	Trigger     string                `json:"trigger,omitempty"`
	Phase       string                `json:"phase"`
	DurationMin int                   `json:"duration_min,omitempty"`
	Timestamp   string                `json:"timestamp"`
}

func (a *Agent) publishDecision(d climate.Decision) {
	a.publish(mqtt.ClimateContextTopic(a.name), DecisionEvent{
		EventID:                    uuid.New().String(),
		Controller:                 a.name,
		Action:                     d.Action,
		HVACMode:                   d.Mode,
		Temperature:                d.Temperature,
		Reason:                     d.Reason,
		Debug:                      d.Debug,
		ComfortOffsetApplied:       d.ComfortOffsetApplied,
		MinRuntimeRemainingMinutes: d.MinRuntimeRemainingMinutes(),
		WindowStop:                 d.WindowStop,
		Timestamp:                  a.now().UTC().Format(time.RFC3339Nano),
	})
}

func (a *Agent) publishVentilationEvent(ev ventilation.Event) {
	a.publish(mqtt.VentilationContextTopic(a.name), VentilationEvent{
		EventID:     uuid.New().String(),
		Controller:  a.name,
		Event:       ev.Kind,
		Reason:      ev.Reason,
		Trigger:     string(ev.Trigger),
		Phase:       ev.Phase.String(),
		DurationMin: int(ev.Duration / time.Minute),
		Timestamp:   a.now().UTC().Format(time.RFC3339Nano),
	})
}

func (a *Agent) publish(topic string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		a.logger.Error("Failed to marshal event", "topic", topic, "error", err)
		return
	}

	if err := a.mqtt.Publish(topic, 0, false, payload); err != nil {
		a.logger.Error("Failed to publish event", "topic", topic, "error", err)
		return
	}

	a.logger.Debug("Published event", "topic", topic)
}
