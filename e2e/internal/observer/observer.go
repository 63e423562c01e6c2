// Package observer captures MQTT traffic while a scenario runs.
package observer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
)

// DefaultFilter covers every topic of the automation stack
const DefaultFilter = "automation/#"

// CapturedMessage is a single message seen during observation
type CapturedMessage struct {
	Timestamp time.Time   `json:"timestamp"`
	Topic     string      `json:"topic"`
	Payload   interface{} `json:"payload"`
}

// Observer records messages on a topic filter
type Observer struct {
	client    mqtt.Client
	filter    string
	logger    *slog.Logger
	startTime time.Time

	mu       sync.RWMutex
	messages []CapturedMessage
}

// NewObserver creates an observer on an already connected client
func NewObserver(client mqtt.Client, filter string, logger *slog.Logger) *Observer {
	if filter == "" {
		filter = DefaultFilter
	}
	return &Observer{
		client: client,
		filter: filter,
		logger: logger,
	}
}

// Start subscribes to the filter
func (o *Observer) Start() error {
	o.mu.Lock()
	o.startTime = time.Now()
	o.mu.Unlock()

	if err := o.client.Subscribe(o.filter, 0, o.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", o.filter, err)
	}
	o.logger.Info("Observing MQTT traffic", "filter", o.filter)
	return nil
}

func (o *Observer) handleMessage(msg mqtt.Message) {
	var payload interface{}
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		payload = string(msg.Payload())
	}

	o.mu.Lock()
	o.messages = append(o.messages, CapturedMessage{
		Timestamp: time.Now(),
		Topic:     msg.Topic(),
		Payload:   payload,
	})
	elapsed := time.Since(o.startTime).Seconds()
	o.mu.Unlock()

	o.logger.Debug("Captured message", "elapsed", fmt.Sprintf("%.2fs", elapsed), "topic", msg.Topic())
}

// Messages returns a copy of every captured message
func (o *Observer) Messages() []CapturedMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]CapturedMessage, len(o.messages))
	copy(out, o.messages)
	return out
}

// MessagesByTopic returns the captured messages of one topic
func (o *Observer) MessagesByTopic(topic string) []CapturedMessage {
	var out []CapturedMessage
	for _, m := range o.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of captured messages
func (o *Observer) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.messages)
}

// SaveCapture writes the captured messages as JSON, creating directories
// as needed
func (o *Observer) SaveCapture(filename string) error {
	data, err := json.MarshalIndent(o.Messages(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write capture: %w", err)
	}

	o.logger.Info("Saved capture", "file", filename)
	return nil
}
