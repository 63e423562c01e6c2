package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

// Agent receives raw entity states, keeps the latest one per entity in
// Redis and republishes a trigger for downstream agents
type Agent struct {
	mqtt      mqtt.Client
	redis     redis.Client
	processor *Processor
	storage   *Storage
	metrics   *metrics.Metrics
	cfg       *config.Config
	logger    *slog.Logger
}

// NewAgent creates a new collector agent with the given dependencies.
// metrics may be nil.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, m *metrics.Metrics, cfg *config.Config, logger *slog.Logger) *Agent {
	return &Agent{
		mqtt:      mqttClient,
		redis:     redisClient,
		processor: NewProcessor(logger),
		storage:   NewStorage(redisClient, cfg.StateTTL(), logger),
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start connects, subscribes and blocks until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	a.logger.Info("Starting collector agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress())

	if err := a.mqtt.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	if err := a.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	a.logger.Info("Connected to Redis", "address", a.cfg.RedisAddress())

	for _, topic := range a.cfg.StateTopics {
		if err := a.mqtt.Subscribe(topic, 0, a.handleMessage); err != nil {
			a.logger.Error("Failed to subscribe to topic", "topic", topic, "error", err)
			continue
		}
	}

	a.logger.Info("Collector agent started and ready to receive messages",
		"subscribed_topics", strings.Join(a.cfg.StateTopics, ", "))

	<-ctx.Done()
	a.logger.Info("Collector agent stopping")

	return nil
}

// Stop gracefully stops the collector agent
func (a *Agent) Stop() error {
	a.logger.Info("Stopping collector agent")

	a.mqtt.Disconnect()

	if err := a.redis.Close(); err != nil {
		a.logger.Error("Error closing Redis connection", "error", err)
		return err
	}

	a.logger.Info("Collector agent stopped")
	return nil
}

func (a *Agent) handleMessage(msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	a.logger.Debug("Received MQTT message", "topic", topic, "size", len(payload))

	stateMsg, err := a.processor.ParseMessage(topic, payload)
	if err != nil {
		a.logger.Error("Failed to parse message", "topic", topic, "error", err)
		return
	}

	ctx := context.Background()

	// The trigger is published even when storing fails; consumers re-read
	// on the next trigger.
	if err := a.storage.StoreState(ctx, stateMsg.State); err != nil {
		a.logger.Error("Failed to store entity state",
			"entity_id", stateMsg.State.EntityID,
			"error", err)
	} else if a.metrics != nil {
		a.metrics.StatesIngested.Inc()
	}

	if err := a.publishTrigger(stateMsg); err != nil {
		a.logger.Error("Failed to publish trigger message",
			"entity_id", stateMsg.State.EntityID,
			"error", err)
	}
}

// publishTrigger converts automation/raw/state/{id} -> automation/sensor/state/{id}
func (a *Agent) publishTrigger(msg *StateMessage) error {
	triggerTopic := mqtt.StateTriggerTopic(msg.State.EntityID)

	payload, err := a.processor.BuildTriggerPayload(msg)
	if err != nil {
		return fmt.Errorf("failed to build trigger payload: %w", err)
	}

	if err := a.mqtt.Publish(triggerTopic, 0, false, payload); err != nil {
		return fmt.Errorf("failed to publish trigger: %w", err)
	}

	a.logger.Debug("Published trigger", "topic", triggerTopic)
	return nil
}
