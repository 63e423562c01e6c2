package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

const pingTimeout = 2 * time.Second

// Checker reports the liveness of an agent and its dependencies
type Checker struct {
	mqtt     mqtt.Client
	redis    redis.Client
	postgres postgres.Client
	logger   *slog.Logger
}

// NewChecker creates a health checker. The Postgres client is optional.
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, pg postgres.Client, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:     mqttClient,
		redis:    redisClient,
		postgres: pg,
		logger:   logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of external dependencies
type Services struct {
	Redis    string `json:"redis"`
	MQTT     string `json:"mqtt"`
	Postgres string `json:"postgres,omitempty"`
}

// HandlerFunc answers 200 while the process is alive without checking
// dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc pings every dependency and answers 503 when one is down
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		services := h.check(ctx)

		status := "healthy"
		statusCode := http.StatusOK
		if services.Redis != "connected" || services.MQTT != "connected" ||
			(services.Postgres != "" && services.Postgres != "connected") {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.write(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		})
	}
}

func (h *Checker) check(ctx context.Context) *Services {
	services := &Services{
		Redis: "disconnected",
		MQTT:  "disconnected",
	}

	if h.mqtt != nil && h.mqtt.IsConnected() {
		services.MQTT = "connected"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Warn("Redis ping failed", "error", err)
		} else {
			services.Redis = "connected"
		}
	}

	if h.postgres != nil {
		services.Postgres = "disconnected"
		st, err := h.postgres.HealthCheck(ctx)
		if err == nil && st.Connected {
			services.Postgres = "connected"
		} else if err != nil {
			h.logger.Warn("Postgres health check failed", "error", err)
		}
	}

	return services
}

func (h *Checker) write(w http.ResponseWriter, code int, response HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
