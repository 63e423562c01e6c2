package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/jeeves-climate/internal/api"
	"github.com/saaga0h/jeeves-climate/internal/coordinator"
	"github.com/saaga0h/jeeves-climate/internal/journal"
	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/health"
	"github.com/saaga0h/jeeves-climate/pkg/metrics"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → env → flags → controller file
	cfg := config.NewConfig()
	cfg.ServiceName = "climate-agent"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if cfg.ControllerFile == "" {
		fmt.Fprintln(os.Stderr, "Configuration error: --controller-file is required")
		os.Exit(1)
	}
	if err := cfg.LoadControllerFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Controller file error: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Climate Agent",
		"version", "1.0",
		"service_name", cfg.ServiceName,
		"controller", cfg.Controller.Name,
		"mqtt_broker", cfg.MQTTAddress(),
		"redis_host", cfg.RedisAddress(),
		"journal", cfg.EnableJournal,
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mqttClient := mqtt.NewClient(cfg, logger)
	redisClient := redis.NewClient(cfg, logger)
	m := metrics.New()

	opts := []coordinator.Option{coordinator.WithMetrics(m)}

	// The journal is optional; without Postgres the agent still controls
	var pgClient postgres.Client
	var journalReader api.JournalReader
	if cfg.EnableJournal {
		pgClient = postgres.NewClient(cfg, logger)
		if err := pgClient.Connect(ctx); err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		j := journal.New(pgClient, cfg.Controller.Name, logger)
		if err := j.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare journal schema", "error", err)
			os.Exit(1)
		}
		opts = append(opts, coordinator.WithJournal(j))
		journalReader = j
	}

	agent := coordinator.NewAgent(mqttClient, redisClient, cfg, logger, opts...)

	healthChecker := health.NewChecker(mqttClient, redisClient, pgClient, logger)
	healthServer := startHealthServer(cfg.HealthPort, healthChecker, m, logger)
	apiServer := startAPIServer(cfg.APIPort, agent, journalReader, m, logger)

	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	logger.Info("Initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// No service calls may reach the agent once it has released the heat pump
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down API server", "error", err)
	}

	// Stop releases the heat pump and the fans before disconnecting
	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down health server", "error", err)
	}

	if pgClient != nil {
		if err := pgClient.Disconnect(); err != nil {
			logger.Error("Error disconnecting from Postgres", "error", err)
		}
	}

	logger.Info("Climate agent shutdown complete")
}

func startHealthServer(port int, checker *health.Checker, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func startAPIServer(port int, agent *coordinator.Agent, j api.JournalReader, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewRouter(agent, j, m.Handler(), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting control API server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
