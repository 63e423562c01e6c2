package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/saaga0h/jeeves-climate/e2e/internal/executor"
	"github.com/saaga0h/jeeves-climate/e2e/internal/reporter"
	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
	"github.com/saaga0h/jeeves-climate/pkg/redis"
	"github.com/spf13/pflag"
)

func main() {
	scenarioPath := pflag.String("scenario", "", "Path to YAML scenario file (required)")
	outputDir := pflag.String("output-dir", "./test-output", "Output directory for test artifacts")
	verbose := pflag.Bool("verbose", false, "Enable debug logging")

	// Connection settings come from the shared config; --enable-journal
	// turns on Postgres checks
	cfg := config.NewConfig()
	cfg.ServiceName = "scenario-runner"
	cfg.MQTTClientID = "jeeves-climate-scenario-runner"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --scenario is required")
		pflag.Usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	scen, err := scenario.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load scenario: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mqttClient := mqtt.NewClient(cfg, logger)
	if err := mqttClient.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MQTT: %v\n", err)
		os.Exit(1)
	}
	defer mqttClient.Disconnect()

	redisClient := redis.NewClient(cfg, logger)
	if err := redisClient.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	var pgClient postgres.Client
	if cfg.EnableJournal {
		pgClient = postgres.NewClient(cfg, logger)
		if err := pgClient.Connect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to Postgres: %v\n", err)
			os.Exit(1)
		}
		defer pgClient.Disconnect()
	}

	runner := executor.NewRunner(mqttClient, redisClient, pgClient, logger)

	result, timelineEvents, err := runner.Run(ctx, scen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scenario execution failed: %v\n", err)
		os.Exit(1)
	}

	name := strings.TrimSuffix(filepath.Base(*scenarioPath), filepath.Ext(*scenarioPath))

	timeline := reporter.GenerateTimeline(result, timelineEvents)
	fmt.Println(timeline)

	if err := reporter.SaveTimeline(timeline, filepath.Join(*outputDir, "timelines", name+".txt")); err != nil {
		logger.Warn("Failed to save timeline", "error", err)
	}
	if err := runner.SaveCapture(filepath.Join(*outputDir, "captures", name+".json")); err != nil {
		logger.Warn("Failed to save capture", "error", err)
	}
	if err := reporter.SaveSummary(result, filepath.Join(*outputDir, "summaries", name+".json")); err != nil {
		logger.Warn("Failed to save summary", "error", err)
	}

	if !result.Passed {
		os.Exit(1)
	}
}
