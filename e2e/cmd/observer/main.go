package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/saaga0h/jeeves-climate/e2e/internal/observer"
	"github.com/saaga0h/jeeves-climate/pkg/config"
	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
	"github.com/spf13/pflag"
)

func main() {
	outputDir := pflag.String("output-dir", "./test-output/captures", "Output directory for captures")
	filter := pflag.String("filter", observer.DefaultFilter, "MQTT topic filter to capture")
	snapshotInterval := pflag.Int("snapshot-interval", 30, "Snapshot interval in seconds")

	cfg := config.NewConfig()
	cfg.ServiceName = "mqtt-observer"
	cfg.MQTTClientID = "jeeves-climate-observer"
	cfg.LoadFromEnv()
	cfg.LoadFromFlags()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := mqtt.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MQTT: %v\n", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	obs := observer.NewObserver(client, *filter, logger)
	if err := obs.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start observer: %v\n", err)
		os.Exit(1)
	}

	ticker := time.NewTicker(time.Duration(*snapshotInterval) * time.Second)
	defer ticker.Stop()

	snapshots := 0
	for {
		select {
		case <-ticker.C:
			snapshots++
			name := fmt.Sprintf("snapshot-%s-%03d.json", time.Now().Format("20060102-150405"), snapshots)
			if err := obs.SaveCapture(filepath.Join(*outputDir, name)); err != nil {
				logger.Warn("Failed to save snapshot", "error", err)
			} else {
				logger.Info("Snapshot saved", "file", name, "messages", obs.Count())
			}

		case <-ctx.Done():
			name := fmt.Sprintf("final-%s.json", time.Now().Format("20060102-150405"))
			if err := obs.SaveCapture(filepath.Join(*outputDir, name)); err != nil {
				logger.Warn("Failed to save final capture", "error", err)
			}
			logger.Info("Observer stopped", "messages", obs.Count())
			return
		}
	}
}
