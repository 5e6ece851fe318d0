package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saaga0h/jeeves-anticipation/e2e/internal/executor"
	"github.com/saaga0h/jeeves-anticipation/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-anticipation/pkg/config"
	"github.com/saaga0h/jeeves-anticipation/pkg/mqtt"
)

func main() {
	cfg := config.NewConfig()
	cfg.ServiceName = "anticipation-test-runner"
	cfg.LoadFromEnv()

	fs := pflag.NewFlagSet(cfg.ServiceName, pflag.ExitOnError)
	scenarioPath := fs.String("scenario", "", "Path to YAML scenario file (required)")
	outputDir := fs.String("output-dir", "", "Directory for the message capture (optional)")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.StringVar(&cfg.MQTTBroker, "mqtt-broker", cfg.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&cfg.MQTTPort, "mqtt-port", cfg.MQTTPort, "MQTT broker port")
	_ = fs.Parse(os.Args[1:])

	if *scenarioPath == "" {
		fmt.Fprintf(os.Stderr, "Error: --scenario is required\n")
		fs.Usage()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	logger.Info("Loading scenario", "path", *scenarioPath)
	scen, err := scenario.LoadScenario(*scenarioPath)
	if err != nil {
		logger.Error("Failed to load scenario", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := mqtt.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("Failed to connect to MQTT", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	runner := executor.NewRunner(client, logger)
	result, err := runner.Run(ctx, scen)
	if err != nil {
		logger.Error("Test execution failed", "error", err)
		os.Exit(1)
	}

	if *outputDir != "" {
		name := strings.TrimSuffix(filepath.Base(*scenarioPath), filepath.Ext(*scenarioPath))
		path := filepath.Join(*outputDir, name+".capture.json")
		if err := saveCapture(path, runner.Captured()); err != nil {
			logger.Warn("Failed to save capture", "error", err)
		} else {
			logger.Info("Capture saved", "path", path)
		}
	}

	printSummary(result)
	if !result.Passed {
		os.Exit(1)
	}
}

func printSummary(result *scenario.TestResult) {
	fmt.Printf("\nScenario: %s\n", result.Scenario.Name)
	for _, r := range result.Expectations {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("  [%4ds] %s %s %s\n", r.Expectation.Time, status, r.Expectation.Topic, r.Expectation.Description)
		if r.Reason != "" {
			fmt.Printf("          %s\n", r.Reason)
		}
	}
	fmt.Printf("\n%d passed, %d failed in %s\n",
		result.PassedCount, result.FailedCount, result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
}

func saveCapture(path string, captured []executor.Captured) error {
	type entry struct {
		Topic     string          `json:"topic"`
		ElapsedMs int64           `json:"elapsed_ms"`
		Payload   json.RawMessage `json:"payload"`
	}

	entries := make([]entry, 0, len(captured))
	for _, c := range captured {
		payload := json.RawMessage(c.Payload)
		if !json.Valid(payload) {
			quoted, _ := json.Marshal(string(c.Payload))
			payload = quoted
		}
		entries = append(entries, entry{Topic: c.Topic, ElapsedMs: c.Elapsed.Milliseconds(), Payload: payload})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal capture: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
