// Package simulate drives a running platewatch service with synthetic
// plate readings and checks the ledger afterwards.
package simulate

import (
	"fmt"
	"os"
	"time"

	"github.com/okian/platewatch/pkg/logger"
)

// Log rotation for simulation logs.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 3
	logMaxAgeDays = 7
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}
	if err := logger.Init(logger.WithFile(logFile, logMaxSizeMB, logMaxBackups, logMaxAgeDays)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`platewatch simulator
====================

Generates plates, misreads them the way OCR engines do, posts them to
/readings concurrently and checks /plates afterwards.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -plates int
        Number of distinct plates (default 500)
  -sightings int
        Readings per plate (default 5)
  -noise float
        Per-character lookalike swap probability (default 0.2)
  -location string
        Camera label sent with readings (default "Simulator")
  -seed uint
        Random seed, 0 for a clock based one (default 0)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write generated readings to this JSON file
  -log string
        Log file (default: simulate_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  go run ./cmd/simulate -plates 2000 -sightings 10 -workers 16
  go run ./cmd/simulate -noise 0.5 -seed 42 -output readings.json
`)
}
