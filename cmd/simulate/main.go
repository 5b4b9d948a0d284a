package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/platewatch/internal/simulate"
)

// Default configuration constants.
const (
	defaultPlates    = 500
	defaultSightings = 5
	defaultNoise     = 0.2
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultTimeout   = 30 * time.Second
	defaultRunLimit  = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		plates    = flag.Int("plates", defaultPlates, "Number of distinct plates")
		sightings = flag.Int("sightings", defaultSightings, "Readings per plate")
		noise     = flag.Float64("noise", defaultNoise, "Per-character lookalike swap probability")
		location  = flag.String("location", "Simulator", "Camera label sent with readings")
		seed      = flag.Uint64("seed", 0, "Random seed, 0 for a clock based one")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		output    = flag.String("output", "", "Write generated readings to this JSON file")
		logFile   = flag.String("log", "", "Log file (default: simulate_TIMESTAMP.log)")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile, *verbose); err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &simulate.Config{
		BaseURL:    *baseURL,
		Plates:     *plates,
		Sightings:  *sightings,
		NoiseRate:  *noise,
		Workers:    max(*workers, 1),
		Timeout:    *timeout,
		Location:   *location,
		Seed:       *seed,
		OutputFile: *output,
		Verbose:    *verbose,
	}

	if err := run(cfg); err != nil {
		_, _ = os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg *simulate.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	_, err := simulate.Run(ctx, cfg)
	return err
}
