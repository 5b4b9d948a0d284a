package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/platewatch/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// ErrMismatch is returned when the ledger disagrees with the submitted
// readings.
var ErrMismatch = errors.New("ledger does not match submitted readings")

// Run executes a complete simulation: health check, generation, concurrent
// submission and verification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("simulate")

	log.Info(ctx, "starting platewatch simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("plates", cfg.Plates),
		logger.Int("sightings", cfg.Sightings),
		logger.Float64("noise", cfg.NoiseRate),
		logger.Int("workers", cfg.Workers),
	)

	if err := checkServiceHealth(ctx, cfg); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	readings, expected := generateReadings(ctx, cfg, stats)

	submitReadings(ctx, cfg, readings, stats)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("submission interrupted: %w", err)
	}

	mismatches, err := verifyPlates(ctx, cfg, expected, stats)
	if err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveReadings(cfg.OutputFile, readings); err != nil {
			log.Warn(ctx, "failed to save readings", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if len(mismatches) > 0 || stats.Failed > 0 || stats.Rejected > 0 {
		return stats, fmt.Errorf("%w: %d mismatched, %d failed, %d rejected",
			ErrMismatch, len(mismatches), stats.Failed, stats.Rejected)
	}
	return stats, nil
}

func checkServiceHealth(ctx context.Context, cfg *Config) error {
	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	status, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	return nil
}

type savedReading struct {
	PlateText  string  `json:"plate_text"`
	Canonical  string  `json:"canonical"`
	Confidence float64 `json:"confidence"`
	Location   string  `json:"location"`
}

// saveReadings writes the generated readings as a JSON array.
func saveReadings(filename string, readings []Reading) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	out := make([]savedReading, len(readings))
	for i, r := range readings {
		out[i] = savedReading{PlateText: r.PlateText, Canonical: r.canonical, Confidence: r.Confidence, Location: r.Location}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal readings: %w", err)
	}
	return os.WriteFile(filename, data, filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, readingsPerSecond float64
	if stats.ReadingsSubmitted > 0 {
		ok := stats.Created + stats.Merged
		successRate = float64(ok) / float64(stats.ReadingsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		readingsPerSecond = float64(stats.ReadingsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("readingsGenerated", stats.ReadingsGenerated),
		logger.Int("readingsSubmitted", stats.ReadingsSubmitted),
		logger.Int("created", stats.Created),
		logger.Int("merged", stats.Merged),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("platesVerified", stats.PlatesVerified),
		logger.Int("platesMismatched", stats.PlatesMismatched),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("readingsPerSecond", readingsPerSecond),
	)
}
