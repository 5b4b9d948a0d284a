package simulate

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/platewatch/pkg/logger"
)

const confidenceEpsilon = 1e-9

// Mismatch describes a plate whose stored record disagrees with what was
// submitted.
type Mismatch struct {
	Text   string
	Reason string
}

// verifyPlates fetches every expected plate and compares detection counts
// and best confidences. The ledger may hold sightings from earlier runs, so
// stored values only have to reach the expectation.
func verifyPlates(ctx context.Context, cfg *Config, expected map[string]*Expectation, stats *Stats) ([]Mismatch, error) {
	log := logger.Get().Named("simulate")
	log.Info(ctx, "verifying plates", logger.Int("plates", len(expected)))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	var (
		mu         sync.Mutex
		mismatches []Mismatch
	)
	report := func(text, reason string) {
		mu.Lock()
		defer mu.Unlock()
		mismatches = append(mismatches, Mismatch{Text: text, Reason: reason})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, exp := range expected {
		g.Go(func() error {
			var rec plateRecord
			status, err := client.Get(gctx, platePath(exp.Text), &rec)
			if err != nil {
				return fmt.Errorf("get %s: %w", exp.Text, err)
			}
			switch {
			case status == http.StatusNotFound:
				report(exp.Text, "missing")
			case status != http.StatusOK:
				report(exp.Text, fmt.Sprintf("status %d", status))
			case rec.DetectionCount < exp.Sightings:
				report(exp.Text, fmt.Sprintf("detection_count %d < %d", rec.DetectionCount, exp.Sightings))
			case rec.BestConfidence+confidenceEpsilon < exp.BestConfidence:
				report(exp.Text, fmt.Sprintf("best_confidence %.2f < %.2f", rec.BestConfidence, exp.BestConfidence))
			case math.IsNaN(rec.BestConfidence):
				report(exp.Text, "best_confidence NaN")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(mismatches, func(i, j int) bool { return mismatches[i].Text < mismatches[j].Text })
	stats.PlatesMismatched = len(mismatches)
	stats.PlatesVerified = len(expected) - len(mismatches)

	for _, m := range mismatches {
		log.Warn(ctx, "plate mismatch", logger.String("plate", m.Text), logger.String("reason", m.Reason))
	}
	log.Info(ctx, "verification completed",
		logger.Int("verified", stats.PlatesVerified),
		logger.Int("mismatched", stats.PlatesMismatched),
	)
	return mismatches, nil
}
