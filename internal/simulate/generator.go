package simulate

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/okian/platewatch/internal/domain/plate"
	"github.com/okian/platewatch/pkg/logger"
)

const (
	digits  = "0123456789"
	letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Lookalikes an OCR engine may return instead of the printed character.
var (
	digitLookalikes = map[byte][]byte{
		'0': {'O', 'D', 'Q'},
		'1': {'I', 'J', 'L'},
		'2': {'Z'},
		'5': {'S'},
		'6': {'G'},
		'7': {'T'},
		'8': {'B'},
	}
	letterLookalikes = map[byte][]byte{
		'A': {'4'},
		'B': {'8'},
		'G': {'6'},
		'I': {'1'},
		'O': {'0'},
		'S': {'5'},
		'T': {'7'},
		'Z': {'2'},
	}
	separators = []string{" ", "-", "", "  "}
)

// Generator produces plates and noisy readings of them.
type Generator struct {
	rng       *rand.Rand
	noiseRate float64
	location  string
}

// NewGenerator creates a generator. A zero seed picks one from the clock.
func NewGenerator(seed uint64, noiseRate float64, location string) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{
		rng:       rand.New(rand.NewPCG(seed, seed>>1|1)),
		noiseRate: noiseRate,
		location:  location,
	}
}

// Plate returns a canonical plate text that the validator maps to itself.
// Texts that another grammar would claim first are skipped.
func (g *Generator) Plate() string {
	for {
		var text string
		if g.rng.IntN(2) == 0 {
			text = g.pick(digits, 3) + " " + g.pick(letters, 3)
		} else {
			text = g.pick(letters, 3) + " " + g.pick(digits, 3)
		}
		if res, err := plate.Validate(text); err == nil && res.Text == text {
			return text
		}
	}
}

func (g *Generator) pick(alphabet string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rng.IntN(len(alphabet))]
	}
	return string(b)
}

// Noisy returns one OCR-style misreading of text: lookalike swaps, a random
// separator and random case. The result always validates back to text; when
// the noise would make it ambiguous the clean text is used.
func (g *Generator) Noisy(text string) string {
	groups := strings.SplitN(text, " ", 2)
	if len(groups) != 2 {
		return text
	}
	noisy := g.perturb(groups[0]) + separators[g.rng.IntN(len(separators))] + g.perturb(groups[1])
	if g.rng.IntN(4) == 0 {
		noisy = strings.ToLower(noisy)
	}
	if res, err := plate.Validate(noisy); err != nil || res.Text != text {
		return text
	}
	return noisy
}

func (g *Generator) perturb(group string) string {
	b := []byte(group)
	for i, c := range b {
		if g.rng.Float64() >= g.noiseRate {
			continue
		}
		alts := digitLookalikes[c]
		if len(alts) == 0 {
			alts = letterLookalikes[c]
		}
		if len(alts) > 0 {
			b[i] = alts[g.rng.IntN(len(alts))]
		}
	}
	return string(b)
}

// Confidence returns a reading confidence in [0.30, 0.99], rounded to
// two decimals.
func (g *Generator) Confidence() float64 {
	c := minConfidence + g.rng.Float64()*(maxConfidence-minConfidence)
	return float64(int(c*100+0.5)) / 100
}

// generateReadings creates cfg.Plates distinct plates with cfg.Sightings
// noisy readings each, shuffled, and the expectations they imply.
func generateReadings(ctx context.Context, cfg *Config, stats *Stats) ([]Reading, map[string]*Expectation) {
	logger.Get().Info(ctx, "generating readings",
		logger.Int("plates", cfg.Plates),
		logger.Int("sightings", cfg.Sightings),
	)

	gen := NewGenerator(cfg.Seed, cfg.NoiseRate, cfg.Location)
	expected := make(map[string]*Expectation, cfg.Plates)
	readings := make([]Reading, 0, cfg.Plates*cfg.Sightings)

	for len(expected) < cfg.Plates {
		text := gen.Plate()
		if _, dup := expected[text]; dup {
			continue
		}
		exp := &Expectation{Text: text}
		expected[text] = exp
		for i := 0; i < cfg.Sightings; i++ {
			r := Reading{
				PlateText:  gen.Noisy(text),
				Confidence: gen.Confidence(),
				Location:   gen.location,
				canonical:  text,
			}
			exp.Sightings++
			if r.Confidence > exp.BestConfidence {
				exp.BestConfidence = r.Confidence
			}
			readings = append(readings, r)
		}
	}
	gen.rng.Shuffle(len(readings), func(i, j int) {
		readings[i], readings[j] = readings[j], readings[i]
	})

	stats.ReadingsGenerated = len(readings)
	logger.Get().Info(ctx, "generated readings", logger.Int("count", len(readings)))
	return readings, expected
}
