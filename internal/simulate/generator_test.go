package simulate

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/platewatch/internal/domain/plate"
	"github.com/okian/platewatch/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator with heavy noise", t, func() {
		gen := NewGenerator(42, 0.8, "Sim Gate")

		Convey("When generating plates", func() {
			Convey("Then every plate is canonical for the validator", func() {
				for i := 0; i < 200; i++ {
					text := gen.Plate()
					res, err := plate.Validate(text)
					So(err, ShouldBeNil)
					So(res.Text, ShouldEqual, text)
				}
			})
		})

		Convey("When misreading a plate", func() {
			Convey("Then every misreading validates back to the plate", func() {
				changed := 0
				for i := 0; i < 200; i++ {
					text := gen.Plate()
					noisy := gen.Noisy(text)
					if noisy != text {
						changed++
					}
					res, err := plate.Validate(noisy)
					So(err, ShouldBeNil)
					So(res.Text, ShouldEqual, text)
				}
				So(changed, ShouldBeGreaterThan, 100)
			})
		})

		Convey("When drawing confidences", func() {
			Convey("Then they stay in range", func() {
				for i := 0; i < 500; i++ {
					c := gen.Confidence()
					So(c, ShouldBeBetweenOrEqual, minConfidence, maxConfidence)
				}
			})
		})

		Convey("When two generators share a seed", func() {
			other := NewGenerator(42, 0.8, "Sim Gate")

			Convey("Then they produce the same plates", func() {
				for i := 0; i < 20; i++ {
					So(other.Plate(), ShouldEqual, gen.Plate())
				}
			})
		})
	})
}

func TestGenerateReadings(t *testing.T) {
	Convey("Given a small run configuration", t, func() {
		cfg := &Config{Plates: 25, Sightings: 4, NoiseRate: 0.3, Seed: 7, Location: "Sim Gate"}
		stats := &Stats{}

		Convey("When generating readings", func() {
			readings, expected := generateReadings(context.Background(), cfg, stats)

			Convey("Then every plate gets its sightings and best confidence", func() {
				So(len(readings), ShouldEqual, 100)
				So(stats.ReadingsGenerated, ShouldEqual, 100)
				So(len(expected), ShouldEqual, 25)

				best := map[string]float64{}
				count := map[string]int{}
				for _, r := range readings {
					count[r.canonical]++
					if r.Confidence > best[r.canonical] {
						best[r.canonical] = r.Confidence
					}
					So(r.Location, ShouldEqual, "Sim Gate")
				}
				for text, exp := range expected {
					So(count[text], ShouldEqual, 4)
					So(exp.Sightings, ShouldEqual, 4)
					So(exp.BestConfidence, ShouldEqual, best[text])
				}
			})
		})
	})
}
