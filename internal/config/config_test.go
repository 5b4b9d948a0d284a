package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/platewatch/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should carry the pipeline defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.CaptureFPS, convey.ShouldEqual, 10)
			convey.So(cfg.FrameQueueSize, convey.ShouldEqual, 1)
			convey.So(cfg.NMSThreshold, convey.ShouldEqual, 0.3)
			convey.So(cfg.ROIPadding, convey.ShouldEqual, 10)
			convey.So(cfg.OCREngine, convey.ShouldEqual, config.EngineTesseract)
			convey.So(cfg.OCRUpscale, convey.ShouldEqual, 4.0)
			convey.So(cfg.OCRConfidenceFloor, convey.ShouldEqual, 0.25)
			convey.So(cfg.OCRMinLength, convey.ShouldEqual, 5)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "platewatch")
		})

		convey.Convey("Then durations should convert from milliseconds", func() {
			convey.So(cfg.FlushInterval(), convey.ShouldEqual, 3*time.Second)
			convey.So(cfg.FlushTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.OCRTimeout(), convey.ShouldEqual, 2*time.Second)
		})

		convey.Convey("Then it should pass validation", func() {
			convey.So(config.Validate(cfg), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given configs with bad values", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"unknown engine", func(c *config.Config) { c.OCREngine = "easyocr" }},
			{"zero fps", func(c *config.Config) { c.CaptureFPS = 0 }},
			{"nms above one", func(c *config.Config) { c.NMSThreshold = 1.5 }},
			{"floor above one", func(c *config.Config) { c.OCRConfidenceFloor = 2 }},
			{"no json log", func(c *config.Config) { c.JSONLogPath = "" }},
			{"bad log level", func(c *config.Config) { c.LogLevel = "verbose" }},
			{"no metrics namespace", func(c *config.Config) { c.MetricsNamespace = "" }},
			{"rekognition without region", func(c *config.Config) {
				c.OCREngine = config.EngineRekognition
				c.AWSRegion = ""
			}},
		}
		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)

			convey.Convey("Then validation should reject "+tc.name, func() {
				convey.So(errors.Is(config.Validate(cfg), config.ErrInvalid), convey.ShouldBeTrue)
			})
		}
	})
}
