// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and PLATEWATCH_* environment variables on top.
// - Durations are plain integers with an explicit unit suffix in the key.
package config

import (
	"time"
)

// OCR engines.
const (
	EngineTesseract   = "tesseract"
	EngineRekognition = "rekognition"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`
	// LogFile, when set, tees logs into a size-rotated file.
	LogFile string `koanf:"log_file"`

	// MetricsNamespace and MetricsPrefix shape exported metric names; every
	// metric also carries the camera location as a constant label.
	MetricsNamespace string `koanf:"metrics_namespace" validate:"required"`
	MetricsPrefix    string `koanf:"metrics_prefix"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// CameraSource is a device index, file path or stream URL. Empty disables
	// frame capture; readings can still be posted over HTTP.
	CameraSource   string `koanf:"camera_source"`
	CameraLocation string `koanf:"camera_location" validate:"required"`
	CaptureFPS     int    `koanf:"capture_fps" validate:"gte=1,lte=60"`
	FrameWidth     int    `koanf:"frame_width" validate:"gte=64"`
	FrameHeight    int    `koanf:"frame_height" validate:"gte=48"`
	FrameQueueSize int    `koanf:"frame_queue_size" validate:"gte=1"`

	// CascadePath is the Haar cascade file shared by the region detectors.
	CascadePath  string  `koanf:"cascade_path"`
	NMSThreshold float64 `koanf:"nms_threshold" validate:"gt=0,lte=1"`
	ROIPadding   int     `koanf:"roi_padding" validate:"gte=0"`

	OCREngine          string  `koanf:"ocr_engine" validate:"oneof=tesseract rekognition"`
	OCRLanguage        string  `koanf:"ocr_language"`
	OCRUpscale         float64 `koanf:"ocr_upscale" validate:"gte=1"`
	OCRConfidenceFloor float64 `koanf:"ocr_confidence_floor" validate:"gte=0,lte=1"`
	OCRWidthThs        float64 `koanf:"ocr_width_ths" validate:"gt=0"`
	OCRHeightThs       float64 `koanf:"ocr_height_ths" validate:"gt=0"`
	OCRTimeoutMS       int     `koanf:"ocr_timeout_ms" validate:"gte=1"`
	OCRMinLength       int     `koanf:"ocr_min_length" validate:"gte=1"`

	// FlushIntervalMS is the debounce window of the ledger.
	FlushIntervalMS int `koanf:"flush_interval_ms" validate:"gte=10"`
	// FlushTimeoutMS bounds each backend write.
	FlushTimeoutMS int `koanf:"flush_timeout_ms" validate:"gte=10"`

	// JSONLogPath is the full-table JSON snapshot. Required: it is also the
	// restore source at startup.
	JSONLogPath string `koanf:"json_log_path" validate:"required"`
	// DatabaseDSN enables the Postgres backend when set.
	DatabaseDSN string `koanf:"database_dsn"`

	// RedisAddr enables the detection publisher when set.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db" validate:"gte=0"`
	RedisChannel  string `koanf:"redis_channel"`

	// AWSRegion is used by Rekognition and S3.
	AWSRegion string `koanf:"aws_region"`
	// S3Bucket enables the evidence archiver when set.
	S3Bucket string `koanf:"s3_bucket"`
	S3Prefix string `koanf:"s3_prefix"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		MetricsNamespace:   "platewatch",
		Addr:               ":9080",
		CameraLocation:     "Main Gate",
		CaptureFPS:         10,
		FrameWidth:         640,
		FrameHeight:        480,
		FrameQueueSize:     1,
		CascadePath:        "haarcascade_russian_plate_number.xml",
		NMSThreshold:       0.3,
		ROIPadding:         10,
		OCREngine:          EngineTesseract,
		OCRLanguage:        "eng",
		OCRUpscale:         4.0,
		OCRConfidenceFloor: 0.25,
		OCRWidthThs:        0.5,
		OCRHeightThs:       0.5,
		OCRTimeoutMS:       2000,
		OCRMinLength:       5,
		FlushIntervalMS:    3000,
		FlushTimeoutMS:     5000,
		JSONLogPath:        "data/license_plates.json",
		RedisChannel:       "platewatch:detections",
		AWSRegion:          "us-east-1",
		S3Prefix:           "plates",
	}
}

// FlushInterval returns the ledger debounce window.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// FlushTimeout returns the per-backend write timeout.
func (c *Config) FlushTimeout() time.Duration {
	return time.Duration(c.FlushTimeoutMS) * time.Millisecond
}

// OCRTimeout returns the recognizer timeout.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutMS) * time.Millisecond
}
