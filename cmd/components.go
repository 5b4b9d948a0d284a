package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	s3archive "github.com/okian/platewatch/internal/adapters/archive/s3"
	notify "github.com/okian/platewatch/internal/adapters/notify/redis"
	"github.com/okian/platewatch/internal/adapters/ocr/rekognition"
	"github.com/okian/platewatch/internal/adapters/ocr/tesseract"
	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/adapters/storage/jsonlog"
	"github.com/okian/platewatch/internal/adapters/storage/postgres"
	"github.com/okian/platewatch/internal/adapters/vision"
	service "github.com/okian/platewatch/internal/app"
	"github.com/okian/platewatch/internal/config"
	"github.com/okian/platewatch/internal/domain/detect"
	"github.com/okian/platewatch/internal/domain/recognize"
	"github.com/okian/platewatch/pkg/logger"
)

// components holds everything run needs to close on the way out.
type components struct {
	service *service.Service
	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (c *components) add(name string, closer io.Closer) {
	c.closers = append(c.closers, namedCloser{name: name, c: closer})
}

// close releases resources in reverse order of acquisition.
func (c *components) close(log logger.Logger) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].c.Close(); err != nil {
			log.Warn(context.Background(), "close failed", logger.String("component", c.closers[i].name), logger.Error(err))
		}
	}
}

// buildComponents wires storage, OCR, detection, capture and side channels
// into a service. OCR initialisation failure is fatal.
func buildComponents(ctx context.Context, cfg *config.Config, log logger.Logger) (*components, error) {
	c := &components{}
	var ledger *repository.Ledger
	fail := func(err error) (*components, error) {
		if ledger != nil {
			_ = ledger.Close(ctx)
		}
		c.close(log)
		return nil, err
	}

	jl, err := jsonlog.New(cfg.JSONLogPath)
	if err != nil {
		return fail(fmt.Errorf("json log: %w", err))
	}
	backends := []repository.Backend{jl}
	sources := []restoreSource{{
		from: jl,
		load: func(context.Context) (repository.Snapshot, error) { return jl.Load() },
	}}

	if cfg.DatabaseDSN != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fail(fmt.Errorf("postgres: %w", err))
		}
		c.add("postgres", pg)
		backends = append(backends, pg)
		sources = append(sources, restoreSource{from: pg, load: pg.Load})
	}

	ledger = repository.New(ctx, backends,
		repository.WithFlushInterval(cfg.FlushInterval()),
		repository.WithFlushTimeout(cfg.FlushTimeout()),
	)
	restoreLedger(ctx, ledger, sources...)

	var sess *session.Session
	awsSession := func() (*session.Session, error) {
		if sess != nil {
			return sess, nil
		}
		s, err := session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			return nil, fmt.Errorf("aws session: %w", err)
		}
		sess = s
		return s, nil
	}

	var engine recognize.Engine
	switch cfg.OCREngine {
	case config.EngineRekognition:
		s, err := awsSession()
		if err != nil {
			log.Fatal(ctx, "OCR engine initialisation failed", logger.String("engine", cfg.OCREngine), logger.Error(err))
		}
		engine = rekognition.New(s)
	default:
		tess, err := tesseract.New(cfg.OCRLanguage)
		if err != nil {
			log.Fatal(ctx, "OCR engine initialisation failed", logger.String("engine", cfg.OCREngine), logger.Error(err))
		}
		c.add("tesseract", tess)
		engine = tess
	}
	recognizer := recognize.New(engine,
		recognize.WithUpscale(cfg.OCRUpscale),
		recognize.WithConfidenceFloor(cfg.OCRConfidenceFloor),
		recognize.WithWidthTolerance(cfg.OCRWidthThs),
		recognize.WithHeightTolerance(cfg.OCRHeightThs),
		recognize.WithTimeout(cfg.OCRTimeout()),
		recognize.WithMinLength(cfg.OCRMinLength),
	)

	var regions []detect.RegionDetector
	for _, p := range vision.DefaultCascades(cfg.CascadePath) {
		cascade, err := vision.NewCascade(p)
		if err != nil {
			log.Warn(ctx, "region detector unavailable", logger.String("detector", p.Name), logger.Error(err))
			continue
		}
		c.add(p.Name, cascade)
		regions = append(regions, cascade)
	}
	detector := detect.New(regions, detect.WithIoUThreshold(cfg.NMSThreshold))

	opts := []service.Option{
		service.WithFPS(float64(cfg.CaptureFPS)),
		service.WithQueueSize(cfg.FrameQueueSize),
		service.WithPadding(cfg.ROIPadding),
	}

	if cfg.CameraSource != "" {
		cam, err := vision.OpenCamera(cfg.CameraSource, cfg.CameraLocation, cfg.FrameWidth, cfg.FrameHeight)
		if err != nil {
			return fail(fmt.Errorf("camera: %w", err))
		}
		c.add("camera", cam)
		opts = append(opts, service.WithSource(cam))
	} else {
		log.Info(ctx, "no camera configured; accepting readings over HTTP only")
	}

	if cfg.RedisAddr != "" {
		pub, err := notify.New(ctx, notify.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			log.Warn(ctx, "detection publisher disabled", logger.Error(err))
		} else {
			c.add("redis", pub)
			opts = append(opts, service.WithPublisher(pub))
		}
	}

	if cfg.S3Bucket != "" {
		s, err := awsSession()
		if err == nil {
			var archiver *s3archive.Archiver
			if archiver, err = s3archive.New(s, cfg.S3Bucket, cfg.S3Prefix); err == nil {
				opts = append(opts, service.WithArchiver(archiver))
			}
		}
		if err != nil {
			log.Warn(ctx, "evidence archiver disabled", logger.Error(err))
		}
	}

	svc, err := service.New(ledger, detector, recognizer, opts...)
	if err != nil {
		return fail(err)
	}
	c.service = svc

	log.Info(ctx, "components ready",
		logger.Int("backends", len(backends)),
		logger.Int("detectors", detector.Len()),
		logger.String("ocr", cfg.OCREngine),
		logger.Int("records", ledger.Len()),
	)
	return c, nil
}
