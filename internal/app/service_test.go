package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/adapters/storage/jsonlog"
	service "github.com/okian/platewatch/internal/app"
	"github.com/okian/platewatch/internal/domain/detect"
	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/internal/domain/recognize"
)

// camera serves the same frame forever.
type camera struct {
	reads atomic.Int64
	fail  atomic.Bool
}

func (c *camera) Read() (model.Frame, error) {
	c.reads.Add(1)
	if c.fail.Load() {
		return model.Frame{}, errors.New("no signal")
	}
	return bgrFrame("Main Gate", time.Now()), nil
}

func (c *camera) Location() string { return "Main Gate" }

// stalledCamera blocks in Read until released, like a dead RTSP stream.
type stalledCamera struct {
	release chan struct{}
	entered chan struct{}
	once    atomic.Bool
}

func (c *stalledCamera) Read() (model.Frame, error) {
	if c.once.CompareAndSwap(false, true) {
		close(c.entered)
	}
	<-c.release
	return model.Frame{}, errors.New("stream closed")
}

func (c *stalledCamera) Location() string { return "Back Gate" }

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestServiceNew(t *testing.T) {
	Convey("Given no ledger", t, func() {
		svc, err := service.New(nil, nil, nil)

		Convey("Then construction fails", func() {
			So(svc, ShouldBeNil)
			So(errors.Is(err, service.ErrNoLedger), ShouldBeTrue)
		})
	})
}

func TestServiceCapture(t *testing.T) {
	Convey("Given a service reading from a camera", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		dir := t.TempDir()
		store, err := jsonlog.New(filepath.Join(dir, "plates.json"))
		So(err, ShouldBeNil)

		ledger := repository.New(ctx, []repository.Backend{store}, repository.WithFlushInterval(time.Hour))
		engine := &scriptedEngine{}
		engine.set("J00 OO4", 0.9)
		cam := &camera{}

		svc, err := service.New(ledger,
			detect.New([]detect.RegionDetector{&regionDetector{boxes: []detect.Box{plateBox()}}}),
			recognize.New(engine),
			service.WithSource(cam),
			service.WithFPS(50),
		)
		So(err, ShouldBeNil)

		Convey("When frames are submitted before start", func() {
			ok, err := svc.Submit(ctx, bgrFrame("Main Gate", t0))

			Convey("Then they are refused", func() {
				So(ok, ShouldBeFalse)
				So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})

		Convey("When the service runs until plates are seen", func() {
			So(svc.Start(ctx), ShouldBeNil)
			seen := waitFor(func() bool {
				rec, err := ledger.Get(ctx, "100 OOA")
				return err == nil && rec.DetectionCount >= 2
			})
			stats := svc.GetStats(ctx)
			stopErr := svc.Stop(ctx)
			saved, loadErr := store.Load()

			Convey("Then the plate accumulates sightings", func() {
				So(seen, ShouldBeTrue)
				So(stats.Started, ShouldBeTrue)
				So(stats.Session, ShouldNotBeEmpty)
				So(stats.Location, ShouldEqual, "Main Gate")
				So(stats.Detectors, ShouldEqual, 1)
				So(stats.QueueCapacity, ShouldEqual, 1)
				So(stats.Ledger.Total, ShouldEqual, 1)
				So(stats.OCR.Attempts, ShouldBeGreaterThanOrEqualTo, 2)
			})

			Convey("Then stopping flushes the table to the json log", func() {
				So(stopErr, ShouldBeNil)
				So(loadErr, ShouldBeNil)
				So(len(saved.Records), ShouldEqual, 1)
				So(saved.Records[0].Text, ShouldEqual, "100 OOA")
				So(svc.GetStats(ctx).Started, ShouldBeFalse)
			})
		})

		Convey("When the camera fails", func() {
			cam.fail.Store(true)
			So(svc.Start(ctx), ShouldBeNil)
			read := waitFor(func() bool { return cam.reads.Load() >= 1 })
			_ = svc.Stop(ctx)

			Convey("Then nothing is recorded and the service still stops", func() {
				So(read, ShouldBeTrue)
				So(ledger.Len(), ShouldEqual, 0)
			})
		})
	})
}

func TestServiceStopWithStalledSource(t *testing.T) {
	Convey("Given a service whose camera hangs in Read", t, func() {
		ctx := context.Background()
		store, err := jsonlog.New(filepath.Join(t.TempDir(), "plates.json"))
		So(err, ShouldBeNil)
		ledger := repository.New(ctx, []repository.Backend{store}, repository.WithFlushInterval(time.Hour))
		cam := &stalledCamera{release: make(chan struct{}), entered: make(chan struct{})}
		defer close(cam.release)

		engine := &scriptedEngine{}
		svc, err := service.New(ledger, nil, recognize.New(engine), service.WithSource(cam))
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		<-cam.entered

		_, err = svc.IngestReading(ctx, service.Reading{Text: "123 ABC", Confidence: 0.8, Location: "Back Gate", Timestamp: t0})
		So(err, ShouldBeNil)

		Convey("When the service is stopped with a short deadline", func() {
			stopCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
			defer cancel()
			began := time.Now()
			stopErr := svc.Stop(stopCtx)
			took := time.Since(began)
			saved, loadErr := store.Load()

			Convey("Then the final flush is not held up by the camera", func() {
				So(errors.Is(stopErr, service.ErrCaptureStalled), ShouldBeTrue)
				So(took, ShouldBeLessThan, time.Second)
				So(loadErr, ShouldBeNil)
				So(len(saved.Records), ShouldEqual, 1)
				So(saved.Records[0].Text, ShouldEqual, "123 ABC")
			})
		})
	})
}

func TestServiceReadings(t *testing.T) {
	Convey("Given a started service without a camera", t, func() {
		ctx := context.Background()
		ledger := repository.New(ctx, nil)
		svc, err := service.New(ledger, nil, nil)
		So(err, ShouldBeNil)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When readings are ingested and reviewed", func() {
			first, err1 := svc.IngestReading(ctx, service.Reading{Text: "ABC 123", Confidence: 0.6, Location: "Lobby", Timestamp: t0})
			second, err2 := svc.IngestReading(ctx, service.Reading{Text: "A8C-I23", Confidence: 0.9, Location: "Yard", Timestamp: t0.Add(time.Minute)})
			_, rejected := svc.IngestReading(ctx, service.Reading{Text: "??", Confidence: 0.9})
			verified, verr := svc.Verify(ctx, "ABC 123", "owner confirmed")
			_, again := svc.Flag(ctx, "ABC 123", "too late")

			Convey("Then both readings land on one record", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.Ack.Created, ShouldBeTrue)
				So(second.Ack.Created, ShouldBeFalse)
				So(second.Ack.BestImproved, ShouldBeTrue)
				So(second.Ack.DetectionCount, ShouldEqual, 2)
				So(rejected, ShouldNotBeNil)
			})

			Convey("Then review transitions are enforced", func() {
				So(verr, ShouldBeNil)
				So(verified.Status, ShouldEqual, model.StatusVerified)
				So(verified.Notes, ShouldEqual, "owner confirmed")
				So(errors.Is(again, repository.ErrInvalidTransition), ShouldBeTrue)
			})

			Convey("Then the record is listed and can be deleted", func() {
				page, err := svc.Query(ctx, repository.Query{Desc: true})
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 1)
				So(svc.Delete(ctx, "ABC 123"), ShouldBeNil)
				_, getErr := svc.Get(ctx, "ABC 123")
				So(errors.Is(getErr, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
