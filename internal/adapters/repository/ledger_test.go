package repository_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type fakeBackend struct {
	name        string
	incremental bool

	mu      sync.Mutex
	fail    bool
	writes  int
	batches []repository.Batch
}

func (f *fakeBackend) Name() string      { return f.name }
func (f *fakeBackend) Incremental() bool { return f.incremental }

func (f *fakeBackend) Write(_ context.Context, b repository.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk full")
	}
	f.writes++
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeBackend) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeBackend) last() repository.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[len(f.batches)-1]
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func obs(text string, conf float64, loc string, at time.Time) model.Observation {
	return model.Observation{
		RawText:     text,
		Text:        text,
		PatternKind: "numeric_alpha",
		Confidence:  conf,
		Coordinates: model.Coordinates{X: int(conf * 100), Y: 10, W: 120, H: 40},
		Location:    loc,
		Timestamp:   at,
	}
}

func newLedger(backends ...repository.Backend) *repository.Ledger {
	return repository.New(context.Background(), backends, repository.WithFlushInterval(time.Hour))
}

func TestLedgerMerge(t *testing.T) {
	Convey("Given an empty ledger", t, func() {
		ctx := context.Background()
		l := newLedger()
		defer l.Close(ctx)

		Convey("When a plate is seen at 0.80 and then at 0.95", func() {
			a1, err1 := l.Record(ctx, obs("123 ABC", 0.80, "Gate A", t0))
			a2, err2 := l.Record(ctx, obs("123 ABC", 0.95, "Gate B", t0.Add(time.Second)))
			rec, err := l.Get(ctx, "123 ABC")

			Convey("Then one record tracks both best and latest", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err, ShouldBeNil)
				So(a1.Created, ShouldBeTrue)
				So(a2.Created, ShouldBeFalse)
				So(a2.BestImproved, ShouldBeTrue)
				So(a1.ID, ShouldEqual, a2.ID)
				So(rec.DetectionCount, ShouldEqual, 2)
				So(rec.BestConfidence, ShouldEqual, 0.95)
				So(rec.Confidence, ShouldEqual, 0.95)
				So(rec.BestCoordinates.X, ShouldEqual, 95)
				So(rec.Status, ShouldEqual, model.StatusDetected)
				So(l.Len(), ShouldEqual, 1)
			})

			Convey("Then first location is preserved and latest location moves", func() {
				So(rec.FirstLocation, ShouldEqual, "Gate A")
				So(rec.LatestLocation, ShouldEqual, "Gate B")
				So(rec.FirstSeen, ShouldEqual, t0)
				So(rec.LastSeen, ShouldEqual, t0.Add(time.Second))
			})
		})

		Convey("When a plate is seen at 0.95 and then at 0.80", func() {
			_, _ = l.Record(ctx, obs("123 ABC", 0.95, "Gate A", t0))
			ack, _ := l.Record(ctx, obs("123 ABC", 0.80, "Gate A", t0.Add(time.Second)))
			rec, _ := l.Get(ctx, "123 ABC")

			Convey("Then best stays and latest follows the new sighting", func() {
				So(ack.BestImproved, ShouldBeFalse)
				So(rec.BestConfidence, ShouldEqual, 0.95)
				So(rec.BestCoordinates.X, ShouldEqual, 95)
				So(rec.Confidence, ShouldEqual, 0.80)
				So(rec.Coordinates.X, ShouldEqual, 80)
				So(rec.DetectionCount, ShouldEqual, 2)
			})
		})

		Convey("When the same confidence arrives twice", func() {
			_, _ = l.Record(ctx, obs("123 ABC", 0.90, "Gate A", t0))
			ack, _ := l.Record(ctx, obs("123 ABC", 0.90, "Gate B", t0.Add(time.Second)))

			Convey("Then the best is not replaced", func() {
				So(ack.BestImproved, ShouldBeFalse)
			})
		})

		Convey("When an observation is invalid", func() {
			_, errEmpty := l.Record(ctx, obs("  ", 0.9, "Gate A", t0))
			_, errHigh := l.Record(ctx, obs("123 ABC", 1.2, "Gate A", t0))
			_, errNaN := l.Record(ctx, obs("123 ABC", math.NaN(), "Gate A", t0))

			Convey("Then it is refused and nothing is stored", func() {
				So(errors.Is(errEmpty, repository.ErrInvalidObservation), ShouldBeTrue)
				So(errors.Is(errHigh, repository.ErrInvalidObservation), ShouldBeTrue)
				So(errors.Is(errNaN, repository.ErrInvalidObservation), ShouldBeTrue)
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the observation has no timestamp", func() {
			o := obs("123 ABC", 0.9, "Gate A", time.Time{})
			_, _ = l.Record(ctx, o)
			rec, _ := l.Get(ctx, "123 ABC")

			Convey("Then the ledger clock stamps it", func() {
				So(rec.FirstSeen.IsZero(), ShouldBeFalse)
			})
		})
	})
}

func TestLedgerReview(t *testing.T) {
	Convey("Given a ledger with one detected plate", t, func() {
		ctx := context.Background()
		l := newLedger()
		defer l.Close(ctx)
		_, _ = l.Record(ctx, obs("123 ABC", 0.9, "Gate A", t0))

		Convey("When it is verified", func() {
			rec, err := l.Verify(ctx, "123 ABC", "checked by desk")

			Convey("Then the status and note are stored", func() {
				So(err, ShouldBeNil)
				So(rec.Status, ShouldEqual, model.StatusVerified)
				So(rec.Notes, ShouldEqual, "checked by desk")
				So(rec.VerifiedAt, ShouldNotBeNil)
			})

			Convey("Then it cannot be flagged afterwards", func() {
				_, err := l.Flag(ctx, "123 ABC", "stolen")
				So(errors.Is(err, repository.ErrInvalidTransition), ShouldBeTrue)
			})

			Convey("Then new sightings keep the reviewed status", func() {
				_, _ = l.Record(ctx, obs("123 ABC", 0.7, "Gate B", t0.Add(time.Minute)))
				got, _ := l.Get(ctx, "123 ABC")
				So(got.Status, ShouldEqual, model.StatusVerified)
				So(got.DetectionCount, ShouldEqual, 2)
			})
		})

		Convey("When it is flagged", func() {
			rec, err := l.Flag(ctx, "123 ABC", "stolen")

			Convey("Then the reason is stored", func() {
				So(err, ShouldBeNil)
				So(rec.Status, ShouldEqual, model.StatusFlagged)
				So(rec.FlagReason, ShouldEqual, "stolen")
				So(rec.FlaggedAt, ShouldNotBeNil)
			})
		})

		Convey("When an unknown plate is reviewed", func() {
			_, errV := l.Verify(ctx, "999 ZZZ", "")
			_, errF := l.Flag(ctx, "999 ZZZ", "")
			errD := l.Delete(ctx, "999 ZZZ")

			Convey("Then not found is reported", func() {
				So(errors.Is(errV, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errF, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(errD, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When it is deleted", func() {
			err := l.Delete(ctx, "123 ABC")
			_, getErr := l.Get(ctx, "123 ABC")

			Convey("Then it is gone", func() {
				So(err, ShouldBeNil)
				So(errors.Is(getErr, repository.ErrNotFound), ShouldBeTrue)
				So(l.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a snapshot URL is attached", func() {
			err := l.AttachSnapshot(ctx, "123 ABC", "https://bucket/plates/123 ABC/x.jpg")
			rec, _ := l.Get(ctx, "123 ABC")

			Convey("Then the record carries it", func() {
				So(err, ShouldBeNil)
				So(rec.SnapshotURL, ShouldEqual, "https://bucket/plates/123 ABC/x.jpg")
			})
		})
	})
}

func TestLedgerFlush(t *testing.T) {
	Convey("Given a ledger with a full and an incremental backend", t, func() {
		ctx := context.Background()
		full := &fakeBackend{name: "jsonlog"}
		inc := &fakeBackend{name: "postgres", incremental: true}
		l := newLedger(full, inc)
		Reset(func() {
			_ = l.Close(ctx)
		})

		Convey("When many observations land in one window", func() {
			for i := 0; i < 10; i++ {
				_, _ = l.Record(ctx, obs("123 ABC", 0.5+float64(i)/100, "Gate A", t0.Add(time.Duration(i)*time.Second)))
			}
			_, _ = l.Record(ctx, obs("456 DEF", 0.7, "Gate A", t0))
			err := l.Flush(ctx)

			Convey("Then each backend is written exactly once", func() {
				So(err, ShouldBeNil)
				So(full.count(), ShouldEqual, 1)
				So(inc.count(), ShouldEqual, 1)
				So(full.last().Full, ShouldBeTrue)
				So(len(full.last().Records), ShouldEqual, 2)
				So(l.Pending(), ShouldBeFalse)
			})

			Convey("Then the full batch is ordered by first sighting", func() {
				recs := full.last().Records
				So(recs[0].Text, ShouldEqual, "123 ABC")
				So(recs[1].Text, ShouldEqual, "456 DEF")
			})

			Convey("Then a flush with nothing new writes nothing", func() {
				So(l.Flush(ctx), ShouldBeNil)
				So(full.count(), ShouldEqual, 1)
				So(inc.count(), ShouldEqual, 1)
			})

			Convey("Then the incremental backend only receives changed rows", func() {
				_, _ = l.Record(ctx, obs("456 DEF", 0.8, "Gate B", t0.Add(time.Minute)))
				_ = l.Delete(ctx, "123 ABC")
				So(l.Flush(ctx), ShouldBeNil)

				batch := inc.last()
				So(batch.Full, ShouldBeFalse)
				So(len(batch.Records), ShouldEqual, 1)
				So(batch.Records[0].Text, ShouldEqual, "456 DEF")
				So(batch.Deleted, ShouldResemble, []string{"123 ABC"})
				So(len(full.last().Records), ShouldEqual, 1)
			})
		})

		Convey("When one backend fails", func() {
			inc.setFail(true)
			_, _ = l.Record(ctx, obs("123 ABC", 0.9, "Gate A", t0))
			err := l.Flush(ctx)

			Convey("Then the other backend and the table are unaffected", func() {
				So(err, ShouldNotBeNil)
				So(full.count(), ShouldEqual, 1)
				So(inc.count(), ShouldEqual, 0)
				So(l.Len(), ShouldEqual, 1)
				So(l.Pending(), ShouldBeTrue)
			})

			Convey("Then the failed backend is retried on the next flush", func() {
				inc.setFail(false)
				So(l.Flush(ctx), ShouldBeNil)
				So(inc.count(), ShouldEqual, 1)
				So(inc.last().Records[0].Text, ShouldEqual, "123 ABC")
				So(full.count(), ShouldEqual, 1)
			})
		})

		Convey("When the ledger is closed with pending changes", func() {
			_, _ = l.Record(ctx, obs("123 ABC", 0.9, "Gate A", t0))
			err := l.Close(ctx)
			_, recErr := l.Record(ctx, obs("456 DEF", 0.9, "Gate A", t0))

			Convey("Then a final flush runs and later records are refused", func() {
				So(err, ShouldBeNil)
				So(full.count(), ShouldEqual, 1)
				So(inc.count(), ShouldEqual, 1)
				So(errors.Is(recErr, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})

	Convey("Given a ledger with a short debounce window", t, func() {
		ctx := context.Background()
		full := &fakeBackend{name: "jsonlog"}
		l := repository.New(ctx, []repository.Backend{full}, repository.WithFlushInterval(20*time.Millisecond))
		defer l.Close(ctx)

		Convey("When a burst of observations arrives", func() {
			for i := 0; i < 25; i++ {
				_, _ = l.Record(ctx, obs("123 ABC", 0.9, "Gate A", t0))
			}
			deadline := time.Now().Add(2 * time.Second)
			for full.count() == 0 && time.Now().Before(deadline) {
				time.Sleep(5 * time.Millisecond)
			}
			time.Sleep(60 * time.Millisecond)

			Convey("Then the ticker writes it once", func() {
				So(full.count(), ShouldEqual, 1)
			})
		})
	})
}

// stuckBackend ignores its context and blocks until released.
type stuckBackend struct {
	release chan struct{}
	calls   atomic.Int64
}

func (b *stuckBackend) Name() string { return "stuck" }

func (b *stuckBackend) Write(context.Context, repository.Batch) error {
	b.calls.Add(1)
	<-b.release
	return nil
}

func TestLedgerWriteTimeout(t *testing.T) {
	Convey("Given a backend that never honours its deadline", t, func() {
		ctx := context.Background()
		stuck := &stuckBackend{release: make(chan struct{})}
		full := &fakeBackend{name: "jsonlog"}
		l := repository.New(ctx, []repository.Backend{stuck, full},
			repository.WithFlushInterval(time.Hour),
			repository.WithFlushTimeout(50*time.Millisecond),
		)
		released := false
		release := func() {
			if !released {
				close(stuck.release)
				released = true
			}
		}
		Reset(func() {
			release()
			_ = l.Close(ctx)
		})
		_, _ = l.Record(ctx, obs("123 ABC", 0.9, "Gate A", t0))

		Convey("When a flush runs", func() {
			began := time.Now()
			err := l.Flush(ctx)
			took := time.Since(began)

			Convey("Then it gives up after the timeout", func() {
				So(errors.Is(err, repository.ErrWriteTimeout), ShouldBeTrue)
				So(took, ShouldBeLessThan, time.Second)
				So(full.count(), ShouldEqual, 1)
				So(l.Pending(), ShouldBeTrue)
			})

			Convey("Then the backend is skipped while its write is outstanding", func() {
				err := l.Flush(ctx)
				So(errors.Is(err, repository.ErrBackendBusy), ShouldBeTrue)
				So(stuck.calls.Load(), ShouldEqual, 1)
			})

			Convey("Then the late write still counts once it lands", func() {
				release()
				deadline := time.Now().Add(2 * time.Second)
				for l.Pending() && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(l.Pending(), ShouldBeFalse)
				So(l.Flush(ctx), ShouldBeNil)
				So(stuck.calls.Load(), ShouldEqual, 1)
			})
		})
	})
}

func TestLedgerDeleteThenSeenAgain(t *testing.T) {
	Convey("Given a flushed plate in both backends", t, func() {
		ctx := context.Background()
		full := &fakeBackend{name: "jsonlog"}
		inc := &fakeBackend{name: "postgres", incremental: true}
		l := newLedger(full, inc)
		defer l.Close(ctx)

		first, _ := l.Record(ctx, obs("123 ABC", 0.9, "Gate A", t0))
		So(l.Flush(ctx), ShouldBeNil)

		Convey("When it is deleted and seen again in one window", func() {
			So(l.Delete(ctx, "123 ABC"), ShouldBeNil)
			second, _ := l.Record(ctx, obs("123 ABC", 0.6, "Gate B", t0.Add(time.Hour)))
			So(l.Flush(ctx), ShouldBeNil)
			batch := inc.last()

			Convey("Then the incremental backend drops the old row before the new one", func() {
				So(second.Created, ShouldBeTrue)
				So(second.ID, ShouldNotEqual, first.ID)
				So(batch.Deleted, ShouldResemble, []string{"123 ABC"})
				So(len(batch.Records), ShouldEqual, 1)
				So(batch.Records[0].ID, ShouldEqual, second.ID)
				So(batch.Records[0].FirstLocation, ShouldEqual, "Gate B")
			})

			Convey("Then the removal is not sent again", func() {
				_, _ = l.Record(ctx, obs("123 ABC", 0.7, "Gate B", t0.Add(2*time.Hour)))
				So(l.Flush(ctx), ShouldBeNil)
				So(inc.last().Deleted, ShouldBeEmpty)
				So(full.last().Deleted, ShouldBeEmpty)
			})
		})

		Convey("When a deletion has not reached the incremental backend", func() {
			inc.setFail(true)
			So(l.Delete(ctx, "123 ABC"), ShouldBeNil)
			_ = l.Flush(ctx)

			Convey("Then the full backend keeps it as pending", func() {
				So(full.last().Deleted, ShouldResemble, []string{"123 ABC"})
				So(len(full.last().Records), ShouldEqual, 0)
			})
		})
	})
}

func TestLedgerRestore(t *testing.T) {
	Convey("Given records loaded from the log", t, func() {
		ctx := context.Background()
		full := &fakeBackend{name: "jsonlog"}
		inc := &fakeBackend{name: "postgres", incremental: true}
		l := newLedger(full, inc)
		defer l.Close(ctx)

		n := l.Restore(repository.Snapshot{
			Records: []model.PlateRecord{
				{ID: "a", Text: "123 ABC", BestConfidence: 0.9, DetectionCount: 4, Status: model.StatusVerified, FirstSeen: t0},
				{Text: "456 DEF", DetectionCount: 1, FirstSeen: t0},
				{Text: ""},
			},
			Deleted: []string{"789 GHI"},
		}, full)

		Convey("Then they are served without rewriting the log", func() {
			So(n, ShouldEqual, 2)
			So(l.Len(), ShouldEqual, 2)

			rec, err := l.Get(ctx, "456 DEF")
			So(err, ShouldBeNil)
			So(rec.ID, ShouldNotBeEmpty)
			So(rec.Status, ShouldEqual, model.StatusDetected)

			So(l.Flush(ctx), ShouldBeNil)
			So(full.count(), ShouldEqual, 0)
		})

		Convey("Then the incremental backend catches up with rows and removals", func() {
			So(l.Pending(), ShouldBeTrue)
			So(l.Flush(ctx), ShouldBeNil)
			batch := inc.last()
			So(len(batch.Records), ShouldEqual, 2)
			So(batch.Deleted, ShouldResemble, []string{"789 GHI"})
			So(l.Pending(), ShouldBeFalse)
		})

		Convey("Then new sightings continue the restored counts", func() {
			ack, _ := l.Record(ctx, obs("123 ABC", 0.5, "Gate C", t0.Add(time.Hour)))
			So(ack.ID, ShouldEqual, "a")
			So(ack.DetectionCount, ShouldEqual, 5)
		})
	})

	Convey("Given a previous run whose incremental writes failed", t, func() {
		ctx := context.Background()
		log := &fakeBackend{name: "jsonlog"}
		broken := &fakeBackend{name: "postgres", incremental: true}
		broken.setFail(true)

		before := newLedger(log, broken)
		_, _ = before.Record(ctx, obs("100 OOA", 0.9, "Main Gate", t0))
		_, _ = before.Record(ctx, obs("300 CCC", 0.8, "Main Gate", t0))
		So(before.Flush(ctx), ShouldNotBeNil)
		So(before.Delete(ctx, "300 CCC"), ShouldBeNil)
		So(before.Close(ctx), ShouldNotBeNil)
		saved := log.last()

		Convey("When the next run restores from the log", func() {
			db := &fakeBackend{name: "postgres", incremental: true}
			after := newLedger(log, db)
			after.Restore(repository.Snapshot{Records: saved.Records, Deleted: saved.Deleted}, log)
			_, _ = after.Record(ctx, obs("200 BBB", 0.7, "Main Gate", t0.Add(time.Hour)))
			So(after.Close(ctx), ShouldBeNil)

			Convey("Then the database receives every row it missed", func() {
				var texts []string
				for _, rec := range db.last().Records {
					texts = append(texts, rec.Text)
				}
				So(texts, ShouldContain, "100 OOA")
				So(texts, ShouldContain, "200 BBB")
				So(db.last().Deleted, ShouldResemble, []string{"300 CCC"})
			})
		})
	})
}
