package repository

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

// Default ledger timings.
const (
	DefaultFlushInterval = 3 * time.Second
	DefaultFlushTimeout  = 5 * time.Second
)

// entry is a record plus the ledger version of its last mutation.
type entry struct {
	rec model.PlateRecord
	rev uint64
}

// backendState tracks how far a backend has durably caught up.
type backendState struct {
	backend     Backend
	incremental bool
	flushed     uint64
	// busy is set while a write is outstanding, including one the flush
	// stopped waiting for.
	busy bool
}

// Ledger is the in-memory table of plate records keyed by canonical text.
// Mutations bump a ledger-wide version; a ticker writes the changes to every
// backend that lags behind it. Backend I/O never runs under the table lock.
type Ledger struct {
	mu         sync.Mutex
	byText     map[string]*entry
	tombstones map[string]uint64
	version    uint64
	backends   []*backendState
	closed     bool

	flushMu       sync.Mutex
	writes        sync.WaitGroup
	flushInterval time.Duration
	flushTimeout  time.Duration
	now           func() time.Time
	logger        logger.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// New constructs a ledger over the given backends and starts its flush loop.
func New(ctx context.Context, backends []Backend, opts ...Option) *Ledger {
	l := &Ledger{
		byText:        make(map[string]*entry),
		tombstones:    make(map[string]uint64),
		flushInterval: DefaultFlushInterval,
		flushTimeout:  DefaultFlushTimeout,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = logger.Get().Named("ledger")
	}
	for _, b := range backends {
		if b == nil {
			continue
		}
		st := &backendState{backend: b}
		if inc, ok := b.(incremental); ok {
			st.incremental = inc.Incremental()
		}
		l.backends = append(l.backends, st)
	}

	l.startFlushLoop(ctx)
	return l
}

// Record merges one observation into the table. The first observation of a
// text creates its record; later ones update the latest fields, raise the best
// fields when strictly more confident and bump the detection count.
func (l *Ledger) Record(ctx context.Context, obs model.Observation) (Ack, error) {
	if err := checkObservation(obs); err != nil {
		return Ack{}, err
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = l.now()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return Ack{}, ErrClosed
	}
	l.version++
	var ack Ack
	e, ok := l.byText[obs.Text]
	if !ok {
		e = &entry{rec: newRecord(obs)}
		// A pending tombstone for this text stays: incremental backends must
		// drop the old row before the new record replaces it.
		l.byText[obs.Text] = e
		ack.Created = true
		ack.BestImproved = true
	} else {
		applyLatest(&e.rec, obs)
		ack.BestImproved = applyBest(&e.rec, obs)
		e.rec.DetectionCount++
	}
	e.rev = l.version
	ack.ID = e.rec.ID
	ack.DetectionCount = e.rec.DetectionCount
	size := len(l.byText)
	l.mu.Unlock()

	metrics.RecordObservation(ack.Created, ack.BestImproved && !ack.Created)
	if ack.Created {
		metrics.UpdateLedgerRecords(size)
		l.logger.Info(ctx, "new plate",
			logger.String("plate", obs.Text),
			logger.String("location", obs.Location),
			logger.Float64("confidence", obs.Confidence),
		)
	}
	return ack, nil
}

func checkObservation(obs model.Observation) error {
	if strings.TrimSpace(obs.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrInvalidObservation)
	}
	if math.IsNaN(obs.Confidence) || obs.Confidence < 0 || obs.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v", ErrInvalidObservation, obs.Confidence)
	}
	return nil
}

func newRecord(obs model.Observation) model.PlateRecord {
	return model.PlateRecord{
		ID:              uuid.NewString(),
		Text:            obs.Text,
		PatternKind:     obs.PatternKind,
		Confidence:      obs.Confidence,
		Coordinates:     obs.Coordinates,
		LatestLocation:  obs.Location,
		LastSeen:        obs.Timestamp,
		BestConfidence:  obs.Confidence,
		BestCoordinates: obs.Coordinates,
		FirstLocation:   obs.Location,
		FirstSeen:       obs.Timestamp,
		DetectionCount:  1,
		Status:          model.StatusDetected,
	}
}

// applyLatest is the last-write reducer.
func applyLatest(rec *model.PlateRecord, obs model.Observation) {
	rec.Confidence = obs.Confidence
	rec.Coordinates = obs.Coordinates
	rec.LatestLocation = obs.Location
	rec.LastSeen = obs.Timestamp
}

// applyBest is the max-by-confidence reducer. Ties keep the older best.
func applyBest(rec *model.PlateRecord, obs model.Observation) bool {
	if obs.Confidence <= rec.BestConfidence {
		return false
	}
	rec.BestConfidence = obs.Confidence
	rec.BestCoordinates = obs.Coordinates
	return true
}

// Verify moves a detected record to verified.
func (l *Ledger) Verify(ctx context.Context, text, note string) (model.PlateRecord, error) {
	return l.review(ctx, text, model.StatusVerified, func(rec *model.PlateRecord, at time.Time) {
		rec.Notes = note
		rec.VerifiedAt = &at
	})
}

// Flag moves a detected record to flagged.
func (l *Ledger) Flag(ctx context.Context, text, reason string) (model.PlateRecord, error) {
	return l.review(ctx, text, model.StatusFlagged, func(rec *model.PlateRecord, at time.Time) {
		rec.FlagReason = reason
		rec.FlaggedAt = &at
	})
}

func (l *Ledger) review(ctx context.Context, text string, to model.Status, apply func(*model.PlateRecord, time.Time)) (model.PlateRecord, error) {
	l.mu.Lock()
	e, ok := l.byText[text]
	if !ok {
		l.mu.Unlock()
		return model.PlateRecord{}, ErrNotFound
	}
	if e.rec.Status != model.StatusDetected {
		from := e.rec.Status
		l.mu.Unlock()
		return model.PlateRecord{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	l.version++
	e.rec.Status = to
	apply(&e.rec, l.now().UTC())
	e.rev = l.version
	out := e.rec.Clone()
	l.mu.Unlock()

	metrics.RecordReviewAction(string(to))
	l.logger.Info(ctx, "plate reviewed",
		logger.String("plate", text),
		logger.String("status", string(to)),
	)
	return out, nil
}

// Delete removes a record. The removal reaches incremental backends as a
// tombstone on the next flush.
func (l *Ledger) Delete(ctx context.Context, text string) error {
	l.mu.Lock()
	if _, ok := l.byText[text]; !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	l.version++
	delete(l.byText, text)
	l.tombstones[text] = l.version
	size := len(l.byText)
	l.mu.Unlock()

	metrics.RecordReviewAction("delete")
	metrics.UpdateLedgerRecords(size)
	l.logger.Info(ctx, "plate deleted", logger.String("plate", text))
	return nil
}

// AttachSnapshot stores the evidence URL for a record.
func (l *Ledger) AttachSnapshot(_ context.Context, text, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byText[text]
	if !ok {
		return ErrNotFound
	}
	l.version++
	e.rec.SnapshotURL = url
	e.rev = l.version
	return nil
}

// Get returns a copy of one record.
func (l *Ledger) Get(_ context.Context, text string) (model.PlateRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byText[text]
	if !ok {
		return model.PlateRecord{}, ErrNotFound
	}
	return e.rec.Clone(), nil
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byText)
}

// Restore seeds the table at startup from the snapshot one backend returned.
// That backend counts the rows as written. Every other backend receives them,
// along with the snapshot's pending removals, on the next flush. Records whose
// text is already present are skipped.
func (l *Ledger) Restore(snap Snapshot, from Backend) int {
	l.mu.Lock()
	l.version++
	v := l.version
	n := 0
	for i := range snap.Records {
		rec := snap.Records[i].Clone()
		if rec.Text == "" {
			continue
		}
		if _, ok := l.byText[rec.Text]; ok {
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if !rec.Status.Valid() {
			rec.Status = model.StatusDetected
		}
		l.byText[rec.Text] = &entry{rec: rec, rev: v}
		n++
	}
	for _, text := range snap.Deleted {
		if text != "" {
			l.tombstones[text] = v
		}
	}
	for _, st := range l.backends {
		// Only a backend that was already current may skip its own rows.
		if from != nil && st.backend == from && st.flushed == v-1 {
			st.flushed = v
		}
	}
	size := len(l.byText)
	l.mu.Unlock()

	metrics.UpdateLedgerRecords(size)
	l.logger.Info(context.Background(), "ledger restored",
		logger.Int("records", n),
		logger.Int("pendingDeletes", len(snap.Deleted)),
	)
	return n
}
