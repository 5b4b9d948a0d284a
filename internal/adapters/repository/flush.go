package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/pkg/logger"
	"github.com/okian/platewatch/pkg/metrics"
)

// startFlushLoop flushes on every tick until the ledger is closed.
func (l *Ledger) startFlushLoop(ctx context.Context) {
	if len(l.backends) == 0 {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopChan:
				return
			case <-ticker.C:
				// Errors are logged per backend; the next tick retries.
				_ = l.Flush(context.WithoutCancel(ctx))
			}
		}
	}()
}

type flushJob struct {
	state   *backendState
	batch   Batch
	version uint64
}

// Flush writes pending changes to every lagging backend concurrently. A
// backend that fails or times out keeps its previous version and is retried
// next time; the others are unaffected. A backend whose earlier write is
// still outstanding is skipped.
func (l *Ledger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	jobs, busy := l.pendingJobs()
	if len(jobs) == 0 && len(busy) == 0 {
		return nil
	}

	errs := make([]error, len(jobs), len(jobs)+len(busy))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			errs[i] = l.write(ctx, job)
			return errs[i]
		})
	}
	_ = g.Wait()
	for _, name := range busy {
		errs = append(errs, fmt.Errorf("flush %s: %w", name, ErrBackendBusy))
	}

	l.pruneTombstones()
	return errors.Join(errs...)
}

func (l *Ledger) pendingJobs() ([]flushJob, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var jobs []flushJob
	var busy []string
	for _, st := range l.backends {
		if st.flushed >= l.version {
			continue
		}
		if st.busy {
			busy = append(busy, st.backend.Name())
			continue
		}
		st.busy = true
		jobs = append(jobs, flushJob{state: st, batch: l.batchLocked(st), version: l.version})
	}
	return jobs, busy
}

// batchLocked builds the batch for one backend; l.mu must be held.
func (l *Ledger) batchLocked(st *backendState) Batch {
	if !st.incremental {
		records := make([]model.PlateRecord, 0, len(l.byText))
		for _, e := range l.byText {
			records = append(records, e.rec.Clone())
		}
		sortForLog(records)
		return Batch{Records: records, Deleted: l.deletedSinceLocked(l.incrementalLowLocked()), Full: true}
	}

	var b Batch
	for _, e := range l.byText {
		if e.rev > st.flushed {
			b.Records = append(b.Records, e.rec.Clone())
		}
	}
	b.Deleted = l.deletedSinceLocked(st.flushed)
	sortForLog(b.Records)
	return b
}

// deletedSinceLocked lists tombstones newer than version, sorted.
func (l *Ledger) deletedSinceLocked(version uint64) []string {
	var out []string
	for text, v := range l.tombstones {
		if v > version {
			out = append(out, text)
		}
	}
	sort.Strings(out)
	return out
}

// incrementalLowLocked is the oldest version any incremental backend has
// written, or the current version when there are none.
func (l *Ledger) incrementalLowLocked() uint64 {
	low := l.version
	for _, st := range l.backends {
		if st.incremental && st.flushed < low {
			low = st.flushed
		}
	}
	return low
}

// write hands one batch to its backend and waits at most flushTimeout. A
// write that outlives the wait keeps running in the background; its result
// still settles the backend's version and the backend is skipped until then.
func (l *Ledger) write(ctx context.Context, job flushJob) error {
	name := job.state.backend.Name()
	wctx, cancel := context.WithTimeout(ctx, l.flushTimeout)
	timer := time.NewTimer(l.flushTimeout)
	defer timer.Stop()

	start := time.Now()
	done := make(chan error, 1)
	l.writes.Add(1)
	go func() {
		defer l.writes.Done()
		defer cancel()
		err := job.state.backend.Write(wctx, job.batch)
		l.settle(job, err)
		done <- err
	}()

	var err error
	outcome := "error"
	select {
	case err = <-done:
	case <-timer.C:
		err, outcome = ErrWriteTimeout, "timeout"
	case <-ctx.Done():
		err = ctx.Err()
	}
	ms := float64(time.Since(start).Milliseconds())

	if err != nil {
		metrics.RecordFlush(name, outcome, ms)
		metrics.RecordErrorByComponent("ledger", "flush")
		l.logger.Error(ctx, "flush failed",
			logger.String("backend", name),
			logger.Int("records", len(job.batch.Records)),
			logger.Error(err),
		)
		return fmt.Errorf("flush %s: %w", name, err)
	}
	metrics.RecordFlush(name, "ok", ms)
	l.logger.Debug(ctx, "flushed",
		logger.String("backend", name),
		logger.Int("records", len(job.batch.Records)),
		logger.Int("deleted", len(job.batch.Deleted)),
	)
	return nil
}

// settle records the outcome of a backend write.
func (l *Ledger) settle(job flushJob, err error) {
	l.mu.Lock()
	job.state.busy = false
	if err == nil && job.version > job.state.flushed {
		job.state.flushed = job.version
	}
	lag := l.version - job.state.flushed
	l.mu.Unlock()
	metrics.UpdateFlushLag(job.state.backend.Name(), lag)
}

// pruneTombstones drops deletions every incremental backend has written.
func (l *Ledger) pruneTombstones() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.tombstones) == 0 {
		return
	}
	low := l.incrementalLowLocked()
	for text, v := range l.tombstones {
		if v <= low {
			delete(l.tombstones, text)
		}
	}
}

// Pending reports whether any backend lags behind the table.
func (l *Ledger) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, st := range l.backends {
		if st.flushed < l.version {
			return true
		}
	}
	return false
}

// Close stops the flush loop and performs a final flush. Writes still
// outstanding from earlier flushes get one more flush timeout to land first.
// Later Record calls return ErrClosed.
func (l *Ledger) Close(ctx context.Context) error {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.wg.Wait()

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.awaitWrites(ctx)
	return l.Flush(ctx)
}

func (l *Ledger) awaitWrites(ctx context.Context) {
	idle := make(chan struct{})
	go func() {
		l.writes.Wait()
		close(idle)
	}()
	timer := time.NewTimer(l.flushTimeout)
	defer timer.Stop()
	select {
	case <-idle:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// sortForLog orders records by first sighting, then text.
func sortForLog(records []model.PlateRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].FirstSeen.Equal(records[j].FirstSeen) {
			return records[i].FirstSeen.Before(records[j].FirstSeen)
		}
		return records[i].Text < records[j].Text
	})
}
