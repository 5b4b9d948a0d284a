// Package jsonlog persists the whole plate table as one JSON document that is
// replaced atomically on every write.
package jsonlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// document is the on-disk envelope.
type document struct {
	UpdatedAt time.Time           `json:"updated_at"`
	Records   []model.PlateRecord `json:"records"`
	// PendingDeletes are removals not yet written by every incremental
	// backend; they are replayed after a restart.
	PendingDeletes []string `json:"pending_deletes,omitempty"`
}

// Log writes full snapshots of the ledger to a file.
type Log struct {
	path string
	now  func() time.Time
}

// New returns a Log writing to path. The directory is created if needed.
func New(path string) (*Log, error) {
	if path == "" {
		return nil, ErrNoPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Log{path: path, now: time.Now}, nil
}

// Name implements repository.Backend.
func (l *Log) Name() string { return "jsonlog" }

// Path returns the file the log writes to.
func (l *Log) Path() string { return l.path }

// Write implements repository.Backend. The file is written next to its final
// name, synced and renamed so readers never see a partial document.
func (l *Log) Write(ctx context.Context, batch repository.Batch) error {
	if !batch.Full {
		return ErrPartialBatch
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	records := batch.Records
	if records == nil {
		records = []model.PlateRecord{}
	}
	doc := document{UpdatedAt: l.now().UTC(), Records: records, PendingDeletes: batch.Deleted}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	// A write abandoned by the ledger must not replace a newer document.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Load reads the records and pending removals back. A missing file is an
// empty log.
func (l *Log) Load() (repository.Snapshot, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return repository.Snapshot{}, nil
	}
	if err != nil {
		return repository.Snapshot{}, fmt.Errorf("read log: %w", err)
	}
	if len(data) == 0 {
		return repository.Snapshot{}, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return repository.Snapshot{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return repository.Snapshot{Records: doc.Records, Deleted: doc.PendingDeletes}, nil
}
