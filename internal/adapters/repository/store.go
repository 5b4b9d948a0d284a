// Package repository holds the detection ledger: the in-memory table of plate
// records and the debounced flush of that table to durable backends.
package repository

import (
	"context"

	"github.com/okian/platewatch/internal/domain/model"
)

// Batch is what a backend receives on one flush.
type Batch struct {
	// Records holds every record for full backends, or only rows changed since
	// the backend's last successful write for incremental ones.
	Records []model.PlateRecord
	// Deleted lists plate texts removed since the last successful write. For
	// full backends it lists removals some incremental backend has not yet
	// written, so they survive a restart. A text may appear in both Deleted
	// and Records when it was removed and seen again; the removal applies
	// first.
	Deleted []string
	// Full is true when Records is the entire table.
	Full bool
}

// Snapshot is the state a backend hands back at startup.
type Snapshot struct {
	Records []model.PlateRecord
	// Deleted lists removals that had not reached every backend.
	Deleted []string
}

// Empty reports whether the snapshot carries nothing to restore.
func (s Snapshot) Empty() bool {
	return len(s.Records) == 0 && len(s.Deleted) == 0
}

// Backend persists ledger state. Write must be safe to call again with the
// same content after a failure.
type Backend interface {
	Name() string
	Write(ctx context.Context, batch Batch) error
}

// incremental is implemented by backends that accept change sets instead of
// the full table.
type incremental interface {
	Incremental() bool
}

// Ack reports what a Record call did.
type Ack struct {
	ID             string
	Created        bool
	DetectionCount int
	// BestImproved is true when this observation became the record's best,
	// which includes the first observation of a new record.
	BestImproved bool
}

// Query selects a page of records.
type Query struct {
	Search string
	Status model.Status
	SortBy string
	Desc   bool
	Page   int
	Limit  int
}

// Page is one page of query results.
type Page struct {
	Records    []model.PlateRecord `json:"records"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
	HasNext    bool                `json:"has_next"`
	HasPrev    bool                `json:"has_prev"`
}

// Stats summarises the ledger.
type Stats struct {
	Total             int     `json:"total"`
	TotalDetections   int     `json:"total_detections"`
	Detected          int     `json:"detected"`
	Verified          int     `json:"verified"`
	Flagged           int     `json:"flagged"`
	AverageConfidence float64 `json:"average_confidence"`
	SeenToday         int     `json:"seen_today"`
}
