package model

import "time"

// Status is the review state of a PlateRecord. The pipeline only ever writes
// StatusDetected; the other states come from reviewer actions.
type Status string

// Review states.
const (
	StatusDetected Status = "detected"
	StatusVerified Status = "verified"
	StatusFlagged  Status = "flagged"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusDetected, StatusVerified, StatusFlagged:
		return true
	}
	return false
}

// Observation is a single validated plate reading from one region of one frame.
// It is produced by the pipeline and consumed immediately by the ledger.
type Observation struct {
	RawText     string
	Text        string // canonical plate text, the ledger key
	PatternKind string
	Confidence  float64
	Coordinates Coordinates
	Location    string
	Timestamp   time.Time
}

// PlateRecord is the deduplicated, durable entity for one canonical plate text.
type PlateRecord struct {
	ID          string `json:"id"`
	Text        string `json:"plate_text"`
	PatternKind string `json:"pattern_kind,omitempty"`

	// Latest observation (last-write reducer).
	Confidence     float64     `json:"confidence"`
	Coordinates    Coordinates `json:"coordinates"`
	LatestLocation string      `json:"latest_location"`
	LastSeen       time.Time   `json:"last_seen"`

	// Best observation so far (max-by-confidence reducer). Only replaced when a
	// new confidence is strictly greater.
	BestConfidence  float64     `json:"best_confidence"`
	BestCoordinates Coordinates `json:"best_coordinates"`

	// Set on creation, never changed afterwards.
	FirstLocation string    `json:"first_location"`
	FirstSeen     time.Time `json:"first_seen"`

	DetectionCount int `json:"detection_count"`

	Status     Status     `json:"status"`
	Notes      string     `json:"notes,omitempty"`
	FlagReason string     `json:"flag_reason,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	FlaggedAt  *time.Time `json:"flagged_at,omitempty"`

	SnapshotURL string `json:"snapshot_url,omitempty"`
}

// Clone returns a deep copy safe to hand out of a lock.
func (r *PlateRecord) Clone() PlateRecord {
	out := *r
	if r.VerifiedAt != nil {
		t := *r.VerifiedAt
		out.VerifiedAt = &t
	}
	if r.FlaggedAt != nil {
		t := *r.FlaggedAt
		out.FlaggedAt = &t
	}
	return out
}
