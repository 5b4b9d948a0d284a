package postgres

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"gorm.io/datatypes"

	"github.com/okian/platewatch/internal/domain/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// plateRow is the license_plates row.
type plateRow struct {
	PlateText       string         `gorm:"column:plate_text;primaryKey"`
	ID              string         `gorm:"column:id;type:uuid"`
	PatternKind     string         `gorm:"column:pattern_kind"`
	Confidence      float64        `gorm:"column:confidence"`
	Coordinates     datatypes.JSON `gorm:"column:coordinates;type:jsonb"`
	LatestLocation  string         `gorm:"column:latest_location"`
	LastSeen        time.Time      `gorm:"column:last_seen"`
	BestConfidence  float64        `gorm:"column:best_confidence"`
	BestCoordinates datatypes.JSON `gorm:"column:best_coordinates;type:jsonb"`
	FirstLocation   string         `gorm:"column:first_location"`
	FirstSeen       time.Time      `gorm:"column:first_seen"`
	DetectionCount  int            `gorm:"column:detection_count"`
	Status          string         `gorm:"column:status"`
	Notes           *string        `gorm:"column:notes"`
	FlagReason      *string        `gorm:"column:flag_reason"`
	VerifiedAt      *time.Time     `gorm:"column:verified_at"`
	FlaggedAt       *time.Time     `gorm:"column:flagged_at"`
	SnapshotURL     *string        `gorm:"column:snapshot_url"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}

func (plateRow) TableName() string { return "license_plates" }

// upsertColumns are overwritten when a plate_text already exists. first_seen
// and first_location are left alone.
var upsertColumns = []string{ //nolint:gochecknoglobals // column list
	"pattern_kind", "confidence", "coordinates", "latest_location", "last_seen",
	"best_confidence", "best_coordinates", "detection_count", "status", "notes",
	"flag_reason", "verified_at", "flagged_at", "snapshot_url", "updated_at",
}

func toRow(rec model.PlateRecord, now time.Time) (plateRow, error) {
	coords, err := json.Marshal(rec.Coordinates)
	if err != nil {
		return plateRow{}, err
	}
	best, err := json.Marshal(rec.BestCoordinates)
	if err != nil {
		return plateRow{}, err
	}
	return plateRow{
		PlateText:       rec.Text,
		ID:              rec.ID,
		PatternKind:     rec.PatternKind,
		Confidence:      rec.Confidence,
		Coordinates:     datatypes.JSON(coords),
		LatestLocation:  rec.LatestLocation,
		LastSeen:        rec.LastSeen,
		BestConfidence:  rec.BestConfidence,
		BestCoordinates: datatypes.JSON(best),
		FirstLocation:   rec.FirstLocation,
		FirstSeen:       rec.FirstSeen,
		DetectionCount:  rec.DetectionCount,
		Status:          string(rec.Status),
		Notes:           optional(rec.Notes),
		FlagReason:      optional(rec.FlagReason),
		VerifiedAt:      rec.VerifiedAt,
		FlaggedAt:       rec.FlaggedAt,
		SnapshotURL:     optional(rec.SnapshotURL),
		UpdatedAt:       now,
	}, nil
}

func fromRow(row plateRow) (model.PlateRecord, error) {
	rec := model.PlateRecord{
		ID:             row.ID,
		Text:           row.PlateText,
		PatternKind:    row.PatternKind,
		Confidence:     row.Confidence,
		LatestLocation: row.LatestLocation,
		LastSeen:       row.LastSeen,
		BestConfidence: row.BestConfidence,
		FirstLocation:  row.FirstLocation,
		FirstSeen:      row.FirstSeen,
		DetectionCount: row.DetectionCount,
		Status:         model.Status(row.Status),
		Notes:          deref(row.Notes),
		FlagReason:     deref(row.FlagReason),
		VerifiedAt:     row.VerifiedAt,
		FlaggedAt:      row.FlaggedAt,
		SnapshotURL:    deref(row.SnapshotURL),
	}
	if len(row.Coordinates) > 0 {
		if err := json.Unmarshal(row.Coordinates, &rec.Coordinates); err != nil {
			return model.PlateRecord{}, err
		}
	}
	if len(row.BestCoordinates) > 0 {
		if err := json.Unmarshal(row.BestCoordinates, &rec.BestCoordinates); err != nil {
			return model.PlateRecord{}, err
		}
	}
	return rec, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
