package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{ //nolint:gochecknoglobals // ordered DDL
	`CREATE TABLE IF NOT EXISTS license_plates (
		plate_text        TEXT PRIMARY KEY,
		id                UUID NOT NULL,
		pattern_kind      TEXT,
		confidence        DOUBLE PRECISION NOT NULL,
		coordinates       JSONB,
		latest_location   TEXT,
		last_seen         TIMESTAMPTZ NOT NULL,
		best_confidence   DOUBLE PRECISION NOT NULL,
		best_coordinates  JSONB,
		first_location    TEXT,
		first_seen        TIMESTAMPTZ NOT NULL,
		detection_count   INT NOT NULL DEFAULT 1,
		status            TEXT NOT NULL DEFAULT 'detected',
		notes             TEXT,
		flag_reason       TEXT,
		verified_at       TIMESTAMPTZ,
		flagged_at        TIMESTAMPTZ,
		snapshot_url      TEXT,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_license_plates_id ON license_plates(id);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_last_seen ON license_plates(last_seen);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_status ON license_plates(status);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_first_location ON license_plates(first_location);`,
	`CREATE INDEX IF NOT EXISTS idx_license_plates_latest_location ON license_plates(latest_location);`,
}

func runMigrations(ctx context.Context, db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
