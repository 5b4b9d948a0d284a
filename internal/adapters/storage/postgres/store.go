// Package postgres is the SQL backend of the detection ledger: one
// license_plates row per canonical plate text, upserted incrementally.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/domain/model"
)

// Connection pool defaults.
const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = time.Hour
	defaultBatchSize       = 100
	pingTimeout            = 5 * time.Second
)

// Store writes ledger change sets to Postgres.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
	now   func() time.Time
}

// Open connects, pings and applies the idempotent schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, ErrNoDSN
	}
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	sqlDB.SetMaxOpenConns(defaultMaxOpenConns)
	sqlDB.SetMaxIdleConns(defaultMaxIdleConns)
	sqlDB.SetConnMaxLifetime(defaultConnMaxLifetime)

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &Store{db: db, sqlDB: sqlDB, now: time.Now}, nil
}

// Name implements repository.Backend.
func (s *Store) Name() string { return "postgres" }

// Incremental marks the store as accepting change sets.
func (s *Store) Incremental() bool { return true }

// Write removes deleted rows and then upserts changed ones in one
// transaction, so a plate removed and seen again gets a fresh row.
func (s *Store) Write(ctx context.Context, batch repository.Batch) error {
	now := s.now().UTC()
	rows := make([]plateRow, 0, len(batch.Records))
	for _, rec := range batch.Records {
		row, err := toRow(rec, now)
		if err != nil {
			return fmt.Errorf("encode %s: %w", rec.Text, err)
		}
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(batch.Deleted) > 0 {
			if err := tx.Where("plate_text IN ?", batch.Deleted).Delete(&plateRow{}).Error; err != nil {
				return fmt.Errorf("delete: %w", err)
			}
		}
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "plate_text"}},
				DoUpdates: clause.AssignmentColumns(upsertColumns),
			}).CreateInBatches(rows, defaultBatchSize).Error
			if err != nil {
				return fmt.Errorf("upsert: %w", err)
			}
		}
		return nil
	})
}

// Load reads every row, ordered as the JSON log orders them.
func (s *Store) Load(ctx context.Context) (repository.Snapshot, error) {
	var rows []plateRow
	if err := s.db.WithContext(ctx).Order("first_seen ASC, plate_text ASC").Find(&rows).Error; err != nil {
		return repository.Snapshot{}, fmt.Errorf("load: %w", err)
	}
	out := make([]model.PlateRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return repository.Snapshot{}, fmt.Errorf("decode %s: %w", row.PlateText, err)
		}
		out = append(out, rec)
	}
	return repository.Snapshot{Records: out}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}
