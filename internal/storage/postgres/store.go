// Package postgres is the optional durable store for archive metadata and
// alarm event history, mirroring the teacher's "in-memory unless a DSN is
// given" wiring: callers only construct a Store when DatabaseConfig.DSN is
// non-empty, falling back to the in-process engines otherwise.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ozkanpakdil/grepwise-sub005/internal/alarm"
	"github.com/ozkanpakdil/grepwise-sub005/internal/archive"
	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store persists ArchiveMetadata and AlarmEvent history in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and, if migrateOnStart is set, applies pending schema
// migrations before returning.
func Open(ctx context.Context, dsn string, migrateOnStart bool) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.StorageError("postgres.connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.StorageError("postgres.ping", err)
	}

	s := &Store{db: db}
	if migrateOnStart {
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) migrate() error {
	srcDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Internal("load embedded migrations", err)
	}
	dbDriver, err := pgmigrate.WithInstance(s.db.DB, &pgmigrate.Config{})
	if err != nil {
		return errors.StorageError("postgres.migrateInstance", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return errors.StorageError("postgres.migrateSetup", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.StorageError("postgres.migrateUp", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveArchiveMetadata upserts one archive segment's metadata row.
func (s *Store) SaveArchiveMetadata(ctx context.Context, m archive.Metadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archive_metadata
			(id, source, time_range_start, time_range_end, record_count, storage_path, compressed_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			time_range_end = EXCLUDED.time_range_end,
			record_count = EXCLUDED.record_count,
			compressed_bytes = EXCLUDED.compressed_bytes
	`, m.ID, m.Source, m.TimeRangeStart, m.TimeRangeEnd, m.RecordCount, m.StoragePath, m.CompressedBytes, m.CreatedAt)
	if err != nil {
		return errors.StorageError("postgres.saveArchiveMetadata", err)
	}
	return nil
}

// ListArchiveMetadata returns every archive segment recorded for source, or
// every segment if source is empty.
func (s *Store) ListArchiveMetadata(ctx context.Context, source string) ([]archive.Metadata, error) {
	query := `SELECT id, source, time_range_start, time_range_end, record_count, storage_path, compressed_bytes, created_at FROM archive_metadata`
	args := []interface{}{}
	if source != "" {
		query += ` WHERE source = $1`
		args = append(args, source)
	}
	query += ` ORDER BY created_at ASC`

	var out []archive.Metadata
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, errors.StorageError("postgres.listArchiveMetadata", err)
	}
	return out, nil
}

// DeleteArchiveMetadata removes one segment's row, mirroring Engine.Delete.
func (s *Store) DeleteArchiveMetadata(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM archive_metadata WHERE id = $1`, id)
	if err != nil {
		return errors.StorageError("postgres.deleteArchiveMetadata", err)
	}
	return nil
}

// SaveAlarmEvent upserts one AlarmEvent row, including its lifecycle fields.
func (s *Store) SaveAlarmEvent(ctx context.Context, e alarm.Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return errors.Internal("marshal alarm event details", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alarm_events
			(id, alarm_id, alarm_name, timestamp, status, match_count, acknowledged_by, acknowledged_at, resolved_by, resolved_at, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			acknowledged_by = EXCLUDED.acknowledged_by,
			acknowledged_at = EXCLUDED.acknowledged_at,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at,
			details = EXCLUDED.details
	`, e.ID, e.AlarmID, e.AlarmName, e.Timestamp, string(e.Status), e.MatchCount,
		e.AcknowledgedBy, e.AcknowledgedAt, e.ResolvedBy, e.ResolvedAt, details)
	if err != nil {
		return errors.StorageError("postgres.saveAlarmEvent", err)
	}
	return nil
}

// ListAlarmEvents returns every recorded event for alarmID, newest first.
func (s *Store) ListAlarmEvents(ctx context.Context, alarmID string) ([]alarm.Event, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, alarm_id, alarm_name, timestamp, status, match_count, acknowledged_by, acknowledged_at, resolved_by, resolved_at, details
		FROM alarm_events WHERE alarm_id = $1 ORDER BY timestamp DESC
	`, alarmID)
	if err != nil {
		return nil, errors.StorageError("postgres.listAlarmEvents", err)
	}
	defer rows.Close()

	var out []alarm.Event
	for rows.Next() {
		var (
			e       alarm.Event
			status  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.AlarmID, &e.AlarmName, &e.Timestamp, &status, &e.MatchCount,
			&e.AcknowledgedBy, &e.AcknowledgedAt, &e.ResolvedBy, &e.ResolvedAt, &details); err != nil {
			return nil, errors.StorageError("postgres.scanAlarmEvent", err)
		}
		e.Status = alarm.EventStatus(status)
		if len(details) > 0 {
			e.Details = map[string]string{}
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal alarm event %s details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
