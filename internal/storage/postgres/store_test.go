package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/alarm"
	"github.com/ozkanpakdil/grepwise-sub005/internal/archive"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestSaveArchiveMetadata_ExecutesUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO archive_metadata").
		WithArgs("seg1", "app.log", int64(1000), int64(2000), 5, "archives/app.log/20240101/00.jsonl.gz", int64(512), int64(1000)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.SaveArchiveMetadata(context.Background(), archive.Metadata{
		ID: "seg1", Source: "app.log", TimeRangeStart: 1000, TimeRangeEnd: 2000,
		RecordCount: 5, StoragePath: "archives/app.log/20240101/00.jsonl.gz",
		CompressedBytes: 512, CreatedAt: 1000,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListArchiveMetadata_ScansRows(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "source", "time_range_start", "time_range_end", "record_count", "storage_path", "compressed_bytes", "created_at"}).
		AddRow("seg1", "app.log", int64(1000), int64(2000), 5, "path.gz", int64(512), int64(1000))
	mock.ExpectQuery("SELECT .* FROM archive_metadata WHERE source").WithArgs("app.log").WillReturnRows(rows)

	out, err := s.ListArchiveMetadata(context.Background(), "app.log")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "seg1", out[0].ID)
}

func TestSaveAlarmEvent_ExecutesUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO alarm_events").WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.SaveAlarmEvent(context.Background(), alarm.Event{
		ID: "ev1", AlarmID: "a1", AlarmName: "too many errors",
		Status: alarm.StatusTriggered, MatchCount: 12,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	store, err := Open(context.Background(), dsn, true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	meta := archive.Metadata{ID: "seg-int", Source: "integration", TimeRangeStart: 1, TimeRangeEnd: 2, RecordCount: 1, StoragePath: "x.gz", CompressedBytes: 10, CreatedAt: 1}
	require.NoError(t, store.SaveArchiveMetadata(context.Background(), meta))

	list, err := store.ListArchiveMetadata(context.Background(), "integration")
	require.NoError(t, err)
	require.NotEmpty(t, list)

	require.NoError(t, store.DeleteArchiveMetadata(context.Background(), "seg-int"))
}
