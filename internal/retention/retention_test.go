package retention

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/archive"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

func ptr(v int64) *int64 { return &v }

func newTestIndex(t *testing.T) *index.Engine {
	idx, err := index.Open(index.Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestRunOnce_DeletesOlderThanCutoff(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Commit(context.Background(), []record.Record{
		{ID: "1", IngestTime: 1000, RecordTime: ptr(1000), Message: "old"},
		{ID: "2", IngestTime: 9000, RecordTime: ptr(9000), Message: "new"},
	}))

	e := New(idx, nil, nil, nil, nil)
	e.SetPolicy(Policy{ID: "p1", Enabled: true, MaxAgeMillis: 5000})

	deleted, err := e.RunOnce(context.Background(), 10000)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
	require.Equal(t, 1, idx.Size())
}

func TestRunOnce_IsIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Commit(context.Background(), []record.Record{
		{ID: "1", IngestTime: 1000, RecordTime: ptr(1000), Message: "old"},
	}))

	e := New(idx, nil, nil, nil, nil)
	e.SetPolicy(Policy{ID: "p1", Enabled: true, MaxAgeMillis: 5000})

	first, err := e.RunOnce(context.Background(), 10000)
	require.NoError(t, err)
	require.Equal(t, 1, first)

	second, err := e.RunOnce(context.Background(), 10000)
	require.NoError(t, err)
	require.Equal(t, 0, second)
}

func TestRunOnce_ArchivesBeforeDelete(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Commit(context.Background(), []record.Record{
		{ID: "1", IngestTime: 1000, RecordTime: ptr(1000), Message: "old", Source: "app"},
	}))

	arc, err := archive.Open(archive.Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	e := New(idx, arc, nil, nil, nil)
	e.SetPolicy(Policy{ID: "p1", Enabled: true, MaxAgeMillis: 5000, ArchiveFirst: true})

	deleted, err := e.RunOnce(context.Background(), 10000)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	metas := arc.List("app")
	require.Len(t, metas, 1)
	require.Equal(t, 1, metas[0].RecordCount)
}

func TestRunOnce_RespectsSourceFilter(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.Commit(context.Background(), []record.Record{
		{ID: "1", IngestTime: 1000, RecordTime: ptr(1000), Message: "old", Source: "app"},
		{ID: "2", IngestTime: 1000, RecordTime: ptr(1000), Message: "old", Source: "other"},
	}))

	e := New(idx, nil, nil, nil, nil)
	e.SetPolicy(Policy{ID: "p1", Enabled: true, MaxAgeMillis: 5000, SourceFilter: "app"})

	deleted, err := e.RunOnce(context.Background(), 10000)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)
	require.Equal(t, 1, idx.Size())
}
