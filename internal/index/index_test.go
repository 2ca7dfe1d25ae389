package index

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

func newTestEngine(t *testing.T) *Engine {
	dir := t.TempDir()
	e, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func ptr(v int64) *int64 { return &v }

func TestIndex_IngestThenSearch(t *testing.T) {
	e := newTestEngine(t)

	batch := []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "alpha ERROR", Source: "http:s1"},
		{ID: "2", IngestTime: 1625097660000, RecordTime: ptr(1625097660000), Message: "beta INFO", Source: "http:s1"},
		{ID: "3", IngestTime: 1625097720000, RecordTime: ptr(1625097720000), Message: "alpha WARN", Source: "http:s1"},
	}
	require.NoError(t, e.Commit(context.Background(), batch))

	results, err := e.Search("alpha", false, 1625097600000, 1625097800000)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "3", results[0].ID) // newest first
	require.Equal(t, "1", results[1].ID)
}

func TestIndex_RegexTimeWindow(t *testing.T) {
	e := newTestEngine(t)

	batch := []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "alpha ERROR", Source: "http:s1"},
		{ID: "2", IngestTime: 1625097660000, RecordTime: ptr(1625097660000), Message: "beta INFO", Source: "http:s1"},
		{ID: "3", IngestTime: 1625097720000, RecordTime: ptr(1625097720000), Message: "alpha WARN", Source: "http:s1"},
	}
	require.NoError(t, e.Commit(context.Background(), batch))

	start := int64(1625101200000) - 3600*1000
	results, err := e.Search(".*err.*", true, start, 1625101200000)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "1", results[0].ID)
}

func TestIndex_MatchAll(t *testing.T) {
	e := newTestEngine(t)

	batch := []record.Record{
		{ID: "1", IngestTime: 100, Message: "x"},
		{ID: "2", IngestTime: 200, Message: "y"},
	}
	require.NoError(t, e.Commit(context.Background(), batch))

	all, err := e.Search("*", false, 0, 1000)
	require.NoError(t, err)
	require.Len(t, all, 2)

	blank, err := e.Search("", false, 0, 1000)
	require.NoError(t, err)
	require.Equal(t, all, blank)
}

func TestIndex_DeleteOlderThan(t *testing.T) {
	e := newTestEngine(t)
	batch := []record.Record{
		{ID: "1", IngestTime: 100, Message: "x"},
		{ID: "2", IngestTime: 200, Message: "y"},
	}
	require.NoError(t, e.Commit(context.Background(), batch))

	deleted := e.DeleteOlderThan(150)
	require.Equal(t, 1, deleted)
	require.Equal(t, 1, e.Size())

	// idempotent: running again deletes 0
	require.Equal(t, 0, e.DeleteOlderThan(150))
}

func TestIndex_ReplaysWALOnReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, e.Commit(context.Background(), []record.Record{
		{ID: "1", IngestTime: 100, Message: "x"},
	}))
	require.NoError(t, e.Close())

	e2, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)
	defer e2.Close()

	_, ok := e2.FindByID("1")
	require.True(t, ok)
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
