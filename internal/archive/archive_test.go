package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

func ptr(v int64) *int64 { return &v }

func TestWriteThenExtract_RoundTrips(t *testing.T) {
	e, err := Open(Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	recs := []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "a", Source: "app"},
		{ID: "2", IngestTime: 1625097660000, RecordTime: ptr(1625097660000), Message: "b", Source: "app"},
	}

	metas, err := e.Write(context.Background(), "app", recs)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, 2, metas[0].RecordCount)

	extracted, err := e.Extract(metas[0].ID)
	require.NoError(t, err)
	require.Len(t, extracted, 2)
}

func TestWrite_SplitsAcrossHourBuckets(t *testing.T) {
	e, err := Open(Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	recs := []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "a", Source: "app"},
		{ID: "2", IngestTime: 1625104800000, RecordTime: ptr(1625104800000), Message: "b", Source: "app"},
	}

	metas, err := e.Write(context.Background(), "app", recs)
	require.NoError(t, err)
	require.Len(t, metas, 2)
}

func TestDelete_RemovesFileAndMetadata(t *testing.T) {
	e, err := Open(Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	recs := []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "a", Source: "app"},
	}
	metas, err := e.Write(context.Background(), "app", recs)
	require.NoError(t, err)

	require.NoError(t, e.Delete(metas[0].ID))
	_, ok := e.Get(metas[0].ID)
	require.False(t, ok)

	_, err = e.Extract(metas[0].ID)
	require.Error(t, err)
}

func TestOpen_ReloadsMetadataAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)

	recs := []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "a", Source: "app"},
	}
	metas, err := e.Write(context.Background(), "app", recs)
	require.NoError(t, err)

	e2, err := Open(Config{Dir: dir}, nil, nil)
	require.NoError(t, err)

	got, ok := e2.Get(metas[0].ID)
	require.True(t, ok)
	require.Equal(t, metas[0].RecordCount, got.RecordCount)
}

func TestWrite_AppendsToExistingSegment(t *testing.T) {
	e, err := Open(Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)

	first, err := e.Write(context.Background(), "app", []record.Record{
		{ID: "1", IngestTime: 1625097600000, RecordTime: ptr(1625097600000), Message: "a", Source: "app"},
	})
	require.NoError(t, err)

	second, err := e.Write(context.Background(), "app", []record.Record{
		{ID: "2", IngestTime: 1625097610000, RecordTime: ptr(1625097610000), Message: "b", Source: "app"},
	})
	require.NoError(t, err)

	require.Equal(t, first[0].ID, second[0].ID)
	require.Equal(t, 2, second[0].RecordCount)

	extracted, err := e.Extract(second[0].ID)
	require.NoError(t, err)
	require.Len(t, extracted, 2)
}
