package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/cache"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/query"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/redaction"
)

func newTestService(t *testing.T, recs []record.Record) *Service {
	idx, err := index.Open(index.Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	require.NoError(t, idx.Commit(context.Background(), recs))

	c := cache.New(cache.Config{Enabled: true, MaxSize: 64, ExpirationMs: 60000})
	t.Cleanup(func() { c.Close() })

	r := redaction.New(redaction.Config{Enabled: true, Keys: []string{"password"}, Mask: "*****"})
	return New(idx, c, r, nil, nil)
}

func ptr(v int64) *int64 { return &v }

func TestSearch_RedactsPassword(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "login failed", Metadata: map[string]string{"password": "hunter2"}},
	})

	out, err := svc.Search(context.Background(), "*", false, 0, 1000, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "*****", out[0].Metadata["password"])
}

func TestSearch_RevealBypassesRedaction(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "login failed", Metadata: map[string]string{"password": "hunter2"}},
	})

	out, err := svc.Search(context.Background(), "*", false, 0, 1000, true)
	require.NoError(t, err)
	require.Equal(t, "hunter2", out[0].Metadata["password"])
}

func TestSearch_CacheHitOnSecondCall(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "alpha"},
	})

	first, err := svc.Search(context.Background(), "alpha", false, 0, 1000, true)
	require.NoError(t, err)
	require.Len(t, first, 1)

	stats := svc.Cache.Stats()
	require.Equal(t, int64(0), stats.Hits)

	second, err := svc.Search(context.Background(), "alpha", false, 0, 1000, true)
	require.NoError(t, err)
	require.Len(t, second, 1)

	stats = svc.Cache.Stats()
	require.Equal(t, int64(1), stats.Hits)
}

func TestSearchPage_SplitsResults(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "a"},
		{ID: "2", IngestTime: 200, Message: "b"},
		{ID: "3", IngestTime: 300, Message: "c"},
	})

	page, err := svc.SearchPage(context.Background(), "*", false, 0, 1000, 1, 2, true)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 3, page.Total)

	page2, err := svc.SearchPage(context.Background(), "*", false, 0, 1000, 2, 2, true)
	require.NoError(t, err)
	require.Len(t, page2.Items, 1)
}

func TestSearchPage_RejectsInvalidPageSize(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.SearchPage(context.Background(), "*", false, 0, 1000, 1, 0, true)
	require.Error(t, err)
}

func TestHistogram_BucketsByEffectiveTime(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 0, RecordTime: ptr(0)},
		{ID: "2", IngestTime: 0, RecordTime: ptr(500)},
		{ID: "3", IngestTime: 0, RecordTime: ptr(999)},
	})

	buckets, err := svc.Histogram(context.Background(), "*", false, 0, 1000, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, buckets)
}

func TestResolveRange_Defaults24h(t *testing.T) {
	now := int64(1625097600000)
	start, end, err := ResolveRange("", 0, 0, now)
	require.NoError(t, err)
	require.Equal(t, now, end)
	require.Equal(t, now-24*60*60*1000, start)
}

func TestResolveRange_CustomRequiresOrder(t *testing.T) {
	_, _, err := ResolveRange("custom", 100, 50, 1000)
	require.Error(t, err)
}

func TestDeriveStreamInterval_DailyBucketsAboveThreshold(t *testing.T) {
	end := int64(30 * 24 * 60 * 60 * 1000)
	interval := DeriveStreamInterval(0, end)
	require.Equal(t, int64(24*60*60*1000), interval)
}

func TestSearchSPL_StatsByLevel(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Level: "ERROR", Message: "x"},
		{ID: "2", IngestTime: 200, Level: "ERROR", Message: "y"},
		{ID: "3", IngestTime: 300, Level: "INFO", Message: "z"},
	})

	result, err := svc.SearchSPL(context.Background(), "search * | stats count() by level", 0, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, query.ResultStatistics, result.Type)
	require.Len(t, result.Rows, 2)
}

func TestStreamSearch_EmitsInitFirstPageDone(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "a"},
		{ID: "2", IngestTime: 200, Message: "b"},
		{ID: "3", IngestTime: 300, Message: "c"},
	})

	var events []string
	var pageRecords []record.Record
	err := svc.StreamSearch(context.Background(), "*", false, 0, 1000, 2, true, func(name string, data interface{}) error {
		events = append(events, name)
		if name == "page" {
			pageRecords = data.(map[string]interface{})["records"].([]record.Record)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"init", "page", "done"}, events)
	require.Len(t, pageRecords, 2)
}

func TestStreamTimetable_EmitsFinalHistAndDone(t *testing.T) {
	svc := newTestService(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "a"},
	})

	var events []string
	err := svc.StreamTimetable(context.Background(), "*", false, 0, 1000, 100, func(name string, data interface{}) error {
		events = append(events, name)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"init", "hist", "done"}, events)
}

func TestExportCSV_EscapesCommasAndQuotes(t *testing.T) {
	svc := newTestService(t, nil)
	out := svc.ExportCSV([]record.Record{
		{ID: "1", IngestTime: 100, Message: `hello, "world"`, Level: "INFO", Source: "app"},
	})
	require.Contains(t, out, `"hello, ""world"""`)
}
