package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

func newEngineWithRecords(t *testing.T, recs []record.Record) *index.Engine {
	e, err := index.Open(index.Config{Dir: t.TempDir()}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Commit(context.Background(), recs))
	return e
}

func TestExecute_SearchOnly(t *testing.T) {
	e := newEngineWithRecords(t, []record.Record{
		{ID: "1", IngestTime: 100, Message: "alpha ERROR"},
		{ID: "2", IngestTime: 200, Message: "beta INFO"},
	})

	result, err := Execute(context.Background(), e, "search alpha", 0, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, ResultLogEntries, result.Type)
	require.Len(t, result.Records, 1)
}

func TestExecute_StatsCountByLevel(t *testing.T) {
	e := newEngineWithRecords(t, []record.Record{
		{ID: "1", IngestTime: 100, Level: "ERROR", Message: "x"},
		{ID: "2", IngestTime: 200, Level: "ERROR", Message: "y"},
		{ID: "3", IngestTime: 300, Level: "INFO", Message: "z"},
	})

	result, err := Execute(context.Background(), e, `search * | stats count() by level`, 0, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, ResultStatistics, result.Type)
	require.Len(t, result.Rows, 2)

	totals := map[string]int64{}
	for _, row := range result.Rows {
		totals[row["level"].(string)] = row["count"].(int64)
	}
	require.Equal(t, int64(2), totals["ERROR"])
	require.Equal(t, int64(1), totals["INFO"])
}

func TestExecute_WhereFiltersRecords(t *testing.T) {
	e := newEngineWithRecords(t, []record.Record{
		{ID: "1", IngestTime: 100, Level: "ERROR", Message: "x"},
		{ID: "2", IngestTime: 200, Level: "INFO", Message: "y"},
	})

	result, err := Execute(context.Background(), e, `search * | where level = "ERROR"`, 0, 1000, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Equal(t, "1", result.Records[0].ID)
}

func TestExecute_HeadLimitsResults(t *testing.T) {
	e := newEngineWithRecords(t, []record.Record{
		{ID: "1", IngestTime: 300, Message: "a"},
		{ID: "2", IngestTime: 200, Message: "b"},
		{ID: "3", IngestTime: 100, Message: "c"},
	})

	result, err := Execute(context.Background(), e, `search * | head 2`, 0, 1000, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
}

func TestParse_RegexSearchPrefix(t *testing.T) {
	stages, err := Parse(`regex:.*err.* | where x = 1`)
	require.NoError(t, err)
	require.Len(t, stages, 2)
	require.Equal(t, stageSearch, stages[0].Kind)
	require.True(t, stages[0].IsRegex)
}
