// Package search implements the search service: cached synchronous and
// paginated search, CSV/JSON export, histogram aggregation, and progressive
// SSE-style streams (the transport itself is left to internal/httpapi; this
// package emits events through a callback). Every record leaving the
// service is redacted per internal/redaction.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/cache"
	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/query"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/redaction"
)

// Service is the search service.
type Service struct {
	Index    *index.Engine
	Cache    *cache.Cache
	Redactor *redaction.Redactor
	Metrics  *metrics.Metrics
	Log      *logging.Logger

	subsMu sync.RWMutex
	subs   map[string]*Subscription
}

func New(idx *index.Engine, c *cache.Cache, r *redaction.Redactor, m *metrics.Metrics, log *logging.Logger) *Service {
	return &Service{Index: idx, Cache: c, Redactor: r, Metrics: m, Log: log}
}

// ResolveRange turns a named range ("1h","3h","12h","24h","custom") into
// [start,end) milliseconds. "custom" requires explicit start/end and
// start<end. An empty rangeName defaults to the last 24 hours.
func ResolveRange(rangeName string, explicitStart, explicitEnd int64, now int64) (int64, int64, error) {
	if rangeName == "" {
		rangeName = "24h"
	}
	switch rangeName {
	case "1h":
		return now - int64(time.Hour/time.Millisecond), now, nil
	case "3h":
		return now - int64(3*time.Hour/time.Millisecond), now, nil
	case "12h":
		return now - int64(12*time.Hour/time.Millisecond), now, nil
	case "24h":
		return now - int64(24*time.Hour/time.Millisecond), now, nil
	case "custom":
		if explicitStart >= explicitEnd {
			return 0, 0, errors.InvalidInput("range", "custom range requires start < end")
		}
		return explicitStart, explicitEnd, nil
	default:
		return 0, 0, errors.InvalidInput("timeRange", "unknown range: "+rangeName)
	}
}

func redactRecords(records []record.Record, r *redaction.Redactor, reveal bool) []record.Record {
	if reveal || r == nil {
		return records
	}
	out := make([]record.Record, len(records))
	for i, rec := range records {
		fields := r.Redact(redaction.Fields{Message: rec.Message, RawContent: rec.RawContent, Metadata: rec.Metadata})
		c := rec.Clone()
		c.Message = fields.Message
		c.RawContent = fields.RawContent
		c.Metadata = fields.Metadata
		out[i] = c
	}
	return out
}

// Search runs q (a plain search term or "regex:..." expression) over
// [start,end) and returns redacted results, consulting the cache first.
func (s *Service) Search(ctx context.Context, q string, isRegex bool, start, end int64, reveal bool) ([]record.Record, error) {
	key := cache.Key(q, isRegex, msToTime(start), msToTime(end))
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, key); ok {
			if s.Metrics != nil {
				s.Metrics.RecordCacheHit(true)
			}
			records, _ := cached.([]record.Record)
			return redactRecords(records, s.Redactor, reveal), nil
		}
		if s.Metrics != nil {
			s.Metrics.RecordCacheHit(false)
		}
	}

	started := time.Now()
	records, err := s.Index.Search(q, isRegex, start, end)
	if err != nil {
		return nil, err
	}
	if s.Metrics != nil {
		s.Metrics.RecordQuery(string(query.ResultLogEntries), time.Since(started))
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, key, records, msToTime(start), msToTime(end))
	}
	return redactRecords(records, s.Redactor, reveal), nil
}

// SearchSPL executes a pipelined query ("search ... | stats ... | where ...")
// over [start,end). Pipeline results are never cached, since eval/stats/sort
// stages make the cache key's plain query+window hash meaningless for the
// output shape. onRowError is invoked
// once per row that fails where/eval evaluation.
func (s *Service) SearchSPL(ctx context.Context, pipeline string, start, end int64, onRowError query.RowErrorFunc) (query.Result, error) {
	started := time.Now()
	result, err := query.Execute(ctx, s.Index, pipeline, start, end, onRowError)
	if err != nil {
		return query.Result{}, err
	}
	if s.Metrics != nil {
		s.Metrics.RecordQuery(string(result.Type), time.Since(started))
	}
	if result.Type == query.ResultLogEntries {
		result.Records = redactRecords(result.Records, s.Redactor, false)
	}
	return result, nil
}

// FetchByID returns a single record by id, optionally bypassing redaction
// (the documented "reveal" escape hatch for single-record fetch).
func (s *Service) FetchByID(id string, reveal bool) (record.Record, bool) {
	r, ok := s.Index.FindByID(id)
	if !ok {
		return record.Record{}, false
	}
	if reveal || s.Redactor == nil {
		return r, true
	}
	out := redactRecords([]record.Record{r}, s.Redactor, false)
	return out[0], true
}

// Page is the result of SearchPage.
type Page struct {
	Items    []record.Record
	Total    int
	Page     int
	PageSize int
}

// SearchPage returns one page of search results. page is 1-based;
// 1<=pageSize<=10000.
func (s *Service) SearchPage(ctx context.Context, q string, isRegex bool, start, end int64, page, pageSize int, reveal bool) (Page, error) {
	if page < 1 {
		return Page{}, errors.InvalidInput("page", "must be >= 1")
	}
	if pageSize < 1 || pageSize > 10000 {
		return Page{}, errors.InvalidInput("pageSize", "must be between 1 and 10000")
	}

	all, err := s.Search(ctx, q, isRegex, start, end, reveal)
	if err != nil {
		return Page{}, err
	}

	total := len(all)
	from := (page - 1) * pageSize
	if from > total {
		from = total
	}
	to := from + pageSize
	if to > total {
		to = total
	}
	return Page{Items: all[from:to], Total: total, Page: page, PageSize: pageSize}, nil
}

// Histogram computes slots buckets covering [start,end) contiguously.
// Records are bucketed by record.EffectiveTime (recordTime when present,
// else ingestTime), the same key the index uses for windowing. A record
// whose recordTime lies outside [start,end) is not counted, even when its
// ingestTime is inside.
func (s *Service) Histogram(ctx context.Context, q string, isRegex bool, start, end int64, slots int) ([]int64, error) {
	if slots < 1 || slots > 1024 {
		return nil, errors.InvalidInput("slots", "must be between 1 and 1024")
	}
	records, err := s.Search(ctx, q, isRegex, start, end, true)
	if err != nil {
		return nil, err
	}

	buckets := make([]int64, slots)
	width := (end - start) / int64(slots)
	if width <= 0 {
		width = 1
	}
	for _, r := range records {
		idx := int((r.EffectiveTime() - start) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= slots {
			idx = slots - 1
		}
		buckets[idx]++
	}
	return buckets, nil
}

// HistogramBucket is one (start, count) pair with an explicit bucket start,
// used by the REST histogram endpoint's timestamped shape.
type HistogramBucket struct {
	BucketStart int64
	Count       int64
}

// HistogramBuckets returns explicit [bucketStart, bucketStart+interval)
// buckets covering [start,end).
func (s *Service) HistogramBuckets(ctx context.Context, q string, isRegex bool, start, end, intervalMs int64) ([]HistogramBucket, error) {
	if intervalMs <= 0 {
		return nil, errors.InvalidInput("interval", "must be positive")
	}
	records, err := s.Search(ctx, q, isRegex, start, end, true)
	if err != nil {
		return nil, err
	}

	n := int((end - start + intervalMs - 1) / intervalMs)
	if n < 1 {
		n = 1
	}
	buckets := make([]HistogramBucket, n)
	for i := range buckets {
		buckets[i] = HistogramBucket{BucketStart: start + int64(i)*intervalMs}
	}
	for _, r := range records {
		idx := int((r.EffectiveTime() - start) / intervalMs)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		buckets[idx].Count++
	}
	return buckets, nil
}

// DefaultStreamRange returns the last 30 days, the documented default for
// streaming histogram endpoints when no range is supplied.
func DefaultStreamRange(now int64) (int64, int64) {
	return now - int64(30*24*time.Hour/time.Millisecond), now
}

// DeriveStreamInterval picks an interval that yields roughly 30 buckets over
// [start,end), using a daily bucket once the span reaches 25 days.
func DeriveStreamInterval(start, end int64) int64 {
	span := end - start
	days := span / int64(24*time.Hour/time.Millisecond)
	if days >= 25 {
		return int64(24 * time.Hour / time.Millisecond)
	}
	interval := span / 30
	if interval < 1 {
		interval = 1
	}
	return interval
}

// ExportCSV renders records as RFC 4180 CSV with the documented header row.
func (s *Service) ExportCSV(records []record.Record) string {
	out := "ID,Timestamp,DateTime,Level,Source,Message,RawContent\r\n"
	for _, r := range records {
		t := time.UnixMilli(r.EffectiveTime()).UTC()
		out += fmt.Sprintf("%s,%d,%s,%s,%s,%s,%s\r\n",
			csvEscape(r.ID),
			r.EffectiveTime(),
			csvEscape(t.Format(time.RFC3339)),
			csvEscape(r.Level),
			csvEscape(r.Source),
			csvEscape(r.Message),
			csvEscape(r.RawContent),
		)
	}
	return out
}

func csvEscape(s string) string {
	needsQuoting := false
	for _, r := range s {
		if r == ',' || r == '"' || r == '\n' || r == '\r' {
			needsQuoting = true
			break
		}
	}
	if !needsQuoting {
		return s
	}
	escaped := ""
	for _, r := range s {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// Emit delivers one SSE-style event to the transport layer. name is the
// event name ("init", "page", "hist", "lag", "done", "error"); data is
// marshaled by the caller (httpapi) into the event body.
type Emit func(name string, data interface{}) error

// StreamSearch runs a search and emits "init" (the query range plus the
// total page count at pageSize), a single "page" event carrying only the
// first page, and a final "done" carrying the total record count. If the
// search itself fails, it emits a single "error" event and returns the
// failure; a mid-stream emit failure (client disconnect) stops the stream
// and returns that error without an "error" event.
func (s *Service) StreamSearch(ctx context.Context, q string, isRegex bool, start, end int64, pageSize int, reveal bool, emit Emit) error {
	if pageSize < 1 {
		pageSize = 100
	}

	records, err := s.Search(ctx, q, isRegex, start, end, reveal)
	if err != nil {
		_ = emit("error", map[string]string{"message": err.Error()})
		return err
	}

	bucketCount := (len(records) + pageSize - 1) / pageSize
	if err := emit("init", map[string]interface{}{
		"range":       map[string]int64{"start": start, "end": end},
		"bucketCount": bucketCount,
	}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	firstPageEnd := pageSize
	if firstPageEnd > len(records) {
		firstPageEnd = len(records)
	}
	if err := emit("page", map[string]interface{}{"records": records[:firstPageEnd]}); err != nil {
		return err
	}

	return emit("done", map[string]interface{}{"total": len(records)})
}

// StreamTimetable streams a histogram over [start,end) in intervalMs
// buckets, emitting "init", a "hist" event every 200 records scanned plus a
// final "hist" with the complete bucket set, then "done".
func (s *Service) StreamTimetable(ctx context.Context, q string, isRegex bool, start, end, intervalMs int64, emit Emit) error {
	records, err := s.Search(ctx, q, isRegex, start, end, true)
	if err != nil {
		_ = emit("error", map[string]string{"message": err.Error()})
		return err
	}

	n := int((end - start + intervalMs - 1) / intervalMs)
	if n < 1 {
		n = 1
	}
	buckets := make([]HistogramBucket, n)
	for i := range buckets {
		buckets[i] = HistogramBucket{BucketStart: start + int64(i)*intervalMs}
	}

	if err := emit("init", map[string]interface{}{"buckets": n, "interval": intervalMs}); err != nil {
		return err
	}

	const progressEvery = 200
	for i, r := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		idx := int((r.EffectiveTime() - start) / intervalMs)
		if idx < 0 {
			idx = 0
		}
		if idx >= n {
			idx = n - 1
		}
		buckets[idx].Count++

		if (i+1)%progressEvery == 0 {
			if err := emit("hist", map[string]interface{}{"buckets": buckets}); err != nil {
				return err
			}
		}
	}

	if err := emit("hist", map[string]interface{}{"buckets": buckets}); err != nil {
		return err
	}
	return emit("done", nil)
}

// sortByEffectiveTimeDesc sorts records newest-first by effective time,
// ties broken by id, the same ordering the index guarantees. Nothing in
// the module calls it.
func sortByEffectiveTimeDesc(records []record.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EffectiveTime() != records[j].EffectiveTime() {
			return records[i].EffectiveTime() > records[j].EffectiveTime()
		}
		return records[i].ID < records[j].ID
	})
}
