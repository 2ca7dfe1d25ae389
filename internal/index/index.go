// Package index implements the log record index: a single committed
// snapshot readers consult lock-free, mutated by exactly one writer at a
// time via Commit. Queries scan the snapshot's records; there is no
// token-to-record inverted index.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/resilience"
)

// Config configures the index engine.
type Config struct {
	// Dir is the index storage root; the write-ahead log lives at
	// <Dir>/wal.jsonl and the quarantine directory at <Dir>/quarantine.
	Dir string
}

func DefaultConfig() Config {
	return Config{Dir: "data/index"}
}

// snapshot is the immutable, committed view of the index. Readers load a
// pointer to one atomically; writers build a new snapshot and swap it in.
type snapshot struct {
	byID     map[string]record.Record
	sortedID []string // ids ordered by (effectiveTime desc, id asc)
}

func emptySnapshot() *snapshot {
	return &snapshot{byID: make(map[string]record.Record)}
}

// Engine is the index engine.
type Engine struct {
	cfg     Config
	snap    atomic.Pointer[snapshot]
	writeMu sync.Mutex // serializes commits; single-writer discipline

	wal *os.File

	log     *logging.Logger
	metrics *metrics.Metrics
}

// Open creates/opens the index at cfg.Dir, replaying any existing
// write-ahead log to rebuild the in-memory snapshot.
func Open(cfg Config, log *logging.Logger, m *metrics.Metrics) (*Engine, error) {
	if cfg.Dir == "" {
		cfg.Dir = "data/index"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.StorageError("mkdir index dir", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, "quarantine"), 0o755); err != nil {
		return nil, errors.StorageError("mkdir quarantine dir", err)
	}

	e := &Engine{cfg: cfg, log: log, metrics: m}
	e.snap.Store(emptySnapshot())

	if err := e.replayWAL(); err != nil {
		return nil, err
	}

	walPath := filepath.Join(cfg.Dir, "wal.jsonl")
	f, err := os.OpenFile(walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.StorageError("open wal", err)
	}
	e.wal = f

	return e, nil
}

func (e *Engine) replayWAL() error {
	walPath := filepath.Join(e.cfg.Dir, "wal.jsonl")
	f, err := os.Open(walPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.StorageError("open wal for replay", err)
	}
	defer f.Close()

	var batch []record.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var r record.Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		batch = append(batch, r)
	}
	if len(batch) > 0 {
		e.snap.Store(buildSnapshot(emptySnapshot(), batch))
	}
	return nil
}

// Close closes the underlying write-ahead log file.
func (e *Engine) Close() error {
	if e.wal != nil {
		return e.wal.Close()
	}
	return nil
}

// Commit atomically applies batch to the index. On transient I/O failure it
// retries up to 3 times with exponential backoff (100/400/1600ms); on
// exhaustion the batch is written to a quarantine file and a Fatal error is
// returned.
func (e *Engine) Commit(ctx context.Context, batch []record.Record) error {
	if len(batch) == 0 {
		return nil
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	start := time.Now()
	cfg := resilience.RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1600 * time.Millisecond,
		Multiplier:   4.0,
		Jitter:       0,
	}

	err := resilience.Retry(ctx, cfg, func() error {
		return e.writeWAL(batch)
	})

	if err != nil {
		e.quarantine(batch, err)
		if e.metrics != nil {
			e.metrics.RecordIndexCommit("quarantined", time.Since(start))
		}
		if e.log != nil {
			e.log.LogIndexCommit(ctx, len(batch), time.Since(start), err)
		}
		return errors.Fatal("index commit exhausted retries, batch quarantined", err)
	}

	prev := e.snap.Load()
	e.snap.Store(buildSnapshot(prev, batch))

	if e.metrics != nil {
		e.metrics.RecordIndexCommit("ok", time.Since(start))
		e.metrics.IndexRecordsTotal.Set(float64(len(e.snap.Load().byID)))
	}
	if e.log != nil {
		e.log.LogIndexCommit(ctx, len(batch), time.Since(start), nil)
	}
	return nil
}

func (e *Engine) writeWAL(batch []record.Record) error {
	for _, r := range batch {
		raw, err := json.Marshal(r)
		if err != nil {
			return err
		}
		raw = append(raw, '\n')
		if _, err := e.wal.Write(raw); err != nil {
			return err
		}
	}
	return e.wal.Sync()
}

func (e *Engine) quarantine(batch []record.Record, cause error) {
	path := filepath.Join(e.cfg.Dir, "quarantine", fmt.Sprintf("%d.jsonl", time.Now().UnixNano()))
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	for _, r := range batch {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		f.Write(raw)
		f.Write([]byte("\n"))
	}
	if e.log != nil {
		e.log.WithError(cause).WithFields(map[string]interface{}{
			"quarantine_path": path,
			"records":         len(batch),
		}).Error("index batch quarantined")
	}
}

// buildSnapshot returns a new snapshot containing prev's records plus batch,
// re-sorted by (effectiveTime desc, id asc).
func buildSnapshot(prev *snapshot, batch []record.Record) *snapshot {
	byID := make(map[string]record.Record, len(prev.byID)+len(batch))
	for k, v := range prev.byID {
		byID[k] = v
	}
	for _, r := range batch {
		byID[r.ID] = r
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := byID[ids[i]], byID[ids[j]]
		ti, tj := ri.EffectiveTime(), rj.EffectiveTime()
		if ti != tj {
			return ti > tj
		}
		return ids[i] < ids[j]
	})

	return &snapshot{byID: byID, sortedID: ids}
}

// FindByID returns the record with the given id, if present.
func (e *Engine) FindByID(id string) (record.Record, bool) {
	s := e.snap.Load()
	r, ok := s.byID[id]
	return r, ok
}

// FindByLevel returns all records with an exact level match, newest first.
func (e *Engine) FindByLevel(level string) []record.Record {
	s := e.snap.Load()
	var out []record.Record
	for _, id := range s.sortedID {
		r := s.byID[id]
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// FindBySource returns all records with an exact source match, newest first.
func (e *Engine) FindBySource(source string) []record.Record {
	s := e.snap.Load()
	var out []record.Record
	for _, id := range s.sortedID {
		r := s.byID[id]
		if r.Source == source {
			out = append(out, r)
		}
	}
	return out
}

// BuildMatcher compiles query into a predicate over record.Record's message/
// rawContent, shared by Search and by anything else that needs the exact
// same matching semantics (e.g. internal/search's live SSE subscriptions).
// A nil/blank/"*" query matches everything. Regex queries are matched
// case-insensitively (a "(?i)" prefix is applied) to match the non-regex
// path's case-insensitive substring matching; non-regex queries require
// every whitespace-separated token to appear as a substring of message or
// rawContent.
func BuildMatcher(query string, isRegex bool) (func(record.Record) bool, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || trimmed == "*" {
		return func(record.Record) bool { return true }, nil
	}

	if isRegex {
		re, err := regexp.Compile("(?i)" + trimmed)
		if err != nil {
			return nil, errors.InvalidInput("query", "invalid regex: "+err.Error())
		}
		return func(r record.Record) bool {
			return re.MatchString(r.Message) || re.MatchString(r.RawContent)
		}, nil
	}

	tokens := strings.Fields(strings.ToLower(trimmed))
	return func(r record.Record) bool {
		haystack := strings.ToLower(r.Message + " " + r.RawContent)
		for _, tok := range tokens {
			if !strings.Contains(haystack, tok) {
				return false
			}
		}
		return true
	}, nil
}

// Search returns records matching query within [startTime, endTime),
// ordered newest-first by EffectiveTime, ties broken by id ascending.
// A nil/blank/"*" query matches all records in the window. When isRegex is
// true, query is a regular expression matched against message or rawContent
// via full scan; otherwise every whitespace-separated token in query must
// appear (case-insensitive) as a substring of message or rawContent.
func (e *Engine) Search(query string, isRegex bool, startTime, endTime int64) ([]record.Record, error) {
	s := e.snap.Load()

	matcher, err := BuildMatcher(query, isRegex)
	if err != nil {
		return nil, err
	}

	var out []record.Record
	for _, id := range s.sortedID {
		r := s.byID[id]
		t := r.EffectiveTime()
		if t < startTime || t >= endTime {
			continue
		}
		if matcher(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteOlderThan deletes every record whose EffectiveTime is strictly
// before ts, returning the count deleted.
func (e *Engine) DeleteOlderThan(ts int64) int {
	return e.deleteWhere(func(r record.Record) bool { return r.EffectiveTime() < ts })
}

// DeleteBySource deletes every record from source whose EffectiveTime is
// strictly before olderThan, returning the count deleted.
func (e *Engine) DeleteBySource(source string, olderThan int64) int {
	return e.deleteWhere(func(r record.Record) bool {
		return r.Source == source && r.EffectiveTime() < olderThan
	})
}

func (e *Engine) deleteWhere(predicate func(record.Record) bool) int {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	prev := e.snap.Load()
	byID := make(map[string]record.Record, len(prev.byID))
	deleted := 0
	for id, r := range prev.byID {
		if predicate(r) {
			deleted++
			continue
		}
		byID[id] = r
	}
	if deleted == 0 {
		return 0
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := byID[ids[i]], byID[ids[j]]
		ti, tj := ri.EffectiveTime(), rj.EffectiveTime()
		if ti != tj {
			return ti > tj
		}
		return ids[i] < ids[j]
	})

	e.snap.Store(&snapshot{byID: byID, sortedID: ids})
	if e.metrics != nil {
		e.metrics.IndexRecordsTotal.Set(float64(len(byID)))
	}
	return deleted
}

// DeleteExcessOldest keeps at most maxRecords records (source-filtered when
// source is non-empty, across the whole index otherwise) and deletes the
// rest oldest-first, returning the count deleted. maxRecords<=0 deletes
// nothing.
func (e *Engine) DeleteExcessOldest(source string, maxRecords int) int {
	if maxRecords <= 0 {
		return 0
	}
	s := e.snap.Load()
	kept := 0
	var excess map[string]struct{}
	for _, id := range s.sortedID {
		r := s.byID[id]
		if source != "" && r.Source != source {
			continue
		}
		kept++
		if kept > maxRecords {
			if excess == nil {
				excess = make(map[string]struct{})
			}
			excess[id] = struct{}{}
		}
	}
	if len(excess) == 0 {
		return 0
	}
	return e.deleteWhere(func(r record.Record) bool {
		_, ok := excess[r.ID]
		return ok
	})
}

// RecordsForDelete returns the records that DeleteOlderThan/DeleteBySource
// would remove, without deleting them — used by the retention engine to
// archive records before eviction.
func (e *Engine) RecordsForDelete(source string, olderThan int64) []record.Record {
	s := e.snap.Load()
	var out []record.Record
	for _, id := range s.sortedID {
		r := s.byID[id]
		if r.EffectiveTime() >= olderThan {
			continue
		}
		if source != "" && r.Source != source {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Size returns the current number of records held in the index.
func (e *Engine) Size() int {
	return len(e.snap.Load().byID)
}
