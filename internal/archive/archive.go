// Package archive implements the Archive Engine: gzipped newline-delimited
// JSON containers under archives/<source>/<yyyyMMdd>/<hh>.jsonl.gz, with a
// sidecar metadata index. Writers serialize per archive path; readers are
// unaffected by in-progress writes to other paths.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// Config configures the archive engine.
type Config struct {
	Dir string // archive storage root, default "data/archives"
}

func DefaultConfig() Config {
	return Config{Dir: "data/archives"}
}

// Metadata describes one archive container.
type Metadata struct {
	ID              string `json:"id" db:"id"`
	Source          string `json:"source" db:"source"`
	TimeRangeStart  int64  `json:"timeRangeStart" db:"time_range_start"`
	TimeRangeEnd    int64  `json:"timeRangeEnd" db:"time_range_end"`
	RecordCount     int    `json:"recordCount" db:"record_count"`
	StoragePath     string `json:"storagePath" db:"storage_path"`
	CompressedBytes int64  `json:"compressedBytes" db:"compressed_bytes"`
	CreatedAt       int64  `json:"createdAt" db:"created_at"`
}

// Engine is the archive engine.
type Engine struct {
	cfg Config

	mu       sync.Mutex // protects metadata index and per-path locks map
	metadata map[string]Metadata
	paths    map[string]*sync.Mutex // per archive path write serialization
	metaFile string

	log     *logging.Logger
	metrics *metrics.Metrics
}

// Open loads the sidecar metadata index (if present) and returns an Engine
// rooted at cfg.Dir.
func Open(cfg Config, log *logging.Logger, m *metrics.Metrics) (*Engine, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultConfig().Dir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.StorageError("archive.mkdir", err)
	}

	e := &Engine{
		cfg:      cfg,
		metadata: make(map[string]Metadata),
		paths:    make(map[string]*sync.Mutex),
		metaFile: filepath.Join(cfg.Dir, "metadata.jsonl"),
		log:      log,
		metrics:  m,
	}
	if err := e.loadMetadata(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadMetadata() error {
	f, err := os.Open(e.metaFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.StorageError("archive.loadMetadata", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Metadata
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		e.metadata[m.ID] = m
	}
	return scanner.Err()
}

func (e *Engine) appendMetadata(m Metadata) error {
	f, err := os.OpenFile(e.metaFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.StorageError("archive.appendMetadata", err)
	}
	defer f.Close()

	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Internal("archive metadata marshal failed", err)
	}
	if _, err := f.Write(append(raw, '\n')); err != nil {
		return errors.StorageError("archive.appendMetadata", err)
	}
	return f.Sync()
}

// pathLock returns (creating if necessary) the mutex serializing writes to
// a given archive path.
func (e *Engine) pathLock(path string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.paths[path]
	if !ok {
		l = &sync.Mutex{}
		e.paths[path] = l
	}
	return l
}

// segmentPath computes archives/<source>/<yyyyMMdd>/<hh>.jsonl.gz for the
// hour bucket containing ts (epoch millis, UTC).
func (e *Engine) segmentPath(source string, ts int64) string {
	t := time.UnixMilli(ts).UTC()
	return filepath.Join(e.cfg.Dir, source, t.Format("20060102"), fmt.Sprintf("%02d.jsonl.gz", t.Hour()))
}

// Write packs records (assumed to belong to a single source) into their
// hour-bucket containers, appending to any that already exist, and returns
// the Metadata entries created or extended.
func (e *Engine) Write(ctx context.Context, source string, records []record.Record) ([]Metadata, error) {
	byPath := make(map[string][]record.Record)
	for _, r := range records {
		byPath[e.segmentPath(source, r.EffectiveTime())] = append(byPath[e.segmentPath(source, r.EffectiveTime())], r)
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var results []Metadata
	for _, path := range paths {
		m, err := e.writeSegment(source, path, byPath[path])
		if err != nil {
			return results, err
		}
		results = append(results, m)
	}
	return results, nil
}

func (e *Engine) writeSegment(source, path string, records []record.Record) (Metadata, error) {
	lock := e.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Metadata{}, errors.StorageError("archive.mkdir", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Metadata{}, errors.StorageError("archive.open", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	var written int64
	start, end := records[0].EffectiveTime(), records[0].EffectiveTime()
	for _, r := range records {
		raw, merr := json.Marshal(r)
		if merr != nil {
			continue
		}
		raw = append(raw, '\n')
		n, werr := gz.Write(raw)
		if werr != nil {
			gz.Close()
			return Metadata{}, errors.StorageError("archive.write", werr)
		}
		written += int64(n)
		if t := r.EffectiveTime(); t < start {
			start = t
		} else if t > end {
			end = t
		}
	}
	if err := gz.Close(); err != nil {
		return Metadata{}, errors.StorageError("archive.gzipClose", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, errors.StorageError("archive.stat", err)
	}

	e.mu.Lock()
	existing, exists := e.findByPathLocked(path)
	var m Metadata
	if exists {
		m = existing
		m.RecordCount += len(records)
		m.CompressedBytes = info.Size()
		if start < m.TimeRangeStart {
			m.TimeRangeStart = start
		}
		if end > m.TimeRangeEnd {
			m.TimeRangeEnd = end
		}
	} else {
		m = Metadata{
			ID:              record.NewID(),
			Source:          source,
			TimeRangeStart:  start,
			TimeRangeEnd:    end,
			RecordCount:     len(records),
			StoragePath:     path,
			CompressedBytes: info.Size(),
			CreatedAt:       record.NowMillis(),
		}
	}
	e.metadata[m.ID] = m
	e.mu.Unlock()

	if err := e.appendMetadata(m); err != nil {
		return m, err
	}

	if e.metrics != nil {
		e.metrics.RecordArchiveWrite(info.Size())
	}
	if e.log != nil {
		e.log.LogArchiveWrite(context.Background(), m.ID, len(records), info.Size(), nil)
	}
	return m, nil
}

func (e *Engine) findByPathLocked(path string) (Metadata, bool) {
	for _, m := range e.metadata {
		if m.StoragePath == path {
			return m, true
		}
	}
	return Metadata{}, false
}

// Extract decompresses an archive and returns its records.
func (e *Engine) Extract(archiveID string) ([]record.Record, error) {
	e.mu.Lock()
	m, ok := e.metadata[archiveID]
	e.mu.Unlock()
	if !ok {
		return nil, errors.NotFound("archive", archiveID)
	}

	f, err := os.Open(m.StoragePath)
	if err != nil {
		return nil, errors.StorageError("archive.open", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.StorageError("archive.gzipOpen", err)
	}
	defer gz.Close()

	var records []record.Record
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r record.Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return records, errors.StorageError("archive.scan", err)
	}
	return records, nil
}

// Delete removes both the archive file and its metadata entry.
func (e *Engine) Delete(archiveID string) error {
	e.mu.Lock()
	m, ok := e.metadata[archiveID]
	if ok {
		delete(e.metadata, archiveID)
	}
	e.mu.Unlock()
	if !ok {
		return errors.NotFound("archive", archiveID)
	}

	lock := e.pathLock(m.StoragePath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.StoragePath); err != nil && !os.IsNotExist(err) {
		return errors.StorageError("archive.delete", err)
	}
	return e.rewriteMetadataFile()
}

func (e *Engine) rewriteMetadataFile() error {
	e.mu.Lock()
	entries := make([]Metadata, 0, len(e.metadata))
	for _, m := range e.metadata {
		entries = append(entries, m)
	}
	e.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt < entries[j].CreatedAt })

	tmp := e.metaFile + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.StorageError("archive.rewriteMetadata", err)
	}
	for _, m := range entries {
		raw, merr := json.Marshal(m)
		if merr != nil {
			continue
		}
		if _, err := f.Write(append(raw, '\n')); err != nil {
			f.Close()
			return errors.StorageError("archive.rewriteMetadata", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.StorageError("archive.rewriteMetadata", err)
	}
	f.Close()
	return os.Rename(tmp, e.metaFile)
}

// List returns all archive metadata, optionally filtered by source.
func (e *Engine) List(source string) []Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Metadata
	for _, m := range e.metadata {
		if source == "" || m.Source == source {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

// Get returns one archive's metadata by id.
func (e *Engine) Get(archiveID string) (Metadata, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.metadata[archiveID]
	return m, ok
}
