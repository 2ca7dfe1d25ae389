// Package scanner implements the File Scanner: periodic directory
// enumeration, glob matching, and tailing of appended bytes via a persisted
// (inode, offset) map, with rotation detection.
package scanner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// Source is one configured directory to scan.
type Source struct {
	Dir       string
	Glob      string // e.g. "*.log"; empty matches everything
	Recursive bool
}

// offset is the persisted tailing position for one file.
type offset struct {
	Inode  uint64 `json:"inode"`
	Offset int64  `json:"offset"`
}

// Config configures the scanner.
type Config struct {
	Sources    []Source
	ScanPeriod time.Duration
	// OffsetFile persists the path->offset map across restarts. Empty
	// disables persistence (every restart re-tails from file start).
	OffsetFile string
}

func DefaultConfig() Config {
	return Config{ScanPeriod: 5 * time.Second}
}

// Scanner tails configured directories and feeds parsed records into a
// buffer.
type Scanner struct {
	cfg    Config
	buf    *buffer.Buffer
	log    *logging.Logger
	source func(path string) string

	mu      sync.Mutex
	offsets map[string]offset
}

// New creates a Scanner. Records are tagged with the absolute path of the
// file they were read from as their source.
func New(cfg Config, buf *buffer.Buffer, log *logging.Logger) *Scanner {
	if cfg.ScanPeriod <= 0 {
		cfg.ScanPeriod = 5 * time.Second
	}
	return &Scanner{
		cfg:     cfg,
		buf:     buf,
		log:     log,
		offsets: make(map[string]offset),
		source: func(path string) string {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		},
	}
}

// Load reads the persisted offset map, if OffsetFile is configured.
func (s *Scanner) Load() error {
	if s.cfg.OffsetFile == "" {
		return nil
	}
	raw, err := os.ReadFile(s.cfg.OffsetFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.StorageError("scanner.loadOffsets", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(raw, &s.offsets)
}

func (s *Scanner) persist() error {
	if s.cfg.OffsetFile == "" {
		return nil
	}
	s.mu.Lock()
	raw, err := json.Marshal(s.offsets)
	s.mu.Unlock()
	if err != nil {
		return errors.Internal("scanner offset marshal failed", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.OffsetFile), 0o755); err != nil {
		return errors.StorageError("scanner.persistOffsets", err)
	}
	return os.WriteFile(s.cfg.OffsetFile, raw, 0o644)
}

// Run starts the periodic scan loop; it blocks until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanAll(ctx)
		}
	}
}

// ScanAll forces an immediate pass over every configured source.
func (s *Scanner) ScanAll(ctx context.Context) {
	for _, src := range s.cfg.Sources {
		s.scanSource(ctx, src)
	}
	_ = s.persist()
}

func (s *Scanner) scanSource(ctx context.Context, src Source) {
	paths := s.enumerate(src)
	for _, path := range paths {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.tail(path); err != nil && s.log != nil {
			s.log.Error2(ctx, "scanner tail failed", err, map[string]interface{}{"path": path})
		}
	}
}

func (s *Scanner) enumerate(src Source) []string {
	var out []string
	pattern := src.Glob
	if pattern == "" {
		pattern = "*"
	}

	if !src.Recursive {
		matches, _ := filepath.Glob(filepath.Join(src.Dir, pattern))
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				out = append(out, m)
			}
		}
		return out
	}

	_ = filepath.WalkDir(src.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			out = append(out, path)
		}
		return nil
	})
	return out
}

func (s *Scanner) tail(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.StorageError("scanner.open", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.StorageError("scanner.stat", err)
	}
	inode := inodeOf(info)

	s.mu.Lock()
	off, known := s.offsets[path]
	s.mu.Unlock()

	startAt := int64(0)
	if known {
		if off.Inode == inode && off.Offset <= info.Size() {
			startAt = off.Offset
		}
		// rotation detected (inode changed or file truncated): re-tail from 0
	}

	if _, err := f.Seek(startAt, io.SeekStart); err != nil {
		return errors.StorageError("scanner.seek", err)
	}

	reader := bufio.NewReader(f)
	read := startAt
	source := s.source(path)
	var batch []record.Record
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			trimmed := trimNewline(line)
			read += int64(len(line))
			if trimmed != "" {
				batch = append(batch, record.ParseLine(source, trimmed, record.NowMillis()))
			}
		}
		if err != nil {
			break
		}
	}

	if len(batch) > 0 && s.buf != nil {
		s.buf.AddAll(batch)
	}

	s.mu.Lock()
	s.offsets[path] = offset{Inode: inode, Offset: read}
	s.mu.Unlock()
	return nil
}

func trimNewline(s string) string {
	n := len(s)
	if n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	n = len(s)
	if n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}
