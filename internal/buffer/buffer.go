// Package buffer implements the bounded ingestion buffer: any number of
// producers (file scanner, listeners, HTTP handlers) publish records; a
// single drainer worker pulls batches on a fixed cadence or size threshold.
package buffer

import (
	"sync"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// Config configures the ingestion buffer.
type Config struct {
	Capacity       int
	DrainInterval  time.Duration
	BatchThreshold int
}

func DefaultConfig() Config {
	return Config{
		Capacity:       10000,
		DrainInterval:  250 * time.Millisecond,
		BatchThreshold: 1024,
	}
}

// Buffer is the bounded ingestion queue. Overflow policy is drop-newest: once
// full, newly added records are discarded and counted rather than blocking
// producers or evicting older records.
type Buffer struct {
	mu       sync.Mutex
	cfg      Config
	records  []record.Record
	log      *logging.Logger
	metrics  *metrics.Metrics
	lastWarn time.Time
}

func New(cfg Config, log *logging.Logger, m *metrics.Metrics) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 250 * time.Millisecond
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 1024
	}
	return &Buffer{cfg: cfg, log: log, metrics: m}
}

// Add enqueues a single record, returning false if it was dropped due to
// overflow.
func (b *Buffer) Add(r record.Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addLocked(r)
}

// AddAll enqueues as many records as fit, returning the count actually accepted.
func (b *Buffer) AddAll(records []record.Record) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	accepted := 0
	dropped := 0
	for _, r := range records {
		if b.addLocked(r) {
			accepted++
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		b.warnOverflowLocked(dropped)
	}
	if b.metrics != nil {
		sourceID := ""
		if len(records) > 0 {
			sourceID = records[0].Source
		}
		b.metrics.RecordIngest(sourceID, accepted, dropped)
	}
	return accepted
}

func (b *Buffer) addLocked(r record.Record) bool {
	if len(b.records) >= b.cfg.Capacity {
		b.warnOverflowLocked(1)
		return false
	}
	b.records = append(b.records, r)
	return true
}

// warnOverflowLocked logs a structured warning at ≤1 Hz to avoid flooding
// logs during sustained overflow.
func (b *Buffer) warnOverflowLocked(dropped int) {
	if b.log == nil {
		return
	}
	now := time.Now()
	if now.Sub(b.lastWarn) < time.Second {
		return
	}
	b.lastWarn = now
	b.log.WithFields(map[string]interface{}{
		"dropped":  dropped,
		"capacity": b.cfg.Capacity,
	}).Warn("ingestion buffer overflow, dropping newest records")
}

// Drain removes and returns up to max records in FIFO order.
func (b *Buffer) Drain(max int) []record.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) == 0 {
		return nil
	}
	if max <= 0 || max > len(b.records) {
		max = len(b.records)
	}
	batch := make([]record.Record, max)
	copy(batch, b.records[:max])
	b.records = b.records[max:]
	return batch
}

// Size returns the current queue depth.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// ShouldDrainNow reports whether the buffer has crossed its batch threshold,
// letting the drain loop drain early instead of waiting for the next tick.
func (b *Buffer) ShouldDrainNow() bool {
	return b.Size() >= b.cfg.BatchThreshold
}
