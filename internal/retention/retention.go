// Package retention implements the Retention Engine: per-policy scheduled
// deletion, packing evicted records into the Archive Engine first when
// archival is enabled for a source.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/archive"
	"github.com/ozkanpakdil/grepwise-sub005/internal/cache"
	"github.com/ozkanpakdil/grepwise-sub005/internal/index"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// Policy is a retention policy: apply to all sources (SourceFilter=="") or
// one named source, evicting records older than MaxAgeMillis and, when
// MaxRecords is set, evicting the oldest records beyond that count too.
// ArchiveFirst archives only the age-based evictions; records removed by
// the MaxRecords cap are deleted without being archived.
type Policy struct {
	ID           string
	Enabled      bool
	SourceFilter string
	MaxAgeMillis int64
	MaxRecords   int // 0 means unbounded
	ArchiveFirst bool
}

// Engine runs retention policies on demand or on a schedule (the schedule
// itself is driven by internal/scheduler; Engine only exposes RunOnce).
type Engine struct {
	mu       sync.RWMutex
	policies map[string]Policy

	idx     *index.Engine
	archive *archive.Engine // nil disables archival-before-delete
	cache   *cache.Cache
	log     *logging.Logger
	metrics *metrics.Metrics
}

func New(idx *index.Engine, arc *archive.Engine, c *cache.Cache, log *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		policies: make(map[string]Policy),
		idx:      idx,
		archive:  arc,
		cache:    c,
		log:      log,
		metrics:  m,
	}
}

func (e *Engine) SetPolicy(p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.ID] = p
}

func (e *Engine) RemovePolicy(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.policies, id)
}

func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p)
	}
	return out
}

// RunOnce applies every enabled policy against now (epoch millis) and
// returns the total number of records deleted. Idempotent: running twice
// with the same now deletes nothing on the second call, since the cutoff is
// a fixed point in time and already-evicted records are gone.
func (e *Engine) RunOnce(ctx context.Context, now int64) (int, error) {
	e.mu.RLock()
	policies := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		if p.Enabled {
			policies = append(policies, p)
		}
	}
	e.mu.RUnlock()

	total := 0
	for _, p := range policies {
		n, err := e.applyPolicy(ctx, p, now)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (e *Engine) applyPolicy(ctx context.Context, p Policy, now int64) (int, error) {
	cutoff := now - p.MaxAgeMillis

	if p.ArchiveFirst && e.archive != nil {
		var toArchive []record.Record
		if p.SourceFilter != "" {
			toArchive = e.idx.RecordsForDelete(p.SourceFilter, cutoff)
		} else {
			toArchive = e.idx.RecordsForDelete("", cutoff)
		}
		if len(toArchive) > 0 {
			bySource := make(map[string][]record.Record)
			for _, r := range toArchive {
				bySource[r.Source] = append(bySource[r.Source], r)
			}
			for source, recs := range bySource {
				if _, err := e.archive.Write(ctx, source, recs); err != nil {
					return 0, err
				}
			}
		}
	}

	var deleted int
	if p.SourceFilter != "" {
		deleted = e.idx.DeleteBySource(p.SourceFilter, cutoff)
	} else {
		deleted = e.idx.DeleteOlderThan(cutoff)
	}

	if p.MaxRecords > 0 {
		deleted += e.idx.DeleteExcessOldest(p.SourceFilter, p.MaxRecords)
	}

	if deleted > 0 {
		if e.cache != nil {
			e.cache.InvalidateIntersecting(time.UnixMilli(0), time.UnixMilli(cutoff))
		}
		if e.metrics != nil {
			e.metrics.RecordRetentionDeletes(deleted)
		}
	}
	return deleted, nil
}
