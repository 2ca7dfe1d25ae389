// Package metrics provides Prometheus metrics collection for GrepWise.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector GrepWise exposes on /metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	// Ingestion
	IngestRecordsTotal *prometheus.CounterVec
	IngestDropsTotal   *prometheus.CounterVec
	IntakeAuthFailures *prometheus.CounterVec
	BufferDepth        prometheus.Gauge

	// Index engine
	IndexCommitsTotal   *prometheus.CounterVec
	IndexCommitDuration prometheus.Histogram
	IndexSegmentCount   prometheus.Gauge
	IndexRecordsTotal   prometheus.Gauge

	// Query / search
	QueryRowErrors   *prometheus.CounterVec
	QueryDuration    *prometheus.HistogramVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Alarms
	AlarmEvaluationsTotal *prometheus.CounterVec
	AlarmFiresTotal       *prometheus.CounterVec

	// Archive & retention
	ArchiveSegmentsTotal prometheus.Counter
	ArchiveBytesTotal    prometheus.Counter
	RetentionDeletesTotal prometheus.Counter

	// Background scheduler
	JobRunsTotal    *prometheus.CounterVec
	JobFailureTotal *prometheus.CounterVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance registered on the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance registered on a custom registerer.
// Passing a nil registerer skips registration, useful in tests that construct
// multiple Metrics instances in the same process.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight", Help: "Current number of HTTP requests being processed",
		}),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"kind", "operation"},
		),

		IngestRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ingest_records_total", Help: "Total number of records accepted into the ingestion buffer"},
			[]string{"source_id"},
		),
		IngestDropsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ingest_drops_total", Help: "Total number of records dropped due to buffer overflow"},
			[]string{"source_id"},
		),
		IntakeAuthFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "intake_auth_failures_total", Help: "Total number of rejected intake requests due to auth failures"},
			[]string{"listener"},
		),
		BufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_buffer_depth", Help: "Current number of records queued in the ingestion buffer",
		}),

		IndexCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "index_commits_total", Help: "Total number of index commit cycles"},
			[]string{"status"},
		),
		IndexCommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_commit_duration_seconds",
			Help:    "Index commit duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		IndexSegmentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_segment_count", Help: "Current number of in-memory index segments",
		}),
		IndexRecordsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_records_total", Help: "Current number of records held in the index",
		}),

		QueryRowErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "query_row_errors_total", Help: "Total number of rows that failed eval/where evaluation during a query"},
			[]string{"stage"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_duration_seconds",
				Help:    "Query execution duration in seconds",
				Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 10, 30},
			},
			[]string{"result_type"},
		),
		CacheHitsTotal:   prometheus.NewCounter(prometheus.CounterOpts{Name: "search_cache_hits_total", Help: "Total number of search cache hits"}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "search_cache_misses_total", Help: "Total number of search cache misses"}),

		AlarmEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "alarm_evaluations_total", Help: "Total number of alarm rule evaluation cycles"},
			[]string{"alarm_id"},
		),
		AlarmFiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "alarm_fires_total", Help: "Total number of alarm events fired"},
			[]string{"alarm_id"},
		),

		ArchiveSegmentsTotal:  prometheus.NewCounter(prometheus.CounterOpts{Name: "archive_segments_total", Help: "Total number of archive segments written"}),
		ArchiveBytesTotal:     prometheus.NewCounter(prometheus.CounterOpts{Name: "archive_bytes_total", Help: "Total number of bytes written to archive segments"}),
		RetentionDeletesTotal: prometheus.NewCounter(prometheus.CounterOpts{Name: "retention_deletes_total", Help: "Total number of records deleted by the retention engine"}),

		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "job_runs_total", Help: "Total number of background scheduler job runs"},
			[]string{"job"},
		),
		JobFailureTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "job_failures_total", Help: "Total number of background scheduler job failures"},
			[]string{"job"},
		),

		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"}),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal, m.RequestDuration, m.RequestsInFlight, m.ErrorsTotal,
			m.IngestRecordsTotal, m.IngestDropsTotal, m.IntakeAuthFailures, m.BufferDepth,
			m.IndexCommitsTotal, m.IndexCommitDuration, m.IndexSegmentCount, m.IndexRecordsTotal,
			m.QueryRowErrors, m.QueryDuration, m.CacheHitsTotal, m.CacheMissesTotal,
			m.AlarmEvaluationsTotal, m.AlarmFiresTotal,
			m.ArchiveSegmentsTotal, m.ArchiveBytesTotal, m.RetentionDeletesTotal,
			m.JobRunsTotal, m.JobFailureTotal,
			m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)

	return m
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(kind, operation string) {
	m.ErrorsTotal.WithLabelValues(kind, operation).Inc()
}

func (m *Metrics) RecordIngest(sourceID string, accepted, dropped int) {
	m.IngestRecordsTotal.WithLabelValues(sourceID).Add(float64(accepted))
	if dropped > 0 {
		m.IngestDropsTotal.WithLabelValues(sourceID).Add(float64(dropped))
	}
}

func (m *Metrics) RecordIntakeAuthFailure(listener string) {
	m.IntakeAuthFailures.WithLabelValues(listener).Inc()
}

func (m *Metrics) SetBufferDepth(depth int) {
	m.BufferDepth.Set(float64(depth))
}

func (m *Metrics) RecordIndexCommit(status string, duration time.Duration) {
	m.IndexCommitsTotal.WithLabelValues(status).Inc()
	m.IndexCommitDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordQuery(resultType string, duration time.Duration) {
	m.QueryDuration.WithLabelValues(resultType).Observe(duration.Seconds())
}

func (m *Metrics) RecordQueryRowError(stage string) {
	m.QueryRowErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordCacheHit(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) RecordAlarmEvaluation(alarmID string, fired bool) {
	m.AlarmEvaluationsTotal.WithLabelValues(alarmID).Inc()
	if fired {
		m.AlarmFiresTotal.WithLabelValues(alarmID).Inc()
	}
}

func (m *Metrics) RecordArchiveWrite(bytesWritten int64) {
	m.ArchiveSegmentsTotal.Inc()
	m.ArchiveBytesTotal.Add(float64(bytesWritten))
}

func (m *Metrics) RecordRetentionDeletes(count int) {
	m.RetentionDeletesTotal.Add(float64(count))
}

func (m *Metrics) RecordJobRun(job string, err error) {
	m.JobRunsTotal.WithLabelValues(job).Inc()
	if err != nil {
		m.JobFailureTotal.WithLabelValues(job).Inc()
	}
}

func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

// Enabled returns whether Prometheus metrics should be exposed, controlled by
// the METRICS_ENABLED environment variable. Defaults to enabled.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("grepwise")
	}
	return globalMetrics
}
