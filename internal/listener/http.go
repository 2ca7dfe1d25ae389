package listener

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// readAllStrict reads up to limit+1 bytes and reports whether the body
// exceeded limit, without buffering more than necessary.
func readAllStrict(r io.Reader, limit int64) ([]byte, bool, error) {
	b, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(b)) > limit {
		return nil, true, nil
	}
	return b, false, nil
}

// MaxIntakeBodyBytes and MaxIntakeBatchEntries bound one HTTP intake
// request; requests exceeding either are rejected with 413.
const (
	MaxIntakeBodyBytes    = 10 * 1024 * 1024
	MaxIntakeBatchEntries = 10000
)

// SourceAuth describes the auth requirement for one configured log source.
type SourceAuth struct {
	RequireAuth bool
	Token       string
}

// SourceAuthLookup resolves a sourceId path segment to its auth config.
// Unknown source ids are treated as RequireAuth: false.
type SourceAuthLookup func(sourceID string) SourceAuth

// HTTPConfig configures the HTTP log-intake receiver.
type HTTPConfig struct {
	Addr   string
	Lookup SourceAuthLookup
}

// HTTPListener exposes POST /api/logs/{sourceId} (single record) and
// POST /api/logs/{sourceId}/batch (JSON array of records).
type HTTPListener struct {
	cfg     HTTPConfig
	buf     *buffer.Buffer
	log     *logging.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	server *http.Server
}

func NewHTTPListener(cfg HTTPConfig, buf *buffer.Buffer, log *logging.Logger, m *metrics.Metrics) *HTTPListener {
	return &HTTPListener{cfg: cfg, buf: buf, log: log, metrics: m}
}

func (l *HTTPListener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/logs/", l.handleIntake)

	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return err
	}

	server := &http.Server{Handler: mux}
	l.mu.Lock()
	l.server = server
	l.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if l.log != nil {
				l.log.Error2(context.Background(), "http intake listener stopped", err, nil)
			}
		}
	}()
	return nil
}

func (l *HTTPListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	server := l.server
	l.mu.Unlock()
	if server == nil {
		return nil
	}
	graceCtx, cancel := context.WithTimeout(ctx, gracePeriod)
	defer cancel()
	return server.Shutdown(graceCtx)
}

// sourceIDAndMode splits "/api/logs/{sourceId}" or "/api/logs/{sourceId}/batch".
func sourceIDAndMode(path string) (sourceID string, batch bool) {
	const prefix = "/api/logs/"
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:] == "batch"
		}
	}
	return rest, false
}

func (l *HTTPListener) handleIntake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sourceID, batch := sourceIDAndMode(r.URL.Path)
	if sourceID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if l.cfg.Lookup != nil {
		auth := l.cfg.Lookup(sourceID)
		if auth.RequireAuth && r.Header.Get("X-Auth-Token") != auth.Token {
			if l.metrics != nil {
				l.metrics.RecordIntakeAuthFailure(sourceID)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	body, tooLarge, err := readAllStrict(r.Body, MaxIntakeBodyBytes)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if tooLarge {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	now := record.NowMillis()
	var records []record.Record
	if batch {
		records = record.ParseHTTPJSONBatch(sourceID, body, now)
		if len(records) > MaxIntakeBatchEntries {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
	} else {
		records = []record.Record{record.ParseHTTPJSON(sourceID, body, now)}
	}

	accepted := 0
	if l.buf != nil {
		accepted = l.buf.AddAll(records)
	}
	if l.metrics != nil {
		l.metrics.RecordIngest(sourceID, accepted, len(records)-accepted)
	}
	if l.log != nil {
		l.log.LogIngest(r.Context(), sourceID, accepted, len(records)-accepted, nil)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]int{"accepted": accepted, "dropped": len(records) - accepted})
}
