package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/query"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/search"
)

const (
	searchTimeout = 30 * time.Second
	streamTimeout = 5 * time.Minute
)

func (a *API) mountLogs() {
	r := a.router.PathPrefix("/api/logs").Subrouter()
	r.HandleFunc("/search", a.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/spl", a.handleSPL).Methods(http.MethodPost)
	r.HandleFunc("/search/page", a.handleSearchPage).Methods(http.MethodGet)
	r.HandleFunc("/time-aggregation", a.handleTimeAggregation).Methods(http.MethodGet)
	r.HandleFunc("/histogram", a.handleHistogram).Methods(http.MethodGet)
	r.HandleFunc("/search/stream", a.handleSearchStream).Methods(http.MethodGet)
	r.HandleFunc("/search/timetable/stream", a.handleTimetableStream).Methods(http.MethodGet)
	r.HandleFunc("/export/csv", a.handleExportCSV).Methods(http.MethodGet)
	r.HandleFunc("/{id}", a.handleGetByID).Methods(http.MethodGet)
	r.HandleFunc("/{sourceId}/batch", a.handleIntakeBatch).Methods(http.MethodPost)
	r.HandleFunc("/{sourceId}", a.handleIntake).Methods(http.MethodPost)
}

// searchParams pulls the common query/isRegex/time-window parameters shared
// by search, page, histogram, and time-aggregation.
func (a *API) searchParams(r *http.Request) (q string, isRegex bool, start, end int64, err error) {
	q = r.URL.Query().Get("query")
	isRegex = queryBool(r, "isRegex", false)
	start, end, err = search.ResolveRange(
		r.URL.Query().Get("timeRange"),
		queryInt64(r, "startTime", 0),
		queryInt64(r, "endTime", 0),
		record.NowMillis(),
	)
	return q, isRegex, start, end, err
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	q, isRegex, start, end, err := a.searchParams(r)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	reveal := queryBool(r, "reveal", false)

	records, err := a.deps.Search.Search(ctx, q, isRegex, start, end, reveal)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleSPL(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, a.deps.Log, errors.InvalidInput("body", "could not read SPL pipeline"))
		return
	}

	start, end, err := search.ResolveRange(r.URL.Query().Get("timeRange"),
		queryInt64(r, "startTime", 0), queryInt64(r, "endTime", 0), record.NowMillis())
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	rowErrors := 0
	onRowError := func(stage string, err error) {
		rowErrors++
		if a.deps.Metrics != nil {
			a.deps.Metrics.RecordQueryRowError(stage)
		}
	}

	result, err := a.deps.Search.SearchSPL(ctx, string(body), start, end, onRowError)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	if result.Type == query.ResultStatistics {
		writeJSON(w, http.StatusOK, map[string]interface{}{"columns": result.Columns, "rows": result.Rows})
		return
	}
	writeJSON(w, http.StatusOK, result.Records)
}

func (a *API) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reveal := queryBool(r, "reveal", false)

	rec, ok := a.deps.Search.FetchByID(id, reveal)
	if !ok {
		writeError(w, r, a.deps.Log, errors.NotFound("log record", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleSearchPage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	q, isRegex, start, end, err := a.searchParams(r)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 100)
	reveal := queryBool(r, "reveal", false)

	result, err := a.deps.Search.SearchPage(ctx, q, isRegex, start, end, page, pageSize, reveal)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": result.Items, "total": result.Total, "page": result.Page, "pageSize": result.PageSize,
	})
}

func (a *API) handleTimeAggregation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	q, isRegex, start, end, err := a.searchParams(r)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	slots := queryInt(r, "slots", 24)

	counts, err := a.deps.Search.Histogram(ctx, q, isRegex, start, end, slots)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	width := (end - start) / int64(slots)
	if width <= 0 {
		width = 1
	}
	out := make(map[int64]int64, slots)
	for i, c := range counts {
		out[start+int64(i)*width] = c
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleHistogram(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	q := r.URL.Query().Get("query")
	isRegex := queryBool(r, "isRegex", false)
	start := queryInt64(r, "from", 0)
	end := queryInt64(r, "to", record.NowMillis())
	interval := queryInt64(r, "interval", 60000)

	buckets, err := a.deps.Search.HistogramBuckets(ctx, q, isRegex, start, end, interval)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	type bucketOut struct {
		Timestamp string `json:"timestamp"`
		Count     int64  `json:"count"`
	}
	out := make([]bucketOut, len(buckets))
	for i, b := range buckets {
		out[i] = bucketOut{
			Timestamp: time.UnixMilli(b.BucketStart).UTC().Format("2006-01-02T15:04:05Z"),
			Count:     b.Count,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), streamTimeout)
	defer cancel()

	q, isRegex, start, end, err := a.searchParams(r)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	pageSize := queryInt(r, "pageSize", 100)
	reveal := queryBool(r, "reveal", false)

	emit, err := sseEmitter(w)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	sub, subErr := a.deps.Search.Subscribe(q, isRegex, reveal)
	if subErr == nil {
		defer a.deps.Search.Unsubscribe(sub)
	}

	if err := a.deps.Search.StreamSearch(ctx, q, isRegex, start, end, pageSize, reveal, emit); err != nil {
		return
	}
	if subErr != nil {
		return
	}

	// Past the initial page and "done", keep the connection open and
	// forward newly-ingested matching records as they're committed, per
	// spec.md §4.B's buffer-drain-republishes-to-subscribers contract.
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			switch ev.Name {
			case "page":
				if err := emit("page", map[string]interface{}{"records": ev.Records}); err != nil {
					return
				}
			case "lag":
				if err := emit("lag", map[string]interface{}{"dropped": ev.Dropped}); err != nil {
					return
				}
			}
		}
	}
}

func (a *API) handleTimetableStream(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), streamTimeout)
	defer cancel()

	q := r.URL.Query().Get("query")
	isRegex := queryBool(r, "isRegex", false)
	now := record.NowMillis()
	start, end := search.DefaultStreamRange(now)
	if s := queryInt64(r, "startTime", 0); s != 0 {
		start = s
	}
	if e := queryInt64(r, "endTime", 0); e != 0 {
		end = e
	}
	interval := queryInt64(r, "interval", search.DeriveStreamInterval(start, end))

	emit, err := sseEmitter(w)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	_ = a.deps.Search.StreamTimetable(ctx, q, isRegex, start, end, interval, emit)
}

func (a *API) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()

	q, isRegex, start, end, err := a.searchParams(r)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	records, err := a.deps.Search.Search(ctx, q, isRegex, start, end, false)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="logs.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, a.deps.Search.ExportCSV(records))
}

func (a *API) handleIntake(w http.ResponseWriter, r *http.Request) {
	a.intake(w, r, false)
}

func (a *API) handleIntakeBatch(w http.ResponseWriter, r *http.Request) {
	a.intake(w, r, true)
}

// intake implements the same HTTP intake contract as
// internal/listener.HTTPListener.handleIntake, mounted on the main API
// router instead of a dedicated listener port so HTTP-kind sources need no
// separate bind.
func (a *API) intake(w http.ResponseWriter, r *http.Request, batch bool) {
	sourceID := mux.Vars(r)["sourceId"]

	auth := a.deps.Sources.Auth(sourceID)
	if auth.RequireAuth && r.Header.Get("X-Auth-Token") != auth.Token {
		if a.deps.Metrics != nil {
			a.deps.Metrics.RecordIntakeAuthFailure("http")
		}
		writeError(w, r, a.deps.Log, errors.Unauthorized("missing or invalid X-Auth-Token"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10*1024*1024+1))
	if err != nil {
		writeError(w, r, a.deps.Log, errors.InvalidInput("body", "could not read request body"))
		return
	}
	if len(body) > 10*1024*1024 {
		writeError(w, r, a.deps.Log, errors.New(errors.ErrCodeInvalidInput, errors.KindInvalidInput, "request body exceeds 10MB", http.StatusRequestEntityTooLarge))
		return
	}

	now := record.NowMillis()
	var records []record.Record
	if batch {
		records = record.ParseHTTPJSONBatch(sourceID, body, now)
		if len(records) > 10000 {
			writeError(w, r, a.deps.Log, errors.New(errors.ErrCodeInvalidInput, errors.KindInvalidInput, "batch exceeds 10000 entries", http.StatusRequestEntityTooLarge))
			return
		}
	} else {
		records = []record.Record{record.ParseHTTPJSON(sourceID, body, now)}
	}

	accepted := a.deps.Buffer.AddAll(records)
	dropped := len(records) - accepted
	if a.deps.Metrics != nil {
		a.deps.Metrics.RecordIngest(sourceID, accepted, dropped)
	}
	if a.deps.Log != nil {
		a.deps.Log.LogIngest(r.Context(), sourceID, accepted, dropped, nil)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted, "dropped": dropped})
}
