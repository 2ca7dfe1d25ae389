package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
)

// writeJSON encodes v as the response body with status and a JSON content
// type. Grounded on infrastructure/httputil's WriteJSON, adapted here since
// this package is its only consumer.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the `{error, kind, correlationId}` shape spec.md §7 requires
// of every REST error response.
type errorBody struct {
	Error         string `json:"error"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlationId"`
}

// writeError maps err to an HTTP status and the taxonomy kind from
// internal/errors, logging it at a severity appropriate to the kind.
func writeError(w http.ResponseWriter, r *http.Request, log *logging.Logger, err error) {
	status := errors.GetHTTPStatus(err)
	kind := errors.GetKind(err)
	traceID := logging.GetTraceID(r.Context())

	if log != nil {
		if status >= 500 {
			log.Error2(r.Context(), "request failed", err, map[string]interface{}{"path": r.URL.Path})
		} else {
			log.Warn2(r.Context(), "request rejected", map[string]interface{}{"path": r.URL.Path, "error": err.Error()})
		}
	}

	writeJSON(w, status, errorBody{
		Error:         err.Error(),
		Kind:          string(kind),
		CorrelationID: traceID,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.InvalidInput("body", "malformed JSON: "+err.Error())
	}
	return nil
}

// queryInt reads q[name] as an int, falling back to def when absent or
// unparsable.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	switch v {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func queryInt64(r *http.Request, name string, def int64) int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
