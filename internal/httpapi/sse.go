package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/search"
)

// sseEmitter returns a search.Emit that writes one SSE frame per call and
// flushes immediately, matching the 5-minute stream deadline described in
// spec.md §5 (the deadline itself is applied by the caller via
// context.WithTimeout on the request context).
func sseEmitter(w http.ResponseWriter) (search.Emit, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.Internal("streaming unsupported by response writer", nil)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return func(name string, data interface{}) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, raw); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}, nil
}
