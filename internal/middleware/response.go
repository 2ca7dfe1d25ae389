// Package middleware holds the cross-cutting HTTP middleware wrapped around
// internal/httpapi's router: CORS, security headers, request body limiting,
// and per-client rate limiting. Grounded on infrastructure/middleware's
// same-named files; the teacher's serviceauth.go (mTLS/service-identity
// enforcement) has no home here since GrepWise's REST surface has no
// authentication layer beyond a source's own ingest token, which
// internal/httpapi's intake handlers already check directly.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
)

// writeError mirrors internal/httpapi's error shape so a request rejected by
// a middleware (CORS, body limit, rate limit) looks identical to one
// rejected by a handler.
func writeError(w http.ResponseWriter, r *http.Request, err *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	_ = json.NewEncoder(w).Encode(struct {
		Error         string `json:"error"`
		Kind          string `json:"kind"`
		CorrelationID string `json:"correlationId"`
	}{
		Error:         err.Error(),
		Kind:          string(err.Kind),
		CorrelationID: logging.GetTraceID(r.Context()),
	})
}

// clientIP returns the first entry of X-Forwarded-For when present,
// otherwise RemoteAddr verbatim.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return fwd[:idx]
		}
		return fwd
	}
	return r.RemoteAddr
}
