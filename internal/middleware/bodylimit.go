package middleware

import (
	"net/http"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
)

const defaultMaxBodyBytes int64 = 10 << 20 // matches the intake handlers' 10MB cap

// BodyLimit caps request bodies at maxBytes (defaulting to 10MB), rejecting
// oversized requests before they reach a handler's json.Decoder and wrapping
// http.MaxBytesReader around the rest so a handler's own read can't exceed
// it either.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, r, errors.InvalidInput("body", "request body exceeds limit").WithDetails("limitBytes", maxBytes))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
