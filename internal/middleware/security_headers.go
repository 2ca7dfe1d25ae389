package middleware

import "net/http"

// DefaultSecurityHeaders are applied to every response unless overridden.
func DefaultSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
		"Content-Security-Policy": "default-src 'self'",
	}
}

// SecurityHeaders sets headers, e.g. DefaultSecurityHeaders(), on every
// response before the next handler runs.
func SecurityHeaders(headers map[string]string) func(http.Handler) http.Handler {
	if headers == nil {
		headers = DefaultSecurityHeaders()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
