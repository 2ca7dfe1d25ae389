package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
)

// RateLimiter is a per-client token-bucket limiter keyed by IP, e.g. to
// protect the ingest endpoints from a single noisy source.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
	limit    int
	log      *logging.Logger
}

// NewRateLimiter allows requestsPerSecond sustained, bursting up to burst.
func NewRateLimiter(requestsPerSecond, burst int, log *logging.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		limit:    requestsPerSecond,
		log:      log,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Cleanup discards tracked limiters once their number grows unreasonably
// large, e.g. from a scheduler.Job run periodically against long-lived
// deployments with many distinct source IPs.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// Handler rejects requests once key's bucket (client IP) is exhausted.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if key == "" {
			key = "unknown"
		}
		if !rl.limiterFor(key).Allow() {
			if rl.log != nil {
				rl.log.Warn2(r.Context(), "rate limit exceeded", map[string]interface{}{"key": key, "path": r.URL.Path})
			}
			w.Header().Set("Retry-After", strconv.Itoa(1))
			writeError(w, r, errors.RateLimitExceeded(rl.limit, time.Second.String()))
			return
		}
		next.ServeHTTP(w, r)
	})
}
