// Package httpapi is the REST surface described in spec.md §6: logs
// search/SPL/paging/aggregation/streaming/export/intake, and CRUD surfaces
// for alarms, sources, retention policies, archives, the cache, and
// redaction configuration. Routing follows the teacher's Marble service
// framework (infrastructure/marble/service.go): a gorilla/mux Router wrapped
// by a small lifecycle type, with middleware chained via Router().Use(...).
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ozkanpakdil/grepwise-sub005/internal/alarm"
	"github.com/ozkanpakdil/grepwise-sub005/internal/archive"
	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/cache"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/middleware"
	"github.com/ozkanpakdil/grepwise-sub005/internal/redaction"
	"github.com/ozkanpakdil/grepwise-sub005/internal/retention"
	"github.com/ozkanpakdil/grepwise-sub005/internal/search"
	"github.com/ozkanpakdil/grepwise-sub005/internal/sources"
)

// Deps are the services an API instance dispatches to. The service fields
// (Search through Buffer) are all required.
type Deps struct {
	Search    *search.Service
	Alarms    *alarm.Engine
	Retention *retention.Engine
	Archives  *archive.Engine
	Cache     *cache.Cache
	Redactor  *redaction.Redactor
	Sources   *sources.Registry
	Buffer    *buffer.Buffer

	Log     *logging.Logger
	Metrics *metrics.Metrics

	// CORSOrigins lists browser origins allowed to call the API, e.g. a
	// locally-served log viewer; empty disables CORS headers entirely.
	CORSOrigins []string
	// MaxBodyBytes caps request bodies before a handler ever reads them;
	// 0 selects middleware.BodyLimit's default.
	MaxBodyBytes int64
	// RateLimitPerSecond/RateLimitBurst configure per-client-IP rate
	// limiting; RateLimitPerSecond <= 0 disables it.
	RateLimitPerSecond int
	RateLimitBurst     int
}

// API is the REST service: a configured gorilla/mux router plus the
// dependencies its handlers close over.
type API struct {
	router *mux.Router
	deps   Deps
}

// New builds the router and registers every route group.
func New(deps Deps) *API {
	a := &API{
		router: mux.NewRouter(),
		deps:   deps,
	}
	a.router.Use(mux.MiddlewareFunc(recoveryMiddleware(deps.Log)))
	a.router.Use(mux.MiddlewareFunc(tracingMiddleware(deps.Log)))
	a.router.Use(mux.MiddlewareFunc(metricsMiddleware(deps.Metrics)))
	a.router.Use(mux.MiddlewareFunc(middleware.SecurityHeaders(nil)))
	a.router.Use(mux.MiddlewareFunc(middleware.BodyLimit(deps.MaxBodyBytes)))
	if len(deps.CORSOrigins) > 0 {
		a.router.Use(mux.MiddlewareFunc(middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins})))
	}
	if deps.RateLimitPerSecond > 0 {
		limiter := middleware.NewRateLimiter(deps.RateLimitPerSecond, deps.RateLimitBurst, deps.Log)
		a.router.Use(mux.MiddlewareFunc(limiter.Handler))
	}

	a.mountLogs()
	a.mountAlarms()
	a.mountSources()
	a.mountRetention()
	a.mountArchives()
	a.mountCache()
	a.mountRedaction()

	a.router.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)

	return a
}

// Router returns the underlying mux.Router, e.g. for http.Server.Handler.
func (a *API) Router() *mux.Router {
	return a.router
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
