package httpapi

import "net/http"

func (a *API) mountCache() {
	r := a.router.PathPrefix("/api/cache").Subrouter()
	r.HandleFunc("/stats", a.handleCacheStats).Methods(http.MethodGet)
	r.HandleFunc("/clear", a.handleCacheClear).Methods(http.MethodPost)
	r.HandleFunc("/config", a.handleCacheConfig).Methods(http.MethodGet)
}

func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := a.deps.Cache.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hits":      stats.Hits,
		"misses":    stats.Misses,
		"size":      stats.Size,
		"evictions": stats.Evictions,
		"hitRatio":  stats.HitRatio(),
	})
}

func (a *API) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	a.deps.Cache.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleCacheConfig reports the cache's effective limits. Cache sizing is
// fixed at construction (see internal/config.CacheConfig), so this is
// read-only: changing it requires a process restart with a new
// CACHE_MAX_SIZE/CACHE_TTL_MS.
func (a *API) handleCacheConfig(w http.ResponseWriter, r *http.Request) {
	cfg := a.deps.Cache.Config()
	stats := a.deps.Cache.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":      cfg.Enabled,
		"maxSize":      cfg.MaxSize,
		"expirationMs": cfg.ExpirationMs,
		"currentSize":  stats.Size,
	})
}
