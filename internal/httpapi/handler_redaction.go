package httpapi

import (
	"net/http"

	"github.com/ozkanpakdil/grepwise-sub005/internal/redaction"
)

func (a *API) mountRedaction() {
	r := a.router.PathPrefix("/api/redaction").Subrouter()
	r.HandleFunc("/keys", a.handleRedactionKeys).Methods(http.MethodGet)
	r.HandleFunc("/config", a.handleRedactionConfig).Methods(http.MethodGet)
	r.HandleFunc("/reload", a.handleRedactionReload).Methods(http.MethodPost)
}

func (a *API) handleRedactionKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Redactor.Config().Keys)
}

func (a *API) handleRedactionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Redactor.Config())
}

// handleRedactionReload replaces the active redaction configuration with
// the posted one, taking effect for subsequent searches via the Redactor's
// copy-on-write reload.
func (a *API) handleRedactionReload(w http.ResponseWriter, r *http.Request) {
	var cfg redaction.Config
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	a.deps.Redactor.Reload(cfg)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
