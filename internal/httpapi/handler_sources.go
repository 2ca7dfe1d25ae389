package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/sources"
)

func (a *API) mountSources() {
	r := a.router.PathPrefix("/api/sources").Subrouter()
	r.HandleFunc("", a.handleListSources).Methods(http.MethodGet)
	r.HandleFunc("", a.handleCreateSource).Methods(http.MethodPost)
	r.HandleFunc("/{id}", a.handleGetSource).Methods(http.MethodGet)
	r.HandleFunc("/{id}", a.handleDeleteSource).Methods(http.MethodDelete)
	r.HandleFunc("/{id}/start", a.handleStartSource).Methods(http.MethodPost)
	r.HandleFunc("/{id}/stop", a.handleStopSource).Methods(http.MethodPost)
}

func (a *API) handleListSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Sources.List())
}

func (a *API) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var in sources.LogSource
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	out, err := a.deps.Sources.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, ok := a.deps.Sources.Get(id)
	if !ok {
		writeError(w, r, a.deps.Log, errors.NotFound("source", id))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.deps.Sources.Delete(r.Context(), id); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStartSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.deps.Sources.Start(r.Context(), id); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (a *API) handleStopSource(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.deps.Sources.Stop(r.Context(), id); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
