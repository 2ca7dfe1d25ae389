package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
)

func (a *API) mountArchives() {
	r := a.router.PathPrefix("/api/archives").Subrouter()
	r.HandleFunc("", a.handleListArchives).Methods(http.MethodGet)
	r.HandleFunc("/{id}", a.handleGetArchive).Methods(http.MethodGet)
	r.HandleFunc("/{id}/extract", a.handleExtractArchive).Methods(http.MethodGet)
	r.HandleFunc("/{id}", a.handleDeleteArchive).Methods(http.MethodDelete)
}

func (a *API) handleListArchives(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	writeJSON(w, http.StatusOK, a.deps.Archives.List(source))
}

func (a *API) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	m, ok := a.deps.Archives.Get(id)
	if !ok {
		writeError(w, r, a.deps.Log, errors.NotFound("archive", id))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleExtractArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	records, err := a.deps.Archives.Extract(id)
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.deps.Archives.Delete(id); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
