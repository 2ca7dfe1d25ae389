package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
	"github.com/ozkanpakdil/grepwise-sub005/internal/retention"
)

func (a *API) mountRetention() {
	r := a.router.PathPrefix("/api/retention").Subrouter()
	r.HandleFunc("", a.handleListPolicies).Methods(http.MethodGet)
	r.HandleFunc("", a.handleSetPolicy).Methods(http.MethodPost)
	r.HandleFunc("/{id}", a.handleRemovePolicy).Methods(http.MethodDelete)
	r.HandleFunc("/run", a.handleRunRetention).Methods(http.MethodPost)
}

func (a *API) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Retention.Policies())
}

func (a *API) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var in retention.Policy
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	if in.ID == "" {
		in.ID = record.NewID()
	}
	a.deps.Retention.SetPolicy(in)
	writeJSON(w, http.StatusCreated, in)
}

func (a *API) handleRemovePolicy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a.deps.Retention.RemovePolicy(id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRunRetention(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.deps.Retention.RunOnce(r.Context(), record.NowMillis())
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
