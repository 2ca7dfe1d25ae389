package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ozkanpakdil/grepwise-sub005/internal/alarm"
	"github.com/ozkanpakdil/grepwise-sub005/internal/errors"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

func (a *API) mountAlarms() {
	r := a.router.PathPrefix("/api/alarms").Subrouter()
	r.HandleFunc("", a.handleListAlarms).Methods(http.MethodGet)
	r.HandleFunc("", a.handleCreateAlarm).Methods(http.MethodPost)
	r.HandleFunc("/{id}", a.handleGetAlarm).Methods(http.MethodGet)
	r.HandleFunc("/{id}", a.handleDeleteAlarm).Methods(http.MethodDelete)
	r.HandleFunc("/{id}/events", a.handleAlarmEvents).Methods(http.MethodGet)
	r.HandleFunc("/{id}/events/{eventId}/acknowledge", a.handleAcknowledgeEvent).Methods(http.MethodPost)
	r.HandleFunc("/{id}/events/{eventId}/resolve", a.handleResolveEvent).Methods(http.MethodPost)
	r.HandleFunc("/{id}/evaluate", a.handleEvaluateAlarm).Methods(http.MethodPost)
}

func (a *API) handleListAlarms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.deps.Alarms.Alarms())
}

func (a *API) handleCreateAlarm(w http.ResponseWriter, r *http.Request) {
	var in alarm.Alarm
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	if in.ID == "" {
		in.ID = record.NewID()
	}
	a.deps.Alarms.SetAlarm(in)
	writeJSON(w, http.StatusCreated, in)
}

func (a *API) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	al, ok := a.deps.Alarms.Alarm(id)
	if !ok {
		writeError(w, r, a.deps.Log, errors.NotFound("alarm", id))
		return
	}
	writeJSON(w, http.StatusOK, al)
}

func (a *API) handleDeleteAlarm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	a.deps.Alarms.RemoveAlarm(id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAlarmEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var out []alarm.Event
	for _, e := range a.deps.Alarms.Events() {
		if e.AlarmID == id {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAcknowledgeEvent(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]
	var in struct {
		By string `json:"by"`
	}
	_ = decodeJSON(r, &in)

	ev, err := a.deps.Alarms.Acknowledge(eventID, in.By, record.NowMillis())
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleResolveEvent(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["eventId"]
	var in struct {
		By string `json:"by"`
	}
	_ = decodeJSON(r, &in)

	ev, err := a.deps.Alarms.Resolve(eventID, in.By, record.NowMillis())
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEvaluateAlarm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	fired, count, err := a.deps.Alarms.Evaluate(r.Context(), id, record.NowMillis())
	if err != nil {
		writeError(w, r, a.deps.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fired": fired, "matchCount": count})
}
