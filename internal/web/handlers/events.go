package handlers

import (
	"net/http"
	"strconv"

	"github.com/kozaktomas/lab-access/internal/database"
)

// EventsHandler serves the access audit trail.
type EventsHandler struct {
	store database.Store
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(store database.Store) *EventsHandler {
	return &EventsHandler{store: store}
}

// List returns events newest first, filtered by lab_id, member_id and limit.
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		f   database.EventFilter
		err error
	)
	if f.LabID, err = queryID(r, "lab_id"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.MemberID, err = queryID(r, "member_id"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil || f.Limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	events, err := h.store.ListEvents(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []database.AccessEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}
