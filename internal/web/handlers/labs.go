package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/lab-access/internal/database"
)

// LabsHandler handles lab endpoints.
type LabsHandler struct {
	store database.Store
}

// NewLabsHandler creates a new labs handler.
func NewLabsHandler(store database.Store) *LabsHandler {
	return &LabsHandler{store: store}
}

// List returns all labs.
func (h *LabsHandler) List(w http.ResponseWriter, r *http.Request) {
	labs, err := h.store.ListLabs(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if labs == nil {
		labs = []database.Lab{}
	}
	respondJSON(w, http.StatusOK, labs)
}

type createLabRequest struct {
	Name     string `json:"name"`
	Building string `json:"building"`
	Room     string `json:"room"`
}

// Create adds a lab.
func (h *LabsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	lab, err := h.store.CreateLab(r.Context(), database.Lab{
		Name:     req.Name,
		Building: strings.TrimSpace(req.Building),
		Room:     strings.TrimSpace(req.Room),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, lab)
}

// Members lists the members enrolled in a lab.
func (h *LabsHandler) Members(w http.ResponseWriter, r *http.Request) {
	labID, err := pathID(r, "labID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.store.GetLab(r.Context(), labID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	members, err := h.store.ListByLab(r.Context(), labID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []database.Template{}
	}
	respondJSON(w, http.StatusOK, members)
}
