package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/kozaktomas/lab-access/internal/access"
	"github.com/kozaktomas/lab-access/internal/database"
)

// MembersHandler handles roster endpoints.
type MembersHandler struct {
	svc   *access.Service
	store database.Store
}

// NewMembersHandler creates a new members handler.
func NewMembersHandler(svc *access.Service, store database.Store) *MembersHandler {
	return &MembersHandler{svc: svc, store: store}
}

// List returns all members, or those matching ?name=.
func (h *MembersHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		members []database.Template
		err     error
	)
	if name := r.URL.Query().Get("name"); name != "" {
		members, err = h.store.FindByName(r.Context(), name)
	} else {
		members, err = h.store.List(r.Context())
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []database.Template{}
	}
	respondJSON(w, http.StatusOK, members)
}

// Get returns one member.
func (h *MembersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memberID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tpl, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

// Enroll creates a member from a multipart form with the enrollment photo
// in "file" and first_name, last_name, lab_id and optional member_id fields.
func (h *MembersHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	frame, err := readFrame(w, r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	req := access.EnrollRequest{
		FirstName: r.FormValue("first_name"),
		LastName:  r.FormValue("last_name"),
	}
	if req.LabID, err = strconv.ParseInt(r.FormValue("lab_id"), 10, 64); err != nil {
		respondError(w, http.StatusBadRequest, "lab_id is required")
		return
	}
	if raw := r.FormValue("member_id"); raw != "" {
		if req.MemberID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			respondError(w, http.StatusBadRequest, "invalid member_id")
			return
		}
	}

	tpl, err := h.svc.Enroll(r.Context(), req, frame)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tpl)
}

// Update edits a member's names or lab.
func (h *MembersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memberID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var u database.MemberUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	tpl, err := h.svc.UpdateMember(r.Context(), id, u)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tpl)
}

// Remove deletes a member. Deleting an absent member succeeds.
func (h *MembersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memberID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.RemoveMember(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Face serves the stored canonical face of a member as JPEG.
func (h *MembersHandler) Face(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "memberID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tpl, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Header().Set("ETag", `"`+tpl.FaceHash+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(tpl.Face)
}
