package handlers

import (
	"net/http"

	"github.com/kozaktomas/lab-access/internal/access"
)

// ScanHandler handles door scans.
type ScanHandler struct {
	svc *access.Service
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(svc *access.Service) *ScanHandler {
	return &ScanHandler{svc: svc}
}

// Scan runs one access check against a lab. Granted and denied decisions
// are both 200; only a failed audit write is a 500. A frame that cannot be
// read is still a scan attempt and is recorded as an InternalError denial.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	labID, err := pathID(r, "labID")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var decision access.Decision
	frame, err := readFrame(w, r)
	if err != nil {
		decision, err = h.svc.Reject(r.Context(), labID, err)
	} else {
		decision, err = h.svc.Scan(r.Context(), labID, frame)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}
