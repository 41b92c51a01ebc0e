package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/lab-access/internal/access"
	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/vision"
	"go.uber.org/zap"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to status codes.
// Unexpected errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, database.ErrDuplicateMember):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrLabNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, vision.ErrNoFaceDetected), errors.Is(err, vision.ErrInvalidRegion):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, access.ErrInvalidRequest), errors.Is(err, vision.ErrInvalidFrame):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", sanitizeForLog(r.URL.Path)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter; absent is 0.
func queryID(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// readFrame extracts a frame from a request. Accepted bodies are a multipart
// form with a "file" field, an encoded image, or raw pixels sent as
// application/octet-stream with width, height and order query parameters.
func readFrame(w http.ResponseWriter, r *http.Request) (*vision.Frame, error) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
			return nil, fmt.Errorf("%w: failed to parse multipart form", vision.ErrInvalidFrame)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: file is required", vision.ErrInvalidFrame)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read file", vision.ErrInvalidFrame)
		}
		return vision.DecodeFrame(data)

	case "application/octet-stream":
		q := r.URL.Query()
		width, werr := strconv.Atoi(q.Get("width"))
		height, herr := strconv.Atoi(q.Get("height"))
		if werr != nil || herr != nil {
			return nil, fmt.Errorf("%w: width and height are required for raw pixels", vision.ErrInvalidFrame)
		}
		order, err := vision.ParseColorOrder(q.Get("order"))
		if err != nil {
			return nil, err
		}
		pix, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read body", vision.ErrInvalidFrame)
		}
		return vision.NewFrame(width, height, order, pix)

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read body", vision.ErrInvalidFrame)
		}
		return vision.DecodeFrame(data)
	}
}
