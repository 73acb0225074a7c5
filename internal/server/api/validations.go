package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/pokayoke/internal/store"
)

// defaultHistory is the number of validations returned when no limit is given.
const defaultHistory = 50

// ValidationHandler handles HTTP requests for the validation history.
type ValidationHandler struct {
	store *store.Store
}

// NewValidationHandler creates a new ValidationHandler with the given store.
func NewValidationHandler(s *store.Store) *ValidationHandler {
	return &ValidationHandler{store: s}
}

// ServeHTTP implements the http.Handler interface.
// Expected paths: /api/validations, /api/validations/stats and
// /api/validations/{id}/evidence
func (h *ValidationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/validations")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")

	switch {
	case path == "":
		h.recent(w, r)
	case path == "stats":
		h.stats(w, r)
	case len(parts) == 2 && parts[1] == "evidence":
		h.evidence(w, r, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Response types

type validationResponse struct {
	ID        int64  `json:"id"`
	ZoneID    string `json:"zone_id,omitempty"`
	Mode      string `json:"mode"`
	Step      string `json:"step,omitempty"`
	Count     int    `json:"count"`
	Passed    bool   `json:"passed"`
	CreatedAt string `json:"created_at"`
}

type listValidationsResponse struct {
	Validations []validationResponse `json:"validations"`
}

type statsResponse struct {
	Since  string `json:"since"`
	Passed int    `json:"passed"`
}

func toValidationsResponse(vs []*store.Validation) listValidationsResponse {
	response := listValidationsResponse{
		Validations: make([]validationResponse, 0, len(vs)),
	}
	for _, v := range vs {
		response.Validations = append(response.Validations, validationResponse{
			ID:        v.ID,
			ZoneID:    v.ZoneID,
			Mode:      v.Mode,
			Step:      v.Step,
			Count:     v.Count,
			Passed:    v.Passed,
			CreatedAt: formatTime(v.CreatedAt),
		})
	}
	return response
}

// recent handles GET /api/validations
func (h *ValidationHandler) recent(w http.ResponseWriter, r *http.Request) {
	vs, err := h.store.Validations().Recent(queryInt(r, "limit", defaultHistory))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list validations")
		return
	}
	writeJSON(w, http.StatusOK, toValidationsResponse(vs))
}

// listByZone handles GET /api/zones/{id}/validations
func (h *ValidationHandler) listByZone(w http.ResponseWriter, r *http.Request, zoneID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Verify zone exists
	if _, err := h.store.Zones().GetByID(zoneID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Zone not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to verify zone")
		return
	}

	vs, err := h.store.Validations().ListByZone(zoneID, queryInt(r, "limit", defaultHistory))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list validations")
		return
	}
	writeJSON(w, http.StatusOK, toValidationsResponse(vs))
}

// stats handles GET /api/validations/stats?since=RFC3339 and counts passed
// validations, since the start of today by default.
func (h *ValidationHandler) stats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 time")
			return
		}
		since = t
	}

	n, err := h.store.Validations().CountPassed(since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count validations")
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Since: formatTime(since), Passed: n})
}

// evidence handles GET /api/validations/{id}/evidence and returns the JPEG
// snapshot taken when the validation was recorded.
func (h *ValidationHandler) evidence(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid validation id")
		return
	}
	ev, err := h.store.Evidence().GetByValidation(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Evidence not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get evidence")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(ev.Image)))
	w.Write(ev.Image)
}
