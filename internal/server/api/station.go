package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/pokayoke/internal/app"
	"github.com/ayusman/pokayoke/internal/hook"
	"github.com/ayusman/pokayoke/internal/store"
)

// Station is the running station controlled through the API.
type Station interface {
	Status() app.Status
	SetEnabled(enabled bool) error
	SelectZone(id string) error
	ResetSequence()
}

// StationHandler handles HTTP requests that control the station.
type StationHandler struct {
	station Station
	hooks   *hook.Manager
}

// NewStationHandler creates a new StationHandler. hooks may be nil.
func NewStationHandler(station Station, hooks *hook.Manager) *StationHandler {
	return &StationHandler{station: station, hooks: hooks}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
// Expected paths: /api/station, /api/station/reset and /api/station/hooks
func (h *StationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/station")
	path = strings.Trim(path, "/")

	switch path {
	case "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h.station.Status())
		case http.MethodPut:
			h.update(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "reset":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.station.ResetSequence()
		writeJSON(w, http.StatusOK, h.station.Status())
	case "hooks":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.listHooks(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// Request and response types

type updateStationRequest struct {
	Enabled *bool   `json:"enabled"`
	ZoneID  *string `json:"zone_id"`
}

type hookResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Events      []string `json:"events"`
}

type listHooksResponse struct {
	Hooks []hookResponse `json:"hooks"`
}

// update handles PUT /api/station and changes the gate state or active zone.
func (h *StationHandler) update(w http.ResponseWriter, r *http.Request) {
	var req updateStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.ZoneID != nil {
		if err := h.station.SelectZone(*req.ZoneID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Zone not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to select zone")
			return
		}
	}
	if req.Enabled != nil {
		if err := h.station.SetEnabled(*req.Enabled); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save validation state")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.station.Status())
}

// listHooks handles GET /api/station/hooks and returns the discovered hooks.
func (h *StationHandler) listHooks(w http.ResponseWriter, r *http.Request) {
	response := listHooksResponse{Hooks: []hookResponse{}}
	if h.hooks != nil {
		for _, hk := range h.hooks.List() {
			events := hk.Manifest.Events
			if events == nil {
				events = []string{}
			}
			response.Hooks = append(response.Hooks, hookResponse{
				Name:        hk.Manifest.Name,
				Version:     hk.Manifest.Version,
				Description: hk.Manifest.Description,
				Events:      events,
			})
		}
	}
	writeJSON(w, http.StatusOK, response)
}
