package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/pokayoke/internal/store"
	"github.com/ayusman/pokayoke/internal/zone"
)

// maxZoneBody bounds zone request bodies.
const maxZoneBody = 1 << 20

// ZoneHandler handles HTTP requests for zone resources.
type ZoneHandler struct {
	store       *store.Store
	validations *ValidationHandler
	onChange    func()
}

// NewZoneHandler creates a new ZoneHandler. onChange, when set, runs after
// every modification so the station can reload its zones.
func NewZoneHandler(s *store.Store, onChange func()) *ZoneHandler {
	if onChange == nil {
		onChange = func() {}
	}
	return &ZoneHandler{store: s, validations: NewValidationHandler(s), onChange: onChange}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
// Expected paths: /api/zones, /api/zones/export, /api/zones/import,
// /api/zones/{id}, /api/zones/{id}/points, /api/zones/{id}/move and
// /api/zones/{id}/validations
func (h *ZoneHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/zones")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch path {
	case "export":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.export(w, r)
		return
	case "import":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.importZones(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	if len(parts) == 2 {
		switch parts[1] {
		case "validations":
			h.validations.listByZone(w, r, id)
		case "points":
			h.requirePost(w, r, h.addPoint, id)
		case "move":
			h.requirePost(w, r, h.move, id)
		default:
			writeError(w, http.StatusNotFound, "Not found")
		}
		return
	}
	if len(parts) > 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ZoneHandler) requirePost(w http.ResponseWriter, r *http.Request, fn func(http.ResponseWriter, *http.Request, string), id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn(w, r, id)
}

// Request and response types

type pointRequest struct {
	// Target is "rect" or "depth".
	Target string `json:"target"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

type moveRequest struct {
	Offset int `json:"offset"`
}

type zoneResponse struct {
	ID        string     `json:"id"`
	Position  int        `json:"position"`
	Complete  bool       `json:"complete"`
	Zone      *zone.Zone `json:"zone"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
}

type listZonesResponse struct {
	Zones []zoneResponse `json:"zones"`
}

// toZoneResponse converts a store.Zone to a zoneResponse.
func toZoneResponse(z *store.Zone) zoneResponse {
	return zoneResponse{
		ID:        z.ID,
		Position:  z.Position,
		Complete:  z.Zone.Complete(),
		Zone:      z.Zone,
		CreatedAt: formatTime(z.CreatedAt),
		UpdatedAt: formatTime(z.UpdatedAt),
	}
}

// writeStoreError maps repository errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Zone not found")
	case errors.Is(err, zone.ErrMissingName):
		writeError(w, http.StatusBadRequest, "Name is required")
	case errors.Is(err, store.ErrDuplicateName):
		writeError(w, http.StatusConflict, "Zone name already exists")
	case errors.Is(err, store.ErrZoneLimit):
		writeError(w, http.StatusConflict, err.Error())
	case action == "decode":
		writeError(w, http.StatusBadRequest, "Invalid JSON")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to "+action+" zone")
	}
}

// decodeZone reads a zone record in the persisted format.
func decodeZone(r *http.Request) (*zone.Zone, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxZoneBody))
	if err != nil {
		return nil, err
	}
	return zone.FromJSON(body)
}

// list handles GET /api/zones and returns all zones in station order.
func (h *ZoneHandler) list(w http.ResponseWriter, r *http.Request) {
	zones, err := h.store.Zones().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list zones")
		return
	}

	response := listZonesResponse{
		Zones: make([]zoneResponse, 0, len(zones)),
	}
	for _, z := range zones {
		response.Zones = append(response.Zones, toZoneResponse(z))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/zones/{id} and returns a single zone.
func (h *ZoneHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	z, err := h.store.Zones().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "get")
		return
	}
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// create handles POST /api/zones and appends a zone to the station.
func (h *ZoneHandler) create(w http.ResponseWriter, r *http.Request) {
	parsed, err := decodeZone(r)
	if err != nil {
		writeStoreError(w, err, "decode")
		return
	}

	z := &store.Zone{ID: uuid.New().String(), Zone: parsed}
	if err := h.store.Zones().Create(z); err != nil {
		writeStoreError(w, err, "create")
		return
	}

	h.onChange()
	writeJSON(w, http.StatusCreated, toZoneResponse(z))
}

// update handles PUT /api/zones/{id} and replaces the zone definition.
func (h *ZoneHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	z, err := h.store.Zones().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "get")
		return
	}

	parsed, err := decodeZone(r)
	if err != nil {
		writeStoreError(w, err, "decode")
		return
	}
	z.Zone = parsed

	if err := h.store.Zones().Update(z); err != nil {
		writeStoreError(w, err, "update")
		return
	}

	h.onChange()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// delete handles DELETE /api/zones/{id} and removes a zone.
func (h *ZoneHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Zones().Delete(id); err != nil {
		writeStoreError(w, err, "delete")
		return
	}

	h.onChange()
	w.WriteHeader(http.StatusNoContent)
}

// addPoint handles POST /api/zones/{id}/points and places the next rectangle
// corner or depth calibration point, the way an operator clicks on the image.
func (h *ZoneHandler) addPoint(w http.ResponseWriter, r *http.Request, id string) {
	z, err := h.store.Zones().GetByID(id)
	if err != nil {
		writeStoreError(w, err, "get")
		return
	}

	var req pointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.X < 0 || req.Y < 0 {
		writeError(w, http.StatusBadRequest, "Point must be inside the image")
		return
	}

	p := zone.Point{X: req.X, Y: req.Y}
	switch req.Target {
	case "rect":
		z.Zone.AddRectPoint(p)
	case "depth":
		z.Zone.AddDepthPoint(p)
	default:
		writeError(w, http.StatusBadRequest, "Target must be rect or depth")
		return
	}

	if err := h.store.Zones().Update(z); err != nil {
		writeStoreError(w, err, "update")
		return
	}

	h.onChange()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// move handles POST /api/zones/{id}/move and reorders the zone.
func (h *ZoneHandler) move(w http.ResponseWriter, r *http.Request, id string) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := h.store.Zones().Move(id, req.Offset); err != nil {
		writeStoreError(w, err, "move")
		return
	}

	h.onChange()
	h.list(w, r)
}

// export handles GET /api/zones/export and returns the zone list file.
func (h *ZoneHandler) export(w http.ResponseWriter, r *http.Request) {
	data, err := h.store.Zones().Export()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export zones")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="zones.json"`)
	w.Write(data)
}

// importZones handles POST /api/zones/import and replaces every zone.
func (h *ZoneHandler) importZones(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxZoneBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	zones, err := h.store.Zones().Import(body)
	if err != nil {
		if errors.Is(err, store.ErrZoneLimit) || errors.Is(err, store.ErrDuplicateName) {
			writeStoreError(w, err, "import")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid zone list")
		return
	}

	h.onChange()
	response := listZonesResponse{Zones: make([]zoneResponse, 0, len(zones))}
	for _, z := range zones {
		response.Zones = append(response.Zones, toZoneResponse(z))
	}
	writeJSON(w, http.StatusOK, response)
}
