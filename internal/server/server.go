// Package server provides the HTTP server of the poka-yoke station.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/pokayoke/internal/hook"
	"github.com/ayusman/pokayoke/internal/logging"
	"github.com/ayusman/pokayoke/internal/server/api"
	"github.com/ayusman/pokayoke/internal/store"
)

// Station is the running station served over HTTP.
type Station interface {
	api.Station
	ReloadZones() error
	Snapshot() []byte
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Station   Station
	Hooks     *hook.Manager
	Hub       *ResultsHub
	Logger    *zap.SugaredLogger
}

// Server represents the HTTP server of the station.
type Server struct {
	config Config
	mux    *http.ServeMux
	logger *zap.SugaredLogger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		logger: logging.OrNop(config.Logger),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		zoneHandler := api.NewZoneHandler(s.config.Store, s.reloadZones)
		s.mux.Handle("/api/zones", zoneHandler)
		s.mux.Handle("/api/zones/", zoneHandler)

		validationHandler := api.NewValidationHandler(s.config.Store)
		s.mux.Handle("/api/validations", validationHandler)
		s.mux.Handle("/api/validations/", validationHandler)
	}

	if s.config.Station != nil {
		stationHandler := api.NewStationHandler(s.config.Station, s.config.Hooks)
		s.mux.Handle("/api/station", stationHandler)
		s.mux.Handle("/api/station/", stationHandler)

		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Station))
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/results", s.config.Hub)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// reloadZones pushes zone edits into the running station.
func (s *Server) reloadZones() {
	if s.config.Station == nil {
		return
	}
	if err := s.config.Station.ReloadZones(); err != nil {
		s.logger.Warnw("failed to reload zones", "error", err)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.Station != nil {
		st := s.config.Station.Status()
		response["mode"] = st.Mode
		response["running"] = st.Running
		response["enabled"] = st.Enabled
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Infow("listening", "addr", addr)
	return http.ListenAndServe(addr, s)
}
