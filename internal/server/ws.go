package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/pokayoke/internal/logging"
)

// writeTimeout bounds a single broadcast write to a client.
const writeTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// ResultsHub broadcasts frame reports to WebSocket clients.
type ResultsHub struct {
	logger  *zap.SugaredLogger
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewResultsHub creates an empty hub.
func NewResultsHub(logger *zap.SugaredLogger) *ResultsHub {
	return &ResultsHub{
		logger:  logging.OrNop(logger),
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *ResultsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *ResultsHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends v as JSON to every connected client.
func (h *ResultsHub) Publish(v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Warnw("failed to encode report", "error", err)
		return
	}

	// gorilla connections allow one concurrent writer.
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debugw("dropping websocket client", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}
