// Package hook runs external executables when the station reaches a decision,
// for example to light an andon lamp or signal a PLC.
package hook

import (
	"encoding/json"
	"slices"
	"time"
)

// Event names sent to hooks.
const (
	// EventValidated fires when the gate accepts a zone, step or count.
	EventValidated = "validated"
	// EventRejected fires when an assembly step shows its KO state.
	EventRejected = "rejected"
	// EventSequenceDone fires when the last zone or assembly step validates.
	EventSequenceDone = "sequence_done"
)

// ManifestFile is the manifest name looked up in each hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook and the events it subscribes to.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
	// TimeoutMs overrides the executor timeout when positive.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// Request is written to the hook's stdin as JSON.
type Request struct {
	Event     string    `json:"event"`
	Mode      string    `json:"mode"`
	Zone      string    `json:"zone,omitempty"`
	Step      string    `json:"step,omitempty"`
	Count     int       `json:"count"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribes to event. A hook without
// events receives all of them.
func (h *Hook) Handles(event string) bool {
	return len(h.Manifest.Events) == 0 || slices.Contains(h.Manifest.Events, event)
}
