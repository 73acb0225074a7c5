// Package main provides an audible andon hook.
// It plays a pass or fail sound so the operator does not need to watch the screen.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the hook executor.
type Request struct {
	Event  string `json:"event"`
	Mode   string `json:"mode"`
	Zone   string `json:"zone"`
	Step   string `json:"step"`
	Count  int    `json:"count"`
	Passed bool   `json:"passed"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// sound names a system sound per platform.
type sound struct {
	darwin string
	linux  string
}

// eventSounds maps hook events to the sound played.
var eventSounds = map[string]sound{
	"validated":     {darwin: "/System/Library/Sounds/Glass.aiff", linux: "/usr/share/sounds/freedesktop/stereo/complete.oga"},
	"rejected":      {darwin: "/System/Library/Sounds/Basso.aiff", linux: "/usr/share/sounds/freedesktop/stereo/dialog-error.oga"},
	"sequence_done": {darwin: "/System/Library/Sounds/Hero.aiff", linux: "/usr/share/sounds/freedesktop/stereo/bell.oga"},
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	s, ok := eventSounds[req.Event]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	if err := play(s); err != nil {
		writeErrorResponse(fmt.Sprintf("event %s failed: %v", req.Event, err))
		return
	}

	writeSuccessResponse()
}

// play runs the platform audio player for s.
func play(s sound) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("afplay", s.darwin)
	case "linux":
		cmd = exec.Command("paplay", s.linux)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
