// Package main provides a desktop notification hook.
// It shows a notification for rejected steps and finished sequences.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Request represents the input from the hook executor.
type Request struct {
	Event     string    `json:"event"`
	Mode      string    `json:"mode"`
	Zone      string    `json:"zone"`
	Step      string    `json:"step"`
	Count     int       `json:"count"`
	Passed    bool      `json:"passed"`
	Timestamp time.Time `json:"timestamp"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	title, body := message(req)
	if err := notify(title, body); err != nil {
		writeErrorResponse(fmt.Sprintf("notification failed: %v", err))
		return
	}

	data, _ := json.Marshal(map[string]string{"title": title, "body": body})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// message builds the notification text for an event.
func message(req Request) (string, string) {
	subject := req.Zone
	if req.Step != "" {
		subject = req.Step
	}
	switch req.Event {
	case "rejected":
		return "Poka-yoke: check part", fmt.Sprintf("%s is not correct", subject)
	case "sequence_done":
		return "Poka-yoke: assembly done", "all steps validated"
	default:
		if req.Mode == "counting" {
			return "Poka-yoke: count ok", fmt.Sprintf("%d parts", req.Count)
		}
		return "Poka-yoke: ok", fmt.Sprintf("%s validated", subject)
	}
}

// notify shows a desktop notification on macOS or Linux.
func notify(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title %q`, escape(body), escape(title))
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// escape strips characters AppleScript string literals cannot hold.
func escape(s string) string {
	return strings.NewReplacer(`"`, "'", `\`, "/").Replace(s)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
