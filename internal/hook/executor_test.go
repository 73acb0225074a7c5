package hook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeHook creates an executable shell script hook in a temporary directory.
func writeHook(t *testing.T, name, script string) *Hook {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tmpDir, err := os.MkdirTemp("", "pokayoke-hook-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	scriptPath := filepath.Join(tmpDir, name+".sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Hook{
		Manifest:   Manifest{Name: name, Version: "1.0.0", Executable: name + ".sh"},
		Path:       tmpDir,
		Executable: scriptPath,
	}
}

func TestExecutor_Execute(t *testing.T) {
	hook := writeHook(t, "andon", `#!/bin/sh
cat <<'EOF'
{"success":true,"data":{"lamp":"green"}}
EOF
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), hook, &Request{Event: EventValidated, Zone: "bin-1"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !response.Success {
		t.Errorf("expected success=true, got false")
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["lamp"] != "green" {
		t.Errorf("expected lamp 'green', got %v", data["lamp"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	hook := writeHook(t, "echo", `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	req := &Request{Event: EventValidated, Mode: "picking", Zone: "bin-2", Count: 10, Passed: true, Timestamp: time.Now()}
	response, err := NewExecutor(5*time.Second).Execute(context.Background(), hook, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data map[string]interface{}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	received, ok := data["received"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'received' to be an object, got %T", data["received"])
	}
	if received["event"] != EventValidated {
		t.Errorf("expected event %q, got %v", EventValidated, received["event"])
	}
	if received["zone"] != "bin-2" {
		t.Errorf("expected zone 'bin-2', got %v", received["zone"])
	}
	if received["count"] != float64(10) {
		t.Errorf("expected count 10, got %v", received["count"])
	}
}

func TestExecutor_Timeout(t *testing.T) {
	hook := writeHook(t, "slow", `#!/bin/sh
sleep 10
echo '{"success":true}'
`)

	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), hook, &Request{Event: EventValidated})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got: %v", err)
	}
}

func TestExecutor_ManifestTimeout(t *testing.T) {
	hook := writeHook(t, "slow", `#!/bin/sh
sleep 10
echo '{"success":true}'
`)
	hook.Manifest.TimeoutMs = 50

	start := time.Now()
	if _, err := NewExecutor(time.Minute).Execute(context.Background(), hook, &Request{}); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("expected the manifest timeout to apply")
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "invalid json", script: "#!/bin/sh\necho 'not valid json'\n"},
		{name: "non-zero exit", script: "#!/bin/sh\necho 'Error: PLC offline' >&2\nexit 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := writeHook(t, "bad", tt.script)
			if _, err := NewExecutor(5*time.Second).Execute(context.Background(), hook, &Request{}); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	hook := writeHook(t, "error", `#!/bin/sh
echo '{"success":false,"error":"lamp unreachable"}'
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), hook, &Request{})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if response.Success {
		t.Errorf("expected success=false, got true")
	}
	if response.Error != "lamp unreachable" {
		t.Errorf("expected error 'lamp unreachable', got %q", response.Error)
	}
}

func TestNewExecutor(t *testing.T) {
	if e := NewExecutor(3 * time.Second); e.timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %s", e.timeout)
	}
	if e := NewExecutor(0); e.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %s", e.timeout)
	}
}
