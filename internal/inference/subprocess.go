package inference

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/pokayoke/internal/logging"
)

// DefaultIdleTimeout stops the service after this long without requests.
const DefaultIdleTimeout = 30 * time.Second

// SubprocessConfig configures the Python inference service.
type SubprocessConfig struct {
	// Script is the service entry point; empty searches the usual locations.
	Script      string
	IdleTimeout time.Duration
	Logger      *zap.SugaredLogger
}

// SubprocessEngine implements Engine with a long-lived Python process that
// owns the model runtime. Each request is a length-prefixed JSON header
// followed by a length-prefixed JPEG; each response is one JSON line.
type SubprocessEngine struct {
	config    SubprocessConfig
	script    string
	logger    *zap.SugaredLogger
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewSubprocessEngine locates the service script. The process itself is
// started lazily on the first request.
func NewSubprocessEngine(config SubprocessConfig) (*SubprocessEngine, error) {
	script := findScript(config.Script)
	if script == "" {
		return nil, fmt.Errorf("inference service script not found")
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	return &SubprocessEngine{
		config: config,
		script: script,
		logger: logging.OrNop(config.Logger),
	}, nil
}

type request struct {
	Model  string `json:"model"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type response struct {
	Tensors map[string][]float32 `json:"tensors"`
	Error   string               `json:"error"`
}

// exchange is the outcome of one request/response round trip.
type exchange struct {
	line string
	err  error
}

// Infer sends input to the service and waits for the model outputs. An I/O
// or protocol failure, or ctx ending mid-request, kills the process; the
// next call starts a fresh one.
func (e *SubprocessEngine) Infer(ctx context.Context, model string, input gocv.Mat) (Tensors, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, input)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	defer buf.Close()

	header, err := json.Marshal(request{Model: model, Width: input.Cols(), Height: input.Rows()})
	if err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	result := make(chan exchange, 1)
	go roundTrip(e.stdin, e.stdout, header, buf.GetBytes(), result)

	var ex exchange
	select {
	case <-ctx.Done():
		e.abort(result)
		return nil, ctx.Err()
	case ex = <-result:
	}
	if ex.err != nil {
		e.abort(nil)
		return nil, ex.err
	}

	var resp response
	if err := json.Unmarshal([]byte(ex.line), &resp); err != nil {
		e.abort(nil)
		return nil, fmt.Errorf("parse response: %w", err)
	}

	e.resetIdleTimer()
	if resp.Error != "" {
		return nil, fmt.Errorf("model %s: %s", model, resp.Error)
	}
	return Tensors(resp.Tensors), nil
}

func roundTrip(w io.Writer, r *bufio.Reader, header, image []byte, result chan<- exchange) {
	if err := writeFrame(w, header); err != nil {
		result <- exchange{err: fmt.Errorf("write header: %w", err)}
		return
	}
	if err := writeFrame(w, image); err != nil {
		result <- exchange{err: fmt.Errorf("write image: %w", err)}
		return
	}
	line, err := r.ReadString('\n')
	if err != nil {
		result <- exchange{err: fmt.Errorf("read response: %w", err)}
		return
	}
	result <- exchange{line: line}
}

// abort kills the service and reaps it. A non-nil pending channel is drained
// first so the round trip goroutine is done with the pipes.
func (e *SubprocessEngine) abort(pending <-chan exchange) {
	if !e.started {
		return
	}
	if err := e.cmd.Process.Kill(); err != nil {
		e.logger.Debugw("failed to kill inference service", "error", err)
	}
	if pending != nil {
		<-pending
	}
	if err := e.shutdown(); err != nil {
		e.logger.Warnw("inference service aborted", "error", err)
	}
}

// Close shuts down the Python process.
func (e *SubprocessEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdown()
}

func writeFrame(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))
	if _, err := w.Write(length); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func (e *SubprocessEngine) ensureStarted() error {
	if e.started {
		return nil
	}

	python := findVenvPython()
	if python == "" {
		python = "python3"
	}

	e.cmd = exec.Command(python, e.script)

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	e.cmd.Stderr = os.Stderr

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start inference service: %w", err)
	}

	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.started = true
	e.logger.Infow("inference service started", "script", e.script, "pid", e.cmd.Process.Pid)
	return nil
}

func (e *SubprocessEngine) shutdown() error {
	if !e.started {
		return nil
	}

	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
	if e.stdin != nil {
		e.stdin.Close()
	}

	err := e.cmd.Wait()
	e.started = false
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil
	e.logger.Infow("inference service stopped")
	return err
}

func (e *SubprocessEngine) resetIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(e.config.IdleTimeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if err := e.shutdown(); err != nil {
			e.logger.Warnw("inference service exited with error", "error", err)
		}
	})
}

func findScript(configured string) string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	var candidates []string
	if configured != "" {
		candidates = append(candidates, configured)
	}
	candidates = append(candidates,
		"scripts/inference_service.py",
		"../scripts/inference_service.py",
		filepath.Join(execDir, "scripts/inference_service.py"),
		filepath.Join(os.Getenv("HOME"), ".pokayoke/scripts/inference_service.py"),
	)
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	return firstExisting([]string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".pokayoke/venv/bin/python"),
	})
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
