package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/pokayoke/internal/logging"
)

// ErrHookNotFound is returned when a requested hook cannot be found.
var ErrHookNotFound = errors.New("hook not found")

// Manager discovers hooks and dispatches events to them.
type Manager struct {
	hookDir  string
	hooks    map[string]*Hook
	executor *Executor
	logger   *zap.SugaredLogger
	mu       sync.RWMutex
}

// NewManager creates a Manager for hookDir.
func NewManager(hookDir string, executor *Executor, logger *zap.SugaredLogger) *Manager {
	if executor == nil {
		executor = NewExecutor(DefaultTimeout)
	}
	return &Manager{
		hookDir:  hookDir,
		hooks:    make(map[string]*Hook),
		executor: executor,
		logger:   logging.OrNop(logger),
	}
}

// Discover scans the hook directory. Each subdirectory holding a hook.json
// manifest is a hook; unreadable manifests are skipped.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = make(map[string]*Hook)

	info, err := os.Stat(m.hookDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.hookDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		hookPath := filepath.Join(m.hookDir, entry.Name())
		data, err := os.ReadFile(filepath.Join(hookPath, ManifestFile))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			m.logger.Warnw("invalid hook manifest", "dir", hookPath, "error", err)
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			m.logger.Warnw("hook manifest needs a name and executable", "dir", hookPath)
			continue
		}

		m.hooks[manifest.Name] = &Hook{
			Manifest:   manifest,
			Path:       hookPath,
			Executable: filepath.Join(hookPath, manifest.Executable),
		}
	}

	m.logger.Infow("hooks discovered", "dir", m.hookDir, "count", len(m.hooks))
	return nil
}

// Get returns a hook by name.
// Returns ErrHookNotFound if the hook does not exist.
func (m *Manager) Get(name string) (*Hook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hook, ok := m.hooks[name]
	if !ok {
		return nil, ErrHookNotFound
	}

	return hook, nil
}

// List returns all discovered hooks sorted by name.
func (m *Manager) List() []*Hook {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hooks := make([]*Hook, 0, len(m.hooks))
	for _, hook := range m.hooks {
		hooks = append(hooks, hook)
	}
	sort.Slice(hooks, func(i, j int) bool { return hooks[i].Manifest.Name < hooks[j].Manifest.Name })

	return hooks
}

// Dispatch runs every hook subscribed to req.Event, in name order, and
// returns the joined errors of the hooks that failed.
func (m *Manager) Dispatch(ctx context.Context, req *Request) error {
	var errs []error
	for _, hook := range m.List() {
		if !hook.Handles(req.Event) {
			continue
		}
		resp, err := m.executor.Execute(ctx, hook, req)
		if err == nil && !resp.Success {
			err = fmt.Errorf("hook %s: %s", hook.Manifest.Name, resp.Error)
		}
		if err != nil {
			m.logger.Warnw("hook failed", "hook", hook.Manifest.Name, "event", req.Event, "error", err)
			errs = append(errs, err)
			continue
		}
		m.logger.Debugw("hook ran", "hook", hook.Manifest.Name, "event", req.Event)
	}
	return errors.Join(errs...)
}

// HookDir returns the hook directory path.
func (m *Manager) HookDir() string {
	return m.hookDir
}
