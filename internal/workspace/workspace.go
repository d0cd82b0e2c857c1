// Package workspace manages per-request scratch directories.
//
// Every upload and export runs inside exactly one workspace: a uniquely
// named directory that is created on demand and removed when the request
// is done, whether it succeeded or failed. Callers pair every Acquire
// with a deferred Release.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Manager creates isolated scratch directories under a common root.
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at root. An empty root falls back
// to the OS temp directory.
func NewManager(root string) *Manager {
	if root == "" {
		root = os.TempDir()
	}
	return &Manager{root: root}
}

// Root returns the directory workspaces are created under.
func (m *Manager) Root() string {
	return m.root
}

// Acquire creates a fresh workspace directory with a unique name.
// The caller owns the workspace and must Release it on every exit path.
func (m *Manager) Acquire() (*Workspace, error) {
	path := filepath.Join(m.root, "shpgate-"+uuid.New().String())
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{path: path}, nil
}

// Workspace is a single scratch directory.
type Workspace struct {
	path string
	once sync.Once
}

// Path returns the workspace directory.
func (w *Workspace) Path() string {
	return w.path
}

// Join returns a path inside the workspace.
func (w *Workspace) Join(elem ...string) string {
	return filepath.Join(append([]string{w.path}, elem...)...)
}

// Release removes the workspace tree. It is safe to call more than once
// and tolerates a tree that was already partially or fully removed.
// Removal failures are logged, never returned: cleanup must not mask
// the error that brought the caller here.
func (w *Workspace) Release() {
	w.once.Do(func() {
		if err := os.RemoveAll(w.path); err != nil {
			slog.Warn("workspace cleanup failed", "workspace", w.path, "error", err)
		}
	})
}
