package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"ticketless/internal/logging"
	"ticketless/internal/services"
)

const outputDirName = "out"

var labelCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Manager creates workspaces under a single root directory.
type Manager struct {
	root    string
	minFree uint64
	logger  *slog.Logger
	statfs  func(string) (uint64, uint64, error)
	active  atomic.Int64
}

// NewManager returns a manager rooted at root. When minFree is non-zero,
// Acquire refuses to create a workspace while the filesystem holding root has
// less than minFree bytes available.
func NewManager(root string, minFree uint64, logger *slog.Logger) *Manager {
	return &Manager{
		root:    root,
		minFree: minFree,
		logger:  logging.NewComponentLogger(logger, "workspace"),
		statfs:  statfs,
	}
}

// Root returns the directory workspaces are created under.
func (m *Manager) Root() string { return m.root }

// Active reports how many workspaces are currently held.
func (m *Manager) Active() int64 { return m.active.Load() }

// Workspace is one job's scratch directory.
type Workspace struct {
	ID  string
	Dir string

	manager  *Manager
	once     sync.Once
	released atomic.Bool
	err      error
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// OutputDir is where pipeline artifacts are written.
func (w *Workspace) OutputDir() string {
	return filepath.Join(w.Dir, outputDirName)
}

// Released reports whether Release has run.
func (w *Workspace) Released() bool {
	return w.released.Load()
}

// Acquire creates a fresh workspace. label prefixes the directory name to
// make it recognizable in listings; a random suffix keeps it unique.
func (m *Manager) Acquire(ctx context.Context, label string) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "ensure root", m.root, err)
	}
	if err := m.checkFreeSpace(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	name := id
	if cleaned := strings.Trim(labelCleaner.ReplaceAllString(label, "-"), "-"); cleaned != "" {
		name = cleaned + "-" + id
	}
	dir := filepath.Join(m.root, name)
	// Mkdir, not MkdirAll: an existing directory must fail rather than be shared.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, services.Wrap(services.ErrProcessing, "workspace", "create", dir, err)
	}
	if err := os.Mkdir(filepath.Join(dir, outputDirName), 0o700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, services.Wrap(services.ErrProcessing, "workspace", "create output", dir, err)
	}

	m.active.Add(1)
	m.logger.Debug("workspace acquired", logging.String("path", dir))
	return &Workspace{ID: id, Dir: dir, manager: m}, nil
}

// Release removes the workspace and everything in it. It is safe to call
// more than once; later calls return the first result.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.Dir)
		w.released.Store(true)
		w.manager.active.Add(-1)
		if w.err != nil {
			w.manager.logger.Warn("failed to remove workspace",
				logging.String("path", w.Dir),
				logging.Error(w.err),
				logging.String(logging.FieldEventType, "workspace_release_failed"),
				logging.String(logging.FieldErrorHint, "check work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed until stale cleanup"),
			)
			return
		}
		w.manager.logger.Debug("workspace released", logging.String("path", w.Dir))
	})
	return w.err
}

// Run acquires a workspace, calls fn with it, and releases it on every exit
// path. A panic in fn propagates after the directory has been removed. A
// release failure is joined onto fn's error.
func (m *Manager) Run(ctx context.Context, label string, fn func(context.Context, *Workspace) error) (err error) {
	ws, err := m.Acquire(ctx, label)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := ws.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("release workspace: %w", releaseErr))
		}
	}()
	return fn(ctx, ws)
}

func (m *Manager) checkFreeSpace() error {
	if m.minFree == 0 || m.statfs == nil {
		return nil
	}
	_, free, err := m.statfs(m.root)
	if err != nil {
		m.logger.Warn("free space check failed",
			logging.String("path", m.root),
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_statfs_failed"),
			logging.String(logging.FieldImpact, "workspace created without a space check"),
		)
		return nil
	}
	if free < m.minFree {
		return services.Wrap(services.ErrProcessing, "workspace", "free space",
			fmt.Sprintf("%d MiB available under %s, need %d MiB", free>>20, m.root, m.minFree>>20), nil)
	}
	return nil
}
