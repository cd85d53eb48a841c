package syncindex

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dopectx/core/internal/eventbus"
	"github.com/dopectx/core/internal/logging"
)

// Watcher decides *when* to re-snapshot a workspace by watching it with
// fsnotify and debouncing rapid bursts of writes. It is never the
// source of truth for *what* changed — hashing in Snapshot/Diff is
// — the watcher only triggers re-computation.
type Watcher struct {
	coordinator *Coordinator
	bus         *eventbus.Bus
	fsw         *fsnotify.Watcher

	workspaceID string
	rootDir     string
	hash        string

	mu          sync.Mutex
	pendingSince time.Time
	debounce    time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher builds a Watcher for one workspace root. The caller owns
// calling Start/Stop around a lifetime bound to a session.
func NewWatcher(coordinator *Coordinator, bus *eventbus.Bus, workspaceID, rootDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		coordinator: coordinator,
		bus:         bus,
		fsw:         fsw,
		workspaceID: workspaceID,
		rootDir:     filepath.Clean(rootDir),
		hash:        WorkspaceHash(rootDir),
		debounce:    500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds the workspace root to the watch list and begins the
// debounced event loop in a goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.rootDir); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop halts the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	_ = w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	log := logging.Get(logging.CategorySyncIndex)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pendingSince = time.Now()
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Errorw("watch error", "workspace_id", w.workspaceID, "error", err)
		case <-ticker.C:
			w.maybeSnapshot(ctx, log)
		}
	}
}

func (w *Watcher) maybeSnapshot(ctx context.Context, log *zap.SugaredLogger) {
	w.mu.Lock()
	due := !w.pendingSince.IsZero() && time.Since(w.pendingSince) >= w.debounce
	if due {
		w.pendingSince = time.Time{}
	}
	w.mu.Unlock()
	if !due {
		return
	}

	oldSnap, err := w.coordinator.Load(w.hash)
	if err != nil {
		log.Errorw("load previous snapshot failed", "workspace_id", w.workspaceID, "error", err)
		return
	}
	newSnap, err := w.coordinator.Snapshot(w.workspaceID, w.rootDir)
	if err != nil {
		log.Errorw("snapshot failed", "workspace_id", w.workspaceID, "error", err)
		return
	}
	diff := Diff(oldSnap, newSnap)
	if diff.Empty() {
		return
	}
	if err := w.coordinator.Save(w.hash, newSnap); err != nil {
		log.Errorw("save snapshot failed", "workspace_id", w.workspaceID, "error", err)
		return
	}

	_ = w.bus.Publish(ctx, eventbus.Event{
		SourceSystem:  "code-navigation",
		TargetSystems: []string{"task-planning", "session-store"},
		Type:          eventbus.EventCodeChanged,
		WorkspaceID:   w.workspaceID,
		Priority:      eventbus.PriorityLow,
		Payload: map[string]any{
			"added":    diff.Added,
			"modified": diff.Modified,
			"removed":  diff.Removed,
		},
	})
}
