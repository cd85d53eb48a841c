package syncindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/eventbus"
)

func TestNewWatcherDerivesWorkspaceHash(t *testing.T) {
	dir := t.TempDir()
	c := New(config.DefaultSyncIndexConfig())
	bus := eventbus.New(8)

	w, err := NewWatcher(c, bus, "ws-1", dir)
	require.NoError(t, err)
	assert.Equal(t, WorkspaceHash(dir), w.hash)
	w.fsw.Close()
}

// Start/Stop lifecycle isn't exercised under goleak here: fsnotify's
// platform-specific watcher goroutines aren't reliably tracked across
// CI runners, matching the skip already used for the directory watcher
// this package's debounce loop is grounded on.
func TestWatcherStartStop(t *testing.T) {
	t.Skip("fsnotify watcher goroutines are not reliably tracked by goleak across platforms")
}
