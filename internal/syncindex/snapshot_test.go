package syncindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dopectx/core/internal/config"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.SyncIndexConfig{
		SnapshotRootDir: t.TempDir(),
		IncludePatterns: []string{"**/*"},
		ExcludePatterns: []string{"**/.git/**"},
	}
	return New(cfg)
}

func TestSnapshotIsDeterministicRegardlessOfWriteOrder(t *testing.T) {
	dirA := t.TempDir()
	writeFile(t, dirA, "a.txt", "one")
	writeFile(t, dirA, "b.txt", "two")

	dirB := t.TempDir()
	writeFile(t, dirB, "b.txt", "two")
	writeFile(t, dirB, "a.txt", "one")

	c := testCoordinator(t)
	snapA, err := c.Snapshot("ws", dirA)
	require.NoError(t, err)
	snapB, err := c.Snapshot("ws", dirB)
	require.NoError(t, err)

	assert.Equal(t, snapA.RootDigest, snapB.RootDigest)
}

func TestSnapshotExcludesMatchedPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main")
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")

	c := testCoordinator(t)
	snap, err := c.Snapshot("ws", dir)
	require.NoError(t, err)

	require.Len(t, snap.Files, 1)
	assert.Equal(t, "main.go", snap.Files[0].Path)
}

func TestDiffReflectsAddedModifiedRemoved(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "keep.txt", "unchanged")
	writeFile(t, dir, "change.txt", "before")
	writeFile(t, dir, "gone.txt", "bye")

	c := testCoordinator(t)
	before, err := c.Snapshot("ws", dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))
	writeFile(t, dir, "change.txt", "after")
	writeFile(t, dir, "new.txt", "hello")

	after, err := c.Snapshot("ws", dir)
	require.NoError(t, err)

	diff := Diff(before, after)
	assert.Equal(t, []string{"new.txt"}, diff.Added)
	assert.Equal(t, []string{"change.txt"}, diff.Modified)
	assert.Equal(t, []string{"gone.txt"}, diff.Removed)
}

func TestSnapshotThenDiffAgainstSameTreeIsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "stable.txt", "same content")

	c := testCoordinator(t)
	snap1, err := c.Snapshot("ws", dir)
	require.NoError(t, err)
	snap2, err := c.Snapshot("ws", dir)
	require.NoError(t, err)

	assert.True(t, Diff(snap1, snap2).Empty())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "content")

	c := testCoordinator(t)
	snap, err := c.Snapshot("ws", dir)
	require.NoError(t, err)

	hash := WorkspaceHash(dir)
	require.NoError(t, c.Save(hash, snap))

	loaded, err := c.Load(hash)
	require.NoError(t, err)
	assert.Equal(t, snap.RootDigest, loaded.RootDigest)
	assert.Equal(t, snap.Files, loaded.Files)
}

func TestLoadMissingSnapshotReturnsEmpty(t *testing.T) {
	c := testCoordinator(t)
	snap, err := c.Load("never-written")
	require.NoError(t, err)
	assert.Empty(t, snap.Files)
}

func TestWorkspaceHashIsolatesDistinctRoots(t *testing.T) {
	h1 := WorkspaceHash("/home/user/project-a")
	h2 := WorkspaceHash("/home/user/project-b")
	assert.NotEqual(t, h1, h2)
}
