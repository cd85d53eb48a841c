package syncindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/dopectx/core/internal/config"
	"github.com/dopectx/core/internal/logging"
)

// Coordinator computes and persists workspace snapshots under a
// workspace-hash-isolated directory tree.
type Coordinator struct {
	cfg config.SyncIndexConfig
}

// New builds a Coordinator bound to a sync/index configuration.
func New(cfg config.SyncIndexConfig) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// Snapshot walks rootDir, hashing every file that matches the include
// patterns and none of the exclude patterns, and returns a deterministic
// digest of the result.
func (c *Coordinator) Snapshot(workspaceID, rootDir string) (Snapshot, error) {
	includes, err := compileGlobs(c.cfg.IncludePatterns)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile include patterns: %w", err)
	}
	excludes, err := compileGlobs(c.cfg.ExcludePatterns)
	if err != nil {
		return Snapshot{}, fmt.Errorf("compile exclude patterns: %w", err)
	}

	var files []FileDigest
	err = filepath.Walk(rootDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)
		if !matchesAny(includes, rel) || matchesAny(excludes, rel) {
			return nil
		}
		hash, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		files = append(files, FileDigest{Path: rel, Hash: hash})
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("walk workspace: %w", err)
	}

	// Sorting by path makes the root digest independent of filesystem
	// walk order.
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	snap := Snapshot{WorkspaceID: workspaceID, Files: files}
	snap.RootDigest = rootDigest(files)
	return snap, nil
}

func rootDigest(files []FileDigest) string {
	h := sha256.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%s\n", f.Path, f.Hash)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

func matchesAny(globs []glob.Glob, path string) bool {
	// Each path is also tried with a leading "/" so that patterns
	// starting with "**/" match files at the workspace root too.
	rooted := "/" + path
	for _, g := range globs {
		if g.Match(path) || g.Match(rooted) {
			return true
		}
	}
	return false
}

// snapshotDir returns the workspace-hash-isolated directory a
// workspace's snapshot lives under.
func (c *Coordinator) snapshotDir(workspaceHash string) (string, error) {
	root, err := config.ExpandHome(c.cfg.SnapshotRootDir)
	if err != nil {
		return "", fmt.Errorf("expand snapshot root: %w", err)
	}
	return filepath.Join(root, workspaceHash), nil
}

func (c *Coordinator) snapshotPath(workspaceHash string) (string, error) {
	dir, err := c.snapshotDir(workspaceHash)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshot.json"), nil
}

// Load reads the previously persisted snapshot for a workspace, if any.
// A missing snapshot is not an error: it returns an empty Snapshot.
func (c *Coordinator) Load(workspaceHash string) (Snapshot, error) {
	path, err := c.snapshotPath(workspaceHash)
	if err != nil {
		return Snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Save persists snap atomically: write to a sibling temp file, fsync,
// then rename over the final path, so a reader never observes a
// partial write.
func (c *Coordinator) Save(workspaceHash string, snap Snapshot) error {
	dir, err := c.snapshotDir(workspaceHash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	finalPath := filepath.Join(dir, "snapshot.json")
	tmp, err := os.CreateTemp(dir, "snapshot-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}

	logging.Get(logging.CategorySyncIndex).Infow("snapshot written",
		"workspace_hash", workspaceHash, "files", len(snap.Files), "root_digest", snap.RootDigest)
	return nil
}

// Diff computes the set of added/modified/removed paths between an old
// and new snapshot of the same workspace.
func Diff(oldSnap, newSnap Snapshot) Diff {
	oldByPath := make(map[string]string, len(oldSnap.Files))
	for _, f := range oldSnap.Files {
		oldByPath[f.Path] = f.Hash
	}
	newByPath := make(map[string]string, len(newSnap.Files))
	for _, f := range newSnap.Files {
		newByPath[f.Path] = f.Hash
	}

	var d Diff
	for path, newHash := range newByPath {
		oldHash, existed := oldByPath[path]
		switch {
		case !existed:
			d.Added = append(d.Added, path)
		case oldHash != newHash:
			d.Modified = append(d.Modified, path)
		}
	}
	for path := range oldByPath {
		if _, stillPresent := newByPath[path]; !stillPresent {
			d.Removed = append(d.Removed, path)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Removed)
	return d
}
