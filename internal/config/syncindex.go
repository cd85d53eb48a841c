package config

// SyncIndexConfig configures the Sync/Index Coordinator (§4.6).
type SyncIndexConfig struct {
	// SnapshotRootDir is the base directory under which
	// {workspace-hash}/snapshot.json files are written atomically.
	SnapshotRootDir string `yaml:"snapshot_root_dir" json:"snapshot_root_dir"`

	IncludePatterns []string `yaml:"include_patterns" json:"include_patterns"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
}

// DefaultSyncIndexConfig returns default sync/index settings.
func DefaultSyncIndexConfig() SyncIndexConfig {
	return SyncIndexConfig{
		SnapshotRootDir: "~/.dope-context/snapshots",
		IncludePatterns: []string{"**/*"},
		ExcludePatterns: []string{
			"**/.git/**", "**/node_modules/**", "**/.dope-context/**",
			"**/vendor/**", "**/*.log",
		},
	}
}
