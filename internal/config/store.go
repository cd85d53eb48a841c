package config

// StoreConfig configures the Session & Context Store (§4.3).
type StoreConfig struct {
	// RootDir is the base directory under which per-workspace SQLite
	// databases live, one file per workspace named after its id, e.g.
	// ~/.dope-context/workspaces/<workspace-id>.db.
	RootDir string `yaml:"root_dir" json:"root_dir"`

	// BusyTimeoutMS is the SQLite busy_timeout pragma in milliseconds.
	BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`

	// EventBufferSize is loaded and defaulted but not read: the store
	// keeps no in-memory buffer of events while storage is unavailable.
	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size"`
}

// DefaultStoreConfig returns default store settings.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		RootDir:         "~/.dope-context/workspaces",
		BusyTimeoutMS:   5000,
		EventBufferSize: 1000,
	}
}
