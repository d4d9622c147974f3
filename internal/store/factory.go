package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend names an Index implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default).
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2. Single process only.
	BackendBleve Backend = "bleve"
)

// Backends lists the valid backend names.
func Backends() []Backend {
	return []Backend{BackendSQLite, BackendBleve}
}

// Open creates an Index using backend. basePath has no extension: ".db" or
// ".bleve" is appended per backend. An empty basePath gives an in-memory
// index.
func Open(basePath string, backend Backend, config Config) (Index, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteIndex(withExt(basePath, ".db"), config)
	case BackendBleve:
		return NewBleveIndex(withExt(basePath, ".bleve"), config)
	default:
		return nil, fmt.Errorf("unknown index backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectBackend reports which backend an existing index at basePath uses,
// or "" when none exists.
func DetectBackend(basePath string) Backend {
	if info, err := os.Stat(basePath + ".db"); err == nil && !info.IsDir() {
		return BackendSQLite
	}
	if info, err := os.Stat(basePath + ".bleve"); err == nil && info.IsDir() {
		return BackendBleve
	}
	return ""
}

// IndexPath returns the file or directory an index at basePath lives in.
func IndexPath(basePath string, backend Backend) string {
	if backend == BackendBleve {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}

// LockDir returns the directory that guards writers of basePath.
func LockDir(basePath string) string {
	return filepath.Dir(basePath)
}

func withExt(basePath, ext string) string {
	if basePath == "" {
		return ""
	}
	return basePath + ext
}
