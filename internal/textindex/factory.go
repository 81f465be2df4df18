package textindex

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// Backend names the BM25 storage engine.
type Backend string

const (
	// BackendSQLite is the default: FTS5 with WAL mode, safe for concurrent
	// access from the daemon and the CLI at once.
	BackendSQLite Backend = "sqlite"

	// BackendBleve is legacy: BoltDB-backed, exclusive file lock, kept for
	// data directories created by older binaries.
	BackendBleve Backend = "bleve"
)

// NewWithBackend opens the BM25 index at basePath (without extension) using
// the named backend; an empty backend defaults to sqlite. The extension is
// backend-specific: ".db" for sqlite, ".bleve" for bleve.
func NewWithBackend(basePath string, config Config, backend string) (Index, error) {
	switch backend {
	case string(BackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteIndex(path, config)

	case string(BackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveIndex(path, config)

	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown BM25 backend: %s (valid options: sqlite, bleve)", backend), nil)
	}
}

// DetectBackend inspects basePath's siblings to determine which backend an
// existing index directory was built with, preferring sqlite when both
// exist. Returns "" when neither is present.
func DetectBackend(basePath string) Backend {
	if fileExists(basePath + ".db") {
		return BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BackendBleve
	}
	return ""
}

// IndexPath returns the full BM25 index path under dataDir for the named
// backend.
func IndexPath(dataDir string, backend string) string {
	basePath := filepath.Join(dataDir, "bm25")
	if backend == string(BackendBleve) {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
