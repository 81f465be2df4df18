// Package textindex provides the sparse-retrieval half of the hybrid search
// engine: BM25 ranking over tokenized chunk content, scored and fused
// against the dense vector store in internal/search.
//
// Two backends implement the same Index interface, selected through
// NewWithBackend:
//
//   - SQLite FTS5 (default): WAL-mode, safe for the watchdog-supervised
//     daemon and concurrent CLI queries against the same data directory.
//   - Bleve v2 (legacy): BoltDB-backed, single-process only, kept for
//     indexes created by older binaries and opened read-compatibly.
package textindex

import "context"

// Document is a unit of sparse-indexed text: one chunk's content keyed by
// its chunk ID.
type Document struct {
	ID      string
	Content string
}

// Result is a single BM25 match, higher Score is a better match regardless
// of backend (the SQLite backend negates FTS5's bm25() output to agree with
// Bleve's convention).
type Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// Stats summarizes one backend's current content.
type Stats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// Config tunes BM25 scoring and tokenization. K1/B follow Robertson/Sparck
// Jones defaults; StopWords is code-aware (camelCase/snake_case-split
// keywords rather than English prose stop words).
type Config struct {
	K1             float64
	B              float64
	StopWords      []string
	MinTokenLength int
}

// DefaultConfig returns the standard tuning used across both backends.
func DefaultConfig() Config {
	return Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords filters common programming keywords and short
// identifiers that would otherwise dominate naive term-frequency scoring.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// Index is implemented by each BM25 backend.
type Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *Stats

	Save(path string) error
	Load(path string) error
	Close() error
}
