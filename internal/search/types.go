// Package search provides the hybrid search engine combining sparse BM25
// retrieval (internal/textindex) with dense vector retrieval
// (internal/vector). Each query is classified as lexical, semantic, or
// mixed; the classification picks the per-source fusion weights, and the
// two result lists are min-max normalized and combined into one ranking.
package search

import (
	"context"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/textindex"
)

// SearchEngine provides hybrid search combining BM25 and semantic search.
type SearchEngine interface {
	// Search executes a hybrid search query and returns ranked results.
	Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)

	// Index adds chunks to both BM25 and vector indices.
	Index(ctx context.Context, chunks []*metadata.Chunk) error

	// Delete removes chunks from the sparse and dense indices. Metadata chunk
	// rows are untouched; callers that want those gone too should also call
	// metadata.Store.DeleteChunksByFile.
	Delete(ctx context.Context, chunkIDs []string) error

	// Stats returns engine statistics.
	Stats() *EngineStats

	// Close releases all resources.
	Close() error
}

// SearchOptions configures a single query.
type SearchOptions struct {
	// Limit is the maximum number of results to return (default: 10, max: 100).
	Limit int

	// Filter restricts results by content family: "all", "code", "docs", "media".
	Filter string

	// Language filters code results by programming language (e.g. "go").
	Language string

	// Weights overrides the classifier-derived BM25/semantic weights.
	Weights *Weights

	// Scopes restricts results to files within these path prefixes.
	// Multiple scopes use OR logic. Empty means no scope filtering.
	Scopes []string

	// BM25Only skips dense retrieval entirely. Used when the embedder is
	// unavailable or the caller wants pure keyword matching.
	BM25Only bool
}

// Weights splits the fused score between the sparse and dense sources.
// BM25 + Semantic must sum to 1.
type Weights struct {
	// BM25 is the weight of the sparse keyword source.
	BM25 float64

	// Semantic is the weight of the dense vector source.
	Semantic float64
}

// DefaultWeights returns the weights used for mixed queries, leaning
// toward the dense source.
func DefaultWeights() Weights {
	return Weights{BM25: 0.4, Semantic: 0.6}
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	// Chunk contains the full chunk data from internal/metadata.
	Chunk *metadata.Chunk

	// Path is the chunk's owning file path, resolved during enrichment.
	Path string

	// Score is the fused, boosted score, clamped to [0,1] after ordering.
	Score float64

	// BM25Score is the min-max normalized sparse score.
	BM25Score float64

	// VecScore is the dense similarity score (0-1).
	VecScore float64

	// BM25Rank is the position in the sparse list (1-indexed, 0 if absent).
	BM25Rank int

	// VecRank is the position in the dense list (1-indexed, 0 if absent).
	VecRank int

	// Highlights contains content offsets where query terms matched.
	Highlights []Range

	// InBothLists reports that both sources returned this chunk.
	InBothLists bool

	// MatchedTerms contains the sparse query terms that matched.
	MatchedTerms []string
}

// Range is a half-open character range for highlighting.
type Range struct {
	// Start is the starting character offset (0-indexed).
	Start int

	// End is the ending character offset (exclusive).
	End int
}

// EngineStats provides statistics about the search engine.
type EngineStats struct {
	// BM25Stats contains sparse text index statistics.
	BM25Stats *textindex.Stats

	// VectorCount is the number of vectors in the store.
	VectorCount int
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit is the default number of results (default: 10).
	DefaultLimit int

	// MaxLimit is the maximum allowed results (default: 100).
	MaxLimit int

	// DefaultWeights are used when neither the caller nor the classifier
	// picks weights.
	DefaultWeights Weights

	// FilenameMatchBoost multiplies a hit's score when the query appears
	// as a substring of the owning file's name (default: 1.5).
	FilenameMatchBoost float64

	// ExactMatchBoost multiplies a hit's score when a whole query token
	// equals the file name stem or one of the file's tag names
	// (default: 2.0).
	ExactMatchBoost float64

	// SearchTimeout bounds one query end to end (default: 2s).
	SearchTimeout time.Duration
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:       10,
		MaxLimit:           100,
		DefaultWeights:     DefaultWeights(),
		FilenameMatchBoost: 1.5,
		ExactMatchBoost:    2.0,
		SearchTimeout:      2 * time.Second,
	}
}

// QueryType is the classification category for a search query.
type QueryType string

const (
	// QueryTypeLexical marks queries needing exact keyword matching:
	// error codes, hex literals, long digit runs, file names, quoted
	// phrases, paths.
	QueryTypeLexical QueryType = "LEXICAL"

	// QueryTypeSemantic marks natural-language queries seeking meaning.
	QueryTypeSemantic QueryType = "SEMANTIC"

	// QueryTypeMixed marks short ambiguous queries served by both sources.
	QueryTypeMixed QueryType = "MIXED"
)

// Classifier assigns a query type and fusion weights to a query.
type Classifier interface {
	// Classify analyzes a query and returns its type and weights.
	// On error, implementations return (QueryTypeMixed, DefaultWeights(), err).
	Classify(ctx context.Context, query string) (QueryType, Weights, error)
}

// WeightsForQueryType returns the fusion weights for a query type:
// lexical queries lean heavily on the sparse source, semantic queries on
// the dense source, mixed queries sit between.
func WeightsForQueryType(qt QueryType) Weights {
	switch qt {
	case QueryTypeLexical:
		return Weights{BM25: 0.8, Semantic: 0.2}
	case QueryTypeSemantic:
		return Weights{BM25: 0.2, Semantic: 0.8}
	default:
		return DefaultWeights()
	}
}
