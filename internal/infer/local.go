package infer

import (
	"context"

	"github.com/aimerfeng/neuralfs/internal/search"
)

// SearchFunc is the shape of internal/search.Engine.Search, narrowed to
// just what the local inference path needs.
type SearchFunc func(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error)

// SearchLocalInferer implements LocalInferer on top of the hybrid search
// engine: a file's inference score is its best chunk's fused search score.
// This is the query-embedding and tag-matching half of the local
// path; intent parsing and sensitive-prompt generation live in the
// coordinator's Anonymizer, run on this inferer's raw query before any
// remote dispatch.
type SearchLocalInferer struct {
	search SearchFunc
	limit  int
}

// NewSearchLocalInferer wraps a search function. limit <= 0 defaults to 20.
func NewSearchLocalInferer(searchFn SearchFunc, limit int) *SearchLocalInferer {
	if limit <= 0 {
		limit = 20
	}
	return &SearchLocalInferer{search: searchFn, limit: limit}
}

// InferLocal runs the query through hybrid search and collapses results to
// one score per file, keeping each file's highest-scoring chunk.
func (s *SearchLocalInferer) InferLocal(ctx context.Context, query string) ([]FileScore, error) {
	results, err := s.search(ctx, query, search.SearchOptions{Limit: s.limit})
	if err != nil {
		return nil, err
	}

	best := make(map[string]float64, len(results))
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		if cur, ok := best[r.Chunk.FileID]; !ok || r.Score > cur {
			best[r.Chunk.FileID] = r.Score
		}
	}

	scores := make([]FileScore, 0, len(best))
	for fileID, score := range best {
		scores = append(scores, FileScore{FileID: fileID, Score: score})
	}
	return scores, nil
}

var _ LocalInferer = (*SearchLocalInferer)(nil)
