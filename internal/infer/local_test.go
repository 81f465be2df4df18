package infer

import (
	"context"
	"errors"
	"testing"

	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assertErr = errors.New("search failed")

func TestSearchLocalInferer_CollapsesToMaxScorePerFile(t *testing.T) {
	searchFn := func(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error) {
		return []*search.SearchResult{
			{Chunk: &metadata.Chunk{FileID: "tax-2024.pdf"}, Score: 0.5},
			{Chunk: &metadata.Chunk{FileID: "tax-2024.pdf"}, Score: 0.9},
			{Chunk: &metadata.Chunk{FileID: "budget.xlsx"}, Score: 0.3},
			{Chunk: nil, Score: 0.99},
		}, nil
	}

	inferer := NewSearchLocalInferer(searchFn, 10)
	scores, err := inferer.InferLocal(context.Background(), "tax document")
	require.NoError(t, err)
	require.Len(t, scores, 2)

	byFile := map[string]float64{}
	for _, s := range scores {
		byFile[s.FileID] = s.Score
	}
	assert.Equal(t, 0.9, byFile["tax-2024.pdf"])
	assert.Equal(t, 0.3, byFile["budget.xlsx"])
}

func TestNewSearchLocalInferer_DefaultsLimit(t *testing.T) {
	inferer := NewSearchLocalInferer(nil, 0)
	assert.Equal(t, 20, inferer.limit)
}

func TestSearchLocalInferer_PropagatesSearchError(t *testing.T) {
	searchFn := func(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error) {
		return nil, assertErr
	}
	inferer := NewSearchLocalInferer(searchFn, 5)
	_, err := inferer.InferLocal(context.Background(), "query")
	assert.ErrorIs(t, err, assertErr)
}
