package textindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteIndex_IndexAndSearch(t *testing.T) {
	idx, err := NewSQLiteIndex("", DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{
		{ID: "c1", Content: "func parseHTTPRequest(r *http.Request) error"},
		{ID: "c2", Content: "func writeFile(path string, data []byte) error"},
	}))

	results, err := idx.Search(ctx, "parse request", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].DocID)
}

func TestSQLiteIndex_ReindexReplacesContent(t *testing.T) {
	idx, err := NewSQLiteIndex("", DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{{ID: "c1", Content: "alpha beta"}}))
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "c1", Content: "gamma delta"}}))

	results, err := idx.Search(ctx, "alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(ctx, "gamma", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSQLiteIndex_Delete(t *testing.T) {
	idx, err := NewSQLiteIndex("", DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	ctx := context.Background()

	require.NoError(t, idx.Index(ctx, []*Document{{ID: "c1", Content: "removeMe"}}))
	require.NoError(t, idx.Delete(ctx, []string{"c1"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSQLiteIndex_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25.db")

	idx, err := NewSQLiteIndex(path, DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Document{{ID: "c1", Content: "persisted content"}}))
	require.NoError(t, idx.Save(path))
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteIndex(path, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, "persisted", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].DocID)
}

func TestSQLiteIndex_EmptyQueryReturnsNoResults(t *testing.T) {
	idx, err := NewSQLiteIndex("", DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
