package textindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithBackend_DefaultsToSQLite(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewWithBackend(filepath.Join(dir, "bm25"), DefaultConfig(), "")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	_, ok := idx.(*SQLiteIndex)
	assert.True(t, ok)
}

func TestNewWithBackend_Bleve(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewWithBackend(filepath.Join(dir, "bm25"), DefaultConfig(), string(BackendBleve))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	_, ok := idx.(*BleveIndex)
	assert.True(t, ok)
}

func TestNewWithBackend_Unknown(t *testing.T) {
	_, err := NewWithBackend("base", DefaultConfig(), "wat")
	assert.Error(t, err)
}

func TestDetectBackend(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "bm25")

	assert.Equal(t, Backend(""), DetectBackend(base))

	idx, err := NewWithBackend(base, DefaultConfig(), string(BackendSQLite))
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	assert.Equal(t, BackendSQLite, DetectBackend(base))
}
