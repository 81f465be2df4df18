package embed

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeTrackingEmbedder wraps mockEmbedder to count Close calls and report
// a fixed estimated size, exercising MemoryManager's eviction path.
type closeTrackingEmbedder struct {
	*mockEmbedder
	closed    atomic.Int64
	sizeBytes int64
}

func newCloseTrackingEmbedder(sizeBytes int64) *closeTrackingEmbedder {
	return &closeTrackingEmbedder{mockEmbedder: newMockEmbedder(8), sizeBytes: sizeBytes}
}

func (c *closeTrackingEmbedder) Close() error {
	c.closed.Add(1)
	return nil
}

func (c *closeTrackingEmbedder) EstimatedBytes() int64 {
	return c.sizeBytes
}

func TestMemoryManager_AcquireWithinBudgetKeepsAllLoaded(t *testing.T) {
	mgr := NewMemoryManager(1000)

	mgr.Acquire("a", newCloseTrackingEmbedder(300))
	mgr.Acquire("b", newCloseTrackingEmbedder(300))

	status := mgr.Status()
	assert.Equal(t, 2, status.LoadedCount)
	assert.Equal(t, int64(600), status.UsedBytes)
}

func TestMemoryManager_AcquireOverBudgetEvictsOldest(t *testing.T) {
	mgr := NewMemoryManager(500)

	first := newCloseTrackingEmbedder(300)
	mgr.Acquire("a", first)
	mgr.Acquire("b", newCloseTrackingEmbedder(300))

	status := mgr.Status()
	require.Equal(t, 1, status.LoadedCount)
	assert.Equal(t, "b", status.Loaded[0])
	assert.Equal(t, int64(1), first.closed.Load(), "evicted embedder should be closed")
}

func TestMemoryManager_AcquireSameKeyTwiceReturnsSameInstance(t *testing.T) {
	mgr := NewMemoryManager(1000)

	e := newCloseTrackingEmbedder(100)
	got1 := mgr.Acquire("a", e)
	got2 := mgr.Acquire("a", newCloseTrackingEmbedder(100))

	assert.Same(t, got1, got2)
	assert.Equal(t, 1, mgr.Status().LoadedCount)
}

func TestMemoryManager_ReleaseClosesEmbedder(t *testing.T) {
	mgr := NewMemoryManager(1000)
	e := newCloseTrackingEmbedder(100)
	mgr.Acquire("a", e)

	mgr.Release("a")

	assert.Equal(t, 0, mgr.Status().LoadedCount)
	assert.Equal(t, int64(1), e.closed.Load())
}

func TestMemoryManager_CloseEvictsEverything(t *testing.T) {
	mgr := NewMemoryManager(1000)
	mgr.Acquire("a", newCloseTrackingEmbedder(100))
	mgr.Acquire("b", newCloseTrackingEmbedder(100))

	mgr.Close()

	assert.Equal(t, 0, mgr.Status().LoadedCount)
	assert.Equal(t, int64(0), mgr.Status().UsedBytes)
}

func TestNewMemoryManager_ZeroBudgetUsesDefault(t *testing.T) {
	mgr := NewMemoryManager(0)
	assert.Equal(t, int64(DefaultMemoryBudgetBytes), mgr.Status().BudgetBytes)
}
