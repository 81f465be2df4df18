package infer

import (
	"context"
	"testing"

	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *metadata.SQLiteStore {
	t.Helper()
	store, err := metadata.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRateLimiter_AllowsUpToBurst(t *testing.T) {
	r := NewRateLimiter(60) // 1/sec, full bucket of 60

	allowed := 0
	for i := 0; i < 60; i++ {
		if r.Allow() {
			allowed++
		}
	}
	if allowed != 60 {
		t.Errorf("expected 60 allowed from a full 60-token bucket, got %d", allowed)
	}
	if r.Allow() {
		t.Error("61st request should be denied with an empty bucket")
	}
}

func TestRateLimiter_DisabledAlwaysAllows(t *testing.T) {
	r := NewRateLimiter(0)
	for i := 0; i < 1000; i++ {
		if !r.Allow() {
			t.Fatal("disabled rate limiter should never deny")
		}
	}
}

func TestCostTracker_AllowsUnderLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewCostTracker(store, 10.0)

	require.True(t, tracker.Allow(ctx))

	require.NoError(t, tracker.Record(ctx, 1000, 1.0))
	require.True(t, tracker.Allow(ctx))
}

func TestCostTracker_BlocksOverLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewCostTracker(store, 5.0)

	require.NoError(t, tracker.Record(ctx, 1000, 5.01))
	require.False(t, tracker.Allow(ctx))
}

func TestCostTracker_DisabledLimitAlwaysAllows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewCostTracker(store, 0)

	require.NoError(t, tracker.Record(ctx, 1_000_000, 1000.0))
	require.True(t, tracker.Allow(ctx))
}

func TestCostTracker_RecordAccumulates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tracker := NewCostTracker(store, 100.0)

	require.NoError(t, tracker.Record(ctx, 100, 1.0))
	require.NoError(t, tracker.Record(ctx, 200, 2.0))

	usage, err := store.GetCloudUsage(ctx, currentMonth())
	require.NoError(t, err)
	require.Equal(t, int64(300), usage.TokenCount)
	require.Equal(t, int64(2), usage.RequestCount)
}
