package relation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

func newTestStore(t *testing.T) *metadata.SQLiteStore {
	t.Helper()
	store, err := metadata.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedFile(t *testing.T, store metadata.Store, id string) {
	t.Helper()
	require.NoError(t, store.SaveFiles(context.Background(), []*metadata.File{
		{ID: id, Path: "/tmp/" + id, ModTime: time.Now(), IndexedAt: time.Now()},
	}))
}

func seedChunk(t *testing.T, store metadata.Store, id, fileID string) {
	t.Helper()
	require.NoError(t, store.SaveChunks(context.Background(), []*metadata.Chunk{
		{ID: id, FileID: fileID, Content: "chunk " + id, CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}))
}

// fakeVector is a minimal VectorSearcher stub returning a fixed result set
// regardless of the query vector, letting tests control exactly which
// chunks GenerateContentSimilarity sees.
type fakeVector struct {
	results []VectorResult
}

func (f *fakeVector) Search(_ context.Context, _ []float32, k int, _ func(id string) bool) ([]VectorResult, error) {
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func TestGenerateContentSimilarity_CreatesSymmetricRelation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	vec := &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.9}}}
	svc := New(store, vec, DefaultConfig())

	created, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	relsA, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, relsA, 1)
	assert.InDelta(t, float64(float32(0.9)), relsA[0].Similarity, 1e-9)

	relsB, err := store.ListRelationsForFile(ctx, "fileB")
	require.NoError(t, err)
	require.Len(t, relsB, 1)
	assert.Equal(t, relsA[0].ID, relsB[0].ID)
}

func TestGenerateContentSimilarity_SkipsSelfAndLowScore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedChunk(t, store, "chunkA1", "fileA")
	seedFile(t, store, "fileC")
	seedChunk(t, store, "chunkC1", "fileC")

	vec := &fakeVector{results: []VectorResult{
		{ID: "chunkA1", Score: 0.99}, // own chunk, excluded
		{ID: "chunkC1", Score: 0.1},  // below MinSimilarity
	}}
	svc := New(store, vec, DefaultConfig())

	created, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestGenerateContentSimilarity_IdempotentRefreshesScore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	svc := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.6}}}, DefaultConfig())
	_, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	svc.vector = &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.8}}}
	_, err = svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.InDelta(t, float64(float32(0.8)), rels[0].Similarity, 1e-9)
}

func TestGenerateContentSimilarity_RejectedNeverResuggested(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	svc := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.8}}}, DefaultConfig())
	_, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, rels, 1)

	require.NoError(t, svc.ApplyFeedback(ctx, rels[0].ID, metadata.FeedbackRejected, 0, "not related", true))

	// Re-run generation: block rule now exists for this file pair, so no
	// new relation should appear and the existing one stays rejected.
	_, err = svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	rels, err = store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, metadata.FeedbackRejected, rels[0].Feedback)
	assert.Equal(t, 0.0, rels[0].EffectiveStrength())
}

func TestApplyFeedback_IllegalTransitionRejected(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	svc := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.8}}}, DefaultConfig())
	_, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	relID := rels[0].ID

	require.NoError(t, svc.ApplyFeedback(ctx, relID, metadata.FeedbackRejected, 0, "", false))
	// Rejected -> Adjusted is explicitly forbidden.
	err = svc.ApplyFeedback(ctx, relID, metadata.FeedbackAdjusted, 0.5, "", false)
	require.Error(t, err)

	// Rejected -> Confirmed is allowed.
	require.NoError(t, svc.ApplyFeedback(ctx, relID, metadata.FeedbackConfirmed, 0, "", false))
}

func TestBlockRule_RelationKindSuppressesAllOfKind(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	require.NoError(t, store.AddBlockRule(ctx, &metadata.BlockRule{
		ID:           "rule1",
		Type:         metadata.BlockRuleRelationKind,
		RelationKind: metadata.RelationSimilarContent,
		CreatedAt:    time.Now(),
	}))

	svc := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.9}}}, DefaultConfig())
	created, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

func TestTrackFileAccess_EmitsSameSessionRelationOnClose(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")

	cfg := DefaultConfig()
	cfg.SessionTimeout = 50 * time.Millisecond
	svc := New(store, nil, cfg)

	require.NoError(t, svc.TrackFileAccess(ctx, "fileA"))
	require.NoError(t, svc.TrackFileAccess(ctx, "fileB"))
	require.NoError(t, svc.EndSession(ctx))

	relsA, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, relsA, 1)
	assert.Equal(t, metadata.RelationCoOccurrence, relsA[0].Kind)
	assert.Greater(t, relsA[0].Similarity, 0.0)
}

func TestTrackFileAccess_SingleFileSessionEmitsNothing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")

	svc := New(store, nil, DefaultConfig())
	require.NoError(t, svc.TrackFileAccess(ctx, "fileA"))
	require.NoError(t, svc.EndSession(ctx))

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestGetRelationGraph_ExcludesRejectedEdges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedFile(t, store, "fileC")
	seedChunk(t, store, "chunkB1", "fileB")
	seedChunk(t, store, "chunkC1", "fileC")

	svc := New(store, &fakeVector{results: []VectorResult{
		{ID: "chunkB1", Score: 0.9},
		{ID: "chunkC1", Score: 0.9},
	}}, DefaultConfig())
	_, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, rels, 2)

	// Reject the A-C relation; the graph from A should then only reach B.
	for _, r := range rels {
		if (r.FileAID == "fileC" || r.FileBID == "fileC") {
			require.NoError(t, svc.ApplyFeedback(ctx, r.ID, metadata.FeedbackRejected, 0, "", false))
		}
	}

	graph, err := svc.GetRelationGraph(ctx, "fileA", 1)
	require.NoError(t, err)

	var reached []string
	for _, n := range graph.Nodes {
		if n.FileID != "fileA" {
			reached = append(reached, n.FileID)
		}
	}
	assert.Equal(t, []string{"fileB"}, reached)
}

func TestBatchReject_FileToTag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	require.NoError(t, store.SaveTag(ctx, &metadata.Tag{ID: "tagX", Name: "project-x", CreatedAt: time.Now()}))
	require.NoError(t, store.AssignTag(ctx, &metadata.FileTagRelation{FileID: "fileB", TagID: "tagX", Source: metadata.TagSourceManual, Confidence: 1, CreatedAt: time.Now()}))

	svc := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.9}}}, DefaultConfig())
	_, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	count, err := svc.BatchReject(ctx, BatchRejectFileToTag, "fileA", "tagX", "", "", "not relevant")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, metadata.FeedbackRejected, rels[0].Feedback)

	// A second generation pass must not resurrect the relation: the
	// file-to-tag block rule installed above now suppresses it.
	svc2 := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.95}}}, DefaultConfig())
	created, err := svc2.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}

// BlockFileTag is the SimilarBlocker hook tag rejection drives: it both
// rejects existing relations and installs the file_to_tag rule.
func TestBlockFileTag_InstallsRule(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	require.NoError(t, store.SaveTag(ctx, &metadata.Tag{ID: "tagX", Name: "project-x", CreatedAt: time.Now()}))
	require.NoError(t, store.AssignTag(ctx, &metadata.FileTagRelation{FileID: "fileB", TagID: "tagX", Source: metadata.TagSourceManual, Confidence: 1, CreatedAt: time.Now()}))

	svc := New(store, &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.9}}}, DefaultConfig())
	_, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)

	require.NoError(t, svc.BlockFileTag(ctx, "fileA", "tagX", "tag suggestion rejected"))

	rules, err := store.ListActiveBlockRules(ctx)
	require.NoError(t, err)
	found := false
	for _, r := range rules {
		if r.Type == metadata.BlockRuleFileToTag && r.PathA == "/tmp/fileA" && r.TagB == "tagX" {
			found = true
		}
	}
	assert.True(t, found, "file_to_tag rule should be installed")

	rels, err := store.ListRelationsForFile(ctx, "fileA")
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, metadata.FeedbackRejected, rels[0].Feedback)
}

// Private files neither source nor receive ai-generated relations.
func TestGenerateContentSimilarity_SkipsPrivateFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedFile(t, store, "fileA")
	seedFile(t, store, "fileB")
	seedChunk(t, store, "chunkB1", "fileB")

	vec := &fakeVector{results: []VectorResult{{ID: "chunkB1", Score: 0.9}}}

	// Private source: nothing is generated.
	require.NoError(t, store.SetFilePrivacy(ctx, "fileA", metadata.PrivacyPrivate))
	svc := New(store, vec, DefaultConfig())
	created, err := svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	// Private target: the candidate is dropped.
	require.NoError(t, store.SetFilePrivacy(ctx, "fileA", metadata.PrivacyNormal))
	require.NoError(t, store.SetFilePrivacy(ctx, "fileB", metadata.PrivacyPrivate))
	created, err = svc.GenerateContentSimilarity(ctx, "fileA", []float32{0.1})
	require.NoError(t, err)
	assert.Equal(t, 0, created)
}
