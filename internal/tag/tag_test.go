package tag

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

func seedFile(t *testing.T, store metadata.Store, id string) *metadata.File {
	t.Helper()
	f := &metadata.File{ID: id, Path: "/tmp/" + id, ModTime: time.Now(), IndexedAt: time.Now()}
	require.NoError(t, store.SaveFiles(context.Background(), []*metadata.File{f}))
	return f
}

func TestCreateTag_DepthEnforced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)

	l0, err := svc.CreateTag(ctx, "projects", "", false)
	require.NoError(t, err)
	assert.Equal(t, 0, l0.Depth)

	l1, err := svc.CreateTag(ctx, "neuralfs", l0.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, l1.Depth)

	l2, err := svc.CreateTag(ctx, "core", l1.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, l2.Depth)

	_, err = svc.CreateTag(ctx, "too-deep", l2.ID, false)
	require.Error(t, err)
}

func TestCreateTag_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)

	a, err := svc.CreateTag(ctx, "reports", "", false)
	require.NoError(t, err)
	b, err := svc.CreateTag(ctx, "reports", "", false)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestCreateTag_SensitiveLexicon(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, []string{"financial", "medical"})

	t1, err := svc.CreateTag(ctx, "Financial", "", false)
	require.NoError(t, err)
	assert.True(t, t1.Sensitive)

	t2, err := svc.CreateTag(ctx, "vacation-photos", "", false)
	require.NoError(t, err)
	assert.False(t, t2.Sensitive)
}

func TestAssign_SensitiveNeverAutoConfirmed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, []string{"medical"})
	file := seedFile(t, store, "f1")

	tag, err := svc.CreateTag(ctx, "medical-record", "", false)
	require.NoError(t, err)
	require.True(t, tag.Sensitive)

	require.NoError(t, svc.Assign(ctx, file.ID, tag.ID, metadata.TagSourceAuto, 0.9))

	rels, err := svc.FileTags(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.False(t, rels[0].Confirmed)
}

func TestAssign_NonSensitiveAutoConfirmed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)
	file := seedFile(t, store, "f1")

	tag, err := svc.CreateTag(ctx, "invoices", "", false)
	require.NoError(t, err)

	require.NoError(t, svc.Assign(ctx, file.ID, tag.ID, metadata.TagSourceAuto, 0.9))

	rels, err := svc.FileTags(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.True(t, rels[0].Confirmed)
}

func TestAssign_ManualAlwaysConfirmedFullConfidence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, []string{"medical"})
	file := seedFile(t, store, "f1")

	tag, err := svc.CreateTag(ctx, "medical-record", "", false)
	require.NoError(t, err)

	require.NoError(t, svc.Assign(ctx, file.ID, tag.ID, metadata.TagSourceManual, 0.1))

	rels, err := svc.FileTags(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.True(t, rels[0].Confirmed)
	assert.Equal(t, 1.0, rels[0].Confidence)
}

func TestSetParent_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)

	root, err := svc.CreateTag(ctx, "root", "", false)
	require.NoError(t, err)
	child, err := svc.CreateTag(ctx, "child", root.ID, false)
	require.NoError(t, err)

	err = svc.SetParent(ctx, root.ID, child.ID)
	require.Error(t, err)
}

func TestSetParent_RejectsExcessiveDepth(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)

	a, _ := svc.CreateTag(ctx, "a", "", false)
	b, _ := svc.CreateTag(ctx, "b", a.ID, false)
	c, _ := svc.CreateTag(ctx, "c", b.ID, false)
	other, _ := svc.CreateTag(ctx, "other", "", false)

	err := svc.SetParent(ctx, other.ID, c.ID)
	require.Error(t, err)
}

func TestMergeTag_ReassignsFilesAndChildren(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)
	file := seedFile(t, store, "f1")

	src, _ := svc.CreateTag(ctx, "js", "", false)
	dst, _ := svc.CreateTag(ctx, "javascript", "", false)
	child, _ := svc.CreateTag(ctx, "react", src.ID, false)

	require.NoError(t, svc.Assign(ctx, file.ID, src.ID, metadata.TagSourceManual, 1.0))
	require.NoError(t, svc.MergeTag(ctx, src.ID, dst.ID))

	rels, err := svc.FileTags(ctx, file.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, dst.ID, rels[0].TagID)

	movedChild, err := svc.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, dst.ID, movedChild.ParentID)

	_, err = svc.Get(ctx, src.ID)
	assert.Error(t, err)
}

func TestDeleteTag_ReparentsChildrenToGrandparent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)

	root, _ := svc.CreateTag(ctx, "root", "", false)
	mid, _ := svc.CreateTag(ctx, "mid", root.ID, false)
	leaf, _ := svc.CreateTag(ctx, "leaf", mid.ID, false)

	require.NoError(t, svc.DeleteTag(ctx, mid.ID))

	moved, err := svc.Get(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, moved.ParentID)
	assert.Equal(t, root.Depth+1, moved.Depth)
}

func TestAutoTag_AssignsFileTypeTagAndRespectsCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)
	file := seedFile(t, store, "f1")
	file.ContentType = metadata.ContentTypeCode

	chunks := []*metadata.Chunk{
		{FileID: file.ID, Content: "kubernetes kubernetes kubernetes deployment deployment service networking ingress cluster pod container"},
	}

	rels, err := svc.AutoTag(ctx, file, chunks)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rels), 1)
	assert.LessOrEqual(t, len(rels), MaxAutoTags+1)

	stored, err := svc.FileTags(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, len(rels), len(stored))
}

func TestAutoTag_EveryFileGetsAtLeastOneTag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)
	file := seedFile(t, store, "f1")

	rels, err := svc.AutoTag(ctx, file, nil)
	require.NoError(t, err)
	require.Len(t, rels, 1) // file-type tag only, no content to derive from
}

func TestCommand_Execute_CreateRenameDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)

	res, err := svc.Execute(ctx, Command{Type: CommandCreate, Name: "drafts"})
	require.NoError(t, err)
	require.NotNil(t, res.Tag)

	res, err = svc.Execute(ctx, Command{Type: CommandRename, TagID: res.Tag.ID, Name: "final-drafts"})
	require.NoError(t, err)
	assert.Equal(t, "final-drafts", res.Tag.Name)

	_, err = svc.Execute(ctx, Command{Type: CommandDelete, TagID: res.Tag.ID})
	require.NoError(t, err)
}

// recordingBlocker captures BlockFileTag calls for assertion.
type recordingBlocker struct {
	fileID, tagID, reason string
	calls                 int
}

func (r *recordingBlocker) BlockFileTag(ctx context.Context, fileID, tagID, reason string) error {
	r.fileID, r.tagID, r.reason = fileID, tagID, reason
	r.calls++
	return nil
}

func TestReject_BlockSimilarInvokesBlocker(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)
	blocker := &recordingBlocker{}
	svc.SetSimilarBlocker(blocker)

	file := seedFile(t, store, "f1")
	tg, err := svc.CreateTag(ctx, "finance", "", false)
	require.NoError(t, err)
	require.NoError(t, svc.Assign(ctx, file.ID, tg.ID, metadata.TagSourceAuto, 0.8))

	_, err = svc.Execute(ctx, Command{Type: CommandReject, FileID: file.ID, TagID: tg.ID, BlockSimilar: true})
	require.NoError(t, err)
	assert.Equal(t, 1, blocker.calls)
	assert.Equal(t, file.ID, blocker.fileID)
	assert.Equal(t, tg.ID, blocker.tagID)

	// A plain rejection never reaches the blocker.
	require.NoError(t, svc.Assign(ctx, file.ID, tg.ID, metadata.TagSourceAuto, 0.8))
	_, err = svc.Execute(ctx, Command{Type: CommandReject, FileID: file.ID, TagID: tg.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, blocker.calls)
}

// A file_to_tag block rule suppresses the tag from both suggestions and
// auto-tagging for that file.
func TestSuggestAndAutoTag_SuppressBlockedTag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	svc := New(store, nil)
	file := seedFile(t, store, "f1")

	chunks := []*metadata.Chunk{
		{FileID: file.ID, Content: "kubernetes kubernetes kubernetes kubernetes deployment"},
	}

	rels, err := svc.AutoTag(ctx, file, chunks)
	require.NoError(t, err)
	var blockedTagID string
	for _, r := range rels {
		tg, err := store.GetTag(ctx, r.TagID)
		require.NoError(t, err)
		if tg.Name == "kubernetes" {
			blockedTagID = tg.ID
		}
	}
	require.NotEmpty(t, blockedTagID)

	require.NoError(t, store.AddBlockRule(ctx, &metadata.BlockRule{
		ID: "block-1", Type: metadata.BlockRuleFileToTag,
		PathA: file.Path, TagB: blockedTagID, CreatedAt: time.Now(),
	}))

	suggestions, err := svc.Suggest(ctx, file, chunks)
	require.NoError(t, err)
	for _, sugg := range suggestions {
		assert.NotEqual(t, blockedTagID, sugg.TagID)
	}

	require.NoError(t, svc.Reject(ctx, file.ID, blockedTagID, false))
	rels, err = svc.AutoTag(ctx, file, chunks)
	require.NoError(t, err)
	for _, r := range rels {
		assert.NotEqual(t, blockedTagID, r.TagID)
	}
}
