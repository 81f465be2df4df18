package search

import (
	"context"
	"time"

	"github.com/aimerfeng/neuralfs/internal/embed"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/textindex"
	"github.com/aimerfeng/neuralfs/internal/vector"
)

// MockBM25Index implements textindex.Index with overridable function fields,
// for benchmarks and unit tests that need to substitute canned results
// without standing up a real FTS5/Bleve backend.
type MockBM25Index struct {
	IndexFn  func(ctx context.Context, docs []*textindex.Document) error
	SearchFn func(ctx context.Context, query string, limit int) ([]*textindex.Result, error)
	DeleteFn func(ctx context.Context, docIDs []string) error
	StatsFn  func() *textindex.Stats
}

func (m *MockBM25Index) Index(ctx context.Context, docs []*textindex.Document) error {
	if m.IndexFn != nil {
		return m.IndexFn(ctx, docs)
	}
	return nil
}

func (m *MockBM25Index) Search(ctx context.Context, query string, limit int) ([]*textindex.Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, limit)
	}
	return nil, nil
}

func (m *MockBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, docIDs)
	}
	return nil
}

func (m *MockBM25Index) AllIDs() ([]string, error) {
	return nil, nil
}

func (m *MockBM25Index) Stats() *textindex.Stats {
	if m.StatsFn != nil {
		return m.StatsFn()
	}
	return nil
}

func (m *MockBM25Index) Save(path string) error { return nil }
func (m *MockBM25Index) Load(path string) error { return nil }
func (m *MockBM25Index) Close() error            { return nil }

var _ textindex.Index = (*MockBM25Index)(nil)

// MockVectorStore implements the engine's VectorIndex interface with
// overridable function fields.
type MockVectorStore struct {
	AddFn    func(ctx context.Context, ids []string, vectors [][]float32) error
	SearchFn func(ctx context.Context, query []float32, k int, filter vector.FilterFunc) ([]*vector.Result, error)
	DeleteFn func(ctx context.Context, ids []string) error
	CountFn  func() int
}

func (m *MockVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if m.AddFn != nil {
		return m.AddFn(ctx, ids, vectors)
	}
	return nil
}

func (m *MockVectorStore) Search(ctx context.Context, query []float32, k int, filter vector.FilterFunc) ([]*vector.Result, error) {
	if m.SearchFn != nil {
		return m.SearchFn(ctx, query, k, filter)
	}
	return nil, nil
}

func (m *MockVectorStore) Delete(ctx context.Context, ids []string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, ids)
	}
	return nil
}

func (m *MockVectorStore) Count() int {
	if m.CountFn != nil {
		return m.CountFn()
	}
	return 0
}

func (m *MockVectorStore) Close() error { return nil }

var _ VectorIndex = (*MockVectorStore)(nil)

// MockEmbedder implements embed.Embedder with overridable function fields.
type MockEmbedder struct {
	EmbedFn      func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFn func(ctx context.Context, texts []string) ([][]float32, error)
	DimensionsFn func() int
	ModelNameFn  func() string
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFn != nil {
		return m.EmbedFn(ctx, text)
	}
	return nil, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFn != nil {
		return m.EmbedBatchFn(ctx, texts)
	}
	out := make([][]float32, len(texts))
	return out, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.DimensionsFn != nil {
		return m.DimensionsFn()
	}
	return 768
}

func (m *MockEmbedder) ModelName() string {
	if m.ModelNameFn != nil {
		return m.ModelNameFn()
	}
	return "mock-embedder"
}

func (m *MockEmbedder) Available(ctx context.Context) bool { return true }

func (m *MockEmbedder) Close() error { return nil }

var _ embed.Embedder = (*MockEmbedder)(nil)

// MockMetadataStore implements metadata.Store in memory, for tests that
// exercise the engine without a real SQLite-backed store. Only the chunk,
// file and key/value state paths the engine actually touches are
// functional; everything else is a stub returning zero values.
type MockMetadataStore struct {
	chunks map[string]*metadata.Chunk
	files  map[string]*metadata.File
	state  map[string]string
}

// NewMockMetadataStore returns an initialized MockMetadataStore.
func NewMockMetadataStore() *MockMetadataStore {
	return &MockMetadataStore{
		chunks: make(map[string]*metadata.Chunk),
		files:  make(map[string]*metadata.File),
		state:  make(map[string]string),
	}
}

func (m *MockMetadataStore) SaveFiles(ctx context.Context, files []*metadata.File) error {
	for _, f := range files {
		m.files[f.ID] = f
	}
	return nil
}

func (m *MockMetadataStore) SetFilePrivacy(ctx context.Context, fileID string, level metadata.PrivacyLevel) error {
	if f, ok := m.files[fileID]; ok {
		f.PrivacyLevel = level
	}
	return nil
}

func (m *MockMetadataStore) GetFileByPath(ctx context.Context, path string) (*metadata.File, error) {
	for _, f := range m.files {
		if f.Path == path {
			return f, nil
		}
	}
	return nil, nil
}

func (m *MockMetadataStore) GetFile(ctx context.Context, id string) (*metadata.File, error) {
	return m.files[id], nil
}

func (m *MockMetadataStore) GetFilesForReconciliation(ctx context.Context) (map[string]*metadata.File, error) {
	return m.files, nil
}

func (m *MockMetadataStore) DeleteFile(ctx context.Context, fileID string) error {
	delete(m.files, fileID)
	return nil
}

func (m *MockMetadataStore) SaveChunks(ctx context.Context, chunks []*metadata.Chunk) error {
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MockMetadataStore) GetChunk(ctx context.Context, id string) (*metadata.Chunk, error) {
	return m.chunks[id], nil
}

func (m *MockMetadataStore) GetChunksByFile(ctx context.Context, fileID string) ([]*metadata.Chunk, error) {
	var out []*metadata.Chunk
	for _, c := range m.chunks {
		if c.FileID == fileID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockMetadataStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	for id, c := range m.chunks {
		if c.FileID == fileID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *MockMetadataStore) SaveTag(ctx context.Context, tag *metadata.Tag) error { return nil }
func (m *MockMetadataStore) GetTag(ctx context.Context, id string) (*metadata.Tag, error) {
	return nil, nil
}
func (m *MockMetadataStore) FindTagByName(ctx context.Context, parentID, name string) (*metadata.Tag, error) {
	return nil, nil
}
func (m *MockMetadataStore) ListChildTags(ctx context.Context, parentID string) ([]*metadata.Tag, error) {
	return nil, nil
}
func (m *MockMetadataStore) ListAllTags(ctx context.Context) ([]*metadata.Tag, error) {
	return nil, nil
}
func (m *MockMetadataStore) DeleteTag(ctx context.Context, id string) error { return nil }
func (m *MockMetadataStore) ReparentTag(ctx context.Context, tagID, newParentID string, newDepth int) error {
	return nil
}
func (m *MockMetadataStore) AssignTag(ctx context.Context, rel *metadata.FileTagRelation) error {
	return nil
}
func (m *MockMetadataStore) ConfirmTag(ctx context.Context, fileID, tagID string) error { return nil }
func (m *MockMetadataStore) RemoveFileTag(ctx context.Context, fileID, tagID string) error {
	return nil
}
func (m *MockMetadataStore) ListFilesByTag(ctx context.Context, tagID string) ([]string, error) {
	return nil, nil
}
func (m *MockMetadataStore) ReassignFileTags(ctx context.Context, oldTagID, newTagID string) error {
	return nil
}
func (m *MockMetadataStore) GetFileTags(ctx context.Context, fileID string) ([]*metadata.FileTagRelation, error) {
	return nil, nil
}

func (m *MockMetadataStore) SaveRelation(ctx context.Context, rel *metadata.FileRelation) error {
	return nil
}
func (m *MockMetadataStore) GetRelation(ctx context.Context, id string) (*metadata.FileRelation, error) {
	return nil, nil
}
func (m *MockMetadataStore) SetRelationFeedback(ctx context.Context, id string, feedback metadata.FeedbackState, userStrength float64, rejectReason string, blockSimilar bool) error {
	return nil
}
func (m *MockMetadataStore) ListRelationsForFile(ctx context.Context, fileID string) ([]*metadata.FileRelation, error) {
	return nil, nil
}
func (m *MockMetadataStore) IsBlocked(ctx context.Context, pathA, pathB string) (bool, error) {
	return false, nil
}
func (m *MockMetadataStore) AddBlockRule(ctx context.Context, rule *metadata.BlockRule) error {
	return nil
}
func (m *MockMetadataStore) ListActiveBlockRules(ctx context.Context) ([]*metadata.BlockRule, error) {
	return nil, nil
}

func (m *MockMetadataStore) OpenSession(ctx context.Context) (*metadata.Session, error) {
	return nil, nil
}
func (m *MockMetadataStore) RecordSessionAccess(ctx context.Context, access *metadata.SessionFileAccess) error {
	return nil
}
func (m *MockMetadataStore) CloseSession(ctx context.Context, sessionID string) error { return nil }
func (m *MockMetadataStore) GetCoOccurringFiles(ctx context.Context, fileID string, within time.Duration) (map[string]int, error) {
	return nil, nil
}

func (m *MockMetadataStore) EnqueueTask(ctx context.Context, task *metadata.IndexTask) error {
	return nil
}
func (m *MockMetadataStore) NextTask(ctx context.Context) (*metadata.IndexTask, error) {
	return nil, nil
}
func (m *MockMetadataStore) UpdateTaskState(ctx context.Context, id string, state metadata.TaskState, lastErr string) error {
	return nil
}
func (m *MockMetadataStore) ScheduleTaskRetry(ctx context.Context, id string, lastErr string, nextRetryAt time.Time) error {
	return nil
}
func (m *MockMetadataStore) RequeueProcessingTasks(ctx context.Context) (int, error) {
	return 0, nil
}
func (m *MockMetadataStore) CountTasksByState(ctx context.Context, state metadata.TaskState) (int, error) {
	return 0, nil
}
func (m *MockMetadataStore) ListDeadLetter(ctx context.Context, limit int) ([]*metadata.IndexTask, error) {
	return nil, nil
}
func (m *MockMetadataStore) RequeueDeadLetter(ctx context.Context, id string) error { return nil }
func (m *MockMetadataStore) ClearDeadLetter(ctx context.Context) (int, error)       { return 0, nil }

func (m *MockMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	return m.state[key], nil
}

func (m *MockMetadataStore) SetState(ctx context.Context, key, value string) error {
	m.state[key] = value
	return nil
}

func (m *MockMetadataStore) GetCloudUsage(ctx context.Context, month string) (*metadata.CloudUsage, error) {
	return &metadata.CloudUsage{Month: month}, nil
}

func (m *MockMetadataStore) RecordCloudUsage(ctx context.Context, month string, requests, tokens, costMicros int64) (*metadata.CloudUsage, error) {
	return &metadata.CloudUsage{Month: month, RequestCount: requests, TokenCount: tokens, CostEstimateMicros: costMicros}, nil
}

func (m *MockMetadataStore) AppliedMigrations(ctx context.Context) ([]metadata.MigrationRecord, error) {
	return nil, nil
}

func (m *MockMetadataStore) Close() error { return nil }

var _ metadata.Store = (*MockMetadataStore)(nil)
