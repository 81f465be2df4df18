package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aimerfeng/neuralfs/internal/embed"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/telemetry"
	"github.com/aimerfeng/neuralfs/internal/textindex"
	"github.com/aimerfeng/neuralfs/internal/vector"
)

// VectorIndex is the subset of *vector.Store the engine needs, narrowed to
// an interface so tests can substitute a fake.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int, filter vector.FilterFunc) ([]*vector.Result, error)
	Delete(ctx context.Context, ids []string) error
	Count() int
	Close() error
}

// Engine implements hybrid search: one sparse and one dense retrieval per
// query, run concurrently, fused by weighted min-max combination, then
// boosted by filename and tag matches.
type Engine struct {
	bm25       textindex.Index
	vector     VectorIndex
	embedder   embed.Embedder
	metadata   metadata.Store
	config     EngineConfig
	classifier Classifier              // picks fusion weights per query
	metrics    *telemetry.QueryMetrics // optional query telemetry collector
	expander   *QueryExpander          // optional synonym expansion for the sparse leg
	mu         sync.RWMutex
}

var _ SearchEngine = (*Engine)(nil)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrDimensionMismatch is returned when the query embedder's dimension
// doesn't match the dimension the vector index was built with, e.g. after
// an embedder fallback swap.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithClassifier replaces the default rule-based query classifier.
func WithClassifier(c Classifier) EngineOption {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithMetrics sets an optional query metrics collector. When set, query
// classification, latency, and zero-result counts are tracked locally.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithQueryExpander sets an optional synonym expander for the sparse leg.
// The dense leg always receives the original query: the embedding model
// handles synonymy natively, and expansion there adds noise.
func WithQueryExpander(exp *QueryExpander) EngineOption {
	return func(e *Engine) {
		e.expander = exp
	}
}

// NewEngine creates a hybrid search engine. Returns an error if any
// required dependency is nil.
func NewEngine(
	bm25 textindex.Index,
	vec VectorIndex,
	embedder embed.Embedder,
	metadataStore metadata.Store,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("%w: bm25 index is required", ErrNilDependency)
	}
	if vec == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	if metadataStore == nil {
		return nil, fmt.Errorf("%w: metadata store is required", ErrNilDependency)
	}
	if config.FilenameMatchBoost <= 0 {
		config.FilenameMatchBoost = DefaultConfig().FilenameMatchBoost
	}
	if config.ExactMatchBoost <= 0 {
		config.ExactMatchBoost = DefaultConfig().ExactMatchBoost
	}
	e := &Engine{
		bm25:       bm25,
		vector:     vec,
		embedder:   embedder,
		metadata:   metadataStore,
		config:     config,
		classifier: NewRuleClassifier(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes one hybrid query: classify, retrieve both sources in
// parallel, fuse, boost, order, clamp, filter, truncate.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if e.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.SearchTimeout)
		defer cancel()
	}

	queryType := QueryTypeMixed
	if qt, weights, err := e.classifier.Classify(ctx, query); err == nil {
		queryType = qt
		if opts.Weights == nil {
			opts.Weights = &weights
		}
	}
	opts = e.applyDefaults(opts)

	sparseOnly := opts.BM25Only
	if !sparseOnly {
		if err := e.validateDimensions(ctx); err != nil {
			slog.Warn("dimension mismatch detected, dense retrieval disabled",
				slog.String("error", err.Error()),
				slog.String("recovery", "neuralfsd --reindex"))
			sparseOnly = true
		}
	}

	var (
		bm25Results []*textindex.Result
		vecResults  []*vector.Result
		searchErr   error
	)
	if sparseOnly {
		bm25Results, searchErr = e.bm25.Search(ctx, e.sparseQuery(query), opts.Limit*2)
		if searchErr != nil {
			return nil, fmt.Errorf("bm25 search: %w", searchErr)
		}
		queryType = QueryTypeLexical
		w := Weights{BM25: 1.0}
		opts.Weights = &w
	} else {
		bm25Results, vecResults, searchErr = e.parallelSearch(ctx, query, opts.Limit*2)
		if searchErr != nil && bm25Results == nil && vecResults == nil {
			return nil, searchErr
		}
		// One source failing degrades to the other rather than erroring.
	}

	fused := fuseWeighted(bm25Results, vecResults, *opts.Weights)

	enriched, err := e.enrichResults(ctx, fused)
	if err != nil {
		return nil, err
	}

	e.applyBoosts(ctx, query, enriched)
	orderResults(enriched)
	clampScores(enriched)

	filtered := ApplyFilters(enriched, opts)
	if len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	e.recordMetrics(query, queryType, len(filtered), time.Since(start))
	return filtered, nil
}

// sparseQuery expands the query for the sparse leg when an expander is
// configured.
func (e *Engine) sparseQuery(query string) string {
	if e.expander == nil {
		return query
	}
	expanded := e.expander.Expand(query)
	if expanded != query {
		slog.Debug("query expanded for bm25",
			slog.String("original", query),
			slog.String("expanded", expanded))
	}
	return expanded
}

// recordMetrics records query telemetry if a collector is configured.
func (e *Engine) recordMetrics(query string, queryType QueryType, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   telemetry.QueryType(strings.ToLower(string(queryType))),
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
}

// indexDimensionStateKey and indexModelStateKey track the embedder used to
// build the current vector index, so a later embedder swap (e.g. the
// service embedder falling back to the static one) is detected before
// searching against incompatible vectors.
const (
	indexDimensionStateKey = "index_dimension"
	indexModelStateKey     = "index_model"
)

// Index adds chunks to both the sparse and dense indices, embeds their
// content, and persists the chunk rows.
func (e *Engine) Index(ctx context.Context, chunks []*metadata.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := make([]*textindex.Document, len(chunks))
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = &textindex.Document{ID: c.ID, Content: c.Content}
		texts[i] = c.Content
		ids[i] = c.ID
	}

	embeddings, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}

	if err := e.bm25.Index(ctx, docs); err != nil {
		return fmt.Errorf("index in bm25: %w", err)
	}

	if err := e.vector.Add(ctx, ids, embeddings); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	if err := e.metadata.SaveChunks(ctx, chunks); err != nil {
		return fmt.Errorf("save chunks metadata: %w", err)
	}

	if err := e.storeIndexEmbeddingInfo(ctx); err != nil {
		slog.Warn("failed to store index embedding info",
			slog.String("error", err.Error()))
	}

	return nil
}

// storeIndexEmbeddingInfo saves the current embedder's dimension and model
// so a later embedder change is detectable.
func (e *Engine) storeIndexEmbeddingInfo(ctx context.Context) error {
	dim := fmt.Sprintf("%d", e.embedder.Dimensions())
	if err := e.metadata.SetState(ctx, indexDimensionStateKey, dim); err != nil {
		return fmt.Errorf("store index dimension: %w", err)
	}
	if err := e.metadata.SetState(ctx, indexModelStateKey, e.embedder.ModelName()); err != nil {
		return fmt.Errorf("store index model: %w", err)
	}
	return nil
}

// validateDimensions checks the current embedder dimension against the
// dimension recorded at index time. Nil when nothing was recorded yet.
func (e *Engine) validateDimensions(ctx context.Context) error {
	storedDim, err := e.metadata.GetState(ctx, indexDimensionStateKey)
	if err != nil || storedDim == "" {
		return nil
	}

	var indexDim int
	if _, err := fmt.Sscanf(storedDim, "%d", &indexDim); err != nil {
		slog.Warn("invalid stored index dimension", slog.String("value", storedDim))
		return nil
	}

	currentDim := e.embedder.Dimensions()
	if indexDim != currentDim {
		storedModel, _ := e.metadata.GetState(ctx, indexModelStateKey)
		return fmt.Errorf("%w: index has %d dimensions (%s), current embedder has %d dimensions (%s)",
			ErrDimensionMismatch, indexDim, storedModel, currentDim, e.embedder.ModelName())
	}
	return nil
}

// Delete removes chunks from the sparse and dense indices (best effort).
// It does not touch metadata chunk rows; callers driving a file-level
// reindex or removal use metadata.Store.DeleteChunksByFile directly, which
// is the source of truth for which chunks exist.
func (e *Engine) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error

	if err := e.bm25.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("bm25 delete failed, orphans will remain until compaction",
			slog.String("error", err.Error()),
			slog.Int("count", len(chunkIDs)))
		errs = append(errs, err)
	}

	if err := e.vector.Delete(ctx, chunkIDs); err != nil {
		slog.Warn("vector delete failed, orphans will remain until compaction",
			slog.String("error", err.Error()),
			slog.Int("count", len(chunkIDs)))
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Stats returns engine statistics.
func (e *Engine) Stats() *EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &EngineStats{
		BM25Stats:   e.bm25.Stats(),
		VectorCount: e.vector.Count(),
	}
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	if err := e.bm25.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.vector.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.metadata.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// applyDefaults fills in default values for search options.
func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Limit > e.config.MaxLimit {
		opts.Limit = e.config.MaxLimit
	}
	if opts.Filter == "" {
		opts.Filter = "all"
	}
	if opts.Weights == nil {
		w := e.config.DefaultWeights
		opts.Weights = &w
	}
	return opts
}

// parallelSearch executes the sparse and dense retrievals concurrently.
// Returns partial results on single-source failure.
func (e *Engine) parallelSearch(ctx context.Context, query string, limit int) (
	bm25Results []*textindex.Result,
	vecResults []*vector.Result,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var bm25Err, vecErr error

	g.Go(func() error {
		bm25Results, bm25Err = e.bm25.Search(gctx, e.sparseQuery(query), limit)
		return nil
	})

	g.Go(func() error {
		embedding, embedErr := e.embedder.Embed(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}
		vecResults, vecErr = e.vector.Search(gctx, embedding, limit, nil)
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, waitErr
	}

	if bm25Err != nil && vecErr != nil {
		return nil, nil, errors.Join(bm25Err, vecErr)
	}
	if bm25Err != nil {
		err = bm25Err
	} else if vecErr != nil {
		err = vecErr
	}
	return bm25Results, vecResults, err
}

// enrichResults fetches full chunk data and resolves each chunk's owning
// file path, in fused-result order.
func (e *Engine) enrichResults(ctx context.Context, fused []*fusedResult) ([]*SearchResult, error) {
	if len(fused) == 0 {
		return nil, nil
	}

	pathByFileID := make(map[string]string)
	results := make([]*SearchResult, 0, len(fused))
	for _, f := range fused {
		chunk, err := e.metadata.GetChunk(ctx, f.chunkID)
		if err != nil || chunk == nil {
			// A chunk fused from a stale BM25/vector entry may no longer
			// exist in metadata (e.g. its file was deleted); skip it.
			slog.Debug("skipping fused result with missing chunk",
				slog.String("chunk_id", f.chunkID))
			continue
		}

		path, ok := pathByFileID[chunk.FileID]
		if !ok {
			if file, ferr := e.metadata.GetFile(ctx, chunk.FileID); ferr == nil && file != nil {
				path = file.Path
			}
			pathByFileID[chunk.FileID] = path
		}

		results = append(results, &SearchResult{
			Chunk:        chunk,
			Path:         path,
			Score:        f.score,
			BM25Score:    f.bm25Score,
			VecScore:     f.vecScore,
			BM25Rank:     f.bm25Rank,
			VecRank:      f.vecRank,
			InBothLists:  f.inBothLists,
			Highlights:   calculateHighlights(chunk.Content, f.matchedTerms),
			MatchedTerms: f.matchedTerms,
		})
	}

	return results, nil
}

// applyBoosts multiplies scores for filename and exact-token matches.
// Scores may exceed 1 here; clampScores runs after ordering.
func (e *Engine) applyBoosts(ctx context.Context, query string, results []*SearchResult) {
	queryLower := strings.ToLower(strings.Trim(query, `"'`))
	tokens := strings.Fields(queryLower)

	tagNamesByFile := make(map[string]map[string]bool)
	for _, r := range results {
		if r.Path == "" {
			continue
		}
		name := strings.ToLower(filepath.Base(r.Path))
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		if strings.Contains(name, queryLower) {
			r.Score *= e.config.FilenameMatchBoost
		}

		exact := false
		for _, tok := range tokens {
			if tok == stem || tok == name {
				exact = true
				break
			}
		}
		if !exact && r.Chunk != nil && r.Chunk.FileID != "" && len(tokens) > 0 {
			names, ok := tagNamesByFile[r.Chunk.FileID]
			if !ok {
				names = e.lookupTagNames(ctx, r.Chunk.FileID)
				tagNamesByFile[r.Chunk.FileID] = names
			}
			for _, tok := range tokens {
				if names[tok] {
					exact = true
					break
				}
			}
		}
		if exact {
			r.Score *= e.config.ExactMatchBoost
		}
	}
}

// lookupTagNames resolves a file's tag names, lowercased. Lookup failures
// degrade to no boost.
func (e *Engine) lookupTagNames(ctx context.Context, fileID string) map[string]bool {
	names := map[string]bool{}
	rels, err := e.metadata.GetFileTags(ctx, fileID)
	if err != nil {
		return names
	}
	for _, rel := range rels {
		t, err := e.metadata.GetTag(ctx, rel.TagID)
		if err != nil || t == nil {
			continue
		}
		names[strings.ToLower(t.Name)] = true
	}
	return names
}

// orderResults sorts by score descending; ties break by owning file id
// ascending so repeated queries return a stable order.
func orderResults(results []*SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return fileIDOf(results[i]) < fileIDOf(results[j])
	})
}

func fileIDOf(r *SearchResult) string {
	if r.Chunk == nil {
		return ""
	}
	return r.Chunk.FileID
}

// clampScores bounds boosted scores back into [0,1]. Runs after ordering
// so boosts still decide rank even when several hits saturate.
func clampScores(results []*SearchResult) {
	for _, r := range results {
		if r.Score > 1 {
			r.Score = 1
		}
		if r.Score < 0 {
			r.Score = 0
		}
	}
}

// calculateHighlights finds content offsets for matched terms,
// case-insensitively, capped per term.
func calculateHighlights(content string, matchedTerms []string) []Range {
	if len(matchedTerms) == 0 || len(content) == 0 {
		return []Range{}
	}

	const maxMatchesPerTerm = 10
	highlights := make([]Range, 0, len(matchedTerms)*3)

	lowerContent := strings.ToLower(content)

	for _, term := range matchedTerms {
		if len(term) == 0 {
			continue
		}

		lowerTerm := strings.ToLower(term)
		start := 0
		matchCount := 0

		for matchCount < maxMatchesPerTerm {
			idx := strings.Index(lowerContent[start:], lowerTerm)
			if idx == -1 {
				break
			}

			absStart := start + idx
			highlights = append(highlights, Range{
				Start: absStart,
				End:   absStart + len(term),
			})

			start = absStart + len(term)
			matchCount++
		}
	}

	if len(highlights) > 1 {
		sort.Slice(highlights, func(i, j int) bool {
			return highlights[i].Start < highlights[j].Start
		})
	}

	return highlights
}
