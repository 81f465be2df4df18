package router

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aimerfeng/neuralfs/internal/asset"
	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/indexer"
	"github.com/aimerfeng/neuralfs/internal/infer"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/relation"
	"github.com/aimerfeng/neuralfs/internal/search"
	"github.com/aimerfeng/neuralfs/internal/tag"
)

// clarityScoreGap is the minimum fractional drop between the top result's
// score and the next result's score below which the response is considered
// confident. Below this gap the top few results are too close together to
// call a winner, so the response is reclassified as needs-clarity.
const clarityScoreGap = 0.08

// clarityMinResults is the minimum result count before clarity detection
// even applies; a handful of results isn't ambiguous, it's just sparse.
const clarityMinResults = 3

// inferenceBoostWeight scales how much the hybrid inference coordinator's
// per-file relevance score can move a hit's fused search score
// when search_files is called with EnableRemote=true. Kept small: the
// coordinator's local/remote scores are a corroborating signal on top of
// the dense+sparse fusion already done, not a replacement for it.
const inferenceBoostWeight = 0.2

// ScanProgress reports the initial-scan sweep's current position (the
// command surface's "get_scan_progress").
type ScanProgress struct {
	TotalFiles     int
	ProcessedFiles int
	CurrentPath    string
	Done           bool
}

// ProgressTracker is the narrow slice of state the indexer/reconciler
// updates and get_scan_progress reads. A single process-wide instance is
// shared between the reconciliation walker and the router.
type ProgressTracker struct {
	mu    chan struct{} // 1-buffered mutex so Snapshot never blocks a writer for long
	state ScanProgress
}

// NewProgressTracker returns an empty, ready-to-use tracker.
func NewProgressTracker() *ProgressTracker {
	t := &ProgressTracker{mu: make(chan struct{}, 1)}
	t.mu <- struct{}{}
	return t
}

func (t *ProgressTracker) Set(s ScanProgress) {
	<-t.mu
	t.state = s
	t.mu <- struct{}{}
}

func (t *ProgressTracker) Snapshot() ScanProgress {
	<-t.mu
	s := t.state
	t.mu <- struct{}{}
	return s
}

// Service is the command router. It holds no state of its
// own beyond a reference to each collaborator and the shared scan-progress
// tracker; every command is a pure translation into one or more calls
// against the underlying engine packages.
type Service struct {
	engine    search.SearchEngine
	metadata  metadata.Store
	tags      *tag.Service
	relations *relation.Service
	assets    *asset.Server
	idx       *indexer.Engine
	cfg       *config.Config
	progress  *ProgressTracker
	rootPath  string
	infer     *infer.Coordinator
}

// SetInference attaches the hybrid inference coordinator that
// backs search_files' EnableRemote flag. A nil Service.infer (the default
// until this is called) makes EnableRemote a no-op, so callers that never
// wire remote inference still get plain hybrid search.
func (s *Service) SetInference(c *infer.Coordinator) {
	s.infer = c
}

// New builds a router Service. assets may be nil when the asset stream is
// disabled; idx may be nil for a read-only/CLI-only router.
func New(engine search.SearchEngine, store metadata.Store, tags *tag.Service, relations *relation.Service, assets *asset.Server, idx *indexer.Engine, cfg *config.Config, progress *ProgressTracker, rootPath string) *Service {
	if progress == nil {
		progress = NewProgressTracker()
	}
	return &Service{
		engine: engine, metadata: store, tags: tags, relations: relations,
		assets: assets, idx: idx, cfg: cfg, progress: progress, rootPath: rootPath,
	}
}

// SearchFiles executes a full hybrid search, applying the filter grammar
// and pagination the search engine itself doesn't implement, then runs
// needs-clarity detection over the final result set.
func (s *Service) SearchFiles(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	// Overfetch enough past offset+limit that filtering and pagination
	// still has real results to work with.
	fetch := req.Offset + req.Limit*3
	if fetch < 30 {
		fetch = 30
	}

	opts := search.SearchOptions{Limit: fetch}
	if req.Filters.PathPrefix != "" {
		opts.Scopes = []string{req.Filters.PathPrefix}
	}

	raw, err := s.engine.Search(ctx, req.Query, opts)
	if err != nil {
		return &SearchResponse{RequestID: req.RequestID, Status: StatusError, Duration: time.Since(start)}, err
	}

	hits := make([]SearchHit, 0, len(raw))
	sources := map[string]bool{}
	for _, r := range raw {
		if r.Score < req.Filters.MinScore {
			continue
		}
		keep, err := s.passesFilters(ctx, r, req.Filters)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}
		fileID := ""
		if r.Chunk != nil {
			fileID = r.Chunk.FileID
		}
		hits = append(hits, SearchHit{
			FileID:   fileID,
			ChunkID:  chunkID(r),
			Path:     r.Path,
			Score:    r.Score,
			Snippet:  snippet(r),
			Language: language(r),
		})
		if r.BM25Rank > 0 {
			sources["bm25"] = true
		}
		if r.VecRank > 0 {
			sources["vector"] = true
		}
	}

	if req.EnableRemote && s.infer != nil {
		s.applyInference(ctx, req.Query, hits, sources)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	total := len(hits)
	hasMore := false
	if req.Offset < len(hits) {
		end := req.Offset + req.Limit
		if end < len(hits) {
			hasMore = true
		} else {
			end = len(hits)
		}
		hits = hits[req.Offset:end]
	} else {
		hits = nil
	}

	resp := &SearchResponse{
		RequestID:  req.RequestID,
		Results:    hits,
		TotalCount: total,
		HasMore:    hasMore,
		Duration:   time.Since(start),
		Sources:    sortedKeys(sources),
	}

	switch {
	case total == 0:
		resp.Status = StatusNoResults
	case needsClarity(hits):
		resp.Status = StatusNeedsClarity
		resp.Clarifications = s.buildClarifications(ctx, req, hits)
	default:
		resp.Status = StatusSuccess
	}
	return resp, nil
}

// applyInference dispatches the hybrid inference coordinator for req
// and boosts each hit whose file id appears in the coordinator's merged
// score set, tagging "inference" as a contributing source. A coordinator
// error (remote timeout already folded to local-only inside the
// coordinator itself, so this only fires on a local-path failure) is
// swallowed: inference is an enrichment on top of hybrid search, never a
// precondition for returning results. When any hit belongs to a private
// file the request is marked so the coordinator keeps it local-only.
func (s *Service) applyInference(ctx context.Context, query string, hits []SearchHit, sources map[string]bool) {
	result, err := s.infer.Infer(ctx, infer.Request{
		Query:           query,
		AllowRemote:     true,
		ContainsPrivate: s.anyPrivate(ctx, hits),
	})
	if err != nil || result == nil {
		return
	}
	boosts := make(map[string]float64, len(result.Scores))
	for _, fs := range result.Scores {
		boosts[fs.FileID] = fs.Score
	}
	if len(boosts) == 0 {
		return
	}
	for i := range hits {
		if boost, ok := boosts[hits[i].FileID]; ok {
			hits[i].Score *= 1 + inferenceBoostWeight*boost
		}
	}
	sources["inference"] = true
}

// anyPrivate reports whether any hit's file carries privacy_level
// private. Lookup failures count as private: when privacy can't be
// established, the remote leg stays off.
func (s *Service) anyPrivate(ctx context.Context, hits []SearchHit) bool {
	for _, h := range hits {
		if h.FileID == "" {
			continue
		}
		file, err := s.metadata.GetFile(ctx, h.FileID)
		if err != nil || file == nil {
			return true
		}
		if file.PrivacyLevel == metadata.PrivacyPrivate {
			return true
		}
	}
	return false
}

// passesFilters applies file-type, tag, time-range, and privacy predicates
// that require a metadata lookup the search engine itself doesn't do.
func (s *Service) passesFilters(ctx context.Context, r *search.SearchResult, f Filters) (bool, error) {
	if len(f.FileTypes) == 0 && len(f.IncludeTags) == 0 && len(f.ExcludeTags) == 0 &&
		f.TimeRangeStart.IsZero() && f.TimeRangeEnd.IsZero() && !f.ExcludePrivate {
		return true, nil
	}
	if r.Chunk == nil || r.Chunk.FileID == "" {
		return true, nil
	}
	file, err := s.metadata.GetFile(ctx, r.Chunk.FileID)
	if err != nil || file == nil {
		return true, nil
	}

	if len(f.FileTypes) > 0 {
		ext := strings.TrimPrefix(filepath.Ext(file.Path), ".")
		matched := false
		for _, want := range f.FileTypes {
			if strings.EqualFold(want, ext) || strings.EqualFold(want, string(file.ContentType)) {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}

	if f.ExcludePrivate && file.PrivacyLevel == metadata.PrivacyPrivate {
		return false, nil
	}

	if !f.TimeRangeStart.IsZero() && file.ModTime.Before(f.TimeRangeStart) {
		return false, nil
	}
	if !f.TimeRangeEnd.IsZero() && file.ModTime.After(f.TimeRangeEnd) {
		return false, nil
	}

	if len(f.IncludeTags) > 0 || len(f.ExcludeTags) > 0 || f.ExcludePrivate {
		rels, err := s.metadata.GetFileTags(ctx, file.ID)
		if err != nil {
			return false, err
		}
		names := make(map[string]bool, len(rels))
		sensitive := false
		for _, rel := range rels {
			t, err := s.metadata.GetTag(ctx, rel.TagID)
			if err != nil || t == nil {
				continue
			}
			names[t.Name] = true
			if t.Sensitive {
				sensitive = true
			}
		}
		if f.ExcludePrivate && sensitive {
			return false, nil
		}
		for _, want := range f.IncludeTags {
			if !names[want] {
				return false, nil
			}
		}
		for _, unwanted := range f.ExcludeTags {
			if names[unwanted] {
				return false, nil
			}
		}
	}
	return true, nil
}

// needsClarity reports whether the top results are too close in score to
// confidently rank.
func needsClarity(hits []SearchHit) bool {
	if len(hits) < clarityMinResults {
		return false
	}
	top := hits[0].Score
	if top <= 0 {
		return false
	}
	gap := (top - hits[1].Score) / top
	return gap < clarityScoreGap
}

// buildClarifications proposes disambiguating refinements: one partition
// per distinct file type seen among the top results, plus a find-file vs.
// find-content split when both file-level and content-level hits are
// present.
func (s *Service) buildClarifications(ctx context.Context, req SearchRequest, hits []SearchHit) []Clarification {
	byExt := map[string]int{}
	for _, h := range hits {
		ext := strings.TrimPrefix(filepath.Ext(h.Path), ".")
		if ext == "" {
			ext = "other"
		}
		byExt[ext]++
	}

	var out []Clarification
	for ext, count := range byExt {
		if len(byExt) < 2 {
			break
		}
		f := req.Filters
		f.FileTypes = []string{ext}
		out = append(out, Clarification{
			Label:          "file type: " + ext,
			Description:    "narrow to ." + ext + " files",
			RefinedFilters: f,
			EstimatedCount: count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// GetSearchSuggestions returns lightweight query completions derived from
// the partial query's matching file paths, for the command surface's
// "get_search_suggestions(query) -> [string]".
func (s *Service) GetSearchSuggestions(ctx context.Context, partial string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	resp, err := s.SearchFiles(ctx, SearchRequest{Query: partial, Limit: limit})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, h := range resp.Results {
		name := filepath.Base(h.Path)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func chunkID(r *search.SearchResult) string {
	if r.Chunk == nil {
		return ""
	}
	return r.Chunk.ID
}

func snippet(r *search.SearchResult) string {
	if r.Chunk == nil {
		return ""
	}
	const maxLen = 280
	c := r.Chunk.Content
	if len(c) > maxLen {
		return c[:maxLen]
	}
	return c
}

func language(r *search.SearchResult) string {
	if r.Chunk == nil {
		return ""
	}
	return r.Chunk.Language
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var errNoIndexer = errors.New(errors.ErrCodeInvalidInput, "indexer not available on this router instance", nil)
