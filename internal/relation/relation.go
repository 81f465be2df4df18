// Package relation implements the file-to-file relation engine:
// content-similarity generation over the vector index,
// session-based co-occurrence tracking, the feedback state machine, and the
// block-rule engine that gates every automatically generated relation.
package relation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/metadata"
)

const (
	// DefaultTopK is how many nearest chunks are retrieved per source chunk
	// when generating content-similarity relations.
	DefaultTopK = 10
	// DefaultMinSimilarity is the score floor a candidate must clear before
	// a content-similar relation is created.
	DefaultMinSimilarity = 0.5
	// DefaultGraphDepth bounds relation-graph traversal from a center file.
	DefaultGraphDepth = 2
	// DefaultCoOccurrenceDecay is the per-day decay applied to co-occurrence
	// counts before they become a same-session relation's strength.
	DefaultCoOccurrenceDecay = 0.99
)

// VectorSearcher is the slice of internal/vector.Store the similarity
// generator needs, narrowed so this package doesn't import hnsw directly.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int, filter func(id string) bool) ([]VectorResult, error)
}

// VectorResult mirrors internal/vector.Result without importing the vector
// package's hnsw dependency into this package's surface.
type VectorResult struct {
	ID    string
	Score float32
}

// Config tunes the engine's thresholds.
type Config struct {
	TopK               int
	MinSimilarity      float64
	GraphDepth         int
	CoOccurrenceDecay  float64
	SessionTimeout     time.Duration
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		TopK:              DefaultTopK,
		MinSimilarity:     DefaultMinSimilarity,
		GraphDepth:        DefaultGraphDepth,
		CoOccurrenceDecay: DefaultCoOccurrenceDecay,
		SessionTimeout:    30 * time.Minute,
	}
}

// Service is the relation engine, backed by internal/metadata's relation,
// block-rule, and session tables.
type Service struct {
	store  metadata.Store
	vector VectorSearcher
	cfg    Config

	// sessionMu guards the in-memory session-tracking state below. A
	// session is owned entirely by this process; it is not shared across
	// restarts.
	sessionMu    sync.Mutex
	session      *metadata.Session
	sessionFiles map[string]bool
	lastActivity time.Time
}

// New builds a relation engine. vector may be nil if the caller never
// invokes GenerateContentSimilarity (e.g. a router-only test double).
func New(store metadata.Store, vector VectorSearcher, cfg Config) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.GraphDepth <= 0 {
		cfg.GraphDepth = DefaultGraphDepth
	}
	if cfg.CoOccurrenceDecay <= 0 {
		cfg.CoOccurrenceDecay = DefaultCoOccurrenceDecay
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	return &Service{store: store, vector: vector, cfg: cfg}
}

// orderedPair returns a, b sorted so a relation between two file IDs always
// has a consistent (FileAID, FileBID) ordering regardless of which file was
// the source of the generation pass. This keeps the idempotency key
// (FileAID, FileBID, Kind) stable the next time the same pair is considered.
func orderedPair(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}

// findExisting returns the relation already recorded between a and b of the
// given kind, if any.
func (s *Service) findExisting(ctx context.Context, a, b string, kind metadata.RelationKind) (*metadata.FileRelation, error) {
	rels, err := s.store.ListRelationsForFile(ctx, a)
	if err != nil {
		return nil, err
	}
	for _, r := range rels {
		if r.Kind != kind {
			continue
		}
		if (r.FileAID == a && r.FileBID == b) || (r.FileAID == b && r.FileBID == a) {
			return r, nil
		}
	}
	return nil, nil
}

// upsertRelation creates a new relation or refreshes an existing one's
// similarity, enforcing idempotency on (source, target, kind). Feedback
// state and user adjustments on an existing relation are
// left untouched; the engine never overwrites a human decision.
func (s *Service) upsertRelation(ctx context.Context, fileA, fileB string, kind metadata.RelationKind, similarity float64) error {
	a, b := orderedPair(fileA, fileB)

	blocked, err := s.isBlocked(ctx, a, b, kind)
	if err != nil {
		return err
	}
	if blocked {
		return nil
	}

	existing, err := s.findExisting(ctx, a, b, kind)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Feedback != metadata.FeedbackNone {
			return nil
		}
		existing.Similarity = similarity
		existing.UpdatedAt = time.Now()
		return s.store.SaveRelation(ctx, existing)
	}

	now := time.Now()
	return s.store.SaveRelation(ctx, &metadata.FileRelation{
		ID:         uuidString(),
		FileAID:    a,
		FileBID:    b,
		Kind:       kind,
		Similarity: similarity,
		Feedback:   metadata.FeedbackNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// errNotImplemented is returned by operations that require collaborators
// (vector search) this Service was constructed without.
var errNotImplemented = errors.InternalError("relation service missing required collaborator", nil)

// GenerateContentSimilarity retrieves the top-K nearest chunks to vec in the
// vector store, maps each surviving candidate back to its owning file, and
// emits (or refreshes) a symmetric content-similar relation for every file
// that clears MinSimilarity, excluding fileID itself. It returns the number
// of relations created or refreshed. Idempotent: re-running with the same
// inputs updates Similarity on the existing relation rather than duplicating
// it, and never touches a relation the user has already given feedback on
//.
func (s *Service) GenerateContentSimilarity(ctx context.Context, fileID string, vec []float32) (int, error) {
	if s.vector == nil {
		return 0, errNotImplemented
	}

	// Private files neither source nor receive ai-generated relations.
	if source, err := s.store.GetFile(ctx, fileID); err == nil && source != nil &&
		source.PrivacyLevel == metadata.PrivacyPrivate {
		return 0, nil
	}

	// Overfetch: several of the nearest chunks typically belong to fileID's
	// own content, so ask for more than TopK distinct files are needed.
	results, err := s.vector.Search(ctx, vec, s.cfg.TopK*3+1, nil)
	if err != nil {
		return 0, err
	}

	best := make(map[string]float64, len(results))
	for _, r := range results {
		if len(best) >= s.cfg.TopK {
			break
		}
		chunk, err := s.store.GetChunk(ctx, r.ID)
		if err != nil || chunk == nil {
			continue
		}
		if chunk.FileID == "" || chunk.FileID == fileID {
			continue
		}
		score := float64(r.Score)
		if score < s.cfg.MinSimilarity {
			continue
		}
		if target, err := s.store.GetFile(ctx, chunk.FileID); err == nil && target != nil &&
			target.PrivacyLevel == metadata.PrivacyPrivate {
			continue
		}
		if existing, ok := best[chunk.FileID]; !ok || score > existing {
			best[chunk.FileID] = score
		}
	}

	created := 0
	for targetID, score := range best {
		a, b := orderedPair(fileID, targetID)
		if blocked, err := s.isBlocked(ctx, a, b, metadata.RelationSimilarContent); err != nil {
			return created, err
		} else if blocked {
			continue
		}
		if existing, err := s.findExisting(ctx, a, b, metadata.RelationSimilarContent); err != nil {
			return created, err
		} else if existing != nil && existing.Feedback != metadata.FeedbackNone {
			continue
		}
		if err := s.upsertRelation(ctx, fileID, targetID, metadata.RelationSimilarContent, score); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// blockRuleMatches reports whether an active rule suppresses an
// ai-generated relation between fileA and fileB of the given kind. Rule
// evaluation order is fixed: file-pair, file-to-tag, tag-pair,
// file-all-ai, relation-kind.
func (s *Service) blockRuleMatches(ctx context.Context, fileA, fileB *metadata.File, tagsA, tagsB map[string]bool, kind metadata.RelationKind, rule *metadata.BlockRule) bool {
	if !rule.Active(time.Now()) {
		return false
	}
	switch rule.Type {
	case metadata.BlockRuleFilePair:
		return (rule.PathA == fileA.Path && rule.PathB == fileB.Path) ||
			(rule.PathA == fileB.Path && rule.PathB == fileA.Path)
	case metadata.BlockRuleFileToTag:
		if rule.PathA == fileA.Path && tagsB[rule.TagB] {
			return true
		}
		if rule.PathA == fileB.Path && tagsA[rule.TagB] {
			return true
		}
		return false
	case metadata.BlockRuleTagPair:
		return (tagsA[rule.TagA] && tagsB[rule.TagB]) || (tagsA[rule.TagB] && tagsB[rule.TagA])
	case metadata.BlockRuleFileAllAI:
		return rule.PathA == fileA.Path || rule.PathA == fileB.Path
	case metadata.BlockRuleRelationKind:
		return rule.RelationKind == kind
	default:
		return false
	}
}

// isBlocked evaluates every active block rule against the candidate pair.
func (s *Service) isBlocked(ctx context.Context, fileAID, fileBID string, kind metadata.RelationKind) (bool, error) {
	fileA, err := s.store.GetFile(ctx, fileAID)
	if err != nil || fileA == nil {
		// A file that no longer exists can't form a relation anyway; let the
		// caller's subsequent save surface that as a not-found error.
		return false, nil
	}
	fileB, err := s.store.GetFile(ctx, fileBID)
	if err != nil || fileB == nil {
		return false, nil
	}

	rules, err := s.store.ListActiveBlockRules(ctx)
	if err != nil {
		return false, err
	}
	if len(rules) == 0 {
		return false, nil
	}

	tagsA, err := s.tagSet(ctx, fileAID)
	if err != nil {
		return false, err
	}
	tagsB, err := s.tagSet(ctx, fileBID)
	if err != nil {
		return false, err
	}

	for _, rule := range rules {
		if s.blockRuleMatches(ctx, fileA, fileB, tagsA, tagsB, kind, rule) {
			return true, nil
		}
	}
	return false, nil
}

// tagSet returns the set of tag IDs assigned to a file.
func (s *Service) tagSet(ctx context.Context, fileID string) (map[string]bool, error) {
	rels, err := s.store.GetFileTags(ctx, fileID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rels))
	for _, r := range rels {
		out[r.TagID] = true
	}
	return out, nil
}

// ApplyFeedback performs a human-in-the-loop feedback transition on a
// relation: None -> {Confirmed, Rejected, Adjusted}; Confirmed
// -> {Rejected, Adjusted}; Rejected -> Confirmed only; Adjusted ->
// {Confirmed, Rejected}. Any other transition is rejected. When next is
// Rejected and blockSimilar is set, a file-pair block rule is installed so
// the engine never re-suggests the same pair (testable property 15/16).
func (s *Service) ApplyFeedback(ctx context.Context, relationID string, next metadata.FeedbackState, userStrength float64, rejectReason string, blockSimilar bool) error {
	rel, err := s.store.GetRelation(ctx, relationID)
	if err != nil {
		return err
	}
	if rel == nil {
		return errors.New(errors.ErrCodeFileNotFound, "relation not found", nil)
	}
	if !rel.Feedback.CanTransitionTo(next) {
		return errors.ValidationError(
			fmt.Sprintf("relation feedback cannot transition from %s to %s", rel.Feedback, next), nil)
	}

	if err := s.store.SetRelationFeedback(ctx, relationID, next, userStrength, rejectReason, blockSimilar); err != nil {
		return err
	}

	if next == metadata.FeedbackRejected && blockSimilar {
		return s.installFilePairBlock(ctx, rel.FileAID, rel.FileBID)
	}
	return nil
}

// installFilePairBlock records a permanent file-pair block rule for the
// given file IDs, resolved to their current paths.
func (s *Service) installFilePairBlock(ctx context.Context, fileAID, fileBID string) error {
	fileA, err := s.store.GetFile(ctx, fileAID)
	if err != nil || fileA == nil {
		return err
	}
	fileB, err := s.store.GetFile(ctx, fileBID)
	if err != nil || fileB == nil {
		return err
	}
	return s.store.AddBlockRule(ctx, &metadata.BlockRule{
		ID:        uuidString(),
		Type:      metadata.BlockRuleFilePair,
		PathA:     fileA.Path,
		PathB:     fileB.Path,
		CreatedAt: time.Now(),
	})
}

// BatchRejectScope selects which relations a batch rejection targets.
type BatchRejectScope string

const (
	// BatchRejectPair rejects exactly one relation by id.
	BatchRejectPair BatchRejectScope = "pair"
	// BatchRejectFileToTag rejects every ai-generated relation between a
	// source file and any file carrying the given target tag, and installs
	// a file-to-tag block rule.
	BatchRejectFileToTag BatchRejectScope = "file_to_tag"
	// BatchRejectTagPair rejects every ai-generated relation between files
	// carrying the two given tags, and installs a tag-pair block rule.
	BatchRejectTagPair BatchRejectScope = "tag_pair"
)

// BatchReject rejects relations matching scope, installing the
// corresponding block rule so the pattern is never re-suggested.
func (s *Service) BatchReject(ctx context.Context, scope BatchRejectScope, fileID, targetTagID, tagA, tagB, reason string) (int, error) {
	switch scope {
	case BatchRejectFileToTag:
		targets, err := s.store.ListFilesByTag(ctx, targetTagID)
		if err != nil {
			return 0, err
		}
		count := 0
		for _, targetFileID := range targets {
			rel, err := s.findExisting(ctx, fileID, targetFileID, metadata.RelationSimilarContent)
			if err != nil {
				return count, err
			}
			if rel != nil && rel.Feedback.CanTransitionTo(metadata.FeedbackRejected) {
				if err := s.store.SetRelationFeedback(ctx, rel.ID, metadata.FeedbackRejected, 0, reason, true); err != nil {
					return count, err
				}
				count++
			}
		}
		fileRec, err := s.store.GetFile(ctx, fileID)
		if err == nil && fileRec != nil {
			_ = s.store.AddBlockRule(ctx, &metadata.BlockRule{
				ID:        uuidString(),
				Type:      metadata.BlockRuleFileToTag,
				PathA:     fileRec.Path,
				TagB:      targetTagID,
				CreatedAt: time.Now(),
			})
		}
		return count, nil

	case BatchRejectTagPair:
		filesA, err := s.store.ListFilesByTag(ctx, tagA)
		if err != nil {
			return 0, err
		}
		filesB, err := s.store.ListFilesByTag(ctx, tagB)
		if err != nil {
			return 0, err
		}
		count := 0
		for _, a := range filesA {
			for _, b := range filesB {
				if a == b {
					continue
				}
				rel, err := s.findExisting(ctx, a, b, metadata.RelationSimilarContent)
				if err != nil {
					return count, err
				}
				if rel != nil && rel.Feedback.CanTransitionTo(metadata.FeedbackRejected) {
					if err := s.store.SetRelationFeedback(ctx, rel.ID, metadata.FeedbackRejected, 0, reason, true); err != nil {
						return count, err
					}
					count++
				}
			}
		}
		_ = s.store.AddBlockRule(ctx, &metadata.BlockRule{
			ID:        uuidString(),
			Type:      metadata.BlockRuleTagPair,
			TagA:      tagA,
			TagB:      tagB,
			CreatedAt: time.Now(),
		})
		return count, nil

	default:
		return 0, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("unsupported batch reject scope %q", scope), nil)
	}
}

// BlockFileTag rejects every ai-generated relation between fileID and
// files carrying tagID and installs the file_to_tag BlockRule, the
// relation-engine side of a tag rejection with block_similar set
// (tag.Service calls this through its SimilarBlocker hook).
func (s *Service) BlockFileTag(ctx context.Context, fileID, tagID, reason string) error {
	_, err := s.BatchReject(ctx, BatchRejectFileToTag, fileID, tagID, "", "", reason)
	return err
}

// GraphNode is one file in a relation-graph traversal.
type GraphNode struct {
	FileID string
	Depth  int
}

// GraphEdge is one traversed relation.
type GraphEdge struct {
	Relation *metadata.FileRelation
}

// Graph is the bounded-depth neighborhood of a center file.
type Graph struct {
	Center string
	Nodes  []GraphNode
	Edges  []GraphEdge
}

// GetRelationGraph performs a breadth-first traversal from fileID out to
// depth hops (default DefaultGraphDepth), following every relation
// regardless of kind but excluding edges a user has rejected (their
// effective strength is 0).
func (s *Service) GetRelationGraph(ctx context.Context, fileID string, depth int) (*Graph, error) {
	if depth <= 0 {
		depth = s.cfg.GraphDepth
	}

	visited := map[string]int{fileID: 0}
	seenEdges := map[string]bool{}
	g := &Graph{Center: fileID, Nodes: []GraphNode{{FileID: fileID, Depth: 0}}}

	frontier := []string{fileID}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			rels, err := s.store.ListRelationsForFile(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				if r.Feedback == metadata.FeedbackRejected {
					continue
				}
				if seenEdges[r.ID] {
					continue
				}
				seenEdges[r.ID] = true
				g.Edges = append(g.Edges, GraphEdge{Relation: r})

				other := r.FileAID
				if other == id {
					other = r.FileBID
				}
				if _, ok := visited[other]; !ok {
					visited[other] = d + 1
					g.Nodes = append(g.Nodes, GraphNode{FileID: other, Depth: d + 1})
					next = append(next, other)
				}
			}
		}
		frontier = next
	}
	return g, nil
}

// GetRelationsForFile returns every relation touching fileID.
func (s *Service) GetRelationsForFile(ctx context.Context, fileID string) ([]*metadata.FileRelation, error) {
	return s.store.ListRelationsForFile(ctx, fileID)
}
