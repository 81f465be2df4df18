// Package tag implements the tag hierarchy, auto-tagging, and correction
// command surface, layered on top of internal/metadata's
// Tag/FileTagRelation storage primitives.
package tag

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// maxDepth mirrors metadata's storage-level enforcement (depth 0-2, three
// levels total) so invalid hierarchy moves are rejected before they ever
// reach a SQL constraint.
const maxDepth = 3

// MaxAutoTags bounds how many content-derived tags AutoTag assigns per
// file.
const MaxAutoTags = 5

// MinAutoTagConfidence is the minimum confidence for an auto-assigned
// content-derived tag.
const MinAutoTagConfidence = 0.5

// SimilarBlocker installs a block that suppresses future AI suggestion
// of a tag for similar files. internal/relation's Service satisfies it:
// its implementation rejects matching ai-generated relations and records
// a file_to_tag BlockRule, which is relation-engine state, not tag state.
type SimilarBlocker interface {
	BlockFileTag(ctx context.Context, fileID, tagID, reason string) error
}

// Service manages the tag hierarchy and file-tag assignments.
type Service struct {
	store        metadata.Store
	sensitiveSet map[string]struct{}
	blocker      SimilarBlocker
}

// SetSimilarBlocker attaches the relation-engine hook Reject uses when a
// rejection asks to block similar suggestions. A nil blocker (the
// default) makes block_similar a plain rejection.
func (s *Service) SetSimilarBlocker(b SimilarBlocker) {
	s.blocker = b
}

// New builds a Service. sensitiveTags is the configured lexicon of tag
// names that are never auto-confirmed (config.PrivacyConfig.SensitiveTags).
func New(store metadata.Store, sensitiveTags []string) *Service {
	set := make(map[string]struct{}, len(sensitiveTags))
	for _, t := range sensitiveTags {
		set[strings.ToLower(t)] = struct{}{}
	}
	return &Service{store: store, sensitiveSet: set}
}

// isSensitive reports whether name, or any word of it (split on
// non-alphanumeric characters), matches the configured sensitive-tag
// lexicon, case-insensitively.
func (s *Service) isSensitive(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := s.sensitiveSet[lower]; ok {
		return true
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := s.sensitiveSet[w]; ok {
			return true
		}
	}
	return false
}

// CreateTag creates a new tag under parentID (empty for a root tag),
// rejecting names that would exceed the maximum hierarchy depth.
// Sensitivity is derived from the configured lexicon unless forceSensitive
// is true: sensitive tags are a superset the operator can extend but
// auto-tagging can never shrink.
func (s *Service) CreateTag(ctx context.Context, name, parentID string, forceSensitive bool) (*metadata.Tag, error) {
	depth := 0
	if parentID != "" {
		parent, err := s.store.GetTag(ctx, parentID)
		if err != nil {
			return nil, err
		}
		depth = parent.Depth + 1
	}
	if depth >= maxDepth {
		return nil, errors.ValidationError("tag hierarchy cannot exceed 3 levels", nil)
	}

	if existing, err := s.store.FindTagByName(ctx, parentID, name); err == nil && existing != nil {
		return existing, nil
	}

	t := &metadata.Tag{
		ID:        uuid.NewString(),
		Name:      name,
		ParentID:  parentID,
		Depth:     depth,
		Sensitive: forceSensitive || s.isSensitive(name),
		CreatedAt: time.Now(),
	}
	if err := s.store.SaveTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RenameTag changes a tag's display name in place. The tag's position in
// the hierarchy, sensitivity flag, and all file assignments are untouched.
func (s *Service) RenameTag(ctx context.Context, tagID, newName string) (*metadata.Tag, error) {
	t, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	t.Name = newName
	if err := s.store.SaveTag(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SetParent moves a tag (and implicitly its whole subtree, since each
// descendant's Depth is relative to its own parent_id chain) to a new
// parent, rejecting moves that would create a cycle or exceed max depth.
func (s *Service) SetParent(ctx context.Context, tagID, newParentID string) error {
	if tagID == newParentID {
		return errors.ValidationError("a tag cannot be its own parent", nil)
	}

	newDepth := 0
	if newParentID != "" {
		parent, err := s.store.GetTag(ctx, newParentID)
		if err != nil {
			return err
		}
		newDepth = parent.Depth + 1

		if isDescendant, err := s.isDescendantOf(ctx, newParentID, tagID); err != nil {
			return err
		} else if isDescendant {
			return errors.ValidationError("moving a tag under its own descendant would create a cycle", nil)
		}
	}
	if newDepth >= maxDepth {
		return errors.ValidationError("tag hierarchy cannot exceed 3 levels", nil)
	}

	return s.store.ReparentTag(ctx, tagID, newParentID, newDepth)
}

// isDescendantOf reports whether candidate is in ancestorID's subtree, by
// walking up candidate's parent chain. Used to reject cycle-forming moves.
func (s *Service) isDescendantOf(ctx context.Context, candidate, ancestorID string) (bool, error) {
	current := candidate
	for depth := 0; depth < maxDepth+1; depth++ {
		if current == ancestorID {
			return true, nil
		}
		t, err := s.store.GetTag(ctx, current)
		if err != nil || t.ParentID == "" {
			return false, nil
		}
		current = t.ParentID
	}
	return false, nil
}

// MergeTag reassigns every file carrying sourceID to targetID and deletes
// sourceID. Children of sourceID are reparented onto targetID rather than
// orphaned.
func (s *Service) MergeTag(ctx context.Context, sourceID, targetID string) error {
	if sourceID == targetID {
		return errors.ValidationError("cannot merge a tag into itself", nil)
	}
	target, err := s.store.GetTag(ctx, targetID)
	if err != nil {
		return err
	}

	children, err := s.store.ListChildTags(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if target.Depth+1 >= maxDepth {
			continue // dropping the child rather than violating max depth; caller can re-home it manually
		}
		if err := s.store.ReparentTag(ctx, c.ID, targetID, target.Depth+1); err != nil {
			return err
		}
	}

	if err := s.store.ReassignFileTags(ctx, sourceID, targetID); err != nil {
		return err
	}
	return s.store.DeleteTag(ctx, sourceID)
}

// DeleteTag removes a tag outright. Children are reparented to the
// deleted tag's own parent so the rest of the hierarchy survives.
func (s *Service) DeleteTag(ctx context.Context, tagID string) error {
	t, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return err
	}
	children, err := s.store.ListChildTags(ctx, tagID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.store.ReparentTag(ctx, c.ID, t.ParentID, t.Depth); err != nil {
			return err
		}
	}
	return s.store.DeleteTag(ctx, tagID)
}
