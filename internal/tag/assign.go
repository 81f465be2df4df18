package tag

import (
	"context"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// Assign attaches tag tagID to fileID. Every assignment is confirmed by
// default except a non-manual assignment of a sensitive tag, which is
// always left unconfirmed regardless of confidence: a tag matching the
// sensitive-term set is only ever suggested, never
// auto-confirmed. A manual assignment is always confidence 1.0 and
// confirmed.
func (s *Service) Assign(ctx context.Context, fileID, tagID string, source metadata.TagSource, confidence float64) error {
	t, err := s.store.GetTag(ctx, tagID)
	if err != nil {
		return err
	}

	confirmed := true
	if source == metadata.TagSourceManual {
		confidence = 1.0
	} else if t.Sensitive {
		confirmed = false
	}

	return s.store.AssignTag(ctx, &metadata.FileTagRelation{
		FileID:     fileID,
		TagID:      tagID,
		Source:     source,
		Confidence: confidence,
		Confirmed:  confirmed,
		CreatedAt:  time.Now(),
	})
}

// Confirm marks a file's tag assignment confirmed, the human-in-the-loop
// step sensitive or low-confidence auto-tags wait for before the tag
// surfaces in filtered search or the UI as an accepted label.
func (s *Service) Confirm(ctx context.Context, fileID, tagID string) error {
	return s.store.ConfirmTag(ctx, fileID, tagID)
}

// Reject removes a file's tag assignment outright. When blockSimilar is
// set and a SimilarBlocker is attached, a file_to_tag BlockRule is also
// installed through the relation engine, so the same tag is never
// re-suggested for this file and its ai-generated relations toward files
// carrying the tag are rejected in one stroke.
func (s *Service) Reject(ctx context.Context, fileID, tagID string, blockSimilar bool) error {
	if err := s.store.RemoveFileTag(ctx, fileID, tagID); err != nil {
		return err
	}
	if blockSimilar && s.blocker != nil {
		return s.blocker.BlockFileTag(ctx, fileID, tagID, "tag suggestion rejected")
	}
	return nil
}

// Remove is an alias for Reject used by the "remove" correction command
// (manual untagging, as distinct from "reject" of an AI suggestion).
func (s *Service) Remove(ctx context.Context, fileID, tagID string) error {
	return s.store.RemoveFileTag(ctx, fileID, tagID)
}

// BatchAssign applies Assign across every (fileID, tagID) pair, stopping
// and returning the first error encountered.
func (s *Service) BatchAssign(ctx context.Context, fileIDs []string, tagID string, source metadata.TagSource, confidence float64) error {
	for _, fileID := range fileIDs {
		if err := s.Assign(ctx, fileID, tagID, source, confidence); err != nil {
			return err
		}
	}
	return nil
}

// BatchRemove applies Remove across every fileID for a single tag.
func (s *Service) BatchRemove(ctx context.Context, fileIDs []string, tagID string) error {
	for _, fileID := range fileIDs {
		if err := s.Remove(ctx, fileID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// FileTags returns every tag relation recorded for a file.
func (s *Service) FileTags(ctx context.Context, fileID string) ([]*metadata.FileTagRelation, error) {
	return s.store.GetFileTags(ctx, fileID)
}

// Children lists a tag's direct children (empty parentID lists root tags).
func (s *Service) Children(ctx context.Context, parentID string) ([]*metadata.Tag, error) {
	return s.store.ListChildTags(ctx, parentID)
}

// Get fetches a single tag by ID.
func (s *Service) Get(ctx context.Context, tagID string) (*metadata.Tag, error) {
	return s.store.GetTag(ctx, tagID)
}

// All lists every tag in the hierarchy, for tree rendering or export.
func (s *Service) All(ctx context.Context) ([]*metadata.Tag, error) {
	return s.store.ListAllTags(ctx)
}

// FilesWithTag lists every file ID carrying the given tag.
func (s *Service) FilesWithTag(ctx context.Context, tagID string) ([]string, error) {
	return s.store.ListFilesByTag(ctx, tagID)
}
