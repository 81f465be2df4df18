package tag

import (
	"context"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// Suggestion is a proposed tag for a file that has not yet been written to
// the store (the command surface's "suggest_tags(file_id) -> [TagSuggestion]").
type Suggestion struct {
	Name       string
	TagID      string // populated when the tag already exists
	Confidence float64
	Sensitive  bool
}

// Suggest computes tag candidates for a file without assigning them,
// reusing the same file-type and content-derived extraction AutoTag uses
// so the preview a caller sees before confirming matches what AutoTag
// would actually assign. Tags the user rejected with block_similar are
// suppressed entirely.
func (s *Service) Suggest(ctx context.Context, file *metadata.File, chunks []*metadata.Chunk) ([]Suggestion, error) {
	blocked := s.blockedTags(ctx, file)
	var out []Suggestion

	name, ok := typeTagNames[file.ContentType]
	if !ok {
		name = "other"
	}
	if sugg := s.toSuggestion(ctx, name, 1.0); !blocked[sugg.TagID] {
		out = append(out, sugg)
	}

	for _, cand := range s.contentTagCandidates(chunks) {
		sugg := s.toSuggestion(ctx, cand.name, cand.confidence)
		if sugg.TagID != "" && blocked[sugg.TagID] {
			continue
		}
		out = append(out, sugg)
	}

	return out, nil
}

// blockedTags returns the tag ids an active file_to_tag BlockRule names
// for this file. Lookup failures degrade to no suppression.
func (s *Service) blockedTags(ctx context.Context, file *metadata.File) map[string]bool {
	blocked := map[string]bool{}
	rules, err := s.store.ListActiveBlockRules(ctx)
	if err != nil {
		return blocked
	}
	now := time.Now()
	for _, r := range rules {
		if r.Type == metadata.BlockRuleFileToTag && r.Active(now) && r.PathA == file.Path {
			blocked[r.TagB] = true
		}
	}
	return blocked
}

func (s *Service) toSuggestion(ctx context.Context, name string, confidence float64) Suggestion {
	sugg := Suggestion{Name: name, Confidence: confidence, Sensitive: s.isSensitive(name)}
	if existing, err := s.store.FindTagByName(ctx, "", name); err == nil && existing != nil {
		sugg.TagID = existing.ID
	}
	return sugg
}
