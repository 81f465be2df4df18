package tag

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/telemetry"
)

// typeTagNames maps a content type to its file-type tag, rooted under a
// shared "type" parent tag; every file gets exactly one of these from its
// extension.
var typeTagNames = map[metadata.ContentType]string{
	metadata.ContentTypeCode:     "code",
	metadata.ContentTypeMarkdown: "document",
	metadata.ContentTypePDF:      "document",
	metadata.ContentTypeImage:    "image",
	metadata.ContentTypeText:     "document",
}

// stopwords are excluded from content-derived tag candidates; short and
// extremely common English words carry no topical signal.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "have": {}, "were": {}, "are": {}, "was": {}, "not": {},
	"you": {}, "your": {}, "will": {}, "can": {}, "has": {}, "but": {},
	"all": {}, "into": {}, "their": {}, "they": {}, "these": {}, "those": {},
	"about": {}, "which": {}, "when": {}, "what": {}, "where": {}, "func": {},
	"return": {}, "import": {}, "package": {}, "const": {}, "var": {},
}

// AutoTag assigns a file-type tag derived from content type/extension plus
// up to MaxAutoTags content-derived category tags above
// MinAutoTagConfidence, extracted from the file's chunk text by term
// frequency. Every returned relation has already been written
// to the store via Assign, so sensitive-tag gating has already applied.
// Invariant 8 ("every successfully indexed file has >=1 tag") holds
// because the file-type tag is always assigned.
func (s *Service) AutoTag(ctx context.Context, file *metadata.File, chunks []*metadata.Chunk) ([]*metadata.FileTagRelation, error) {
	var assigned []*metadata.FileTagRelation

	typeTag, err := s.fileTypeTag(ctx, file)
	if err != nil {
		return nil, err
	}
	if err := s.Assign(ctx, file.ID, typeTag.ID, metadata.TagSourceAuto, 1.0); err != nil {
		return nil, err
	}
	assigned = append(assigned, &metadata.FileTagRelation{FileID: file.ID, TagID: typeTag.ID, Source: metadata.TagSourceAuto, Confidence: 1.0})

	blocked := s.blockedTags(ctx, file)
	for _, cand := range s.contentTagCandidates(chunks) {
		t, err := s.CreateTag(ctx, cand.name, "", false)
		if err != nil {
			return nil, err
		}
		if blocked[t.ID] {
			continue
		}
		if err := s.Assign(ctx, file.ID, t.ID, metadata.TagSourceAuto, cand.confidence); err != nil {
			return nil, err
		}
		assigned = append(assigned, &metadata.FileTagRelation{FileID: file.ID, TagID: t.ID, Source: metadata.TagSourceAuto, Confidence: cand.confidence})
	}

	return assigned, nil
}

// fileTypeTag resolves (creating if needed) the root "type" tag and the
// specific child tag for file.ContentType, falling back to the lowercase
// file extension when the content type has no mapped name.
func (s *Service) fileTypeTag(ctx context.Context, file *metadata.File) (*metadata.Tag, error) {
	root, err := s.CreateTag(ctx, "type", "", false)
	if err != nil {
		return nil, err
	}

	name, ok := typeTagNames[file.ContentType]
	if !ok {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Path)), ".")
		if ext == "" {
			ext = "other"
		}
		name = ext
	}

	return s.CreateTag(ctx, name, root.ID, false)
}

// tagCandidate is a content-derived tag name with its term-frequency
// confidence.
type tagCandidate struct {
	name       string
	confidence float64
}

// contentTagCandidates extracts up to MaxAutoTags candidate tag names from
// chunk content by term frequency, normalizing each term's count against
// the most frequent term's count so confidence lands in [0,1]. Only terms
// clearing MinAutoTagConfidence are returned.
func (s *Service) contentTagCandidates(chunks []*metadata.Chunk) []tagCandidate {
	counts := make(map[string]int)
	for _, c := range chunks {
		for _, term := range telemetry.ExtractTerms(c.Content) {
			if _, stop := stopwords[term]; stop {
				continue
			}
			counts[term]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	maxCount := 0
	for _, n := range counts {
		if n > maxCount {
			maxCount = n
		}
	}

	var ranked []tagCandidate
	for term, n := range counts {
		confidence := float64(n) / float64(maxCount)
		if confidence >= MinAutoTagConfidence {
			ranked = append(ranked, tagCandidate{name: term, confidence: confidence})
		}
	}

	sortByConfidenceDesc(ranked)

	if len(ranked) > MaxAutoTags {
		ranked = ranked[:MaxAutoTags]
	}
	return ranked
}

// sortByConfidenceDesc insertion-sorts candidates by descending confidence;
// the candidate lists here are always small (<= a few dozen distinct terms
// per file), so this avoids pulling in sort.Slice for a handful of swaps.
func sortByConfidenceDesc(items []tagCandidate) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].confidence > items[j-1].confidence; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
