package search

import (
	"sort"

	"github.com/aimerfeng/neuralfs/internal/textindex"
	"github.com/aimerfeng/neuralfs/internal/vector"
)

// fusedResult holds one chunk's combined scoring state between retrieval
// and enrichment.
type fusedResult struct {
	chunkID      string
	score        float64 // weighted combination of the normalized sources
	bm25Score    float64 // min-max normalized sparse score
	vecScore     float64 // dense similarity, already in [0,1] for cosine
	bm25Rank     int     // 1-indexed position in the sparse list, 0 if absent
	vecRank      int     // 1-indexed position in the dense list, 0 if absent
	inBothLists  bool
	matchedTerms []string
}

// fuseWeighted combines the sparse and dense result lists into a single
// ranking. Each source's raw scores are min-max normalized into [0,1] so
// neither scoring scale dominates, then combined per chunk as
//
//	score = w.BM25 * bm25Norm + w.Semantic * vecNorm
//
// A chunk present in only one list contributes only that source's weighted
// term. The output is ordered by score descending, ties broken by chunk id
// ascending.
func fuseWeighted(bm25 []*textindex.Result, vec []*vector.Result, w Weights) []*fusedResult {
	byID := make(map[string]*fusedResult, len(bm25)+len(vec))

	bm25Norm := normalizeBM25(bm25)
	for i, r := range bm25 {
		byID[r.DocID] = &fusedResult{
			chunkID:      r.DocID,
			bm25Score:    bm25Norm[i],
			bm25Rank:     i + 1,
			matchedTerms: r.MatchedTerms,
		}
	}

	vecNorm := normalizeVec(vec)
	for i, r := range vec {
		f, ok := byID[r.ID]
		if !ok {
			f = &fusedResult{chunkID: r.ID}
			byID[r.ID] = f
		} else {
			f.inBothLists = true
		}
		f.vecScore = vecNorm[i]
		f.vecRank = i + 1
	}

	out := make([]*fusedResult, 0, len(byID))
	for _, f := range byID {
		f.score = w.BM25*f.bm25Score + w.Semantic*f.vecScore
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].chunkID < out[j].chunkID
	})
	return out
}

// normalizeBM25 min-max normalizes the sparse scores in list order.
// A single-element list normalizes to 1; a constant list normalizes to 1
// for every element (all hits matched equally well).
func normalizeBM25(results []*textindex.Result) []float64 {
	if len(results) == 0 {
		return nil
	}
	minS, maxS := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < minS {
			minS = r.Score
		}
		if r.Score > maxS {
			maxS = r.Score
		}
	}
	norm := make([]float64, len(results))
	span := maxS - minS
	for i, r := range results {
		if span == 0 {
			norm[i] = 1
		} else {
			norm[i] = (r.Score - minS) / span
		}
	}
	return norm
}

// normalizeVec min-max normalizes the dense similarities in list order,
// mirroring normalizeBM25 so both sources contribute on the same scale.
func normalizeVec(results []*vector.Result) []float64 {
	if len(results) == 0 {
		return nil
	}
	minS, maxS := float64(results[0].Score), float64(results[0].Score)
	for _, r := range results[1:] {
		s := float64(r.Score)
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}
	norm := make([]float64, len(results))
	span := maxS - minS
	for i, r := range results {
		if span == 0 {
			norm[i] = 1
		} else {
			norm[i] = (float64(r.Score) - minS) / span
		}
	}
	return norm
}
