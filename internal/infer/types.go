// Package infer implements the hybrid inference coordinator:
// it dispatches a local inference path and, optionally, a remote one in
// parallel, merges their per-file scores, and owns the cache, cost tracker,
// and rate limiter that guard the remote leg.
package infer

import (
	"context"
	"time"
)

// ResultSource records which leg(s) produced a Result's scores.
type ResultSource string

const (
	SourceLocal  ResultSource = "local"
	SourceRemote ResultSource = "remote"
	SourceMerged ResultSource = "merged"
)

// FileScore is one file's relevance score from an inference leg.
type FileScore struct {
	FileID string
	Score  float64
}

// Result is what the coordinator returns for one inference request.
type Result struct {
	Query   string
	Scores  []FileScore
	Source  ResultSource
	Cached  bool
	AskedAt time.Time
}

// Request describes one inference call. AllowRemote lets a caller opt a
// single request out of the remote leg even when the coordinator is
// configured with remote enabled (e.g. a caller already holding sensitive
// data it does not want anonymized and shipped at all).
type Request struct {
	Query       string
	AllowRemote bool

	// ContainsPrivate marks a request whose result set touches a
	// privacy_level=private file; the remote leg is suppressed outright.
	ContainsPrivate bool
}

// LocalInferer is the on-device inference path: query embedding, tag
// matching, and intent parsing combined into a per-file score set. The
// coordinator always awaits this leg unconditionally.
type LocalInferer interface {
	InferLocal(ctx context.Context, query string) ([]FileScore, error)
}

// RemoteInferer is the optional network leg. The coordinator only calls it
// with an already-anonymized prompt.
type RemoteInferer interface {
	InferRemote(ctx context.Context, anonymizedPrompt string) ([]FileScore, error)
}

// MergeWeights controls the weighted average used to combine local and
// remote scores for a file present in both result sets. Defaults to
// 0.5/0.5.
type MergeWeights struct {
	Local  float64
	Remote float64
}

// DefaultMergeWeights returns the even split.
func DefaultMergeWeights() MergeWeights {
	return MergeWeights{Local: 0.5, Remote: 0.5}
}
