// Package indexer drives the resilient task queue that turns filesystem
// changes into stored chunks, embeddings, and index entries: a priority
// queue backed by internal/metadata's IndexTask persistence, a bounded
// worker pool, exponential backoff with a dead-letter escalation path, and
// a pluggable ProcessFunc for the actual chunk/embed/store work.
package indexer

import (
	"context"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// PriorityHigh tasks (e.g. a file opened in the active session) jump ahead
// of routine background re-indexing.
const (
	PriorityHigh   = 10
	PriorityNormal = 5
	PriorityLow    = 1
)

// DefaultMaxRetries is how many times a failed task is retried before it
// moves to the dead letter queue.
const DefaultMaxRetries = 5

// DefaultMaxBackoff caps the exponential backoff delay between retries.
const DefaultMaxBackoff = 16 * time.Second

// DefaultDeadLetterLimit bounds how many dead-letter tasks ListDeadLetter
// will ever be asked to return; the store itself is the source of truth,
// this is just the engine's working-set cap on any single drain.
const DefaultDeadLetterLimit = 1000

// ErrFileLocked signals a task failed because the target file was locked
// by another process (e.g. an editor holding an exclusive write lock).
// These get a fixed retry delay instead of the usual exponential backoff,
// since the lock is expected to clear quickly and unpredictably rather
// than the failure being load-related.
var ErrFileLocked = &lockedError{}

type lockedError struct{}

func (*lockedError) Error() string { return "file locked" }

// FileLockedRetryDelay is the fixed delay used for ErrFileLocked failures.
const FileLockedRetryDelay = 2 * time.Second

// ProcessFunc performs the actual work for a single task (parse, embed,
// store) and returns an error if the task should be retried.
type ProcessFunc func(ctx context.Context, task *metadata.IndexTask) error

// Config configures an Engine.
type Config struct {
	// Workers is the number of tasks processed concurrently.
	Workers int

	// MaxRetries is the retry budget before a task moves to dead-letter.
	MaxRetries int

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration

	// PollInterval is how often the engine checks for new work when the
	// queue is empty.
	PollInterval time.Duration
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		MaxRetries:   DefaultMaxRetries,
		MaxBackoff:   DefaultMaxBackoff,
		PollInterval: 250 * time.Millisecond,
	}
}

// Stats summarizes queue state across all task states.
type Stats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	DeadLetter int
}
