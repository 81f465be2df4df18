// Package reconcile discovers indexable files under a monitored directory
// and diffs them against the durable state layer's last-known view, so
// the indexing pipeline only re-embeds what actually
// changed — including files that moved without changing content.
package reconcile

import "time"

// DiscoveredFile is one file found by a directory walk, before it has been
// compared against prior state.
type DiscoveredFile struct {
	Path     string // relative to the scan root
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Language string
	Identity string // platform file identity (device+inode), empty if unavailable
}

// Options configures a directory walk.
type Options struct {
	RootDir          string
	ExcludePatterns  []string
	RespectGitignore bool
	Workers          int
	MaxFileSize      int64
	FollowSymlinks   bool
}

// DefaultMaxFileSize bounds how large a file can be before it's skipped
// outright rather than chunked.
const DefaultMaxFileSize = 10 * 1024 * 1024

// Result streams from a walk; a non-nil Error ends the walk.
type Result struct {
	File  *DiscoveredFile
	Error error
}

// ChangeKind classifies one entry in a Diff.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRenamed  ChangeKind = "renamed"
)

// Change is one file's delta between the last indexed state and the
// current filesystem walk.
type Change struct {
	Kind     ChangeKind
	Path     string // current path (new path, for renames)
	OldPath  string // only set for ChangeRenamed
	File     *DiscoveredFile
	FileHash string // content hash, empty for ChangeRemoved
}
