package watcher

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/aimerfeng/neuralfs/internal/gitignore"
)

// defaultBlacklist covers the dependency and system trees that are expensive
// to walk and never worth indexing.
var defaultBlacklist = []string{
	"node_modules/", "node_modules/**",
	".git/", ".git/**",
	".svn/", ".hg/",
	"__pycache__/", "__pycache__/**",
	".venv/", "venv/",
	"target/", "target/**",
	"dist/", "build/",
	".neuralfs/", ".neuralfs/**",
	"*.tmp", "*.swp",
}

// FilterConfig configures the directory filter.
type FilterConfig struct {
	// Blacklist is a set of gitignore-syntax glob patterns to exclude.
	// Always includes defaultBlacklist in addition to any configured here.
	Blacklist []string

	// Whitelist patterns take priority over the blacklist: a path matching
	// both is included.
	Whitelist []string

	// MaxDepth bounds how many directory levels below the root are walked.
	// Default: 20.
	MaxDepth int

	// MaxFilesPerDir skips a directory entirely (emitting a structured
	// DirSkipped event) once it would exceed this many entries. Default: 10000.
	MaxFilesPerDir int

	// MaxFileSize excludes files larger than this, in bytes. Default: 500MB.
	MaxFileSize int64

	// FollowSymlinks controls whether symlinked directories are traversed.
	// Default: false (do not follow).
	FollowSymlinks bool
}

// DefaultFilterConfig returns the standard filter policy.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MaxDepth:       20,
		MaxFilesPerDir: 10000,
		MaxFileSize:    500 * 1024 * 1024,
		FollowSymlinks: false,
	}
}

// WithDefaults fills zero-valued fields with DefaultFilterConfig's values.
func (c FilterConfig) WithDefaults() FilterConfig {
	d := DefaultFilterConfig()
	if c.MaxDepth <= 0 {
		c.MaxDepth = d.MaxDepth
	}
	if c.MaxFilesPerDir <= 0 {
		c.MaxFilesPerDir = d.MaxFilesPerDir
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	return c
}

// SkipReason classifies why the Filter excluded a path, carried on a
// DirSkipped event for operator visibility.
type SkipReason string

const (
	SkipNone           SkipReason = ""
	SkipBlacklisted    SkipReason = "blacklisted"
	SkipMaxDepth       SkipReason = "max_depth"
	SkipTooManyFiles   SkipReason = "too_many_files"
	SkipTooLarge       SkipReason = "too_large"
	SkipSymlinkPolicy  SkipReason = "symlink_not_followed"
)

// Filter evaluates paths against the blacklist/whitelist/depth/size/symlink
// policy, built on top of the gitignore-syntax matcher already
// used for .gitignore support so blacklist/whitelist share one pattern
// language.
type Filter struct {
	cfg       FilterConfig
	blacklist *gitignore.Matcher
	whitelist *gitignore.Matcher
}

// NewFilter builds a Filter from cfg, seeding the blacklist matcher with
// defaultBlacklist plus any configured patterns.
func NewFilter(cfg FilterConfig) *Filter {
	cfg = cfg.WithDefaults()

	bl := gitignore.New()
	for _, p := range defaultBlacklist {
		bl.AddPattern(p)
	}
	for _, p := range cfg.Blacklist {
		bl.AddPattern(p)
	}

	wl := gitignore.New()
	for _, p := range cfg.Whitelist {
		wl.AddPattern(p)
	}

	return &Filter{cfg: cfg, blacklist: bl, whitelist: wl}
}

// DecideDir reports whether a directory at relPath, depth levels below the
// root, should be descended into. A non-empty reason means it should not.
func (f *Filter) DecideDir(relPath string, depth int, isSymlink bool) SkipReason {
	if f.whitelist.Match(relPath, true) {
		return SkipNone
	}
	if isSymlink && !f.cfg.FollowSymlinks {
		return SkipSymlinkPolicy
	}
	if depth > f.cfg.MaxDepth {
		return SkipMaxDepth
	}
	if f.blacklist.Match(relPath, true) {
		return SkipBlacklisted
	}
	return SkipNone
}

// DecideFile reports whether a file at relPath should be indexed/watched.
func (f *Filter) DecideFile(relPath string, size int64) SkipReason {
	if f.whitelist.Match(relPath, false) {
		return SkipNone
	}
	if f.blacklist.Match(relPath, false) {
		return SkipBlacklisted
	}
	if size > f.cfg.MaxFileSize {
		return SkipTooLarge
	}
	return SkipNone
}

// ExceedsFileCap reports whether a directory with entryCount entries should
// be skipped wholesale; the caller emits a structured skip event for it.
func (f *Filter) ExceedsFileCap(entryCount int) bool {
	return entryCount > f.cfg.MaxFilesPerDir
}

// Depth computes the number of path separators in relPath, used as the
// walk depth relative to the monitored root ("." is depth 0).
func Depth(relPath string) int {
	if relPath == "." || relPath == "" {
		return 0
	}
	return strings.Count(filepath.ToSlash(relPath), "/") + 1
}

// IsSymlink reports whether the directory entry at path is a symlink,
// without following it.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSymlink != 0
}
