package router

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aimerfeng/neuralfs/internal/errors"
)

// DirEntry is one child of a browsed directory (the command surface's
// "browse_directory()").
type DirEntry struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// BrowseDirectory lists the immediate children of path, restricted to the
// router's configured root so the command surface can't be used to walk
// arbitrary filesystem locations outside the monitored tree. An empty path
// browses the root itself.
func (s *Service) BrowseDirectory(path string) ([]DirEntry, error) {
	target := s.rootPath
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.ValidationError("invalid path", err)
		}
		rel, err := filepath.Rel(s.rootPath, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			return nil, errors.New(errors.ErrCodeInvalidPath, "path escapes the monitored root", nil)
		}
		target = abs
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		out = append(out, DirEntry{
			Name:  e.Name(),
			Path:  filepath.Join(target, e.Name()),
			IsDir: e.IsDir(),
			Size:  size,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDir != out[j].IsDir {
			return out[i].IsDir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
