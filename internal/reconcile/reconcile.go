package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/aimerfeng/neuralfs/internal/errors"
	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// Diff compares a fresh directory walk against the metadata store's last
// indexed view of the same root, classifying every discovered file as
// added, modified, renamed, or unchanged, and every no-longer-present
// indexed file as removed.
//
// A file whose identity (device+inode) matches a previously indexed file
// under a different path is reported as ChangeRenamed with its content
// hash carried over, so the caller can skip re-embedding — only the path
// in the metadata store needs updating.
func Diff(ctx context.Context, store metadata.Store, walker *Walker, opts *Options) ([]*Change, error) {
	byPath, err := store.GetFilesForReconciliation(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	byIdentity := make(map[string]*metadata.File, len(byPath))
	for _, f := range byPath {
		if f.InodeDevice != "" {
			byIdentity[f.InodeDevice] = f
		}
	}

	results, err := walker.Walk(ctx, opts)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(byPath))
	var changes []*Change

	for res := range results {
		if res.Error != nil {
			continue
		}
		df := res.File
		seen[df.Path] = struct{}{}

		prior, pathMatched := byPath[df.Path]

		if pathMatched {
			// The store keeps mtimes at one-second resolution.
			if prior.Size == df.Size && prior.ModTime.Unix() == df.ModTime.Unix() {
				continue // unchanged
			}
			hash, err := hashFile(df.AbsPath)
			if err != nil {
				continue
			}
			if hash == prior.ContentHash {
				continue // touched but not actually modified
			}
			changes = append(changes, &Change{Kind: ChangeModified, Path: df.Path, File: df, FileHash: hash})
			continue
		}

		if df.Identity != "" {
			if renamedFrom, ok := byIdentity[df.Identity]; ok {
				seen[renamedFrom.Path] = struct{}{}
				changes = append(changes, &Change{
					Kind:     ChangeRenamed,
					Path:     df.Path,
					OldPath:  renamedFrom.Path,
					File:     df,
					FileHash: renamedFrom.ContentHash,
				})
				continue
			}
		}

		hash, err := hashFile(df.AbsPath)
		if err != nil {
			continue
		}
		changes = append(changes, &Change{Kind: ChangeAdded, Path: df.Path, File: df, FileHash: hash})
	}

	for path := range byPath {
		if _, ok := seen[path]; !ok {
			changes = append(changes, &Change{Kind: ChangeRemoved, Path: path})
		}
	}

	return changes, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
