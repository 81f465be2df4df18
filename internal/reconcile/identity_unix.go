//go:build !windows

package reconcile

import (
	"fmt"
	"os"
	"syscall"
)

// fileIdentity returns a string stable across renames on the same
// filesystem: "device:inode". A renamed-but-not-recreated file keeps its
// inode, so comparing identities lets reconciliation tell a rename apart
// from a delete+create pair.
func fileIdentity(info os.FileInfo) string {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d:%d", stat.Dev, stat.Ino)
}
