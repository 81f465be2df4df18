//go:build windows

package reconcile

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// fileIdentity returns a string stable across renames on the same volume:
// "volume:fileIndexHigh:fileIndexLow", read via GetFileInformationByHandle
// since os.FileInfo.Sys() on Windows doesn't expose the file index directly.
func fileIdentity(info os.FileInfo) string {
	path, ok := info.(interface{ Name() string })
	_ = path
	if !ok {
		return ""
	}

	h, err := windows.Open(info.Name(), windows.O_RDONLY, 0)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	var fileInfo windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &fileInfo); err != nil {
		return ""
	}

	return fmt.Sprintf("%d:%d:%d", fileInfo.VolumeSerialNumber, fileInfo.FileIndexHigh, fileInfo.FileIndexLow)
}
