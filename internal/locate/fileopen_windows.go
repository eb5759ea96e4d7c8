//go:build windows

package locate

import "os"

// createExclusive opens path with O_CREATE|O_EXCL.
// Windows has no O_NOFOLLOW; O_EXCL already refuses an existing symlink.
func createExclusive(path string, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}
