//go:build !windows

package locate

import (
	"os"
	"syscall"
)

// createExclusive opens path with O_CREAT|O_EXCL. O_NOFOLLOW keeps a
// symlink in the final component from being followed; O_CLOEXEC keeps the
// descriptor out of child processes such as npm.
func createExclusive(path string, perm os.FileMode) (*os.File, error) {
	flag := syscall.O_WRONLY | syscall.O_CREAT | syscall.O_EXCL | syscall.O_NOFOLLOW | syscall.O_CLOEXEC
	fd, err := syscall.Open(path, flag, uint32(perm))
	if err != nil {
		return nil, &os.PathError{Op: "create", Path: path, Err: err}
	}
	return os.NewFile(uintptr(fd), path), nil
}
