package locate

import (
	"io/fs"
	"os"
)

// OSFileSystem is the real filesystem.
type OSFileSystem struct{}

func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (OSFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// CreateExclusive atomically creates an empty file, failing when anything
// (including a dangling symlink) already occupies the path.
func (OSFileSystem) CreateExclusive(path string) error {
	f, err := createExclusive(path, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
