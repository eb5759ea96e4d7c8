package locate

import (
	"context"
	"path/filepath"
)

// StaticPrompter answers locator questions from fixed values, for callers
// that cannot ask interactively.
type StaticPrompter struct {
	// CreateDir answers the create-directory question.
	CreateDir bool
	// Directory picks among several candidate directories. It matches an
	// option by cleaned path, or by suffix when relative. Empty or unmatched
	// dismisses the picker.
	Directory string
}

func (s StaticPrompter) Confirm(context.Context, string) (bool, error) {
	return s.CreateDir, nil
}

func (s StaticPrompter) Choose(_ context.Context, _ string, options []string) (string, bool, error) {
	if s.Directory == "" {
		return "", false, nil
	}
	want := filepath.Clean(s.Directory)
	for _, o := range options {
		if filepath.Clean(o) == want {
			return o, true, nil
		}
	}
	if !filepath.IsAbs(want) {
		for _, o := range options {
			if hasPathSuffix(filepath.Clean(o), want) {
				return o, true, nil
			}
		}
	}
	return "", false, nil
}

func hasPathSuffix(path, suffix string) bool {
	if len(path) < len(suffix) || path[len(path)-len(suffix):] != suffix {
		return false
	}
	rest := path[:len(path)-len(suffix)]
	return rest == "" || rest[len(rest)-1] == filepath.Separator
}
