// Package locate picks a collision-free test file path inside the user's
// workspace and creates it empty.
package locate

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hpungsan/testsmith/internal/errors"
)

// Kind is the flavour of test being generated.
type Kind string

const (
	KindAPI Kind = "api"
	KindWeb Kind = "web"
)

// ParseKind validates a user supplied kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAPI, KindWeb:
		return k, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("kind must be %q or %q, got %q", KindAPI, KindWeb, s))
}

// kindPlaceholder is replaced with the request kind in candidate directories.
const kindPlaceholder = "{kind}"

// DefaultCandidateDirs lists the directories probed under each root, in
// priority order.
var DefaultCandidateDirs = []string{
	"tests/" + kindPlaceholder,
	"test/" + kindPlaceholder,
	"e2e/" + kindPlaceholder,
	"tests",
	"test",
	"e2e",
}

const (
	DefaultSuffix      = ".spec.ts"
	DefaultMaxAttempts = 100
)

// Request describes where a test for a prompt should go.
type Request struct {
	Kind           Kind
	PromptText     string
	WorkspaceRoots []string
}

// Result is a freshly created, empty test file.
type Result struct {
	Path string `json:"path"`
	// Created reports that the test directory itself was created by Locate.
	Created bool `json:"created"`
}

// Prompter asks the user to settle ambiguous placement.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string) (bool, error)
	// Choose asks the user to pick one option. ok is false when the user
	// dismissed the picker.
	Choose(ctx context.Context, title string, options []string) (choice string, ok bool, err error)
}

// FileSystem is the slice of the filesystem the locator touches.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error
	// CreateExclusive creates an empty file and fails with an error matching
	// fs.ErrExist when the path is already taken.
	CreateExclusive(path string) error
}

// Options tunes naming and probing.
type Options struct {
	Suffix        string
	MaxAttempts   int
	StopWords     []string
	CandidateDirs []string
}

// DefaultOptions returns the built-in naming and probing rules.
func DefaultOptions() Options {
	return Options{
		Suffix:        DefaultSuffix,
		MaxAttempts:   DefaultMaxAttempts,
		StopWords:     append([]string(nil), DefaultStopWords...),
		CandidateDirs: append([]string(nil), DefaultCandidateDirs...),
	}
}

// Locator resolves test file locations.
type Locator struct {
	fs       FileSystem
	prompter Prompter
	opts     Options
}

// New creates a Locator. Zero-valued options fall back to defaults.
func New(fsys FileSystem, prompter Prompter, opts Options) *Locator {
	def := DefaultOptions()
	if opts.Suffix == "" {
		opts.Suffix = def.Suffix
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.StopWords == nil {
		opts.StopWords = def.StopWords
	}
	if len(opts.CandidateDirs) == 0 {
		opts.CandidateDirs = def.CandidateDirs
	}
	return &Locator{fs: fsys, prompter: prompter, opts: opts}
}

// Options returns the effective options.
func (l *Locator) Options() Options {
	return l.opts
}

// Locate picks a test directory, asking the user when needed, and creates an
// empty, previously absent test file in it.
//
// A nil Result always comes with an error. NO_DIRECTORY_SELECTED and
// COLLISION_EXHAUSTED mean no path could be chosen; IO_FAILURE means the
// filesystem refused an operation.
func (l *Locator) Locate(ctx context.Context, req Request) (*Result, error) {
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}
	for _, root := range req.WorkspaceRoots {
		if !filepath.IsAbs(root) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("workspace root must be absolute: %s", root))
		}
	}
	if err := ValidateCandidateDirs(l.opts.CandidateDirs); err != nil {
		return nil, err
	}

	fileName := FileName(req.PromptText, req.Kind, l.opts)

	validDirs, err := l.findDirs(req)
	if err != nil {
		return nil, err
	}

	var dir string
	created := false
	switch len(validDirs) {
	case 0:
		if len(req.WorkspaceRoots) == 0 {
			return nil, errors.NewNoDirectorySelected()
		}
		dir = filepath.Join(req.WorkspaceRoots[0], "tests", string(req.Kind))
		ok, err := l.prompter.Confirm(ctx, fmt.Sprintf("No test directory found. Create %s?", dir))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.NewNoDirectorySelected()
		}
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewIOFailure("mkdir", dir, err)
		}
		created = true
	case 1:
		dir = validDirs[0]
	default:
		choice, ok, err := l.prompter.Choose(ctx, "Select test directory", validDirs)
		if err != nil {
			return nil, err
		}
		if !ok || choice == "" {
			return nil, errors.NewNoDirectorySelected()
		}
		dir = choice
	}

	path, err := l.createUnique(ctx, dir, fileName)
	if err != nil {
		return nil, err
	}
	return &Result{Path: path, Created: created}, nil
}

// findDirs returns the first existing candidate directory of each root, in
// root order.
func (l *Locator) findDirs(req Request) ([]string, error) {
	var dirs []string
	for _, root := range req.WorkspaceRoots {
		for _, cand := range l.opts.CandidateDirs {
			rel := strings.ReplaceAll(cand, kindPlaceholder, string(req.Kind))
			p := filepath.Join(root, filepath.FromSlash(rel))
			info, err := l.fs.Stat(p)
			if err != nil {
				if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, syscall.ENOTDIR) {
					continue
				}
				return nil, errors.NewIOFailure("stat", p, err)
			}
			if info.IsDir() {
				dirs = append(dirs, p)
				break
			}
		}
	}
	return dirs, nil
}

// createUnique creates dir/fileName, or the first free dir/<base>-N<suffix>
// for N in 1..MaxAttempts.
func (l *Locator) createUnique(ctx context.Context, dir, fileName string) (string, error) {
	base := strings.TrimSuffix(fileName, l.opts.Suffix)
	name := fileName
	for n := 0; n <= l.opts.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			e := errors.NewCancelled("locate")
			e.Cause = err
			return "", e
		}
		if n > 0 {
			name = base + "-" + strconv.Itoa(n) + l.opts.Suffix
		}
		p := filepath.Join(dir, name)
		err := l.fs.CreateExclusive(p)
		if err == nil {
			return p, nil
		}
		if !stderrors.Is(err, fs.ErrExist) {
			return "", errors.NewIOFailure("create", p, err)
		}
	}
	return "", errors.NewCollisionExhausted(dir, fileName, l.opts.MaxAttempts)
}

// ValidateCandidateDirs rejects absolute or escaping candidate directories.
func ValidateCandidateDirs(dirs []string) error {
	for _, d := range dirs {
		if d == "" || filepath.IsAbs(d) || strings.HasPrefix(d, "/") {
			return errors.NewInvalidRequest(fmt.Sprintf("candidate directory must be relative: %q", d))
		}
		if containsTraversal(d) {
			return errors.NewInvalidRequest(fmt.Sprintf("candidate directory must not contain directory traversal (..): %q", d))
		}
	}
	return nil
}

// containsTraversal checks if path contains a ".." component, with either
// separator.
func containsTraversal(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}
