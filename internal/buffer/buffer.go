// Package buffer models an editable text document addressed by line and
// character, the way an editor exposes it.
package buffer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hpungsan/testsmith/internal/errors"
)

// Position is a zero-based line and character (rune) offset.
type Position struct {
	Line int `json:"line"`
	Char int `json:"character"`
}

// Range spans Start up to, but not including, End.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Buffer is an editable document. A document always has at least one line.
type Buffer interface {
	Text() string
	LineCount() int
	LineAt(line int) (string, error)
	Insert(pos Position, text string) error
	Delete(r Range) error
	End() Position
}

// Mem is an in-memory Buffer. It is safe for concurrent use.
type Mem struct {
	mu   sync.Mutex
	text string
}

// NewMem returns a buffer holding text.
func NewMem(text string) *Mem {
	return &Mem{text: text}
}

func (m *Mem) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

func (m *Mem) LineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Count(m.text, "\n") + 1
}

func (m *Mem) LineAt(line int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := strings.Split(m.text, "\n")
	if line < 0 || line >= len(lines) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("line %d out of range (0-%d)", line, len(lines)-1))
	}
	return lines[line], nil
}

func (m *Mem) Insert(pos Position, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, err := offset(m.text, pos)
	if err != nil {
		return err
	}
	m.text = m.text[:off] + text + m.text[off:]
	return nil
}

func (m *Mem) Delete(r Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	start, err := offset(m.text, r.Start)
	if err != nil {
		return err
	}
	end, err := offset(m.text, r.End)
	if err != nil {
		return err
	}
	if end < start {
		return errors.NewInvalidRequest("range end precedes start")
	}
	m.text = m.text[:start] + m.text[end:]
	return nil
}

func (m *Mem) End() Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return endOf(m.text)
}

// Replace swaps the whole content.
func (m *Mem) Replace(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
}

// Clear deletes everything from the start of the document to its end.
func Clear(b Buffer) error {
	return b.Delete(Range{End: b.End()})
}

// Append inserts text at the end of the document.
func Append(b Buffer, text string) error {
	return b.Insert(b.End(), text)
}

func endOf(text string) Position {
	line := strings.Count(text, "\n")
	last := text[strings.LastIndexByte(text, '\n')+1:]
	return Position{Line: line, Char: len([]rune(last))}
}

// offset converts pos to a byte offset into text.
func offset(text string, pos Position) (int, error) {
	if pos.Line < 0 || pos.Char < 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid position %d:%d", pos.Line, pos.Char))
	}
	start := 0
	for i := 0; i < pos.Line; i++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return 0, errors.NewInvalidRequest(fmt.Sprintf("line %d out of range", pos.Line))
		}
		start += nl + 1
	}
	line := text[start:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	chars := 0
	for i := range line {
		if chars == pos.Char {
			return start + i, nil
		}
		chars++
	}
	if chars == pos.Char {
		return start + len(line), nil
	}
	return 0, errors.NewInvalidRequest(fmt.Sprintf("character %d out of range on line %d", pos.Char, pos.Line))
}

// File is a Buffer backed by a file on disk. Edits stay in memory until Save.
type File struct {
	*Mem
	path string
	perm os.FileMode
}

// Open loads path into a buffer. Symlinks are refused.
func Open(path string) (*File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewIOFailure("stat", path, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("cannot edit a symlink: " + path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewInvalidRequest("not a regular file: " + path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOFailure("read", path, err)
	}
	return &File{Mem: NewMem(string(data)), path: path, perm: info.Mode().Perm()}, nil
}

// Path returns the file the buffer saves to.
func (f *File) Path() string { return f.path }

// Save writes the buffer to a temp file next to the target and renames it
// into place.
func (f *File) Save() error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.NewIOFailure("create", dir, err)
	}
	tempPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tmp.WriteString(f.Text()); err != nil {
		return errors.NewIOFailure("write", tempPath, err)
	}
	if err := tmp.Chmod(f.perm); err != nil {
		return errors.NewIOFailure("chmod", tempPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return errors.NewIOFailure("sync", tempPath, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOFailure("close", tempPath, err)
	}
	if err := os.Rename(tempPath, f.path); err != nil {
		return errors.NewIOFailure("rename", f.path, err)
	}
	success = true
	return nil
}
