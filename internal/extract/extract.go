// Package extract turns a streamed model reply into a single block of
// Playwright test code.
package extract

import (
	"context"
	stderrors "errors"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/hpungsan/testsmith/internal/errors"
)

// DefaultImport is prepended to extracted code that imports nothing.
const DefaultImport = "import { test, expect } from '@playwright/test';"

// DefaultFenceTags are the language tags that mark an opening fence.
var DefaultFenceTags = []string{"typescript", "ts"}

const fence = "```"

// Source yields reply fragments in order. Next returns io.EOF once the
// reply is complete.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Options controls fence recognition and post-processing.
type Options struct {
	// FenceTags are matched case-sensitively after the opening fence marker.
	FenceTags []string
	// DefaultImport is prepended when the code has no import-like line.
	// Empty disables prepending.
	DefaultImport string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		FenceTags:     append([]string(nil), DefaultFenceTags...),
		DefaultImport: DefaultImport,
	}
}

// Result is the outcome of one extraction.
type Result struct {
	RawText        string `json:"raw_text"`
	CodeText       string `json:"code_text"`
	HasFencedBlock bool   `json:"has_fenced_block"`
}

// Extract drains src and parses the concatenated reply.
//
// Extraction itself never fails. When src fails or ctx is cancelled, Extract
// still returns the result parsed from the fragments buffered so far,
// together with the error.
func Extract(ctx context.Context, src Source, opts Options) (Result, error) {
	var raw strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return Parse(raw.String(), opts), cancelled(err)
		}
		frag, err := src.Next(ctx)
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			raw.WriteString(frag)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Parse(raw.String(), opts), cancelled(ctxErr)
			}
			return Parse(raw.String(), opts), streamErr(err)
		}
		raw.WriteString(frag)
	}
	return Parse(raw.String(), opts), nil
}

func cancelled(err error) error {
	e := errors.NewCancelled("extraction")
	e.Cause = err
	return e
}

// streamErr keeps typed errors from the model layer and classifies the rest.
func streamErr(err error) error {
	var sErr *errors.SmithError
	if stderrors.As(err, &sErr) {
		return err
	}
	return errors.NewStreamError(errors.ReasonUnknown, err)
}

// Parse extracts code from a complete reply.
func Parse(raw string, opts Options) Result {
	res := Result{RawText: raw}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	tags := sortedTags(opts.FenceTags)

	if code, ok := firstBlock(text, tags); ok {
		res.CodeText = code
		res.HasFencedBlock = true
	} else {
		res.CodeText = strings.TrimSpace(fenceMarkerRe(tags).ReplaceAllString(text, ""))
	}

	if opts.DefaultImport != "" && !HasImport(res.CodeText) {
		res.CodeText = opts.DefaultImport + "\n\n" + res.CodeText
	}
	res.CodeText = Normalize(res.CodeText)
	return res
}

// firstBlock returns the body of the first tagged fenced block. An opener
// without a matching closer is not a block.
func firstBlock(text string, tags []string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if !isOpener(line, tags) {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			if isCloser(lines[j]) {
				return strings.Join(lines[i+1:j], "\n"), true
			}
		}
		return "", false
	}
	return "", false
}

func isOpener(line string, tags []string) bool {
	idx := strings.Index(line, fence)
	if idx < 0 {
		return false
	}
	rest := strings.TrimLeft(line[idx+len(fence):], "` \t")
	for _, tag := range tags {
		if strings.HasPrefix(rest, tag) {
			return true
		}
	}
	return false
}

func isCloser(line string) bool {
	s := strings.TrimSpace(line)
	return len(s) >= len(fence) && strings.Trim(s, "`") == ""
}

// sortedTags orders tags longest first so "typescript" wins over "ts".
func sortedTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func fenceMarkerRe(tags []string) *regexp.Regexp {
	if len(tags) == 0 {
		return regexp.MustCompile("```")
	}
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile("```[ \\t]*(?:" + strings.Join(quoted, "|") + ")?")
}

var importRe = regexp.MustCompile(`(?m)^[ \t]*import[\s{*'"]|\brequire\(`)

// HasImport reports whether code contains an import-like statement.
func HasImport(code string) bool {
	return importRe.MatchString(code)
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// Normalize empties whitespace-only lines, collapses runs of blank lines to
// one and trims the result.
func Normalize(code string) string {
	lines := strings.Split(code, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
		}
	}
	out := blankRunRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
