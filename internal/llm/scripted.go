package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Scripted is a Model that replays canned replies. Each Stream call takes
// the next entry of Replies; the last entry repeats once the script runs out.
// With no replies it answers with a placeholder Playwright test built from
// the last user message.
type Scripted struct {
	ModelName string
	Replies   [][]string

	// Err fails every Stream call when set.
	Err error

	// StreamErr, when set, is returned by Next once FailAfter fragments
	// have been read. FailAfter 0 fails the first Next.
	FailAfter int
	StreamErr error

	mu    sync.Mutex
	calls [][]Message
}

func (s *Scripted) Name() string {
	if s.ModelName == "" {
		return "scripted"
	}
	return s.ModelName
}

func (s *Scripted) Stream(ctx context.Context, messages []Message) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, append([]Message(nil), messages...))
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	var frags []string
	switch {
	case len(s.Replies) == 0:
		frags = placeholderReply(messages)
	case n < len(s.Replies):
		frags = s.Replies[n]
	default:
		frags = s.Replies[len(s.Replies)-1]
	}
	return &scriptedStream{frags: frags, failAfter: s.FailAfter, err: s.StreamErr}, nil
}

// Calls returns the conversations sent so far.
func (s *Scripted) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Message(nil), s.calls...)
}

type scriptedStream struct {
	frags     []string
	pos       int
	failAfter int
	err       error
}

func (s *scriptedStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.err != nil && s.pos >= s.failAfter {
		return "", s.err
	}
	if s.pos >= len(s.frags) {
		return "", io.EOF
	}
	frag := s.frags[s.pos]
	s.pos++
	return frag, nil
}

func (s *scriptedStream) Close() error { return nil }

func placeholderReply(messages []Message) []string {
	title := "generated test"
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			title = firstLine(messages[i].Content)
			break
		}
	}
	title = strings.ReplaceAll(title, "'", "\\'")
	return []string{
		"Here is a test:\n\n```typescript\n",
		"import { test, expect } from '@playwright/test';\n\n",
		fmt.Sprintf("test('%s', async ({ page }) => {\n", title),
		"  await page.goto('/');\n",
		"  await expect(page).toHaveURL(/.*/);\n});\n```\n",
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
