package locate

import (
	"strings"
	"unicode"
)

// DefaultStopWords are dropped from prompts before naming a test file.
var DefaultStopWords = []string{"test", "create", "generate", "for", "the", "and", "or", "to", "a", "an"}

const maxNameTokens = 3

// BaseName derives the file name stem for a prompt, e.g.
// "Generate a login test for the checkout page" -> "login-checkout-page".
func BaseName(prompt string, kind Kind, stopWords []string) string {
	stop := make(map[string]bool, len(stopWords))
	for _, w := range stopWords {
		stop[strings.ToLower(w)] = true
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return ' '
		}
		return -1
	}, strings.ToLower(prompt))

	tokens := make([]string, 0, maxNameTokens)
	for _, tok := range strings.Fields(cleaned) {
		if stop[tok] {
			continue
		}
		tokens = append(tokens, tok)
		if len(tokens) == maxNameTokens {
			break
		}
	}

	if len(tokens) == 0 {
		return string(kind) + "-test"
	}
	return strings.Join(tokens, "-")
}

// FileName returns the candidate test file name for a prompt.
func FileName(prompt string, kind Kind, opts Options) string {
	return BaseName(prompt, kind, opts.StopWords) + opts.Suffix
}
