// Package generation holds the history record of one test generation.
package generation

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Status is the outcome of a generation.
type Status string

const (
	// StatusWritten means the code was written to TargetPath.
	StatusWritten Status = "written"
	// StatusDisplayed means the code was only shown to the user.
	StatusDisplayed Status = "displayed"
	// StatusFailed means the model call or the write failed.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusWritten, StatusDisplayed, StatusFailed:
		return true
	}
	return false
}

// Generation is one recorded request/response pair.
type Generation struct {
	// ID is a ULID.
	ID string `json:"id"`

	// Command is the participant command that produced it (api, web, play, ...).
	Command string `json:"command"`

	// Kind is api or web for test generation, empty otherwise.
	Kind string `json:"kind,omitempty"`

	Prompt string `json:"prompt"`

	// Model is the model name that produced the reply.
	Model string `json:"model"`

	// TargetPath is the file the code was written to (nullable).
	TargetPath *string `json:"target_path,omitempty"`

	// DirCreated reports that the test directory was created for this generation.
	DirCreated bool `json:"dir_created,omitempty"`

	HasFencedBlock bool `json:"has_fenced_block"`

	CodeText string `json:"code_text"`

	// CodeChars is the character count (runes, not bytes).
	CodeChars int `json:"code_chars"`

	// TokensEstimate is a rough token count of CodeText.
	TokensEstimate int `json:"tokens_estimate"`

	Status Status `json:"status"`

	// ErrorCode is the SmithError code of a failed generation (nullable).
	ErrorCode *string `json:"error_code,omitempty"`

	// CreatedAt is the Unix timestamp of the generation.
	CreatedAt int64 `json:"created_at"`
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// EstimateTokens estimates token count using a word-based heuristic.
func EstimateTokens(text string) int {
	words := strings.Fields(strings.TrimSpace(text))
	return int(math.Ceil(float64(len(words)) * 1.3))
}
