package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/extract"
	"github.com/hpungsan/testsmith/internal/generation"
	"github.com/hpungsan/testsmith/internal/locate"
	"github.com/hpungsan/testsmith/internal/ops"
	"github.com/hpungsan/testsmith/internal/participant"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	fs  locate.FileSystem
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg, fs: locate.OSFileSystem{}}
}

// Request types for each tool

// ExtractRequest represents the arguments for testgen_extract.
type ExtractRequest struct {
	Text       string   `json:"text"`
	FenceTags  []string `json:"fence_tags,omitempty"`
	SkipImport bool     `json:"skip_import,omitempty"`
}

// LocateRequest represents the arguments for testgen_locate.
type LocateRequest struct {
	Kind      string   `json:"kind"`
	Prompt    string   `json:"prompt"`
	Roots     []string `json:"roots,omitempty"`
	CreateDir bool     `json:"create_dir,omitempty"`
	Directory string   `json:"directory,omitempty"`
}

// NameRequest represents the arguments for testgen_name.
type NameRequest struct {
	Prompt string `json:"prompt"`
	Kind   string `json:"kind"`
}

// NameOutput is the result of testgen_name.
type NameOutput struct {
	FileName string `json:"file_name"`
}

// ListRequest represents the arguments for history_list.
type ListRequest struct {
	Kind   string `json:"kind,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// FetchRequest represents the arguments for history_fetch.
type FetchRequest struct {
	ID     string `json:"id,omitempty"`
	Latest bool   `json:"latest,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

// Handler implementations

// HandleExtract handles the testgen_extract tool call.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExtractRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	opts := participant.ExtractOptions(h.cfg)
	if len(input.FenceTags) > 0 {
		opts.FenceTags = input.FenceTags
	}
	if input.SkipImport {
		opts.DefaultImport = ""
	}

	return successResult(extract.Parse(input.Text, opts))
}

// HandleLocate handles the testgen_locate tool call.
func (h *Handlers) HandleLocate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LocateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	kind, err := locate.ParseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return errorResult(errors.NewInvalidRequest("prompt is required")), nil
	}

	prompter := locate.StaticPrompter{CreateDir: input.CreateDir, Directory: input.Directory}
	loc := locate.New(h.fs, prompter, participant.LocateOptions(h.cfg))
	result, err := loc.Locate(ctx, locate.Request{
		Kind:           kind,
		PromptText:     input.Prompt,
		WorkspaceRoots: input.Roots,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleName handles the testgen_name tool call.
func (h *Handlers) HandleName(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	kind, err := locate.ParseKind(input.Kind)
	if err != nil {
		return errorResult(err), nil
	}

	opts := locate.New(h.fs, locate.StaticPrompter{}, participant.LocateOptions(h.cfg)).Options()
	return successResult(NameOutput{FileName: locate.FileName(input.Prompt, kind, opts)})
}

// HandleList handles the history_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Kind:   input.Kind,
		Status: generation.Status(input.Status),
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the history_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:     input.ID,
		Latest: input.Latest,
		Kind:   input.Kind,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.SmithError
	if stderrors.As(err, &sErr) {
		message := sErr.Message
		// Keep context added by wrappers, e.g. "roots[1]: ...".
		if outer := err.Error(); outer != sErr.Error() {
			message = strings.TrimSuffix(outer, sErr.Error()) + sErr.Message
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": message,
			"status":  sErr.Status,
		}
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
