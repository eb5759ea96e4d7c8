package ops

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

// RecordInput contains parameters for the Record operation.
type RecordInput struct {
	Command        string // required
	Kind           string // api, web or empty
	Prompt         string
	Model          string
	TargetPath     string // empty when the code was only displayed
	DirCreated     bool
	HasFencedBlock bool
	CodeText       string
	// Err is the failure that ended the generation, if any.
	Err error
}

// RecordOutput contains the result of the Record operation.
type RecordOutput struct {
	ID     string            `json:"id"`
	Status generation.Status `json:"status"`
}

// Record stores one generation in the history.
func Record(ctx context.Context, database *sql.DB, input RecordInput) (*RecordOutput, error) {
	if strings.TrimSpace(input.Command) == "" {
		return nil, errors.NewInvalidRequest("command is required")
	}

	now := time.Now()
	id, err := NewID(now)
	if err != nil {
		return nil, err
	}

	g := &generation.Generation{
		ID:             id,
		Command:        input.Command,
		Kind:           input.Kind,
		Prompt:         input.Prompt,
		Model:          input.Model,
		DirCreated:     input.DirCreated,
		HasFencedBlock: input.HasFencedBlock,
		CodeText:       input.CodeText,
		CodeChars:      generation.CountChars(input.CodeText),
		TokensEstimate: generation.EstimateTokens(input.CodeText),
		CreatedAt:      now.Unix(),
	}

	switch {
	case input.Err != nil:
		g.Status = generation.StatusFailed
		code := string(errors.ErrInternal)
		var sErr *errors.SmithError
		if stderrors.As(input.Err, &sErr) {
			code = string(sErr.Code)
		}
		g.ErrorCode = &code
	case input.TargetPath != "":
		g.Status = generation.StatusWritten
	default:
		g.Status = generation.StatusDisplayed
	}
	if input.TargetPath != "" {
		p := input.TargetPath
		g.TargetPath = &p
	}

	if err := db.Insert(ctx, database, g); err != nil {
		return nil, err
	}
	return &RecordOutput{ID: g.ID, Status: g.Status}, nil
}
