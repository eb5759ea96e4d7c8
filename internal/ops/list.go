package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Kind   string            // optional: api or web
	Status generation.Status // optional
	Limit  int               // default: 20, max: 100
	Offset int               // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []generation.Summary `json:"items"`
	Pagination Pagination           `json:"pagination"`
	Sort       string               `json:"sort"`
}

// List retrieves generation summaries, newest first, with pagination.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	if input.Status != "" && !input.Status.Valid() {
		return nil, errors.NewInvalidRequest("status must be one of: written, displayed, failed")
	}

	limit := clampLimit(input.Limit)
	offset := max(input.Offset, 0)

	summaries, total, err := db.List(ctx, database, db.ListFilter{Kind: input.Kind, Status: input.Status}, limit, offset)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []generation.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
