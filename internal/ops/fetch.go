package ops

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

// FetchInput contains parameters for the Fetch operation.
// Exactly one of ID or Latest must be set.
type FetchInput struct {
	ID     string
	Latest bool
	Kind   string // narrows Latest
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	generation.Generation
}

// Fetch retrieves a generation by ID, or the most recent one.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.ID)
	if id != "" && input.Latest {
		return nil, errors.NewInvalidRequest("id and latest are mutually exclusive")
	}

	var (
		g   *generation.Generation
		err error
	)
	switch {
	case id != "":
		g, err = db.GetByID(ctx, database, id)
	case input.Latest:
		g, err = db.GetLatest(ctx, database, input.Kind)
	default:
		return nil, errors.NewInvalidRequest("id or latest is required")
	}
	if err != nil {
		return nil, err
	}
	return &FetchOutput{Generation: *g}, nil
}
