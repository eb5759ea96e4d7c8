package ops

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays int    // required, >= 0; 0 purges everything
	Kind          string // optional filter
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge permanently deletes old generations.
func Purge(ctx context.Context, database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays < 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be >= 0")
	}

	cutoff := time.Now().Add(-time.Duration(input.OlderThanDays) * 24 * time.Hour).Unix()
	if input.OlderThanDays == 0 {
		// include rows recorded within the current second
		cutoff++
	}
	count, err := db.PurgeBefore(ctx, database, cutoff, input.Kind)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.Kind, input.OlderThanDays),
	}, nil
}

func formatPurgeMessage(count int, kind string, olderThanDays int) string {
	if count == 0 {
		return "No generations to purge"
	}

	word := "generation"
	if count > 1 {
		word = "generations"
	}

	msg := fmt.Sprintf("Permanently deleted %d %s", count, word)
	if kind != "" {
		msg = fmt.Sprintf("Permanently deleted %d %s %s", count, kind, word)
	}
	if olderThanDays > 0 {
		msg += fmt.Sprintf(" (older than %d days)", olderThanDays)
	}
	return msg
}
