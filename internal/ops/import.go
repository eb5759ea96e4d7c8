package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError ImportMode = "error" // abort on the first collision, import nothing
	ImportModeSkip  ImportMode = "skip"  // keep existing generations, import the rest
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one rejected line of an import file.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Import restores generations from a JSONL export file.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeSkip {
		return nil, errors.NewInvalidRequest("mode must be one of: error, skip")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)
	out := &ImportOutput{Errors: parseErrors}
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		return out, nil
	}

	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, rec := range records {
		g := rec.record.ToGeneration()
		if !g.Status.Valid() {
			out.Errors = append(out.Errors, ImportError{Line: rec.line, ID: g.ID, Code: "INVALID_RECORD", Message: fmt.Sprintf("unknown status %q", g.Status)})
			if input.Mode == ImportModeError {
				return &ImportOutput{Errors: out.Errors}, nil
			}
			out.Skipped++
			continue
		}

		err := db.Insert(ctx, tx, g)
		if err == db.ErrUniqueConstraint {
			if input.Mode == ImportModeError {
				out.Errors = append(out.Errors, ImportError{Line: rec.line, ID: g.ID, Code: "ID_COLLISION", Message: fmt.Sprintf("generation with id %q already exists", g.ID)})
				return &ImportOutput{Errors: out.Errors}, nil
			}
			out.Skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		out.Imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}
	return out, nil
}

type parsedRecord struct {
	line   int
	record generation.ExportRecord
}

func parseExportFile(r io.Reader) ([]parsedRecord, []ImportError) {
	var records []parsedRecord
	var parseErrors []ImportError

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec generation.ExportRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "PARSE_ERROR", Message: fmt.Sprintf("invalid JSON: %v", err)})
			continue
		}
		if rec.TestsmithExport {
			continue
		}
		if rec.ID == "" {
			parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: "missing id field"})
			continue
		}
		records = append(records, parsedRecord{line: lineNum, record: rec})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "READ_ERROR", Message: fmt.Sprintf("failed to read file: %v", err)})
	}
	return records, parseErrors
}
