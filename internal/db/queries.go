package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

// ErrUniqueConstraint is returned when an insert reuses an existing id.
var ErrUniqueConstraint = &errors.SmithError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const generationColumns = `
	id, command, kind, prompt, model, target_path, dir_created,
	has_fenced_block, code_text, code_chars, tokens_estimate,
	status, error_code, created_at`

// Insert stores a new generation.
func Insert(ctx context.Context, db Querier, g *generation.Generation) error {
	query := `INSERT INTO generations (` + generationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		g.ID, g.Command, g.Kind, g.Prompt, g.Model, toNullString(g.TargetPath), g.DirCreated,
		g.HasFencedBlock, g.CodeText, g.CodeChars, g.TokensEstimate,
		string(g.Status), toNullString(g.ErrorCode), g.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetByID retrieves a generation by its ULID.
func GetByID(ctx context.Context, db Querier, id string) (*generation.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = ?`

	g, err := scanGeneration(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return g, nil
}

// GetLatest retrieves the most recent generation, optionally of one kind.
func GetLatest(ctx context.Context, db *sql.DB, kind string) (*generation.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT 1`

	g, err := scanGeneration(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("latest")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return g, nil
}

// ListFilter narrows List and StreamForExport.
type ListFilter struct {
	Kind   string
	Status generation.Status
}

func (f ListFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns generation summaries, newest first, plus the total matching count.
func List(ctx context.Context, db *sql.DB, filter ListFilter, limit, offset int) ([]generation.Summary, int, error) {
	where, args := filter.where()

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generations`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `SELECT ` + generationColumns + ` FROM generations` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var summaries []generation.Summary
	for rows.Next() {
		g, err := ScanGenerationFromRows(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		summaries = append(summaries, g.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return summaries, total, nil
}

// StreamForExport returns rows for every matching generation, oldest first.
// The caller must close the rows.
func StreamForExport(ctx context.Context, db *sql.DB, filter ListFilter) (*sql.Rows, error) {
	where, args := filter.where()
	query := `SELECT ` + generationColumns + ` FROM generations` + where + ` ORDER BY created_at ASC, id ASC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// Delete removes a generation.
func Delete(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// PurgeBefore removes generations created before the cutoff (Unix seconds),
// optionally only of one kind. Returns the number removed.
func PurgeBefore(ctx context.Context, db *sql.DB, cutoff int64, kind string) (int, error) {
	query := `DELETE FROM generations WHERE created_at < ?`
	args := []any{cutoff}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row scanner) (*generation.Generation, error) {
	var (
		g          generation.Generation
		targetPath sql.NullString
		errorCode  sql.NullString
		status     string
	)

	err := row.Scan(
		&g.ID, &g.Command, &g.Kind, &g.Prompt, &g.Model, &targetPath, &g.DirCreated,
		&g.HasFencedBlock, &g.CodeText, &g.CodeChars, &g.TokensEstimate,
		&status, &errorCode, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	g.TargetPath = fromNullString(targetPath)
	g.ErrorCode = fromNullString(errorCode)
	g.Status = generation.Status(status)
	return &g, nil
}

// ScanGenerationFromRows scans the current row of a List or StreamForExport result.
func ScanGenerationFromRows(rows *sql.Rows) (*generation.Generation, error) {
	return scanGeneration(rows)
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
