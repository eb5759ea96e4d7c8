package ops

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNewID(t *testing.T) {
	a, err := NewID(time.Now())
	require.NoError(t, err)
	b, err := NewID(time.Now())
	require.NoError(t, err)
	require.Len(t, a, 26)
	require.NotEqual(t, a, b)
}

func TestRecord_Statuses(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		input    RecordInput
		want     generation.Status
		wantCode string
	}{
		{
			name:  "written",
			input: RecordInput{Command: "api", Kind: "api", Prompt: "orders", TargetPath: "/w/tests/api/orders.spec.ts", CodeText: "x"},
			want:  generation.StatusWritten,
		},
		{
			name:  "displayed",
			input: RecordInput{Command: "web", Kind: "web", Prompt: "login", CodeText: "y"},
			want:  generation.StatusDisplayed,
		},
		{
			name:     "failed with typed error",
			input:    RecordInput{Command: "api", Err: fmt.Errorf("generate: %w", errors.NewStreamError(errors.ReasonOffTopic, nil))},
			want:     generation.StatusFailed,
			wantCode: string(errors.ErrStream),
		},
		{
			name:     "failed with plain error",
			input:    RecordInput{Command: "play", Err: fmt.Errorf("boom")},
			want:     generation.StatusFailed,
			wantCode: string(errors.ErrInternal),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Record(ctx, database, tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.want, out.Status)

			got, err := Fetch(ctx, database, FetchInput{ID: out.ID})
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Status)
			if tt.wantCode != "" {
				require.NotNil(t, got.ErrorCode)
				require.Equal(t, tt.wantCode, *got.ErrorCode)
			}
			if tt.input.TargetPath != "" {
				require.Equal(t, tt.input.TargetPath, *got.TargetPath)
			}
		})
	}
}

func TestRecord_RequiresCommand(t *testing.T) {
	_, err := Record(context.Background(), setupDB(t), RecordInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestFetch_Addressing(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	_, err := Fetch(ctx, database, FetchInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Fetch(ctx, database, FetchInput{ID: "x", Latest: true})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Fetch(ctx, database, FetchInput{ID: "missing"})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	out, err := Record(ctx, database, RecordInput{Command: "web", Kind: "web", Prompt: "login"})
	require.NoError(t, err)

	latest, err := Fetch(ctx, database, FetchInput{Latest: true, Kind: "web"})
	require.NoError(t, err)
	require.Equal(t, out.ID, latest.ID)
}

func TestList(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := Record(ctx, database, RecordInput{Command: "api", Kind: "api", Prompt: fmt.Sprint(i)})
		require.NoError(t, err)
	}
	_, err := Record(ctx, database, RecordInput{Command: "web", Kind: "web"})
	require.NoError(t, err)

	out, err := List(ctx, database, ListInput{Kind: "api", Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	require.Equal(t, 3, out.Pagination.Total)
	require.True(t, out.Pagination.HasMore)
	require.Equal(t, "created_at_desc", out.Sort)

	out, err = List(ctx, database, ListInput{Limit: 1000})
	require.NoError(t, err)
	require.Equal(t, MaxListLimit, out.Pagination.Limit)
	require.Len(t, out.Items, 4)

	empty, err := List(ctx, database, ListInput{Status: generation.StatusFailed})
	require.NoError(t, err)
	require.NotNil(t, empty.Items)
	require.Empty(t, empty.Items)

	_, err = List(ctx, database, ListInput{Status: "bogus"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestDelete(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	_, err := Delete(ctx, database, DeleteInput{ID: " "})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	rec, err := Record(ctx, database, RecordInput{Command: "api"})
	require.NoError(t, err)

	out, err := Delete(ctx, database, DeleteInput{ID: rec.ID})
	require.NoError(t, err)
	require.True(t, out.Deleted)

	_, err = Delete(ctx, database, DeleteInput{ID: rec.ID})
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestPurge(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	old := &generation.Generation{ID: "01OLD", Command: "api", Kind: "api", Status: generation.StatusDisplayed, CreatedAt: time.Now().Add(-40 * 24 * time.Hour).Unix()}
	require.NoError(t, db.Insert(ctx, database, old))
	_, err := Record(ctx, database, RecordInput{Command: "web", Kind: "web"})
	require.NoError(t, err)

	out, err := Purge(ctx, database, PurgeInput{OlderThanDays: 30})
	require.NoError(t, err)
	require.Equal(t, 1, out.Purged)
	require.Equal(t, "Permanently deleted 1 generation (older than 30 days)", out.Message)

	out, err = Purge(ctx, database, PurgeInput{OlderThanDays: 0, Kind: "api"})
	require.NoError(t, err)
	require.Equal(t, 0, out.Purged)
	require.Equal(t, "No generations to purge", out.Message)

	out, err = Purge(ctx, database, PurgeInput{})
	require.NoError(t, err)
	require.Equal(t, 1, out.Purged)

	_, err = Purge(ctx, database, PurgeInput{OlderThanDays: -1})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestFormatPurgeMessage(t *testing.T) {
	require.Equal(t, "Permanently deleted 2 web generations", formatPurgeMessage(2, "web", 0))
}
