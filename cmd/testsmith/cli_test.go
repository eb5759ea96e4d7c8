package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/generation"
	"github.com/hpungsan/testsmith/internal/locate"
	"github.com/hpungsan/testsmith/internal/ops"
	"github.com/hpungsan/testsmith/internal/workspace"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// testConfig returns a config that talks to the scripted model.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Provider = config.ProviderScripted
	cfg.Model = "scripted"
	cfg.UpgradeModel = ""
	return cfg
}

// fakeRunner records commands and creates a template on clone.
type fakeRunner struct{ calls []string }

func (f *fakeRunner) Run(_ context.Context, _, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if name == "git" && args[0] == "clone" {
		target := args[len(args)-1]
		if err := os.MkdirAll(target, 0o755); err != nil {
			return nil, err
		}
		return nil, os.WriteFile(filepath.Join(target, "package.json"), []byte(`{"name":"t"}`), 0o644)
	}
	return nil, nil
}

// harness runs the app against in-memory streams.
type harness struct {
	app    *cli.App
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness(t *testing.T, database *sql.DB, cfg *config.Config, stdin string) *harness {
	t.Helper()
	h := &harness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	h.app = newApp(&env{db: database, cfg: cfg, runner: &fakeRunner{}})
	h.app.Reader = strings.NewReader(stdin)
	h.app.Writer = h.stdout
	h.app.ErrWriter = h.stderr
	return h
}

func (h *harness) run(args ...string) error {
	return h.app.Run(append([]string{"testsmith"}, args...))
}

func seedGeneration(t *testing.T, database *sql.DB, kind, prompt string) string {
	t.Helper()
	out, err := ops.Record(context.Background(), database, ops.RecordInput{
		Command:        kind,
		Kind:           kind,
		Prompt:         prompt,
		Model:          "scripted",
		HasFencedBlock: true,
		CodeText:       "test('x', async () => {});",
	})
	require.NoError(t, err)
	return out.ID
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "7d", want: 7},
		{input: "0d", want: 0},
		{input: "30d", want: 30},
		{input: "7", wantErr: true},
		{input: "xd", wantErr: true},
		{input: "-1d", wantErr: true},
		{input: "7h", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel(""))
	require.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestCLIGenerate(t *testing.T) {
	database := setupTestDB(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tests", "api"), 0o755))

	h := newHarness(t, database, testConfig(), "")
	err := h.run("generate", "--kind", "api", "--root", root, "create a test for the login flow")
	require.NoError(t, err, h.stderr.String())

	target := filepath.Join(root, "tests", "api", "login-flow.spec.ts")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "import { test, expect } from '@playwright/test';")
	require.Contains(t, string(data), "await page.goto('/');")
	require.NotContains(t, string(data), "```")

	latest, err := ops.Fetch(context.Background(), database, ops.FetchInput{Latest: true})
	require.NoError(t, err)
	require.Equal(t, generation.StatusWritten, latest.Status)
	require.NotNil(t, latest.TargetPath)
	require.Equal(t, target, *latest.TargetPath)
}

func TestCLIGenerate_PromptFromStdin(t *testing.T) {
	database := setupTestDB(t)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "tests", "web"), 0o755))

	h := newHarness(t, database, testConfig(), "checkout as guest\n")
	require.NoError(t, h.run("generate", "--kind", "web", "--root", root))

	_, err := os.Stat(filepath.Join(root, "tests", "web", "checkout-as-guest.spec.ts"))
	require.NoError(t, err)
}

func TestCLIGenerate_Display(t *testing.T) {
	database := setupTestDB(t)
	root := t.TempDir()

	h := newHarness(t, database, testConfig(), "")
	require.NoError(t, h.run("generate", "--kind", "web", "--display", "--root", root, "search products"))

	require.Contains(t, h.stdout.String(), "await page.goto('/');")
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCLIGenerate_Errors(t *testing.T) {
	database := setupTestDB(t)

	t.Run("bad kind", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		err := h.run("generate", "--kind", "mobile", "tap the button")
		require.Error(t, err)
		require.Contains(t, err.Error(), "INVALID_REQUEST")
	})

	t.Run("missing prompt", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		err := h.run("generate", "--kind", "api")
		require.Error(t, err)
		require.Contains(t, err.Error(), "a prompt is required")
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := testConfig()
		cfg.Provider = "carrier-pigeon"
		h := newHarness(t, database, cfg, "")
		err := h.run("generate", "--kind", "api", "--display", "login")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown provider")
	})
}

func TestCLIPlay(t *testing.T) {
	h := newHarness(t, setupTestDB(t), testConfig(), "")
	require.NoError(t, h.run("play", "open the home page"))
	require.Contains(t, h.stdout.String(), "@playwright/test")
}

func TestCLIAsk(t *testing.T) {
	database := setupTestDB(t)

	t.Run("general question", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		require.NoError(t, h.run("ask", "how do I wait for a response?"))
		require.NotEmpty(t, h.stdout.String())
	})

	t.Run("persona with history", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		require.NoError(t, h.run("ask", "--command", "atr", "--history", "earlier answer", "and for PUT?"))
		require.NotEmpty(t, h.stdout.String())
	})

	t.Run("unknown persona", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		err := h.run("ask", "--command", "poet", "hello")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown persona")
	})
}

func TestCLIInsert(t *testing.T) {
	file := filepath.Join(t.TempDir(), "draft.spec.ts")
	require.NoError(t, os.WriteFile(file, []byte("test('draft', async () => {});\n"), 0o644))

	h := newHarness(t, setupTestDB(t), testConfig(), "")
	require.NoError(t, h.run("insert", file))

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), "await page.goto('/');")
	require.Contains(t, h.stderr.String(), "Updated "+file)

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, setupTestDB(t), testConfig(), "")
		err := h.run("insert", filepath.Join(t.TempDir(), "nope.ts"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "NOT_FOUND")
	})
}

func TestCLIExtract(t *testing.T) {
	reply := "Sure:\n```typescript\ntest('a', async () => {});\n```\n"

	t.Run("prints code with import", func(t *testing.T) {
		h := newHarness(t, setupTestDB(t), testConfig(), reply)
		require.NoError(t, h.run("extract"))
		require.Equal(t, testConfig().DefaultImport+"\n\ntest('a', async () => {});\n", h.stdout.String())
	})

	t.Run("json skip import", func(t *testing.T) {
		h := newHarness(t, setupTestDB(t), testConfig(), reply)
		require.NoError(t, h.run("extract", "--json", "--skip-import"))

		var out struct {
			CodeText       string `json:"code_text"`
			HasFencedBlock bool   `json:"has_fenced_block"`
		}
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		require.Equal(t, "test('a', async () => {});", out.CodeText)
		require.True(t, out.HasFencedBlock)
	})
}

func TestCLILocate(t *testing.T) {
	root := t.TempDir()

	t.Run("no test directory without --create-dir", func(t *testing.T) {
		h := newHarness(t, setupTestDB(t), testConfig(), "")
		err := h.run("locate", "--kind", "api", "--root", root, "orders")
		require.Error(t, err)
		require.Contains(t, err.Error(), "NO_DIRECTORY_SELECTED")
	})

	t.Run("creates directory and file", func(t *testing.T) {
		h := newHarness(t, setupTestDB(t), testConfig(), "")
		require.NoError(t, h.run("locate", "--kind", "api", "--root", root, "--create-dir", "list orders"))

		var out locate.Result
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		require.Equal(t, filepath.Join(root, "tests", "api", "list-orders.spec.ts"), out.Path)
		require.True(t, out.Created)
	})
}

func TestCLISetup(t *testing.T) {
	parent := t.TempDir()
	h := newHarness(t, setupTestDB(t), testConfig(), "")
	require.NoError(t, h.run("setup", "--kind", "web", "--name", "shop-tests", "--parent", parent))

	var out workspace.Result
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	require.Equal(t, filepath.Join(parent, "shop-tests"), out.Path)
	require.Contains(t, h.stderr.String(), "Cloning repository...")
}

func TestCLIHistory(t *testing.T) {
	database := setupTestDB(t)
	apiID := seedGeneration(t, database, "api", "list users")
	webID := seedGeneration(t, database, "web", "log in")

	t.Run("list with kind filter", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		require.NoError(t, h.run("history", "list", "--kind", "api"))

		var out ops.ListOutput
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		require.Len(t, out.Items, 1)
		require.Equal(t, apiID, out.Items[0].ID)
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		err := h.run("history", "list", "--status", "lost")
		require.Error(t, err)
		require.Contains(t, err.Error(), "INVALID_REQUEST")
	})

	t.Run("show latest", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		require.NoError(t, h.run("history", "show", "--latest", "--kind", "web"))

		var out generation.Generation
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		require.Equal(t, webID, out.ID)
	})

	t.Run("show code only", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		require.NoError(t, h.run("history", "show", "--code", apiID))
		require.Equal(t, "test('x', async () => {});\n", h.stdout.String())
	})

	t.Run("show not found", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		err := h.run("history", "show", "01ARZ3NDEKTSV4RRFFQ69G5FAV")
		require.Error(t, err)
		require.Contains(t, err.Error(), "NOT_FOUND")
	})

	t.Run("delete", func(t *testing.T) {
		id := seedGeneration(t, database, "api", "temporary")
		h := newHarness(t, database, testConfig(), "")
		require.NoError(t, h.run("history", "delete", id))

		var out ops.DeleteOutput
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
		require.True(t, out.Deleted)
	})

	t.Run("purge rejects bad duration", func(t *testing.T) {
		h := newHarness(t, database, testConfig(), "")
		err := h.run("history", "purge", "--older-than", "soon")
		require.Error(t, err)
		require.Contains(t, err.Error(), "INVALID_REQUEST")
	})
}

func TestCLIHistoryExportImport(t *testing.T) {
	source := setupTestDB(t)
	seedGeneration(t, source, "api", "list users")
	seedGeneration(t, source, "web", "log in")

	dir := t.TempDir()
	cfg := testConfig()
	cfg.AllowedPaths = []string{dir}
	path := filepath.Join(dir, "history.jsonl")

	h := newHarness(t, source, cfg, "")
	require.NoError(t, h.run("history", "export", "--path", path))
	var exported ops.ExportOutput
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &exported))
	require.Equal(t, 2, exported.Count)

	target := setupTestDB(t)
	h = newHarness(t, target, cfg, "")
	require.NoError(t, h.run("history", "import", "--path", path))
	var imported ops.ImportOutput
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &imported))
	require.Equal(t, 2, imported.Imported)

	// Importing again collides on every ID.
	h = newHarness(t, target, cfg, "")
	require.NoError(t, h.run("history", "import", "--path", path, "--mode", "skip"))
	imported = ops.ImportOutput{}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &imported))
	require.Equal(t, 0, imported.Imported)
	require.Equal(t, 2, imported.Skipped)
}

func TestCLIHistoryPurge(t *testing.T) {
	database := setupTestDB(t)
	seedGeneration(t, database, "api", "one")
	seedGeneration(t, database, "web", "two")

	h := newHarness(t, database, testConfig(), "")
	require.NoError(t, h.run("history", "purge", "--older-than", "0d", "--kind", "api"))

	var out ops.PurgeOutput
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	require.Equal(t, 1, out.Purged)

	list, err := ops.List(context.Background(), database, ops.ListInput{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, "web", list.Items[0].Kind)
}

func TestReadStdin(t *testing.T) {
	got, err := readStdin(strings.NewReader("small content"), 1000)
	require.NoError(t, err)
	require.Equal(t, "small content", got)

	_, err = readStdin(strings.NewReader(strings.Repeat("x", 100)), 50)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"testsmith"}, expected: false},
		{name: "generate command", args: []string{"testsmith", "generate"}, expected: true},
		{name: "history command", args: []string{"testsmith", "history"}, expected: true},
		{name: "serve command", args: []string{"testsmith", "serve"}, expected: true},
		{name: "help flag", args: []string{"testsmith", "--help"}, expected: true},
		{name: "global flag", args: []string{"testsmith", "--verbose", "generate"}, expected: true},
		{name: "unknown word defaults to MCP", args: []string{"testsmith", "stdio"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			require.Equal(t, tt.expected, isCLIMode())
		})
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{name: "no args", args: []string{"testsmith"}, expected: false},
		{name: "help flag", args: []string{"testsmith", "--help"}, expected: true},
		{name: "short help flag", args: []string{"testsmith", "-h"}, expected: true},
		{name: "version flag", args: []string{"testsmith", "--version"}, expected: true},
		{name: "short version flag", args: []string{"testsmith", "-v"}, expected: true},
		{name: "help subcommand", args: []string{"testsmith", "help"}, expected: true},
		{name: "generate is not help", args: []string{"testsmith", "generate"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			require.Equal(t, tt.expected, isHelpOrVersion())
		})
	}
}
