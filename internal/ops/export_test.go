package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/db"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/generation"
)

func unsafeCfg() *config.Config {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	return cfg
}

func insertGen(t *testing.T, ctx context.Context, database db.Querier, id, kind string, createdAt int64) {
	t.Helper()
	g := &generation.Generation{
		ID: id, Command: kind, Kind: kind, Prompt: "p " + id, Model: "m",
		CodeText: "test('" + id + "', async () => {});", Status: generation.StatusDisplayed, CreatedAt: createdAt,
	}
	if err := db.Insert(ctx, database, g); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestExport_HappyPath(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	insertGen(t, ctx, database, "01EXP002", "web", 2000)
	insertGen(t, ctx, database, "01EXP001", "api", 1000)

	exportPath := filepath.Join(t.TempDir(), "history.jsonl")
	out, err := Export(ctx, database, unsafeCfg(), ExportInput{Path: exportPath})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 2 || out.Path != exportPath || out.ExportedAt == 0 {
		t.Fatalf("out = %+v", out)
	}

	lines := readLines(t, exportPath)
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3 (header + 2 generations)", len(lines))
	}

	var header ExportHeader
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if !header.TestsmithExport || header.SchemaVersion != ExportSchemaVersion || header.ExportedAt != out.ExportedAt {
		t.Errorf("header = %+v", header)
	}

	var first generation.ExportRecord
	if err := json.Unmarshal([]byte(lines[1]), &first); err != nil {
		t.Fatalf("parse record: %v", err)
	}
	if first.ID != "01EXP001" {
		t.Errorf("first ID = %s, want oldest first", first.ID)
	}
	if !strings.Contains(lines[1], "'01EXP001'") {
		t.Errorf("code quotes should not be HTML-escaped: %s", lines[1])
	}
}

func TestExport_KindFilter(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	insertGen(t, ctx, database, "01A", "api", 1)
	insertGen(t, ctx, database, "01W", "web", 2)

	exportPath := filepath.Join(t.TempDir(), "web.jsonl")
	out, err := Export(ctx, database, unsafeCfg(), ExportInput{Path: exportPath, Kind: "web"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if out.Count != 1 {
		t.Errorf("Count = %d, want 1", out.Count)
	}
}

func TestExport_FilePermissionsAndNoTempLeft(t *testing.T) {
	database := setupDB(t)
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "x.jsonl")

	if _, err := Export(context.Background(), database, unsafeCfg(), ExportInput{Path: exportPath}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	info, err := os.Stat(exportPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %v, want 0600", info.Mode().Perm())
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the export", len(entries))
	}
}

func TestExport_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	database := setupDB(t)
	out, err := Export(context.Background(), database, config.DefaultConfig(), ExportInput{Kind: "api"})
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	wantDir := filepath.Join(home, ".testsmith", "exports")
	if filepath.Dir(out.Path) != wantDir {
		t.Errorf("dir = %s, want %s", filepath.Dir(out.Path), wantDir)
	}
	if !strings.HasPrefix(filepath.Base(out.Path), "api-") {
		t.Errorf("name = %s, want api- prefix", filepath.Base(out.Path))
	}
}

func TestExport_PathValidation(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	_, err := Export(ctx, database, unsafeCfg(), ExportInput{Path: "/tmp/../etc/x.jsonl"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("traversal err = %v", err)
	}
	_, err = Export(ctx, database, unsafeCfg(), ExportInput{Path: filepath.Join(t.TempDir(), "x.json")})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("extension err = %v", err)
	}
}

func TestImport_RoundTrip(t *testing.T) {
	src := setupDB(t)
	ctx := context.Background()
	insertGen(t, ctx, src, "01A", "api", 1)
	insertGen(t, ctx, src, "01B", "web", 2)

	exportPath := filepath.Join(t.TempDir(), "h.jsonl")
	if _, err := Export(ctx, src, unsafeCfg(), ExportInput{Path: exportPath}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := setupDB(t)
	insertGen(t, ctx, dst, "01A", "api", 1)

	out, err := Import(ctx, dst, unsafeCfg(), ImportInput{Path: exportPath})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 0 || len(out.Errors) != 1 || out.Errors[0].Code != "ID_COLLISION" {
		t.Fatalf("error mode out = %+v", out)
	}
	if _, err := db.GetByID(ctx, dst, "01B"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("error mode must import nothing, GetByID err = %v", err)
	}

	out, err = Import(ctx, dst, unsafeCfg(), ImportInput{Path: exportPath, Mode: ImportModeSkip})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 1 || out.Skipped != 1 {
		t.Errorf("skip mode out = %+v", out)
	}
	g, err := db.GetByID(ctx, dst, "01B")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if g.CodeChars != generation.CountChars(g.CodeText) {
		t.Errorf("CodeChars = %d, want recomputed", g.CodeChars)
	}
}

func TestImport_ParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jsonl")
	body := `{"_testsmith_export":true,"schema_version":"1.0","exported_at":1}
{not json}
{"command":"api"}
{"id":"01OK","command":"api","status":"displayed","created_at":5}
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	database := setupDB(t)
	ctx := context.Background()

	out, err := Import(ctx, database, unsafeCfg(), ImportInput{Path: path})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 0 || len(out.Errors) != 2 {
		t.Errorf("error mode out = %+v", out)
	}

	out, err = Import(ctx, database, unsafeCfg(), ImportInput{Path: path, Mode: ImportModeSkip})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if out.Imported != 1 {
		t.Errorf("skip mode Imported = %d, want 1", out.Imported)
	}
}

func TestImport_InvalidInput(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	_, err := Import(ctx, database, unsafeCfg(), ImportInput{Path: "/x.jsonl", Mode: "replace"})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("mode err = %v", err)
	}
	_, err = Import(ctx, database, unsafeCfg(), ImportInput{Path: filepath.Join(t.TempDir(), "missing.jsonl")})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}
