// Package workspace bootstraps a new Playwright test project from a
// template repository.
package workspace

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hpungsan/testsmith/internal/errors"
)

// CommitMessage is used for the first commit of a new project.
const CommitMessage = "Initial commit: Project setup from template"

// Runner runs an external command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// Options describes the project to create.
type Options struct {
	Kind        string // api or web
	ProjectName string // single path segment
	ParentDir   string // absolute; the project lands in ParentDir/ProjectName
	Repo        string // template git URL
	Branch      string
}

// Result describes the created project.
type Result struct {
	Path string `json:"path"`
}

// Setup clones and customizes template projects.
type Setup struct {
	runner   Runner
	progress func(step string)
}

// New returns a Setup. progress may be nil.
func New(runner Runner, progress func(step string)) *Setup {
	if runner == nil {
		runner = ExecRunner{}
	}
	if progress == nil {
		progress = func(string) {}
	}
	return &Setup{runner: runner, progress: progress}
}

// Run creates the project. On failure after cloning began, the project
// directory is removed.
func (s *Setup) Run(ctx context.Context, opts Options) (res *Result, err error) {
	if err := validate(opts); err != nil {
		return nil, err
	}
	if _, err := s.runner.Run(ctx, "", "git", "--version"); err != nil {
		return nil, errors.NewInvalidRequest("git is not installed; install git to continue")
	}

	projectPath := filepath.Join(opts.ParentDir, opts.ProjectName)
	if _, err := os.Lstat(projectPath); err == nil {
		return nil, errors.NewInvalidRequest("project directory already exists: " + projectPath)
	}

	defer func() {
		if err == nil {
			return
		}
		if rmErr := os.RemoveAll(projectPath); rmErr != nil {
			slog.Error("failed to clean up project directory", "path", projectPath, "error", rmErr)
		}
	}()

	s.progress("Cloning repository...")
	if _, err := s.runner.Run(ctx, opts.ParentDir, "git", "clone", "-b", opts.Branch, opts.Repo, projectPath); err != nil {
		return nil, errors.NewIOFailure("clone", opts.Repo, err)
	}

	s.progress("Customizing project...")
	if err := customize(projectPath, opts); err != nil {
		return nil, err
	}

	s.progress("Initializing git...")
	if err := s.initGit(ctx, projectPath); err != nil {
		return nil, err
	}

	s.progress("Installing dependencies...")
	if _, err := s.runner.Run(ctx, projectPath, "npm", "install"); err != nil {
		return nil, errors.NewIOFailure("npm install", projectPath, err)
	}

	slog.Info("test project ready", "kind", opts.Kind, "path", projectPath)
	return &Result{Path: projectPath}, nil
}

func validate(opts Options) error {
	if opts.Kind != "api" && opts.Kind != "web" {
		return errors.NewInvalidRequest("kind must be api or web")
	}
	name := strings.TrimSpace(opts.ProjectName)
	if name == "" {
		return errors.NewInvalidRequest("project name is required")
	}
	if name != opts.ProjectName || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || path.Clean(name) != name {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid project name %q: must be a single path segment", opts.ProjectName))
	}
	if !filepath.IsAbs(opts.ParentDir) {
		return errors.NewInvalidRequest("parent directory must be absolute")
	}
	if opts.Repo == "" || opts.Branch == "" {
		return errors.NewInvalidRequest("template repository and branch are required")
	}
	return nil
}

func customize(projectPath string, opts Options) error {
	pkgPath := filepath.Join(projectPath, "package.json")
	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return errors.NewIOFailure("read", pkgPath, err)
	}
	if !gjson.ValidBytes(data) {
		return errors.NewIOFailure("parse", pkgPath, stderrors.New("invalid JSON"))
	}
	data, err = sjson.SetBytes(data, "name", opts.ProjectName)
	if err != nil {
		return errors.NewInternal(err)
	}
	data, err = sjson.SetBytes(data, "description", Description(opts.Kind))
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := os.WriteFile(pkgPath, data, 0o644); err != nil {
		return errors.NewIOFailure("write", pkgPath, err)
	}

	envExample := filepath.Join(projectPath, ".env.example")
	if env, err := os.ReadFile(envExample); err == nil {
		envPath := filepath.Join(projectPath, ".env")
		if err := os.WriteFile(envPath, env, 0o600); err != nil {
			return errors.NewIOFailure("write", envPath, err)
		}
	} else if !os.IsNotExist(err) {
		return errors.NewIOFailure("read", envExample, err)
	}

	vscodeDir := filepath.Join(projectPath, ".vscode")
	if err := os.MkdirAll(vscodeDir, 0o755); err != nil {
		return errors.NewIOFailure("mkdir", vscodeDir, err)
	}
	settings, err := editorSettings()
	if err != nil {
		return errors.NewInternal(err)
	}
	settingsPath := filepath.Join(vscodeDir, "settings.json")
	if err := os.WriteFile(settingsPath, settings, 0o644); err != nil {
		return errors.NewIOFailure("write", settingsPath, err)
	}
	return nil
}

// Description is the package.json description of a new project.
func Description(kind string) string {
	return strings.ToUpper(kind) + " Test Automation Project with Playwright"
}

// editorSettings builds .vscode/settings.json. Keys containing dots are
// escaped for sjson paths.
func editorSettings() ([]byte, error) {
	doc := []byte(`{}`)
	sets := []struct {
		path  string
		value any
	}{
		{`typescript\.tsdk`, "node_modules/typescript/lib"},
		{`editor\.formatOnSave`, true},
		{`editor\.codeActionsOnSave.source\.fixAll`, true},
		{`playwright\.env.baseURL`, "http://localhost:3000"},
		{`playwright\.env.apiURL`, "http://localhost:3000/api"},
	}
	var err error
	for _, s := range sets {
		if doc, err = sjson.SetBytes(doc, s.path, s.value); err != nil {
			return nil, err
		}
	}
	return []byte(gjson.GetBytes(doc, "@pretty").Raw), nil
}

func (s *Setup) initGit(ctx context.Context, projectPath string) error {
	gitDir := filepath.Join(projectPath, ".git")
	if err := os.RemoveAll(gitDir); err != nil {
		return errors.NewIOFailure("remove", gitDir, err)
	}
	for _, args := range [][]string{
		{"init"},
		{"add", "."},
		{"commit", "-m", CommitMessage},
	} {
		if _, err := s.runner.Run(ctx, projectPath, "git", args...); err != nil {
			return errors.NewIOFailure("git "+args[0], projectPath, err)
		}
	}
	return nil
}
