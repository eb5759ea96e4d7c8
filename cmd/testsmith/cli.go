package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/testsmith/internal/buffer"
	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/extract"
	"github.com/hpungsan/testsmith/internal/generation"
	"github.com/hpungsan/testsmith/internal/llm"
	"github.com/hpungsan/testsmith/internal/locate"
	"github.com/hpungsan/testsmith/internal/ops"
	"github.com/hpungsan/testsmith/internal/participant"
	"github.com/hpungsan/testsmith/internal/tui"
	"github.com/hpungsan/testsmith/internal/web"
	"github.com/hpungsan/testsmith/internal/workspace"
)

// maxStdinBytes bounds replies piped into extract.
const maxStdinBytes = 4 << 20

// env carries what commands need beyond their flags.
type env struct {
	db     *sql.DB
	cfg    *config.Config
	runner workspace.Runner
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	return newApp(&env{db: db, cfg: cfg, runner: workspace.ExecRunner{}})
}

func newApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "testsmith",
		Usage:   "Generate Playwright tests with a language model",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Log debug output to stderr"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logLevel.Set(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			generateCmd(e),
			playCmd(e),
			askCmd(e),
			insertCmd(e),
			extractCmd(e),
			locateCmd(e),
			setupCmd(e),
			historyCmd(e),
			serveCmd(e),
		},
		// History entries are free text and may contain commas.
		DisableSliceFlagSeparator: true,
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// Flags shared by the commands that pick a test file.
func locateFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "root", Aliases: []string{"r"}, Usage: "Workspace root (repeatable, default: working directory)"},
		&cli.BoolFlag{Name: "create-dir", Usage: "Create tests/<kind> when no test directory exists (non-interactive)"},
		&cli.StringFlag{Name: "dir", Usage: "Test directory to use when several match (non-interactive)"},
		&cli.BoolFlag{Name: "no-input", Usage: "Never prompt; answer from flags"},
	}
}

func kindFlag() cli.Flag {
	return &cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Required: true, Usage: "Test kind: api|web"}
}

// generateCmd creates the generate command.
func generateCmd(e *env) *cli.Command {
	flags := append([]cli.Flag{
		kindFlag(),
		&cli.BoolFlag{Name: "display", Usage: "Only print the test, do not write a file"},
		&cli.BoolFlag{Name: "new", Usage: "Set up a new test project from the template first"},
		&cli.StringFlag{Name: "name", Usage: "Project name for --new (default: <kind>-test-automation)"},
		&cli.StringFlag{Name: "parent", Usage: "Parent directory for --new (default: working directory)"},
	}, locateFlags()...)

	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate a Playwright test and place it in the workspace",
		ArgsUsage: "<prompt>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			kind, err := locate.ParseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}
			prompt, err := promptArg(c)
			if err != nil {
				return outputError(err)
			}

			roots := rootsOf(c)
			var asker participant.Asker
			if interactive(c) {
				asker = tui.NewTerminal(c.App.Reader, c.App.ErrWriter)
			} else {
				auto := participant.AutoAsker{
					StaticPrompter: staticPrompter(c),
					ProjectName:    c.String("name"),
					ParentDir:      c.String("parent"),
				}
				switch {
				case c.Bool("display"):
				case c.Bool("new"):
					auto.Project = "new"
				default:
					auto.Project = "current"
				}
				asker = auto
			}
			if c.Bool("display") {
				roots = nil
			}

			return runParticipant(c, e, asker, participant.Request{
				Command:        string(kind),
				Prompt:         prompt,
				WorkspaceRoots: roots,
			})
		},
	}
}

// playCmd creates the play command.
func playCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Generate a demonstration test and print it",
		ArgsUsage: "<prompt>",
		Action: func(c *cli.Context) error {
			prompt, err := promptArg(c)
			if err != nil {
				return outputError(err)
			}
			return runParticipant(c, e, participant.AutoAsker{}, participant.Request{
				Command: participant.CommandPlay,
				Prompt:  prompt,
			})
		},
	}
}

// askCmd creates the ask command.
func askCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a test automation question",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "command", Aliases: []string{"c"}, Usage: "Persona: atr|playwright-api-test-creator (default: general expert)"},
			&cli.StringSliceFlag{Name: "history", Usage: "Previous assistant reply, oldest first (repeatable)"},
		},
		Action: func(c *cli.Context) error {
			command := c.String("command")
			switch command {
			case "", participant.CommandAssistant, participant.CommandAPICreator:
			default:
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("unknown persona %q", command)))
			}
			prompt, err := promptArg(c)
			if err != nil {
				return outputError(err)
			}
			return runParticipant(c, e, participant.AutoAsker{}, participant.Request{
				Command: command,
				Prompt:  prompt,
				History: c.StringSlice("history"),
			})
		},
	}
}

// insertCmd creates the insert command.
func insertCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "insert",
		Usage:     "Rewrite a test file with an enhanced version from the model",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one file is required"))
			}
			f, err := buffer.Open(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			p, err := newParticipant(e, participant.AutoAsker{})
			if err != nil {
				return outputError(err)
			}
			if err := p.InsertTestCode(c.Context, f); err != nil {
				return outputError(err)
			}
			if err := f.Save(); err != nil {
				return outputError(err)
			}
			fmt.Fprintf(c.App.ErrWriter, "Updated %s\n", f.Path())
			return nil
		},
	}
}

// extractCmd creates the extract command.
func extractCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "extract",
		Usage: "Extract test code from a model reply (reads the reply from stdin)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "fence-tag", Usage: "Fence language tag that marks test code (repeatable)"},
			&cli.BoolFlag{Name: "skip-import", Usage: "Do not prepend the default import line"},
			&cli.BoolFlag{Name: "json", Usage: "Print the full extraction result as JSON"},
		},
		Action: func(c *cli.Context) error {
			r, ok := stdinOf(c)
			if !ok {
				return outputError(errors.NewInvalidRequest("the model reply must be piped via stdin"))
			}
			raw, err := readStdin(r, maxStdinBytes)
			if err != nil {
				return outputError(err)
			}

			opts := participant.ExtractOptions(e.cfg)
			if tags := c.StringSlice("fence-tag"); len(tags) > 0 {
				opts.FenceTags = tags
			}
			if c.Bool("skip-import") {
				opts.DefaultImport = ""
			}
			result := extract.Parse(raw, opts)

			if c.Bool("json") {
				return outputJSON(c.App.Writer, result)
			}
			_, err = fmt.Fprintln(c.App.Writer, result.CodeText)
			return err
		},
	}
}

// locateCmd creates the locate command.
func locateCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:      "locate",
		Usage:     "Create an empty, collision-free test file for a prompt",
		ArgsUsage: "<prompt>",
		Flags:     append([]cli.Flag{kindFlag()}, locateFlags()...),
		Action: func(c *cli.Context) error {
			kind, err := locate.ParseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}
			prompt, err := promptArg(c)
			if err != nil {
				return outputError(err)
			}

			var prompter locate.Prompter = staticPrompter(c)
			if interactive(c) {
				prompter = tui.NewTerminal(c.App.Reader, c.App.ErrWriter)
			}
			loc := locate.New(locate.OSFileSystem{}, prompter, participant.LocateOptions(e.cfg))
			result, err := loc.Locate(c.Context, locate.Request{Kind: kind, PromptText: prompt, WorkspaceRoots: rootsOf(c)})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// setupCmd creates the setup command.
func setupCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create a new Playwright test project from the template repository",
		Flags: []cli.Flag{
			kindFlag(),
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Project name (default: <kind>-test-automation)"},
			&cli.StringFlag{Name: "parent", Aliases: []string{"p"}, Usage: "Parent directory (default: working directory)"},
			&cli.StringFlag{Name: "repo", Usage: "Template repository (default: template_repo from config)"},
			&cli.StringFlag{Name: "branch", Usage: "Template branch (default: template_branch from config)"},
		},
		Action: func(c *cli.Context) error {
			kind, err := locate.ParseKind(c.String("kind"))
			if err != nil {
				return outputError(err)
			}
			opts := workspace.Options{
				Kind:        string(kind),
				ProjectName: orDefault(c.String("name"), string(kind)+"-test-automation"),
				ParentDir:   orDefault(c.String("parent"), participant.WorkDir()),
				Repo:        orDefault(c.String("repo"), e.cfg.TemplateRepo),
				Branch:      orDefault(c.String("branch"), e.cfg.TemplateBranch),
			}

			resp := newTermResponse(c.App.Writer, c.App.ErrWriter)
			result, err := workspace.New(e.runner, resp.Progress).Run(c.Context, opts)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// historyCmd creates the history command group.
func historyCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and manage recorded generations",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List generations, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: api|web"},
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status: written|displayed|failed"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum results"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Pagination offset"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.List(c.Context, e.db, ops.ListInput{
						Kind:   c.String("kind"),
						Status: generation.Status(c.String("status")),
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show one generation with its code",
				ArgsUsage: "[id]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "latest", Usage: "Show the most recent generation"},
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Narrow --latest to api|web"},
					&cli.BoolFlag{Name: "code", Usage: "Print only the code"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.Fetch(c.Context, e.db, ops.FetchInput{
						ID:     c.Args().First(),
						Latest: c.Bool("latest"),
						Kind:   c.String("kind"),
					})
					if err != nil {
						return outputError(err)
					}
					if c.Bool("code") {
						_, err := fmt.Fprintln(c.App.Writer, output.CodeText)
						return err
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete one generation",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					output, err := ops.Delete(c.Context, e.db, ops.DeleteInput{ID: c.Args().First()})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "purge",
				Usage: "Permanently delete generations older than a cutoff",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "older-than", Required: true, Usage: "Age cutoff in days, e.g. 30d (0d purges everything)"},
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: api|web"},
				},
				Action: func(c *cli.Context) error {
					days, err := parseDuration(c.String("older-than"))
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}
					output, err := ops.Purge(c.Context, e.db, ops.PurgeInput{OlderThanDays: days, Kind: c.String("kind")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "export",
				Usage: "Export generations to a JSONL file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.testsmith/exports/<kind|all>-<timestamp>.jsonl)"},
					&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: api|web"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.Export(c.Context, e.db, e.cfg, ops.ExportInput{Path: c.String("path"), Kind: c.String("kind")})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:  "import",
				Usage: "Import generations from a JSONL export",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
					&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|skip"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.Import(c.Context, e.db, e.cfg, ops.ImportInput{Path: c.String("path"), Mode: ops.ImportMode(c.String("mode"))})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse the generation history in a web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8484, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(e.db, e.cfg, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(err)
			}
			return web.Run(c.Context, srv)
		},
	}
}

// newParticipant wires a participant from the configured model.
func newParticipant(e *env, asker participant.Asker) (*participant.Participant, error) {
	sel := llm.NewSelector(e.cfg)
	model, err := sel.Default()
	if err != nil {
		return nil, err
	}
	upgrade, _, err := sel.Upgrade(model.Name())
	if err != nil {
		return nil, err
	}
	return participant.New(participant.Deps{
		Config:  e.cfg,
		Model:   model,
		Upgrade: upgrade,
		Asker:   asker,
		Runner:  e.runner,
		DB:      e.db,
		WorkDir: participant.WorkDir(),
	}), nil
}

func runParticipant(c *cli.Context, e *env, asker participant.Asker, req participant.Request) error {
	p, err := newParticipant(e, asker)
	if err != nil {
		return outputError(err)
	}
	resp := newTermResponse(c.App.Writer, c.App.ErrWriter)
	res, err := p.Handle(c.Context, req, resp)
	resp.finish()
	if err != nil {
		return outputError(err)
	}
	slog.Debug("request done", "command", res.Command, "target", res.TargetPath, "project", res.ProjectPath, "generation", res.GenerationID)
	return nil
}

// termResponse prints streamed markdown to stdout and progress to stderr.
type termResponse struct {
	out, errOut io.Writer
	progress    lipgloss.Style
	hint        lipgloss.Style
	last        string
}

func newTermResponse(out, errOut io.Writer) *termResponse {
	return &termResponse{
		out:      out,
		errOut:   errOut,
		progress: lipgloss.NewStyle().Faint(true),
		hint:     lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

func (r *termResponse) Progress(message string) {
	fmt.Fprintln(r.errOut, r.progress.Render("… "+message))
}

func (r *termResponse) Markdown(text string) {
	if text == "" {
		return
	}
	_, _ = io.WriteString(r.out, text)
	r.last = text
}

func (r *termResponse) Button(command, title string) {
	if command == participant.InsertCommandID {
		fmt.Fprintln(r.errOut, r.hint.Render(title+": paste into a file, then run `testsmith insert <file>`"))
		return
	}
	fmt.Fprintln(r.errOut, r.hint.Render(title))
}

// finish ends the output with a newline.
func (r *termResponse) finish() {
	if r.last != "" && !strings.HasSuffix(r.last, "\n") {
		_, _ = io.WriteString(r.out, "\n")
	}
}

// Helper functions

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.SmithError
	if stderrors.As(err, &sErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinOf returns the app's input when it carries piped data. A terminal is
// not piped data.
func stdinOf(c *cli.Context) (io.Reader, bool) {
	if f, ok := c.App.Reader.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return nil, false
		}
	}
	return c.App.Reader, c.App.Reader != nil
}

// interactive reports whether questions can be asked on a terminal.
func interactive(c *cli.Context) bool {
	if c.Bool("no-input") {
		return false
	}
	f, ok := c.App.Reader.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice != 0
}

// readStdin reads all of r, failing when it exceeds limit bytes.
func readStdin(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewIOFailure("read", "stdin", err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("input exceeds %d bytes", limit))
	}
	return string(data), nil
}

// promptArg joins the positional arguments, falling back to piped stdin.
func promptArg(c *cli.Context) (string, error) {
	prompt := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if prompt == "" {
		if r, ok := stdinOf(c); ok && !interactive(c) {
			text, err := readStdin(r, maxStdinBytes)
			if err != nil {
				return "", err
			}
			prompt = strings.TrimSpace(text)
		}
	}
	if prompt == "" {
		return "", errors.NewInvalidRequest("a prompt is required")
	}
	return prompt, nil
}

// rootsOf returns --root values, defaulting to the working directory.
func rootsOf(c *cli.Context) []string {
	if roots := c.StringSlice("root"); len(roots) > 0 {
		return roots
	}
	if wd := participant.WorkDir(); wd != "" {
		return []string{wd}
	}
	return nil
}

func staticPrompter(c *cli.Context) locate.StaticPrompter {
	return locate.StaticPrompter{CreateDir: c.Bool("create-dir"), Directory: c.String("dir")}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
