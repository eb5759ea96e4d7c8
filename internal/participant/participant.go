// Package participant handles chat requests: it turns a command and prompt
// into a model conversation, streams the reply and, for test generation,
// places the extracted code in the workspace.
package participant

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hpungsan/testsmith/internal/buffer"
	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/errors"
	"github.com/hpungsan/testsmith/internal/extract"
	"github.com/hpungsan/testsmith/internal/llm"
	"github.com/hpungsan/testsmith/internal/locate"
	"github.com/hpungsan/testsmith/internal/ops"
	"github.com/hpungsan/testsmith/internal/prompts"
	"github.com/hpungsan/testsmith/internal/workspace"
)

// Commands understood by Handle.
const (
	CommandAPI        = "api"
	CommandWeb        = "web"
	CommandPlay       = "play"
	CommandAssistant  = "atr"
	CommandAPICreator = "playwright-api-test-creator"
)

// InsertCommandID is the button command offered after a display-only reply.
const InsertCommandID = "test.namesInEditor"

const (
	choiceNew     = "Create new test project"
	choiceCurrent = "Add to current workspace"
)

// Request is one chat turn.
type Request struct {
	Command string
	Prompt  string
	// History holds the text of previous assistant replies, oldest first.
	History        []string
	WorkspaceRoots []string
}

// Response receives the streamed answer.
type Response interface {
	Progress(message string)
	Markdown(text string)
	Button(command, title string)
}

// Result reports what a request produced.
type Result struct {
	Command      string `json:"command"`
	TargetPath   string `json:"target_path,omitempty"`
	ProjectPath  string `json:"project_path,omitempty"`
	GenerationID string `json:"generation_id,omitempty"`
}

// Asker extends the locator's prompter with free-text input.
type Asker interface {
	locate.Prompter
	// Input asks for a line of text. ok is false when the user dismissed it.
	Input(ctx context.Context, prompt, placeholder string) (answer string, ok bool, err error)
}

// Followup is a suggested next request.
type Followup struct {
	Prompt  string `json:"prompt"`
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Deps wires a Participant.
type Deps struct {
	Config *config.Config
	Model  llm.Model
	// Upgrade is tried before Model for test generation. Optional.
	Upgrade llm.Model
	Asker   Asker
	FS      locate.FileSystem
	Runner  workspace.Runner
	// DB records generations when set.
	DB *sql.DB
	// WorkDir is suggested as the parent of new projects.
	WorkDir string
}

// Participant serves chat requests.
type Participant struct {
	cfg     *config.Config
	model   llm.Model
	upgrade llm.Model
	asker   Asker
	locator *locate.Locator
	runner  workspace.Runner
	db      *sql.DB
	workDir string
	extract extract.Options
}

// New creates a Participant.
func New(d Deps) *Participant {
	if d.FS == nil {
		d.FS = locate.OSFileSystem{}
	}
	return &Participant{
		cfg:     d.Config,
		model:   d.Model,
		upgrade: d.Upgrade,
		asker:   d.Asker,
		locator: locate.New(d.FS, d.Asker, LocateOptions(d.Config)),
		runner:  d.Runner,
		db:      d.DB,
		workDir: d.WorkDir,
		extract: ExtractOptions(d.Config),
	}
}

// Followups returns the canned followup suggestions.
func Followups() []Followup {
	return []Followup{
		{Prompt: "generate API test for user authentication with JWT", Label: "Generate API Authentication Test", Command: CommandAPI},
		{Prompt: "generate Web test for e-commerce checkout process", Label: "Generate E-commerce UI Test", Command: CommandWeb},
	}
}

// Handle dispatches a request by command. Model failures with a known reason
// are reported to resp and not returned; prompts the user dismissed end the
// request silently.
func (p *Participant) Handle(ctx context.Context, req Request, resp Response) (*Result, error) {
	res := &Result{Command: req.Command}
	var err error

	switch req.Command {
	case CommandAPI:
		resp.Progress("Analyzing requirements and designing API test architecture...")
		err = p.generateTest(ctx, locate.KindAPI, req, resp, res)
	case CommandWeb:
		resp.Progress("Analyzing UI components and designing Page Object Model architecture...")
		err = p.generateTest(ctx, locate.KindWeb, req, resp, res)
	case CommandPlay:
		resp.Progress("Creating demonstration test with best practices and patterns...")
		err = p.chat(ctx, req, prompts.Play(req.Prompt), resp, res)
	case CommandAssistant:
		err = p.chat(ctx, req, prompts.Conversation(prompts.Assistant, req.History, req.Prompt), resp, res)
	case CommandAPICreator:
		err = p.chat(ctx, req, prompts.Conversation(prompts.APICreator, req.History, req.Prompt), resp, res)
	case "":
		err = p.chat(ctx, req, []llm.Message{llm.System(prompts.Expert), llm.User(req.Prompt)}, resp, res)
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown command %q", req.Command))
	}

	if err != nil {
		return res, p.report(err, resp)
	}
	return res, nil
}

// chat streams the reply to resp as markdown.
func (p *Participant) chat(ctx context.Context, req Request, msgs []llm.Message, resp Response, res *Result) error {
	stream, err := start(ctx, p.model, msgs)
	if err != nil {
		p.record(ctx, req, "", p.model.Name(), nil, extract.Result{}, err, res)
		return err
	}
	defer stream.Close()

	var raw strings.Builder
	err = forEach(ctx, stream, func(frag string) {
		raw.WriteString(frag)
		resp.Markdown(frag)
	})
	p.record(ctx, req, "", p.model.Name(), nil, extract.Parse(raw.String(), p.extract), err, res)
	return err
}

func (p *Participant) generateTest(ctx context.Context, kind locate.Kind, req Request, resp Response, res *Result) error {
	choices := []string{choiceNew}
	if len(req.WorkspaceRoots) > 0 {
		choices = append(choices, choiceCurrent)
	}
	title := "Create a new test project?"
	if len(req.WorkspaceRoots) > 0 {
		title = "Do you want to add tests to current workspace or create a new project?"
	}
	choice, ok, err := p.asker.Choose(ctx, title, choices)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewUserCancelled("project choice")
	}

	var located *locate.Result
	switch choice {
	case choiceNew:
		if err := p.newProject(ctx, kind, resp, res); err != nil {
			return err
		}
	case choiceCurrent:
		located, err = p.locator.Locate(ctx, locate.Request{Kind: kind, PromptText: req.Prompt, WorkspaceRoots: req.WorkspaceRoots})
		switch {
		case err == nil:
		case errors.Is(err, errors.ErrCollisionExhausted):
			resp.Markdown("Could not find a free test file name; showing the test here instead.\n\n")
			located = nil
		default:
			return err
		}
	}

	model, stream, err := p.open(ctx, prompts.ForKind(string(kind), req.Prompt, targetOf(located)))
	if err != nil {
		p.record(ctx, req, string(kind), model.Name(), located, extract.Result{}, err, res)
		return err
	}
	defer stream.Close()

	if located == nil {
		return p.display(ctx, req, kind, model, stream, resp, res)
	}

	result, err := extract.Extract(ctx, stream, p.extract)
	if err == nil {
		err = insertAtTop(located.Path, result.CodeText)
	}
	p.record(ctx, req, string(kind), model.Name(), located, result, err, res)
	if err != nil {
		return err
	}
	res.TargetPath = located.Path
	resp.Markdown("Test added to: " + located.Path)
	return nil
}

// newProject asks for a project name and location and runs workspace setup.
// A dismissed question skips setup; the test is then only displayed.
func (p *Participant) newProject(ctx context.Context, kind locate.Kind, resp Response, res *Result) error {
	name, ok, err := p.asker.Input(ctx, "Enter project name", string(kind)+"-test-automation")
	if err != nil || !ok || strings.TrimSpace(name) == "" {
		return err
	}
	parent, ok, err := p.asker.Input(ctx, "Select location for test project", p.workDir)
	if err != nil || !ok {
		return err
	}
	if strings.TrimSpace(parent) == "" {
		parent = p.workDir
	}

	resp.Progress("Setting up test workspace...")
	created, err := workspace.New(p.runner, resp.Progress).Run(ctx, workspace.Options{
		Kind:        string(kind),
		ProjectName: strings.TrimSpace(name),
		ParentDir:   parent,
		Repo:        p.cfg.TemplateRepo,
		Branch:      p.cfg.TemplateBranch,
	})
	if err != nil {
		resp.Markdown("**Error:** Failed to set up project: " + message(err) + "\n\n")
		return nil
	}
	res.ProjectPath = created.Path
	resp.Markdown(strings.ToUpper(string(kind)) + " test project setup complete: " + created.Path + "\n\n")
	return nil
}

// open starts the reply stream, trying the upgrade model first. A model
// counts as failed when it cannot produce a first fragment.
func (p *Participant) open(ctx context.Context, msgs []llm.Message) (llm.Model, llm.Stream, error) {
	if p.upgrade != nil && p.upgrade.Name() != p.model.Name() {
		stream, err := start(ctx, p.upgrade, msgs)
		if err == nil {
			return p.upgrade, stream, nil
		}
		if errors.Is(err, errors.ErrCancelled) {
			return p.upgrade, nil, err
		}
		slog.Warn("failed to upgrade model", "model", p.upgrade.Name(), "fallback", p.model.Name(), "error", err)
	}
	stream, err := start(ctx, p.model, msgs)
	return p.model, stream, err
}

// start opens a stream on m and reads ahead to its first fragment.
func start(ctx context.Context, m llm.Model, msgs []llm.Message) (llm.Stream, error) {
	stream, err := m.Stream(ctx, msgs)
	if err == nil {
		stream, err = llm.Prime(ctx, stream)
	}
	if err != nil && ctx.Err() != nil {
		return nil, errors.NewCancelled("generation")
	}
	return stream, err
}

// display streams the reply inside a typescript fence and offers the insert button.
func (p *Participant) display(ctx context.Context, req Request, kind locate.Kind, model llm.Model, stream llm.Stream, resp Response, res *Result) error {
	var raw strings.Builder
	resp.Markdown("```typescript\n")
	err := forEach(ctx, stream, func(frag string) {
		raw.WriteString(frag)
		resp.Markdown(frag)
	})
	resp.Markdown("\n```\n")
	p.record(ctx, req, string(kind), model.Name(), nil, extract.Parse(raw.String(), p.extract), err, res)
	if err != nil {
		return err
	}
	resp.Button(InsertCommandID, "Insert Test Code to Editor")
	return nil
}

// InsertTestCode replaces the buffer with a model rewrite of its contents,
// appending fragments as they arrive. A failure mid-stream is appended to
// the buffer instead of being returned.
func (p *Participant) InsertTestCode(ctx context.Context, buf buffer.Buffer) error {
	stream, err := p.model.Stream(ctx, prompts.Enhance(buf.Text()))
	if err != nil {
		slog.Error("insert test code: model request failed", "model", p.model.Name(), "error", err)
		return err
	}
	defer stream.Close()

	if err := buffer.Clear(buf); err != nil {
		return err
	}
	err = forEach(ctx, stream, func(frag string) {
		if appendErr := buffer.Append(buf, frag); appendErr != nil {
			slog.Error("insert test code: append failed", "error", appendErr)
		}
	})
	if err != nil {
		slog.Warn("insert test code: stream failed", "error", err)
		return buffer.Append(buf, message(err))
	}
	return nil
}

// forEach drains stream, calling fn for every fragment.
func forEach(ctx context.Context, stream llm.Stream, fn func(string)) error {
	for {
		frag, err := stream.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return errors.NewCancelled("generation")
			}
			return err
		}
		fn(frag)
	}
}

// insertAtTop writes code at line 0, character 0 of the located file.
func insertAtTop(path, code string) error {
	f, err := buffer.Open(path)
	if err != nil {
		return err
	}
	if err := f.Insert(buffer.Position{}, code+"\n"); err != nil {
		return err
	}
	return f.Save()
}

func targetOf(r *locate.Result) string {
	if r == nil {
		return ""
	}
	return r.Path
}

func (p *Participant) record(ctx context.Context, req Request, kind, model string, located *locate.Result, result extract.Result, err error, res *Result) {
	if p.db == nil || errors.IsSilent(err) {
		return
	}
	in := ops.RecordInput{
		Command:        req.Command,
		Kind:           kind,
		Prompt:         req.Prompt,
		Model:          model,
		HasFencedBlock: result.HasFencedBlock,
		CodeText:       result.CodeText,
		Err:            err,
	}
	if located != nil && err == nil {
		in.TargetPath = located.Path
		in.DirCreated = located.Created
	}
	if in.Command == "" {
		in.Command = "ask"
	}
	out, recErr := ops.Record(context.WithoutCancel(ctx), p.db, in)
	if recErr != nil {
		slog.Warn("failed to record generation", "error", recErr)
		return
	}
	res.GenerationID = out.ID
}

// Messages shown for model failures with a known reason.
var streamMessages = map[errors.StreamReason]string{
	errors.ReasonNotSupported:   "**Error:** The selected language model does not support this operation",
	errors.ReasonNoResponse:     "**Error:** Failed to get a response from the language model",
	errors.ReasonInvalidRequest: "**Error:** Invalid request to language model",
	errors.ReasonOffTopic:       "I'm sorry, I can only assist with generating automated tests and test-related topics.",
}

// report renders err to resp. It returns nil when err is fully handled.
func (p *Participant) report(err error, resp Response) error {
	if errors.IsSilent(err) {
		return nil
	}
	if msg, ok := streamMessages[errors.Reason(err)]; ok {
		resp.Markdown(msg)
		return nil
	}
	if errors.Is(err, errors.ErrIOFailure) {
		resp.Markdown("**Error:** " + message(err))
		return err
	}
	slog.Error("request failed", "error", err)
	return err
}

// message returns the user-facing text of err.
func message(err error) string {
	var sErr *errors.SmithError
	if stderrors.As(err, &sErr) {
		return sErr.Message
	}
	return err.Error()
}

// WorkDir returns the process working directory, or "" if unavailable.
func WorkDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return wd
}
