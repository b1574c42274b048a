// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/storyloom/internal/app"
	"github.com/jeranaias/storyloom/internal/cadence"
	"github.com/jeranaias/storyloom/internal/config"
	"github.com/jeranaias/storyloom/internal/controller"
	"github.com/jeranaias/storyloom/internal/export"
	"github.com/jeranaias/storyloom/internal/model"
	"github.com/jeranaias/storyloom/internal/render"
	"github.com/jeranaias/storyloom/internal/storage"
	"github.com/jeranaias/storyloom/internal/ui/styles"
)

// plainCommandPrefix starts REPL commands. "/" already means a system turn.
const plainCommandPrefix = ":"

const plainHelp = `Commands:
  :keywords            List keywords; * marks selected
  :pick N|word         Toggle a keyword for the next turn
  :as NAME             Speak as a character (:as alone speaks as you)
  :image               Illustrate the story now
  :images on|off|after|every N
                       Change when illustrations are made
  :audio               Narrate the newest turn
  :undo                Delete the newest turn
  :story               Print the whole story again
  :export md|html|json Write the story to the current directory
  :clear               Start over (asks first)
  :quit                Leave (Ctrl+D works too)

Anything else is sent as a turn: @name, >, * and / prefixes pick the author.
`

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads one line of user input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// linerReader provides history and line editing on a terminal.
// USABILITY: arrow keys recall earlier turns across sessions.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader(historyFile string, seed []string) *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	r := &linerReader{line: line, historyFile: historyFile}

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	} else {
		// Seed from the session's recall stack, oldest first.
		for i := len(seed) - 1; i >= 0; i-- {
			line.AppendHistory(seed[i])
		}
	}
	return r
}

func (r *linerReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// scanReader reads lines from a pipe; prompts are not shown.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &scanReader{sc: sc}
}

func (r *scanReader) ReadLine(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// syncWriter serializes output from the REPL and background callbacks.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// =============================================================================
// PLAIN CLIENT
// =============================================================================

// Plain is the line-oriented story client.
type Plain struct {
	app *app.App
	log *zap.Logger
	in  lineReader
	out io.Writer

	color   bool
	width   int
	md      *glamour.TermRenderer
	mdTheme model.Theme

	mu          sync.Mutex
	printed     map[string]bool
	lastAuthor  model.Author
	lastPrinted bool

	// pollInterval paces the wait for an outgoing turn.
	pollInterval time.Duration
}

// PlainOptions configures NewPlain.
type PlainOptions struct {
	Config *config.Config
	Logger *zap.Logger
	In     io.Reader
	Out    io.Writer
	// Interactive enables line editing and history on In.
	Interactive bool
	// Color enables styled output and Markdown rendering.
	Color bool
	Width int
	// Store overrides the configured session store.
	Store storage.Store
}

// NewPlain assembles the session and the input source.
func NewPlain(opts PlainOptions) (*Plain, error) {
	out := &syncWriter{w: opts.Out}
	p := &Plain{
		log:          opts.Logger,
		out:          out,
		color:        opts.Color,
		width:        opts.Width,
		printed:      make(map[string]bool),
		pollInterval: 50 * time.Millisecond,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.width <= 0 {
		p.width = DefaultTerminalWidth
	}

	a, err := app.New(app.Options{
		Config:      opts.Config,
		Logger:      p.log,
		Store:       opts.Store,
		OnNotice:    p.printNotice,
		OnGenerated: p.printImages,
		OnAudio: func(_, url string) {
			fmt.Fprintf(p.out, "%s %s\n", p.style(DimStyle, "♪"), url)
		},
	})
	if err != nil {
		return nil, err
	}
	p.app = a

	if opts.Interactive {
		dir, err := opts.Config.DataDir()
		if err != nil {
			dir = os.TempDir()
		}
		p.in = newLinerReader(filepath.Join(dir, "plain_history"), a.State.CommandHistory())
	} else {
		p.in = newScanReader(opts.In)
	}
	return p, nil
}

// App returns the assembled session.
func (p *Plain) App() *app.App {
	return p.app
}

// Run reads turns until EOF, Ctrl+C, :quit or ctx ends.
func (p *Plain) Run(ctx context.Context) error {
	defer p.in.Close()
	defer p.app.Close()
	p.app.Start(ctx)

	if len(p.app.State.Turns()) > 0 {
		p.printStory()
	} else {
		fmt.Fprintln(p.out, p.style(TitleStyle, "storyloom")+" "+p.style(DimStyle, "type :help for commands"))
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := p.in.ReadLine(p.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, plainCommandPrefix) {
			if quit := p.command(ctx, strings.TrimPrefix(line, plainCommandPrefix)); quit {
				return nil
			}
			continue
		}
		p.submit(ctx, line)
	}
}

func (p *Plain) prompt() string {
	label := "you"
	if a := p.app.State.Settings().SelectedAuthor; a != model.AuthorDirect {
		label = render.AuthorLabel(a)
	}
	return p.style(PromptStyle, label+"> ")
}

// submit sends one turn and waits until it settles.
func (p *Plain) submit(ctx context.Context, line string) {
	ctrl := p.app.Controller
	ctrl.SetInput(line)
	if !ctrl.Submit() {
		fmt.Fprintln(p.out, p.style(WarningStyle, "Nothing to send."))
		return
	}
	// The sent text is on screen already.
	p.markPrinted()
	p.wait(ctx)
	p.printNew()
}

func (p *Plain) wait(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for p.app.Controller.Phase() != controller.PhaseIdle {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// command runs one ":" command and reports whether to quit.
func (p *Plain) command(ctx context.Context, line string) bool {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	ctrl := p.app.Controller

	switch strings.ToLower(name) {
	case "q", "quit", "exit":
		return true

	case "h", "help", "?":
		fmt.Fprint(p.out, plainHelp)

	case "k", "keywords":
		p.printKeywords()

	case "p", "pick":
		kws := p.app.State.Keywords()
		text := ""
		if n, err := strconv.Atoi(rest); err == nil {
			if n >= 1 && n <= len(kws) {
				text = kws[n-1].Text
			}
		} else {
			for _, kw := range kws {
				if strings.EqualFold(kw.Text, rest) {
					text = kw.Text
					break
				}
			}
		}
		if text == "" {
			fmt.Fprintf(p.out, "%s no keyword %s\n", p.style(WarningStyle, "[!]"), rest)
			return false
		}
		ctrl.ToggleKeyword(text)
		p.printKeywords()

	case "as":
		ctrl.SelectAuthor(model.NormalizeAuthor(rest))

	case "image", "img":
		if !ctrl.GenerateImage() {
			fmt.Fprintln(p.out, p.style(WarningStyle, "An illustration is already on its way."))
		}

	case "images":
		if err := p.imageSettings(rest); err != nil {
			fmt.Fprintf(p.out, "%s %v\n", p.style(WarningStyle, "[!]"), err)
		}

	case "audio":
		turns := p.app.State.Turns()
		if len(turns) == 0 || !ctrl.SynthesizeAudio(turns[len(turns)-1].ID) {
			fmt.Fprintln(p.out, p.style(WarningStyle, "Nothing to narrate."))
		}

	case "undo":
		turns := p.app.State.Turns()
		if len(turns) > 0 {
			ctrl.DeleteTurn(turns[len(turns)-1].ID)
			fmt.Fprintln(p.out, p.style(DimStyle, "Removed the newest turn."))
		}

	case "story":
		p.printStory()

	case "export":
		p.exportStory(rest)

	case "clear":
		ok, err := p.confirm("clear the whole story")
		if err != nil || !ok {
			return false
		}
		ctrl.Clear()
		p.mu.Lock()
		p.printed = make(map[string]bool)
		p.lastPrinted = false
		p.mu.Unlock()
		fmt.Fprintln(p.out, p.style(DimStyle, "The page is blank."))

	default:
		fmt.Fprintf(p.out, "%s unknown command %q; try :help\n", p.style(WarningStyle, "[!]"), name)
	}
	return false
}

func (p *Plain) confirm(action string) (bool, error) {
	line, err := p.in.ReadLine(fmt.Sprintf("%s %s? [y/N] ", p.style(WarningStyle, "[CONFIRM]"), action))
	if err != nil {
		return false, err
	}
	ok, _ := ParseBoolString(line)
	return ok, nil
}

func (p *Plain) imageSettings(arg string) error {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		fmt.Fprintln(p.out, render.Build(render.Input{Snapshot: p.app.State.Snapshot()}).Status.ImageMode)
		return nil
	}

	var patch model.SettingsPatch
	switch strings.ToLower(fields[0]) {
	case "on":
		patch.ImageEnabled = model.Ptr(true)
	case "off":
		patch.ImageEnabled = model.Ptr(false)
	case "after":
		patch.ImageEnabled = model.Ptr(true)
		patch.ImageMode = model.Ptr(model.ModeAfterChat)
	case "every":
		if len(fields) < 2 {
			return errors.New("usage: :images every SECONDS")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("bad interval %q", fields[1])
		}
		patch.ImageEnabled = model.Ptr(true)
		patch.ImageMode = model.Ptr(model.ModePeriodic)
		patch.IntervalSeconds = model.Ptr(n)
	default:
		return fmt.Errorf("unknown image setting %q", fields[0])
	}
	p.app.Controller.UpdateSettings(patch)
	fmt.Fprintln(p.out, render.Build(render.Input{Snapshot: p.app.State.Snapshot()}).Status.ImageMode)
	return nil
}

func (p *Plain) exportStory(format string) {
	if format == "" {
		format = "md"
	}
	opts := export.DefaultOptions()
	opts.Theme = string(p.app.State.Settings().Theme)
	exporter, err := export.ForFormat(format, opts)
	if err == nil {
		doc := export.FromSnapshot(p.app.Config.Session.ID, p.app.State.Snapshot(), time.Now())
		var path string
		if path, err = export.WriteFile(doc, exporter, opts); err == nil {
			fmt.Fprintf(p.out, "%s %s\n", p.style(SuccessStyle, "[OK]"), path)
			return
		}
	}
	fmt.Fprintf(p.out, "%s %v\n", p.style(ErrorStyle, "[ERROR]"), err)
}

// =============================================================================
// OUTPUT
// =============================================================================

func (p *Plain) style(s interface{ Render(...string) string }, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *Plain) markPrinted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.app.State.Turns() {
		p.printed[t.ID] = true
	}
}

func (p *Plain) printStory() {
	p.mu.Lock()
	p.printed = make(map[string]bool)
	p.lastPrinted = false
	p.mu.Unlock()
	p.printNew()
}

// printNew prints turns not shown yet, with a label whenever the author
// changes.
func (p *Plain) printNew() {
	p.mu.Lock()
	defer p.mu.Unlock()

	theme := styles.NewTheme(p.app.State.Settings().Theme)
	for _, t := range p.app.State.Turns() {
		if p.printed[t.ID] {
			continue
		}
		p.printed[t.ID] = true

		if !p.lastPrinted || t.Author != p.lastAuthor {
			label := render.AuthorLabel(t.Author)
			if p.color {
				label = theme.AuthorLabel(render.AuthorColor(t.Author)).Render(label)
			}
			fmt.Fprintln(p.out, label)
		}
		p.lastAuthor, p.lastPrinted = t.Author, true
		fmt.Fprintln(p.out, p.renderContent(t))
	}
}

func (p *Plain) renderContent(t model.Turn) string {
	content := strings.TrimSpace(t.Content)
	if t.Author == model.AuthorThought {
		content = "*" + content + "*"
	}
	if !p.color {
		return content
	}

	theme := p.app.State.Settings().Theme
	if p.md == nil || p.mdTheme != theme {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(string(theme)),
			glamour.WithWordWrap(p.width),
		)
		if err != nil {
			return content
		}
		p.md, p.mdTheme = r, theme
	}
	out, err := p.md.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (p *Plain) printKeywords() {
	snap := p.app.State.Snapshot()
	if len(snap.Keywords) == 0 {
		fmt.Fprintln(p.out, p.style(DimStyle, "No keywords yet."))
		return
	}
	for i, kw := range snap.Keywords {
		mark := " "
		if snap.IsSelected(kw.Text) {
			mark = "*"
		}
		line := fmt.Sprintf("%s %2d. %s", mark, i+1, kw.Text)
		if kw.Category != "" {
			line += p.style(DimStyle, " ("+string(kw.Category)+")")
		}
		fmt.Fprintln(p.out, line)
	}
}

func (p *Plain) printNotice(n controller.Notice) {
	tag := p.style(DimStyle, "[info]")
	switch n.Level {
	case controller.NoticeWarning:
		tag = p.style(WarningStyle, "[warn]")
	case controller.NoticeError:
		tag = p.style(ErrorStyle, "[error]")
	}
	fmt.Fprintf(p.out, "%s %s\n", tag, n.Text)
}

func (p *Plain) printImages(count int, _ cadence.Trigger) {
	images := p.app.State.Images()
	if count > len(images) {
		count = len(images)
	}
	for _, img := range images[len(images)-count:] {
		fmt.Fprintf(p.out, "%s %s", p.style(TitleStyle, "[image]"), img.URL)
		if img.Prompt != "" {
			fmt.Fprintf(p.out, " %s", p.style(DimStyle, img.Prompt))
		}
		fmt.Fprintln(p.out)
	}
}

// RunPlain runs the plain client on the process's standard streams.
func RunPlain(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	p, err := NewPlain(PlainOptions{
		Config:      cfg,
		Logger:      log,
		In:          os.Stdin,
		Out:         os.Stdout,
		Interactive: IsTTY(),
		Color:       ColorsEnabled(),
		Width:       GetTerminalWidth(),
	})
	if err != nil {
		return err
	}
	return p.Run(ctx)
}
