// Package repl is the line-oriented authoring client: readline input, streamed
// replies and glamour-rendered stage output over one orchestrator session.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"

	"forge/internal/apperr"
	"forge/internal/events"
	"forge/internal/i18n"
	"forge/internal/orchestrator"
	"forge/internal/present"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[90m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// Options configures a Loop. Orch and Input are required.
type Options struct {
	Orch  *orchestrator.Orchestrator
	Input LineInput
	Out   io.Writer
	// SessionID resumes a stored session; empty starts a new one named Name.
	SessionID string
	Name      string
	// Models is the /models menu.
	Models []string
	// PersistModel, when set, is called after a successful /models switch.
	PersistModel func(model string) error
	Width        int
	Color        bool
}

// Loop 持有 REPL 状态：编排器、当前会话与输出
// Loop holds the REPL state: orchestrator, current session and output.
type Loop struct {
	opts     Options
	out      io.Writer
	session  *orchestrator.Session
	models   []string
	markdown *present.Renderer
}

// NewLoop builds a REPL loop.
func NewLoop(opts Options) *Loop {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Loop{
		opts:     opts,
		out:      out,
		models:   normalizedModels(opts.Models, ""),
		markdown: present.NewRenderer(opts.Width, opts.Color),
	}
}

// Run reads input until /exit or end of input. Each line is either a slash
// command or a chat turn; Ctrl+C during a turn cancels only that turn.
func (l *Loop) Run(ctx context.Context) error {
	if l.opts.Orch == nil {
		return fmt.Errorf("orchestrator is nil")
	}
	if l.opts.Input == nil {
		return fmt.Errorf("input is nil")
	}
	if err := l.open(); err != nil {
		return err
	}
	l.printCommands()

	for {
		line, err := l.opts.Input.ReadLine(l.prompt())
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				fmt.Fprintln(l.out)
				continue
			case errors.Is(err, io.EOF):
				return nil
			default:
				return fmt.Errorf("read input: %w", err)
			}
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if exit := l.handleCommand(input); exit {
				return nil
			}
			continue
		}
		l.runTurn(ctx, input)
	}
}

func (l *Loop) open() error {
	if id := strings.TrimSpace(l.opts.SessionID); id != "" {
		s, err := l.opts.Orch.Session(id)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", id, err)
		}
		l.use(s, i18n.T("session.resumed", s.ID(), s.View().CurrentStage))
		return nil
	}
	s, err := l.opts.Orch.InitSession(l.opts.Name)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	l.use(s, i18n.T("session.created", s.ID()))
	return nil
}

// use switches to s and prints the last assistant message so a resumed
// conversation has context.
func (l *Loop) use(s *orchestrator.Session, banner string) {
	l.session = s
	l.dim(banner)
	msgs := s.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" && strings.TrimSpace(msgs[i].Content) != "" {
			fmt.Fprintln(l.out, l.markdown.Render(msgs[i].Content))
			break
		}
	}
}

func (l *Loop) prompt() string {
	if l.session == nil {
		return "> "
	}
	snap := l.session.View()
	p := fmt.Sprintf("[%s] %s> ", snap.CurrentStage, snap.AdventureName)
	if snap.AdventureName == "" {
		p = fmt.Sprintf("[%s]> ", snap.CurrentStage)
	}
	if l.opts.Color {
		return ansiGreen + p + ansiReset
	}
	return p
}

// runTurn sends text and prints the event stream until it ends.
func (l *Loop) runTurn(ctx context.Context, text string) {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	em, err := l.session.RunTurn(turnCtx, text)
	if err != nil {
		l.printError(err)
		return
	}
	for ev := range em.Events() {
		l.printEvent(ev)
	}
}

func (l *Loop) printEvent(ev events.Event) {
	switch d := ev.Data.(type) {
	case events.ChatDelta:
		fmt.Fprint(l.out, d.Chunk)
	case events.ToolStart:
		fmt.Fprintln(l.out)
		l.dim(i18n.T("status.tool", d.ToolName))
	case events.ToolEnd:
		if d.IsError {
			l.color(ansiRed, "  x "+d.ToolName+": "+present.ToolError(d.Result))
		}
	case events.UIReady:
		l.printComponent(d)
	case events.ChatEnd:
		fmt.Fprintln(l.out)
		if d.Usage.TotalTokens > 0 {
			l.dim(fmt.Sprintf("tokens: %d", d.Usage.TotalTokens))
		}
	case events.Error:
		fmt.Fprintln(l.out)
		if d.Code == string(apperr.KindCancelled) {
			l.color(ansiYellow, i18n.T("status.interrupted"))
			return
		}
		l.color(ansiRed, d.Code+": "+d.Message)
	}
}

// printComponent shows what a ui:ready points at.
func (l *Loop) printComponent(ui events.UIReady) {
	md, ok := present.Component(ui)
	if !ok {
		return
	}
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, l.markdown.Render(md))
}

func (l *Loop) printError(err error) {
	switch {
	case errors.Is(err, orchestrator.ErrTurnInFlight):
		l.color(ansiRed, i18n.T("error.busy"))
	case apperr.KindOf(err) == apperr.KindProvider:
		l.color(ansiRed, i18n.T("error.provider", err.Error()))
	default:
		l.color(ansiRed, "error: "+err.Error())
	}
}

func (l *Loop) dim(s string) { l.color(ansiDim, s) }

func (l *Loop) color(code, s string) {
	if l.opts.Color {
		fmt.Fprintf(l.out, "%s%s%s\n", code, s, ansiReset)
		return
	}
	fmt.Fprintln(l.out, s)
}

// UseColor reports whether ANSI colors should be written to a terminal.
func UseColor() bool {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("FORGE_NO_COLOR")) != "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(os.Getenv("TERM"))) != "dumb"
}
