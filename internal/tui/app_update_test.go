package tui

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"forge/internal/chat"
	"forge/internal/i18n"
	"forge/internal/orchestrator"
	"forge/internal/provider"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []provider.ChatResponse
	calls     int
	// block makes Chat stream "Once upon" and wait for cancellation.
	block bool
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest, cb *provider.StreamCallbacks) (provider.ChatResponse, error) {
	if p.block {
		cb.OnTextChunk("Once upon")
		<-ctx.Done()
		return provider.ChatResponse{}, ctx.Err()
	}
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.mu.Unlock()
	if i >= len(p.responses) {
		return provider.ChatResponse{}, errors.New("no scripted response")
	}
	resp := p.responses[i]
	if cb != nil && cb.OnTextChunk != nil && resp.Content != "" {
		cb.OnTextChunk(resp.Content)
	}
	return resp, nil
}

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (p *scriptedProvider) Name() string                                             { return "scripted" }
func (p *scriptedProvider) CurrentModel() string                                     { return "m1" }
func (p *scriptedProvider) SetModel(string) error                                    { return nil }

func newApp(t *testing.T, p provider.Provider) App {
	t.Helper()
	i18n.Init("en")
	orch := orchestrator.New(orchestrator.Options{Provider: p, Logger: log.New(io.Discard, "", 0)})
	s, err := orch.InitSession("The Hollow Bell")
	if err != nil {
		t.Fatal(err)
	}
	app := NewApp(context.Background(), s, "m1")
	m, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m.(App)
}

// drain feeds command results back into the model until the turn ends.
func drain(t *testing.T, app App, cmd tea.Cmd) App {
	t.Helper()
	for i := 0; i < 100; i++ {
		if cmd == nil {
			t.Fatal("turn stopped producing commands")
		}
		msg := cmd()
		m, next := app.Update(msg)
		app = m.(App)
		if _, done := msg.(turnEndMsg); done {
			return app
		}
		cmd = next
	}
	t.Fatal("turn did not finish")
	return app
}

func send(t *testing.T, app App, text string) (App, tea.Cmd) {
	t.Helper()
	app.input.SetValue(text)
	m, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return m.(App), cmd
}

func TestAppTurnWithToolCall(t *testing.T) {
	p := &scriptedProvider{responses: []provider.ChatResponse{
		{ToolCalls: []chat.ToolCall{{ID: "c1", Type: "function", Function: chat.ToolCallFunction{
			Name: "set_dial", Arguments: `{"dial":"partySize","value":5}`,
		}}}, FinishReason: "tool_calls"},
		{Content: "Party of five it is.", FinishReason: "stop", Usage: provider.Usage{TotalTokens: 42}},
	}}
	app := newApp(t, p)
	app, cmd := send(t, app, "five players please")
	if !app.streaming || app.input.Value() != "" {
		t.Fatalf("streaming=%v input=%q", app.streaming, app.input.Value())
	}
	app = drain(t, app, cmd)

	if app.streaming || app.tokens != 42 {
		t.Fatalf("streaming=%v tokens=%d", app.streaming, app.tokens)
	}
	for _, want := range []string{"five players please", "Running set_dial", "✓ set_dial", "Party of five it is."} {
		if !strings.Contains(app.chatContent, want) {
			t.Fatalf("chat missing %q:\n%s", want, app.chatContent)
		}
	}
	if app.snap.Dials.PartySize != 5 {
		t.Fatalf("panels not refreshed: partySize=%d", app.snap.Dials.PartySize)
	}
}

func TestAppProviderErrorDropsReply(t *testing.T) {
	app := newApp(t, &scriptedProvider{})
	app, cmd := send(t, app, "hello")
	app = drain(t, app, cmd)
	if !strings.HasPrefix(app.lastError, "PROVIDER") {
		t.Fatalf("lastError=%q", app.lastError)
	}
	if app.pending != "" {
		t.Fatalf("pending=%q", app.pending)
	}
}

func TestAppEscCancelsTurn(t *testing.T) {
	app := newApp(t, &scriptedProvider{block: true})
	app, cmd := send(t, app, "tell me a story")

	// chat:start, then the first delta.
	for i := 0; i < 2; i++ {
		m, next := app.Update(cmd())
		app, cmd = m.(App), next
	}
	if !strings.Contains(app.pending, "Once upon") {
		t.Fatalf("pending=%q", app.pending)
	}
	m, _ := app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	app = drain(t, m.(App), cmd)

	if !strings.Contains(app.chatContent, "Generation interrupted") || strings.Contains(app.chatContent, "Once upon") {
		t.Fatalf("chat=%q", app.chatContent)
	}
	if app.lastError != "" {
		t.Fatalf("cancel reported as error: %q", app.lastError)
	}
}

func TestAppKeys(t *testing.T) {
	app := newApp(t, &scriptedProvider{})

	m, _ := app.Update(tea.KeyMsg{Type: tea.KeyTab})
	app = m.(App)
	if app.activePanel != PanelSession {
		t.Fatalf("panel=%v", app.activePanel)
	}
	for i := 0; i < 3; i++ {
		m, _ = app.Update(tea.KeyMsg{Type: tea.KeyTab})
		app = m.(App)
	}
	if app.activePanel != PanelChat {
		t.Fatalf("tab should wrap, panel=%v", app.activePanel)
	}

	m, _ = app.Update(tea.KeyMsg{Type: tea.KeyCtrlB})
	app = m.(App)
	if !strings.Contains(app.chatContent, "Back to Setup") || app.snap.CurrentStage != "setup" {
		t.Fatalf("stage=%s chat=%q", app.snap.CurrentStage, app.chatContent)
	}

	m, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || m.(App).streaming {
		t.Fatal("empty input should not start a turn")
	}
}

func TestAppView(t *testing.T) {
	app := newApp(t, &scriptedProvider{})
	view := app.View()
	for _, want := range []string{"Chat", "Dials", "Pipeline", "The Hollow Bell", "Dial tuning", "ctrl+b back"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}

	var empty App
	if empty.View() != "Initializing..." {
		t.Fatal("zero-size view should be a placeholder")
	}
}
