package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"forge/internal/chat"
	"forge/internal/i18n"
	"forge/internal/orchestrator"
	"forge/internal/provider"
)

type scriptedProvider struct {
	mu        sync.Mutex
	responses []provider.ChatResponse
	calls     int
	model     string
}

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest, cb *provider.StreamCallbacks) (provider.ChatResponse, error) {
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
func (p *scriptedProvider) CurrentModel() string                                     { return p.model }
func (p *scriptedProvider) SetModel(m string) error                                  { p.model = m; return nil }

// scriptedInput replays lines and then reports end of input.
type scriptedInput struct {
	lines []string
}

func (s *scriptedInput) ReadLine(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedInput) Close() error { return nil }

func newLoop(t *testing.T, p provider.Provider, lines ...string) (*Loop, *bytes.Buffer) {
	t.Helper()
	i18n.Init("en")
	orch := orchestrator.New(orchestrator.Options{Provider: p, Logger: log.New(io.Discard, "", 0)})
	var out bytes.Buffer
	return NewLoop(Options{
		Orch:  orch,
		Input: &scriptedInput{lines: lines},
		Out:   &out,
		Name:  "The Drowned Bell",
		Width: 100,
	}), &out
}

func TestRunNilOrchReturnsError(t *testing.T) {
	err := NewLoop(Options{Input: &scriptedInput{}}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "nil") {
		t.Fatalf("err=%v", err)
	}
}

func TestRunTurnWithToolCall(t *testing.T) {
	p := &scriptedProvider{model: "m1", responses: []provider.ChatResponse{
		{ToolCalls: []chat.ToolCall{{ID: "c1", Type: "function", Function: chat.ToolCallFunction{
			Name: "set_dial", Arguments: `{"dial":"partySize","value":5}`,
		}}}, FinishReason: "tool_calls"},
		{Content: "Party of five it is.", FinishReason: "stop", Usage: provider.Usage{TotalTokens: 42}},
	}}
	loop, out := newLoop(t, p, "five players please", "/exit", "never read")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Session ", "Welcome to The Drowned Bell", "Running set_dial", "Party of five it is.", "tokens: 42"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if loop.session.View().Dials.PartySize != 5 {
		t.Fatalf("partySize=%d", loop.session.View().Dials.PartySize)
	}
	if n := len(loop.session.Messages()); n != 3 {
		t.Fatalf("messages=%d, want welcome+user+assistant", n)
	}
}

func TestProviderErrorIsPrinted(t *testing.T) {
	loop, out := newLoop(t, &scriptedProvider{model: "m1"}, "hello")
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "PROVIDER") {
		t.Fatalf("output=%s", out.String())
	}
}

func TestSlashCommands(t *testing.T) {
	p := &scriptedProvider{model: "m1"}
	loop, out := newLoop(t, p, "/state", "/back", "/new Second Tale", "/bogus", "/models", "/models 2", "/help")
	loop.models = []string{"m1", "m2"}
	var persisted string
	loop.opts.PersistModel = func(m string) error { persisted = m; return nil }
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"The Drowned Bell", "dial-tuning", "Back to setup", "Unknown command: /bogus", "[2] m2", "model: m2", "/resume"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if loop.session.View().AdventureName != "Second Tale" {
		t.Fatalf("current session=%q", loop.session.View().AdventureName)
	}
	if p.model != "m2" || persisted != "m2" {
		t.Fatalf("model=%q persisted=%q", p.model, persisted)
	}
}

func TestResolveModelTarget(t *testing.T) {
	models := []string{"qwen-plus", "qwen-max"}
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"/models QWEN-MAX", "qwen-max", false},
		{"/models 1", "qwen-plus", false},
		{"/models set 2", "qwen-max", false},
		{`/models "gpt-4o"`, "gpt-4o", false},
		{"/models 'deepseek-chat'", "deepseek-chat", false},
		{"/models 9", "", true},
		{"/models", "", true},
		{"/model x", "", true},
	}
	for _, tc := range cases {
		got, err := resolveModelTarget(tc.in, models)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("%q: got %q err=%v", tc.in, got, err)
		}
	}
}
