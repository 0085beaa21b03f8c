package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"forge/internal/apperr"
	"forge/internal/chat"
)

func TestConvertMessages(t *testing.T) {
	messages := []chat.Message{
		{Role: "system", Content: "You are the adventure architect"},
		{Role: "user", Content: "darker please"},
		{Role: "assistant", Content: "", ToolCalls: []chat.ToolCall{
			{ID: "call_1", Type: "function", Function: chat.ToolCallFunction{Name: "set_dial", Arguments: `{"dial":"tone","value":"grim"}`}},
		}},
		{Role: "tool", Name: "set_dial", ToolCallID: "call_1", Content: "tone = grim"},
	}

	converted := convertMessages(messages)
	if len(converted) != 4 {
		t.Fatalf("convertMessages len=%d, want 4", len(converted))
	}
	if converted[0].Role != "system" {
		t.Fatalf("msg[0] unexpected: %+v", converted[0])
	}
	if len(converted[2].ToolCalls) != 1 || converted[2].ToolCalls[0].Function.Name != "set_dial" {
		t.Fatalf("msg[2] tool calls unexpected: %+v", converted[2])
	}
	if converted[3].ToolCallID != "call_1" {
		t.Fatalf("msg[3] ToolCallID=%q, want call_1", converted[3].ToolCallID)
	}
}

func TestConvertTools(t *testing.T) {
	tools := []chat.ToolDef{{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        "confirm_dial",
			Description: "Confirm a dial",
			Parameters:  map[string]any{"type": "object"},
		},
	}}
	converted := convertTools(tools)
	if len(converted) != 1 || converted[0].Function.Name != "confirm_dial" {
		t.Fatalf("convertTools=%+v", converted)
	}
}

func TestAssembleToolCalls(t *testing.T) {
	byIdx := map[int]*toolCallAccumulator{
		1: {id: "call_def", typ: "function", name: "confirm_dial"},
		0: {typ: "function", name: "set_dial"},
	}
	byIdx[0].args.WriteString(`{"dial":"partySize","value":5}`)

	calls := assembleToolCalls(byIdx)
	if len(calls) != 2 {
		t.Fatalf("len=%d, want 2", len(calls))
	}
	if calls[0].ID != "call_0" || calls[0].Function.Name != "set_dial" {
		t.Fatalf("call[0] unexpected: %+v", calls[0])
	}
	if calls[1].ID != "call_def" {
		t.Fatalf("call[1] unexpected: %+v", calls[1])
	}
	if assembleToolCalls(map[int]*toolCallAccumulator{}) != nil {
		t.Fatal("empty should return nil")
	}
}

func TestOpenAIProviderSetModel(t *testing.T) {
	p := &OpenAIProvider{model: "gpt-4o"}
	if err := p.SetModel("gpt-4o-mini"); err != nil {
		t.Fatalf("SetModel: %v", err)
	}
	if p.CurrentModel() != "gpt-4o-mini" {
		t.Fatalf("CurrentModel()=%q", p.CurrentModel())
	}
	if err := p.SetModel("  "); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("SetModel empty err=%v", err)
	}
}

func sseServer(t *testing.T, lines []string, seen *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			*seen, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}))
}

func TestChatStreamsTextAndToolCalls(t *testing.T) {
	var body []byte
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"Let me "}}]}`,
		`{"choices":[{"delta":{"content":"set that."}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"set_dial","arguments":"{\"dial\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"tone\",\"value\":\"grim\"}"}}]},"finish_reason":"tool_calls"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
		`[DONE]`,
	}, &body)
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o"})
	var chunks []string
	var calls []chat.ToolCall
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []chat.Message{chat.UserMessage("darker", time.Now())},
		Tools:    []chat.ToolDef{{Type: "function", Function: chat.ToolFunction{Name: "set_dial"}}},
	}, &StreamCallbacks{
		OnTextChunk: func(c string) { chunks = append(chunks, c) },
		OnToolCall:  func(c chat.ToolCall) { calls = append(calls, c) },
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Let me set that." || strings.Join(chunks, "|") != "Let me |set that." {
		t.Fatalf("content=%q chunks=%q", resp.Content, chunks)
	}
	if len(calls) != 1 || calls[0].Function.Arguments != `{"dial":"tone","value":"grim"}` {
		t.Fatalf("calls=%+v", calls)
	}
	if resp.FinishReason != "tool_calls" || resp.Usage.TotalTokens != 15 {
		t.Fatalf("resp=%+v", resp)
	}

	var sent map[string]any
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatal(err)
	}
	if sent["tool_choice"] != "auto" || sent["stream"] != true {
		t.Fatalf("request=%s", body)
	}
	if strings.Contains(string(body), "timestamp") {
		t.Fatalf("timestamp leaked into request: %s", body)
	}
}

func TestChatReportsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o"})
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []chat.Message{{Role: "user", Content: "hi"}}}, nil)
	if apperr.KindOf(err) != apperr.KindProvider {
		t.Fatalf("err=%v kind=%q", err, apperr.KindOf(err))
	}
}

func TestChatCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"The \"}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, Model: "gpt-4o"})
	_, err := p.Chat(ctx, ChatRequest{Messages: []chat.Message{{Role: "user", Content: "hi"}}}, &StreamCallbacks{
		OnTextChunk: func(string) { cancel() },
	})
	if apperr.KindOf(err) != apperr.KindCancelled {
		t.Fatalf("err=%v kind=%q", err, apperr.KindOf(err))
	}
}
