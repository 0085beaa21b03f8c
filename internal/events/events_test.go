package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"forge/internal/apperr"
)

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestEmitterHappyPathOrdering(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter(16)
	if err := em.Start(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	_ = em.Delta(ctx, "Hel")
	_ = em.ToolStart(ctx, "t1", "set_dial", json.RawMessage(`{"dial":"tone"}`))
	_ = em.Delta(ctx, "lo")
	_ = em.ToolEnd(ctx, "t1", "ok", false)
	_ = em.PanelUpdate(ctx, "dials", map[string]int{"partySize": 4})
	if err := em.End(ctx, Usage{TotalTokens: 12}); err != nil {
		t.Fatal(err)
	}
	evs := collect(em.Events())
	want := []Type{TypeChatStart, TypeChatDelta, TypeToolStart, TypeChatDelta, TypeToolEnd, TypePanelUpdate, TypeChatEnd}
	if len(evs) != len(want) {
		t.Fatalf("events=%v", evs)
	}
	for i, ev := range evs {
		if ev.Type != want[i] {
			t.Fatalf("event %d type=%q, want %q", i, ev.Type, want[i])
		}
	}
	if end := evs[4].Data.(ToolEnd); end.ToolName != "set_dial" {
		t.Fatalf("tool end=%+v", end)
	}
}

func TestEmitterRejectsOutOfOrder(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter(8)
	if err := em.Delta(ctx, "x"); !errors.Is(err, ErrProtocol) {
		t.Fatalf("delta before start err=%v", err)
	}
	_ = em.Start(ctx, "m1")
	if err := em.ToolEnd(ctx, "nope", "", false); !errors.Is(err, ErrProtocol) {
		t.Fatalf("unknown tool end err=%v", err)
	}
	_ = em.End(ctx, Usage{})
	if err := em.Delta(ctx, "late"); !errors.Is(err, ErrProtocol) {
		t.Fatalf("delta after end err=%v", err)
	}
}

func TestEmitterUnmatchedToolEndsWithProtocolError(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter(8)
	_ = em.Start(ctx, "m1")
	_ = em.ToolStart(ctx, "t1", "select_frame", nil)
	err := em.End(ctx, Usage{})
	if apperr.KindOf(err) != apperr.KindProtocol {
		t.Fatalf("err=%v kind=%q", err, apperr.KindOf(err))
	}
	evs := collect(em.Events())
	last := evs[len(evs)-1]
	if last.Type != TypeError || last.Data.(Error).Code != string(apperr.KindProtocol) {
		t.Fatalf("last=%+v", last)
	}
}

func TestEmitterBackpressureAndCancel(t *testing.T) {
	em := NewEmitter(1)
	em.grace = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	if err := em.Start(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- em.Delta(ctx, "blocked") }()
	select {
	case err := <-done:
		t.Fatalf("send did not block on a full buffer: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send did not observe cancellation")
	}
	em.Fail(ctx, apperr.New(apperr.KindCancelled, "cancelled"))
	evs := collect(em.Events())
	if len(evs) != 1 || evs[0].Type != TypeChatStart {
		t.Fatalf("events=%v", evs)
	}
}

func TestAccumulatorInterleavedAndRollback(t *testing.T) {
	acc := NewAccumulator()
	seq := []Event{
		{Type: TypeChatStart, Data: ChatStart{MessageID: "m1"}},
		{Type: TypeChatDelta, Data: ChatDelta{MessageID: "m1", Chunk: "The "}},
		{Type: TypeToolStart, Data: ToolStart{ToolUseID: "t1", ToolName: "confirm_dial"}},
		{Type: TypeUIReady, Data: UIReady{Component: "frames"}},
		{Type: TypeChatDelta, Data: ChatDelta{MessageID: "m1", Chunk: "bell"}},
		{Type: TypeToolEnd, Data: ToolEnd{ToolUseID: "t1", Result: "ok"}},
		{Type: TypeChatEnd, Data: ChatEnd{MessageID: "m1", Usage: Usage{TotalTokens: 3}}},
	}
	for i, ev := range seq {
		if done := acc.Apply(ev); done != (i == len(seq)-1) {
			t.Fatalf("event %d done=%v", i, done)
		}
	}
	got, ok := acc.Completed()
	if !ok || got.Content != "The bell" || len(got.Tools) != 1 || !got.Tools[0].Done {
		t.Fatalf("completed=%+v ok=%v", got, ok)
	}

	failed := NewAccumulator()
	failed.Apply(seq[0])
	failed.Apply(seq[1])
	if failed.Partial() != "The " {
		t.Fatalf("partial=%q", failed.Partial())
	}
	failed.Apply(Event{Type: TypeError, Data: Error{Code: "PROVIDER", Message: "boom"}})
	if _, ok := failed.Completed(); ok || failed.Partial() != "" {
		t.Fatal("failed turn kept partial content")
	}

	cancelled := NewAccumulator()
	cancelled.Apply(seq[0])
	cancelled.Apply(seq[1])
	cancelled.Cancel()
	if f, ok := cancelled.Failure(); !ok || f.Code != string(apperr.KindCancelled) || cancelled.Partial() != "" {
		t.Fatalf("cancel: %+v", f)
	}
}

func TestAccumulatorUnmatchedToolIsViolation(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(Event{Type: TypeChatStart, Data: ChatStart{MessageID: "m1"}})
	acc.Apply(Event{Type: TypeToolStart, Data: ToolStart{ToolUseID: "t1"}})
	acc.Apply(Event{Type: TypeChatEnd, Data: ChatEnd{MessageID: "m1"}})
	if f, ok := acc.Failure(); !ok || f.Code != string(apperr.KindProtocol) {
		t.Fatalf("failure=%+v ok=%v", f, ok)
	}
}

func TestNDJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	em := NewEmitter(16)
	_ = em.Start(ctx, "m1")
	_ = em.ToolStart(ctx, "t1", "set_stage", json.RawMessage(`{"stage":"frame"}`))
	_ = em.ToolEnd(ctx, "t1", "moved", false)
	_ = em.Delta(ctx, "done <ok>")
	_ = em.End(ctx, Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})

	var buf bytes.Buffer
	if err := Pipe(ctx, em.Events(), NewEncoder(&buf)); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], `{"type":"chat:start","data":{"messageId":"m1"}}`) {
		t.Fatalf("lines=%q", lines)
	}
	if !strings.Contains(lines[3], "<ok>") {
		t.Fatalf("html escaped: %s", lines[3])
	}

	dec := NewDecoder(&buf)
	acc := NewAccumulator()
	for {
		ev, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		acc.Apply(ev)
	}
	got, ok := acc.Completed()
	if !ok || got.Content != "done <ok>" || got.Usage.TotalTokens != 3 || got.Tools[0].Input != `{"stage":"frame"}` {
		t.Fatalf("completed=%+v", got)
	}
}

func TestDecoderRejectsUnknownType(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"type":"chat:teleport","data":{}}` + "\n"))
	if _, err := dec.Decode(); apperr.KindOf(err) != apperr.KindProtocol {
		t.Fatalf("err=%v", err)
	}
}

func TestFailAfterCancelWaitsForReader(t *testing.T) {
	em := NewEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := em.Start(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	cancel()
	done := make(chan struct{})
	go func() {
		em.Fail(ctx, apperr.New(apperr.KindCancelled, "cancelled"))
		close(done)
	}()

	// The buffer holds chat:start, so the error only fits once it is read.
	time.Sleep(20 * time.Millisecond)
	evs := collect(em.Events())
	<-done
	if len(evs) != 2 || evs[1].Type != TypeError || evs[1].Data.(Error).Code != string(apperr.KindCancelled) {
		t.Fatalf("events=%v", evs)
	}
}
