package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DefaultBuffer is the emitter channel capacity.
const DefaultBuffer = 64

// TerminalGrace bounds how long a terminal event waits for a reader once the
// turn context is done.
const TerminalGrace = 2 * time.Second

// Emitter 单个回合的事件生产者
// Emitter is the producer side of one turn. Events go through a bounded
// channel: a send blocks while the consumer is behind and gives up when the
// context is cancelled. The emitter enforces ordering: start first, every
// tool:start matched by its tool:end, and exactly one terminal event, after
// which the channel is closed.
type Emitter struct {
	ch    chan Event
	grace time.Duration

	mu        sync.Mutex
	messageID string
	started   bool
	closed    bool
	openTools map[string]string
	toolOrder []string
}

// NewEmitter creates an emitter with a channel of the given capacity.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Emitter{ch: make(chan Event, buffer), grace: TerminalGrace, openTools: map[string]string{}}
}

// Events is the consumer side. It is closed after the terminal event.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// MessageID returns the id given to Start.
func (e *Emitter) MessageID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messageID
}

func (e *Emitter) send(ctx context.Context, ev Event) error {
	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) checkOpen(what string) error {
	if e.closed {
		return protocolErr("%s after terminal event", what)
	}
	if !e.started {
		return protocolErr("%s before chat:start", what)
	}
	return nil
}

// Start emits chat:start.
func (e *Emitter) Start(ctx context.Context, messageID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.started {
		return protocolErr("duplicate chat:start")
	}
	e.started = true
	e.messageID = messageID
	return e.send(ctx, Event{Type: TypeChatStart, Data: ChatStart{MessageID: messageID}})
}

// Delta emits a text chunk. Empty chunks are skipped.
func (e *Emitter) Delta(ctx context.Context, chunk string) error {
	if chunk == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("chat:delta"); err != nil {
		return err
	}
	return e.send(ctx, Event{Type: TypeChatDelta, Data: ChatDelta{MessageID: e.messageID, Chunk: chunk}})
}

// ToolStart emits tool:start and records the id as open.
func (e *Emitter) ToolStart(ctx context.Context, toolUseID, toolName string, input json.RawMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("tool:start"); err != nil {
		return err
	}
	if _, dup := e.openTools[toolUseID]; dup || toolUseID == "" {
		return protocolErr("tool:start with duplicate or empty id %q", toolUseID)
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	e.openTools[toolUseID] = toolName
	e.toolOrder = append(e.toolOrder, toolUseID)
	return e.send(ctx, Event{Type: TypeToolStart, Data: ToolStart{ToolUseID: toolUseID, ToolName: toolName, Input: input}})
}

// ToolEnd emits tool:end for an open tool id.
func (e *Emitter) ToolEnd(ctx context.Context, toolUseID, result string, isError bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("tool:end"); err != nil {
		return err
	}
	name, ok := e.openTools[toolUseID]
	if !ok {
		return protocolErr("tool:end for unknown id %q", toolUseID)
	}
	delete(e.openTools, toolUseID)
	return e.send(ctx, Event{Type: TypeToolEnd, Data: ToolEnd{ToolUseID: toolUseID, ToolName: name, Result: result, IsError: isError}})
}

// UIReady emits a UI readiness signal.
func (e *Emitter) UIReady(ctx context.Context, component string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("ui:ready"); err != nil {
		return err
	}
	return e.send(ctx, Event{Type: TypeUIReady, Data: UIReady{Component: component, Payload: raw}})
}

// PanelUpdate emits fresh panel state.
func (e *Emitter) PanelUpdate(ctx context.Context, panel string, payload any) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("panel:update"); err != nil {
		return err
	}
	return e.send(ctx, Event{Type: TypePanelUpdate, Data: PanelUpdate{Panel: panel, Payload: raw}})
}

// End closes the turn with chat:end. If a tool is still open the turn ends
// with a protocol error event instead and that error is returned.
func (e *Emitter) End(ctx context.Context, usage Usage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen("chat:end"); err != nil {
		return err
	}
	if len(e.openTools) > 0 {
		var open []string
		for _, id := range e.toolOrder {
			if _, ok := e.openTools[id]; ok {
				open = append(open, id)
			}
		}
		perr := protocolErr("turn ended with unmatched tool:start %v", open)
		e.terminate(ctx, Event{Type: TypeError, Data: ErrorFrom(perr)})
		return perr
	}
	return e.terminate(ctx, Event{Type: TypeChatEnd, Data: ChatEnd{MessageID: e.messageID, Usage: usage}})
}

// Fail closes the turn with an error event. It is safe to call after the
// context was cancelled: delivery then waits at most TerminalGrace for a
// reader. Calling Fail on a closed emitter does nothing.
func (e *Emitter) Fail(ctx context.Context, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.terminate(ctx, Event{Type: TypeError, Data: ErrorFrom(cause)})
}

// Close closes the channel without a terminal event, for producers that
// never started.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

func (e *Emitter) terminate(ctx context.Context, ev Event) error {
	var err error
	if ctx.Err() != nil {
		timer := time.NewTimer(e.grace)
		select {
		case e.ch <- ev:
		case <-timer.C:
			err = ctx.Err()
		}
		timer.Stop()
	} else {
		err = e.send(ctx, ev)
	}
	e.closed = true
	close(e.ch)
	return err
}

func marshalPayload(v any) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(v)
	}
}
