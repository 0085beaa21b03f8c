package events

import (
	"strings"

	"forge/internal/apperr"
)

// ToolRecord is one completed tool invocation seen by the consumer.
type ToolRecord struct {
	ToolUseID string
	ToolName  string
	Input     string
	Result    string
	IsError   bool
	Done      bool
}

// Completed is the finalized assistant message of a successful turn.
type Completed struct {
	MessageID string
	Content   string
	Tools     []ToolRecord
	Usage     Usage
}

// Accumulator 消费端按 messageId 累积增量
// Accumulator is the consumer side of a turn. It joins deltas into one buffer
// per message id and tolerates tool and UI events interleaved with them. An
// error event rolls the partial message back: nothing is finalized.
type Accumulator struct {
	current string
	buffers map[string]*strings.Builder
	tools   []ToolRecord
	toolIdx map[string]int

	completed *Completed
	failure   *Error
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{buffers: map[string]*strings.Builder{}, toolIdx: map[string]int{}}
}

// Apply folds one event in. It returns done once a terminal event was applied.
// Ordering violations are recorded and end the turn as a protocol failure.
func (a *Accumulator) Apply(ev Event) (done bool) {
	if a.completed != nil || a.failure != nil {
		return true
	}
	switch d := ev.Data.(type) {
	case ChatStart:
		a.current = d.MessageID
		a.buffers[d.MessageID] = &strings.Builder{}
	case ChatDelta:
		b, ok := a.buffers[d.MessageID]
		if !ok {
			return a.violate(protocolErr("delta for unknown message %q", d.MessageID))
		}
		b.WriteString(d.Chunk)
	case ToolStart:
		a.toolIdx[d.ToolUseID] = len(a.tools)
		a.tools = append(a.tools, ToolRecord{ToolUseID: d.ToolUseID, ToolName: d.ToolName, Input: string(d.Input)})
	case ToolEnd:
		i, ok := a.toolIdx[d.ToolUseID]
		if !ok {
			return a.violate(protocolErr("tool:end for unknown id %q", d.ToolUseID))
		}
		a.tools[i].Result, a.tools[i].IsError, a.tools[i].Done = d.Result, d.IsError, true
	case UIReady, PanelUpdate:
	case ChatEnd:
		for _, t := range a.tools {
			if !t.Done {
				return a.violate(protocolErr("chat:end with unmatched tool %q", t.ToolUseID))
			}
		}
		b := a.buffers[d.MessageID]
		content := ""
		if b != nil {
			content = b.String()
		}
		a.completed = &Completed{MessageID: d.MessageID, Content: content, Tools: append([]ToolRecord(nil), a.tools...), Usage: d.Usage}
		a.discard()
		return true
	case Error:
		e := d
		a.failure = &e
		a.discard()
		return true
	default:
		return a.violate(protocolErr("unexpected event %q", ev.Type))
	}
	return false
}

func (a *Accumulator) violate(err error) bool {
	e := ErrorFrom(err)
	a.failure = &e
	a.discard()
	return true
}

// discard drops partial buffers.
func (a *Accumulator) discard() {
	a.buffers = map[string]*strings.Builder{}
}

// Partial returns the text received so far for the current message.
func (a *Accumulator) Partial() string {
	if b := a.buffers[a.current]; b != nil {
		return b.String()
	}
	return ""
}

// Tools returns the tool records seen so far.
func (a *Accumulator) Tools() []ToolRecord {
	return append([]ToolRecord(nil), a.tools...)
}

// Completed returns the finalized message after chat:end.
func (a *Accumulator) Completed() (Completed, bool) {
	if a.completed == nil {
		return Completed{}, false
	}
	return *a.completed, true
}

// Failure returns the terminal error payload, if the turn failed.
func (a *Accumulator) Failure() (Error, bool) {
	if a.failure == nil {
		return Error{}, false
	}
	return *a.failure, true
}

// Cancel rolls back an unfinished turn on the consumer side.
func (a *Accumulator) Cancel() {
	if a.completed == nil && a.failure == nil {
		a.failure = &Error{Code: string(apperr.KindCancelled), Message: "turn cancelled"}
		a.discard()
	}
}
