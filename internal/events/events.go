// Package events defines the per-turn chat event stream: text deltas, the
// tool lifecycle, UI signals and exactly one terminal event.
package events

import (
	"encoding/json"
	"fmt"

	"forge/internal/apperr"
)

// Type 事件类型
// Type names an event on the wire.
type Type string

const (
	TypeChatStart   Type = "chat:start"
	TypeChatDelta   Type = "chat:delta"
	TypeToolStart   Type = "tool:start"
	TypeToolEnd     Type = "tool:end"
	TypeUIReady     Type = "ui:ready"
	TypePanelUpdate Type = "panel:update"
	TypeChatEnd     Type = "chat:end"
	TypeError       Type = "error"
)

// Terminal reports whether t ends a turn.
func (t Type) Terminal() bool {
	return t == TypeChatEnd || t == TypeError
}

// Event is one protocol event. Data holds one of the payload structs below.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// ChatStart opens a turn.
type ChatStart struct {
	MessageID string `json:"messageId"`
}

// ChatDelta carries a chunk of assistant text.
type ChatDelta struct {
	MessageID string `json:"messageId"`
	Chunk     string `json:"chunk"`
}

// ToolStart announces a tool invocation.
type ToolStart struct {
	ToolUseID string          `json:"toolUseId"`
	ToolName  string          `json:"toolName"`
	Input     json.RawMessage `json:"input"`
}

// ToolEnd reports a tool result; it pairs with the ToolStart of the same id.
type ToolEnd struct {
	ToolUseID string `json:"toolUseId"`
	ToolName  string `json:"toolName"`
	Result    string `json:"result"`
	IsError   bool   `json:"isError"`
}

// UIReady signals that a UI component has content to show, for example the
// frame picker once candidates exist.
type UIReady struct {
	Component string          `json:"component"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// PanelUpdate pushes fresh state for one side panel.
type PanelUpdate struct {
	Panel   string          `json:"panel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Usage is the token accounting reported with chat:end.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatEnd closes a successful turn.
type ChatEnd struct {
	MessageID string `json:"messageId"`
	Usage     Usage  `json:"usage"`
}

// Error closes a failed turn. Code is an apperr kind.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrom builds the terminal error payload for err.
func ErrorFrom(err error) Error {
	if err == nil {
		return Error{Code: string(apperr.KindUnknown), Message: "unknown error"}
	}
	return Error{Code: string(apperr.KindOf(err)), Message: err.Error()}
}

// ErrProtocol is the base of every ordering violation.
var ErrProtocol = apperr.New(apperr.KindProtocol, "event protocol violation")

func protocolErr(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrProtocol)
}

// rawEvent is the wire form before the payload type is known.
type rawEvent struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// decodePayload turns wire data into the payload struct for t.
func decodePayload(t Type, data json.RawMessage) (any, error) {
	var target any
	switch t {
	case TypeChatStart:
		target = &ChatStart{}
	case TypeChatDelta:
		target = &ChatDelta{}
	case TypeToolStart:
		target = &ToolStart{}
	case TypeToolEnd:
		target = &ToolEnd{}
	case TypeUIReady:
		target = &UIReady{}
	case TypePanelUpdate:
		target = &PanelUpdate{}
	case TypeChatEnd:
		target = &ChatEnd{}
	case TypeError:
		target = &Error{}
	default:
		return nil, apperr.New(apperr.KindProtocol, fmt.Sprintf("unknown event type %q", t))
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, target); err != nil {
			return nil, apperr.Wrap(apperr.KindProtocol, fmt.Sprintf("decode %s", t), err)
		}
	}
	switch v := target.(type) {
	case *ChatStart:
		return *v, nil
	case *ChatDelta:
		return *v, nil
	case *ToolStart:
		return *v, nil
	case *ToolEnd:
		return *v, nil
	case *UIReady:
		return *v, nil
	case *PanelUpdate:
		return *v, nil
	case *ChatEnd:
		return *v, nil
	case *Error:
		return *v, nil
	}
	return nil, nil
}
