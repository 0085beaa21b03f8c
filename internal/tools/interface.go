package tools

import (
	"context"
	"encoding/json"

	"forge/internal/chat"
)

// Tool is one function the model (or an MCP client) may call.
type Tool interface {
	Name() string
	Definition() chat.ToolDef
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Func is a Tool assembled from a name, a schema and a handler.
type Func struct {
	name        string
	description string
	params      map[string]any
	run         func(ctx context.Context, args json.RawMessage) (string, error)
}

func (f *Func) Name() string { return f.name }

func (f *Func) Definition() chat.ToolDef {
	return chat.ToolDef{
		Type: "function",
		Function: chat.ToolFunction{
			Name:        f.name,
			Description: f.description,
			Parameters:  f.params,
		},
	}
}

func (f *Func) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return f.run(ctx, args)
}

// object builds an object schema from its properties and required keys.
func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(desc string, enum ...string) map[string]any {
	s := map[string]any{"type": "string", "description": desc}
	if len(enum) > 0 {
		s["enum"] = enum
	}
	return s
}

func integer(desc string, lo, hi int) map[string]any {
	return map[string]any{"type": "integer", "description": desc, "minimum": lo, "maximum": hi}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}
