package tools

import (
	"context"

	"forge/internal/pipeline"
	"forge/internal/snapshot"
)

// Panels named in panel:update events.
const (
	PanelSession  = "session"
	PanelDials    = "dials"
	PanelPipeline = "pipeline"
)

// UI components named in ui:ready events.
const (
	ComponentFramePicker = "frame-picker"
	ComponentOutline     = "outline"
	ComponentSceneDraft  = "scene-draft"
	ComponentNPCs        = "npc-list"
	ComponentEchoes      = "echo-list"
)

// Workspace 工具操作的会话上下文
// Workspace is the session a tool call reads and changes. Update applies fn
// atomically: an error leaves the session as it was. Signal methods forward
// UI events to the turn in progress and do nothing outside a turn.
type Workspace interface {
	View() snapshot.Snapshot
	Update(fn func(snapshot.Snapshot) (snapshot.Snapshot, error)) (snapshot.Snapshot, error)
	Generator() *pipeline.Generator
	PanelUpdate(ctx context.Context, panel string, payload any)
	UIReady(ctx context.Context, component string, payload any)
}

// updatePipeline applies fn to the pipeline state only.
func updatePipeline(ws Workspace, fn func(pipeline.State) (pipeline.State, error)) (snapshot.Snapshot, error) {
	return ws.Update(func(s snapshot.Snapshot) (snapshot.Snapshot, error) {
		st, err := fn(s.State)
		if err != nil {
			return s, err
		}
		s.State = st
		return s, nil
	})
}

// infallible adapts a pipeline method that cannot fail.
func infallible(fn func(pipeline.State) pipeline.State) func(pipeline.State) (pipeline.State, error) {
	return func(st pipeline.State) (pipeline.State, error) { return fn(st), nil }
}

// input collects the generation input from a snapshot.
func input(s snapshot.Snapshot) pipeline.Input {
	return pipeline.Input{AdventureName: s.AdventureName, Dials: s.Dials}
}

// AdventureTools returns every authoring tool bound to ws.
func AdventureTools(ws Workspace) []Tool {
	var out []Tool
	out = append(out, sessionTools(ws)...)
	out = append(out, dialTools(ws)...)
	out = append(out, frameTools(ws)...)
	out = append(out, sceneTools(ws)...)
	out = append(out, selectionTools(ws)...)
	out = append(out, echoTools(ws)...)
	return out
}
