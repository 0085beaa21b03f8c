package tools

import (
	"context"
	"encoding/json"

	"forge/internal/pipeline"
	"forge/internal/snapshot"
)

// generate runs a generation step on the current pipeline outside the
// workspace lock and stores the result. A failed step is stored too, since it
// carries the stage error flag; the generation error is returned after.
func generate(ctx context.Context, ws Workspace, step func(context.Context, pipeline.State, pipeline.Input) (pipeline.State, error)) (snapshot.Snapshot, error) {
	view := ws.View()
	next, genErr := step(ctx, view.State, input(view))
	snap, err := updatePipeline(ws, infallible(func(pipeline.State) pipeline.State { return next }))
	if err != nil {
		return snap, err
	}
	ws.PanelUpdate(ctx, PanelPipeline, snap.State)
	return snap, genErr
}

// changePipeline applies fn and publishes the pipeline panel.
func changePipeline(ctx context.Context, ws Workspace, fn func(pipeline.State) (pipeline.State, error)) (snapshot.Snapshot, error) {
	snap, err := updatePipeline(ws, fn)
	if err != nil {
		return snap, err
	}
	ws.PanelUpdate(ctx, PanelPipeline, snap.State)
	return snap, nil
}

func frameTools(ws Workspace) []Tool {
	return []Tool{
		&Func{
			name:        "generate_frames",
			description: "Propose three adventure frames (premise options) from the adventure name and dials",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := generate(ctx, ws, ws.Generator().Frames)
				if err != nil {
					return "", err
				}
				ws.UIReady(ctx, ComponentFramePicker, snap.FrameCandidates)
				return ok(map[string]any{"frames": snap.FrameCandidates}), nil
			},
		},
		&Func{
			name:        "select_frame",
			description: "Select a generated frame by frameId, or author one with title and premise. A confirmed frame cannot change",
			params: object(map[string]any{
				"frameId": str("id of a generated frame"),
				"title":   str("authored frame title"),
				"premise": str("authored frame premise"),
				"setting": str("authored frame setting"),
				"hook":    str("authored frame hook"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					FrameID string `json:"frameId"`
					Title   string `json:"title"`
					Premise string `json:"premise"`
					Setting string `json:"setting"`
					Hook    string `json:"hook"`
				}
				if err := decodeArgs("select_frame", args, &in); err != nil {
					return "", err
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					if in.FrameID != "" {
						return st.SelectFrameCandidate(in.FrameID)
					}
					return st.SelectFrame(pipeline.Frame{
						ID:       "authored",
						Title:    in.Title,
						Premise:  in.Premise,
						Setting:  in.Setting,
						Hook:     in.Hook,
						Authored: true,
					})
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"frame": snap.SelectedFrame}), nil
			},
		},
		&Func{
			name:        "confirm_frame",
			description: "Lock the selected frame",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) { return st.ConfirmFrame() })
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"frame": snap.SelectedFrame, "frameConfirmed": snap.FrameConfirmed}), nil
			},
		},
		&Func{
			name:        "generate_outline",
			description: "Write the scene outline for the confirmed frame. Replaces an unconfirmed outline; a confirmed one must be cleared with clear_stage first",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := generate(ctx, ws, ws.Generator().Outline)
				if err != nil {
					return "", err
				}
				ws.UIReady(ctx, ComponentOutline, snap.Outline)
				return ok(map[string]any{"outline": snap.Outline}), nil
			},
		},
		&Func{
			name:        "confirm_outline",
			description: "Confirm the outline; one pending scene is created per brief",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) { return st.ConfirmOutline() })
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"scenes": len(snap.Scenes)}), nil
			},
		},
	}
}
