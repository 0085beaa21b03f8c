package tools

import (
	"context"
	"encoding/json"
	"time"

	"forge/internal/apperr"
	"forge/internal/pipeline"
)

// sceneStream is the panel payload sent while a draft arrives.
type sceneStream struct {
	SceneID string `json:"sceneId"`
	Status  string `json:"status"`
	Text    string `json:"text"`
}

func sceneTools(ws Workspace) []Tool {
	return []Tool{
		&Func{
			name:        "draft_scene",
			description: "Draft one scene from its outline brief. Without sceneId the first pending scene is drafted. Redrafting a draft overwrites it",
			params:      object(map[string]any{"sceneId": str("scene id, e.g. scene-2")}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					SceneID string `json:"sceneId"`
				}
				if err := decodeArgs("draft_scene", args, &in); err != nil {
					return "", err
				}
				if in.SceneID == "" {
					next, found := ws.View().NextPendingScene()
					if !found {
						return "", apperr.New(apperr.KindValidation, "draft_scene: no pending scene")
					}
					in.SceneID = next.ID()
				}
				onUpdate := func(st pipeline.State) {
					sc, _ := st.Scene(in.SceneID)
					if sc.Status == pipeline.SceneGenerating && st.StreamBuffer == "" {
						_, _ = updatePipeline(ws, infallible(func(pipeline.State) pipeline.State { return st }))
					}
					ws.PanelUpdate(ctx, PanelPipeline, sceneStream{SceneID: in.SceneID, Status: string(sc.Status), Text: st.StreamBuffer})
				}
				step := func(ctx context.Context, st pipeline.State, pin pipeline.Input) (pipeline.State, error) {
					return ws.Generator().SceneDraft(ctx, st, pin, in.SceneID, onUpdate)
				}
				snap, err := generate(ctx, ws, step)
				if err != nil {
					return "", err
				}
				sc, _ := snap.Scene(in.SceneID)
				ws.UIReady(ctx, ComponentSceneDraft, sc)
				return ok(map[string]any{"scene": sc}), nil
			},
		},
		&Func{
			name:        "confirm_scene",
			description: "Confirm a drafted scene, or every drafted scene when all is true",
			params: object(map[string]any{
				"sceneId": str("scene id"),
				"all":     boolean("confirm every drafted scene"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					SceneID string `json:"sceneId"`
					All     bool   `json:"all"`
				}
				if err := decodeArgs("confirm_scene", args, &in); err != nil {
					return "", err
				}
				if !in.All {
					if err := required("confirm_scene", "sceneId", in.SceneID); err != nil {
						return "", err
					}
				}
				now := time.Now().UTC()
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					if in.All {
						return st.ConfirmAllScenes(now), nil
					}
					return st.ConfirmScene(in.SceneID, now)
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"scenes": sceneStatuses(snap.State), "canProceed": snap.CanProceedToNPCs()}), nil
			},
		},
		&Func{
			name:        "reset_scene",
			description: "Return a scene to pending and drop its draft. This is the only way to reopen a confirmed scene",
			params:      object(map[string]any{"sceneId": str("scene id")}, "sceneId"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					SceneID string `json:"sceneId"`
				}
				if err := decodeArgs("reset_scene", args, &in); err != nil {
					return "", err
				}
				if err := required("reset_scene", "sceneId", in.SceneID); err != nil {
					return "", err
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) { return st.ResetScene(in.SceneID) })
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"scenes": sceneStatuses(snap.State)}), nil
			},
		},
		&Func{
			name:        "compile_npcs",
			description: "Merge the NPCs mentioned in confirmed scenes into one list. Confirmations of NPCs that remain are kept",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := generate(ctx, ws, func(_ context.Context, st pipeline.State, _ pipeline.Input) (pipeline.State, error) {
					return ws.Generator().CompileNPCs(st)
				})
				if err != nil {
					return "", err
				}
				ws.UIReady(ctx, ComponentNPCs, snap.NPCs)
				return ok(map[string]any{"npcs": snap.NPCs}), nil
			},
		},
		&Func{
			name:        "confirm_npc",
			description: "Confirm an NPC, every NPC when all is true, or remove a confirmation with confirmed=false",
			params: object(map[string]any{
				"npcId":     str("npc id"),
				"all":       boolean("confirm every NPC"),
				"confirmed": boolean("false removes the confirmation; defaults to true"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in confirmArgs
				if err := decodeArgs("confirm_npc", args, &in); err != nil {
					return "", err
				}
				id := in.ID("npcId")
				if err := in.check("confirm_npc", "npcId", id); err != nil {
					return "", err
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					switch {
					case in.All:
						return st.ConfirmAllNPCs(), nil
					case in.unconfirm():
						return st.UnconfirmNPC(id), nil
					default:
						return st.ConfirmNPC(id)
					}
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"confirmed": snap.ConfirmedNPCs.Items(), "canProceed": snap.CanProceedToAdversaries()}), nil
			},
		},
	}
}

func sceneStatuses(st pipeline.State) map[string]pipeline.SceneStatus {
	out := make(map[string]pipeline.SceneStatus, len(st.Scenes))
	for _, sc := range st.Scenes {
		out[sc.ID()] = sc.Status
	}
	return out
}

// confirmArgs is the shared shape of the confirm_* tools: one id field, an
// all flag and an optional confirmed=false to unconfirm.
type confirmArgs struct {
	fields    map[string]string
	All       bool
	Confirmed *bool
}

func (c *confirmArgs) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.fields = make(map[string]string)
	for k, v := range raw {
		switch k {
		case "all":
			if err := json.Unmarshal(v, &c.All); err != nil {
				return err
			}
		case "confirmed":
			var b bool
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			c.Confirmed = &b
		default:
			var s string
			if json.Unmarshal(v, &s) == nil {
				c.fields[k] = s
			}
		}
	}
	return nil
}

// ID returns the string argument named field.
func (c confirmArgs) ID(field string) string { return c.fields[field] }

func (c confirmArgs) unconfirm() bool { return c.Confirmed != nil && !*c.Confirmed }

func (c confirmArgs) check(tool, field, id string) error {
	if c.All {
		return nil
	}
	return required(tool, field, id)
}
