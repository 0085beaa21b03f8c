package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"forge/internal/apperr"
	"forge/internal/pipeline"
	"forge/internal/session"
	"forge/internal/snapshot"
)

// forwardBlocker checks every gate between the current stage and target.
// Moving back, or staying put, is never blocked.
func forwardBlocker(s snapshot.Snapshot, target session.Stage) string {
	from := s.CurrentStage.Index()
	for _, st := range session.Stages() {
		if st.Index() <= from || st.Index() > target.Index() {
			continue
		}
		if b := s.State.Blocker(st, s.Dials); b != "" {
			return fmt.Sprintf("cannot enter %s: %s", st, b)
		}
	}
	return ""
}

// StateSummary is the compact session view returned by get_state.
func StateSummary(s snapshot.Snapshot) map[string]any {
	next := s.CurrentStage.Next()
	summary := map[string]any{
		"sessionId":      s.ID,
		"adventureName":  s.AdventureName,
		"stage":          s.CurrentStage,
		"stageHistory":   s.StageHistory,
		"dials":          s.Dials.Summary(),
		"missingDials":   s.Dials.Missing(),
		"frameConfirmed": s.FrameConfirmed,
		"scenes":         len(s.Scenes),
		"npcs":           len(s.NPCs),
		"adversaries":    len(s.Adversaries),
		"items":          len(s.Items),
		"echoes":         len(s.Echoes),
	}
	if next != s.CurrentStage {
		summary["nextStage"] = next
		if b := forwardBlocker(s, next); b != "" {
			summary["blocker"] = b
		}
	}
	return summary
}

func moveTo(ctx context.Context, ws Workspace, target session.Stage) (string, error) {
	snap, err := ws.Update(func(s snapshot.Snapshot) (snapshot.Snapshot, error) {
		if b := forwardBlocker(s, target); b != "" {
			return s, apperr.New(apperr.KindValidation, b)
		}
		s.Session = s.Session.SetStage(target)
		return s, nil
	})
	if err != nil {
		return "", err
	}
	ws.PanelUpdate(ctx, PanelSession, snap.Session)
	return ok(map[string]any{"stage": snap.CurrentStage, "stageHistory": snap.StageHistory}), nil
}

func sessionTools(ws Workspace) []Tool {
	return []Tool{
		&Func{
			name:        "get_state",
			description: "Show the current stage, dial values, pipeline progress and what blocks the next stage",
			params:      object(map[string]any{}),
			run: func(_ context.Context, _ json.RawMessage) (string, error) {
				return ok(map[string]any{"state": StateSummary(ws.View())}), nil
			},
		},
		&Func{
			name:        "set_stage",
			description: "Move to a stage. Moving forward requires every gate on the way to pass; moving back is always allowed",
			params:      object(map[string]any{"stage": str("target stage", stageNames()...)}, "stage"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Stage string `json:"stage"`
				}
				if err := decodeArgs("set_stage", args, &in); err != nil {
					return "", err
				}
				target, err := session.ParseStage(in.Stage)
				if err != nil {
					return "", apperr.Wrap(apperr.KindValidation, "set_stage", err)
				}
				return moveTo(ctx, ws, target)
			},
		},
		&Func{
			name:        "advance_stage",
			description: "Move to the next stage once its gate passes",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return moveTo(ctx, ws, ws.View().CurrentStage.Next())
			},
		},
		&Func{
			name:        "go_back",
			description: "Return to the previously visited stage",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := ws.Update(func(s snapshot.Snapshot) (snapshot.Snapshot, error) {
					if !s.Session.CanGoBack() {
						return s, apperr.New(apperr.KindValidation, "no previous stage")
					}
					s.Session = s.Session.GoToPreviousStage()
					return s, nil
				})
				if err != nil {
					return "", err
				}
				ws.PanelUpdate(ctx, PanelSession, snap.Session)
				return ok(map[string]any{"stage": snap.CurrentStage}), nil
			},
		},
		&Func{
			name:        "clear_stage",
			description: "Discard the content of a stage and every stage after it, e.g. before regenerating. Earlier stages are kept",
			params:      object(map[string]any{"stage": str("first stage to clear", stageNames()...)}, "stage"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Stage string `json:"stage"`
				}
				if err := decodeArgs("clear_stage", args, &in); err != nil {
					return "", err
				}
				stage, err := session.ParseStage(in.Stage)
				if err != nil {
					return "", apperr.Wrap(apperr.KindValidation, "clear_stage", err)
				}
				snap, err := changePipeline(ctx, ws, infallible(func(st pipeline.State) pipeline.State { return st.ClearFrom(stage) }))
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"cleared": stage, "state": StateSummary(snap)}), nil
			},
		},
	}
}

func stageNames() []string {
	var out []string
	for _, st := range session.Stages() {
		out = append(out, string(st))
	}
	return out
}
