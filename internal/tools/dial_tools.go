package tools

import (
	"context"
	"encoding/json"

	"forge/internal/dials"
	"forge/internal/snapshot"
)

func dialIDs() []string {
	var out []string
	for _, id := range dials.AllIDs() {
		out = append(out, string(id))
	}
	return out
}

func updateDials(ctx context.Context, ws Workspace, fn func(dials.Set) (dials.Set, error)) (dials.Set, error) {
	snap, err := ws.Update(func(s snapshot.Snapshot) (snapshot.Snapshot, error) {
		d, err := fn(s.Dials)
		if err != nil {
			return s, err
		}
		s.Dials = d
		return s, nil
	})
	if err != nil {
		return dials.Set{}, err
	}
	ws.PanelUpdate(ctx, PanelDials, snap.Dials)
	return snap.Dials, nil
}

func dialResult(d dials.Set) string {
	return ok(map[string]any{
		"dials":            d.Summary(),
		"requiredComplete": d.RequiredComplete(),
		"missing":          d.Missing(),
	})
}

func dialTools(ws Workspace) []Tool {
	return []Tool{
		&Func{
			name: "set_dial",
			description: "Set one dial. partySize 2-6, partyTier 1-4, sceneCount 3-6, sessionLength one of '2-3 hours','3-4 hours','4-5 hours'; " +
				"tone, npcDensity, lethality, emotionalRegister take one option; pillarBalance is {primary,secondary,tertiary} over combat/exploration/social; " +
				"themes is up to 3 distinct themes",
			params: object(map[string]any{
				"dial":  str("dial id", dialIDs()...),
				"value": map[string]any{"description": "new value; shape depends on the dial"},
			}, "dial", "value"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Dial  string          `json:"dial"`
					Value json.RawMessage `json:"value"`
				}
				if err := decodeArgs("set_dial", args, &in); err != nil {
					return "", err
				}
				id, err := dials.ParseID(in.Dial)
				if err != nil {
					return "", err
				}
				d, err := updateDials(ctx, ws, func(d dials.Set) (dials.Set, error) { return d.Apply(id, in.Value) })
				if err != nil {
					return "", err
				}
				return dialResult(d), nil
			},
		},
		&Func{
			name:        "confirm_dials",
			description: "Confirm one or more dials. The four concrete dials must be confirmed before the frame stage",
			params: object(map[string]any{
				"dials": map[string]any{"type": "array", "items": str("dial id", dialIDs()...)},
			}, "dials"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Dials []string `json:"dials"`
				}
				if err := decodeArgs("confirm_dials", args, &in); err != nil {
					return "", err
				}
				d, err := updateDials(ctx, ws, func(d dials.Set) (dials.Set, error) {
					for _, raw := range in.Dials {
						id, err := dials.ParseID(raw)
						if err != nil {
							return d, err
						}
						if d, err = d.Confirm(id); err != nil {
							return d, err
						}
					}
					return d, nil
				})
				if err != nil {
					return "", err
				}
				return dialResult(d), nil
			},
		},
		&Func{
			name:        "unconfirm_dial",
			description: "Remove the confirmation of one dial",
			params:      object(map[string]any{"dial": str("dial id", dialIDs()...)}, "dial"),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Dial string `json:"dial"`
				}
				if err := decodeArgs("unconfirm_dial", args, &in); err != nil {
					return "", err
				}
				id, err := dials.ParseID(in.Dial)
				if err != nil {
					return "", err
				}
				d, err := updateDials(ctx, ws, func(d dials.Set) (dials.Set, error) { return d.Unconfirm(id), nil })
				if err != nil {
					return "", err
				}
				return dialResult(d), nil
			},
		},
		&Func{
			name:        "reset_dials",
			description: "Reset one dial, or every dial when all is true. Concrete dials return to defaults, conceptual dials become unset; reset dials are unconfirmed",
			params: object(map[string]any{
				"dial": str("dial id", dialIDs()...),
				"all":  boolean("reset every dial"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Dial string `json:"dial"`
					All  bool   `json:"all"`
				}
				if err := decodeArgs("reset_dials", args, &in); err != nil {
					return "", err
				}
				if !in.All {
					if err := required("reset_dials", "dial", in.Dial); err != nil {
						return "", err
					}
				}
				d, err := updateDials(ctx, ws, func(d dials.Set) (dials.Set, error) {
					if in.All {
						return d.ResetAll(), nil
					}
					id, err := dials.ParseID(in.Dial)
					if err != nil {
						return d, err
					}
					return d.ResetDial(id), nil
				})
				if err != nil {
					return "", err
				}
				return dialResult(d), nil
			},
		},
	}
}
