package tools

import (
	"context"
	"encoding/json"

	"forge/internal/pipeline"
)

func echoTools(ws Workspace) []Tool {
	return []Tool{
		&Func{
			name:        "generate_echoes",
			description: "Write the echoes: recurring callbacks and consequences threaded through the finished adventure",
			params:      object(map[string]any{}),
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				snap, err := generate(ctx, ws, ws.Generator().Echoes)
				if err != nil {
					return "", err
				}
				ws.UIReady(ctx, ComponentEchoes, snap.Echoes)
				return ok(map[string]any{"echoes": snap.Echoes}), nil
			},
		},
		&Func{
			name:        "confirm_echo",
			description: "Confirm an echo, every echo when all is true, or remove a confirmation with confirmed=false",
			params: object(map[string]any{
				"echoId":    str("echo id"),
				"all":       boolean("confirm every echo"),
				"confirmed": boolean("false removes the confirmation; defaults to true"),
			}),
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in confirmArgs
				if err := decodeArgs("confirm_echo", args, &in); err != nil {
					return "", err
				}
				id := in.ID("echoId")
				if err := in.check("confirm_echo", "echoId", id); err != nil {
					return "", err
				}
				snap, err := changePipeline(ctx, ws, func(st pipeline.State) (pipeline.State, error) {
					switch {
					case in.All:
						return st.ConfirmAllEchoes(), nil
					case in.unconfirm():
						return st.UnconfirmEcho(id), nil
					default:
						return st.ConfirmEcho(id)
					}
				})
				if err != nil {
					return "", err
				}
				return ok(map[string]any{"confirmed": snap.ConfirmedEchoes.Items(), "canComplete": snap.CanComplete()}), nil
			},
		},
	}
}
