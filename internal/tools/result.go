package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"forge/internal/apperr"
)

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"error":"marshal result: %s"}`, err.Error())
	}
	return string(data)
}

// ok renders a success result with extra fields.
func ok(fields map[string]any) string {
	out := map[string]any{"ok": true}
	for k, v := range fields {
		out[k] = v
	}
	return mustJSON(out)
}

// decodeArgs unmarshals tool arguments. Empty input decodes as {}.
func decodeArgs(tool string, args json.RawMessage, v any) error {
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return apperr.Wrap(apperr.KindValidation, tool+" args", err)
	}
	return nil
}

func required(tool, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("%s: %s is required", tool, field))
	}
	return nil
}
