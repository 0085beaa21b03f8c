package repl

import (
	"fmt"
	"strconv"
	"strings"

	"forge/internal/i18n"
	"forge/internal/present"
)

type command struct {
	name string
	help string // i18n key
}

var commands = []command{
	{"/help", "cmd.help"},
	{"/new", "cmd.new"},
	{"/sessions", "cmd.sessions"},
	{"/resume", "cmd.resume"},
	{"/back", "cmd.back"},
	{"/state", "cmd.state"},
	{"/models", "cmd.models"},
	{"/exit", "cmd.exit"},
}

func (l *Loop) printCommands() {
	for _, c := range commands {
		l.dim(fmt.Sprintf("  %-10s %s", c.name, i18n.T(c.help)))
	}
}

// handleCommand runs a slash command and reports whether the loop should exit.
func (l *Loop) handleCommand(input string) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false
	}
	arg := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))
	switch parts[0] {
	case "/exit", "/quit":
		return true
	case "/help":
		l.printCommands()
	case "/new":
		s, err := l.opts.Orch.InitSession(arg)
		if err != nil {
			l.printError(err)
			return false
		}
		l.use(s, i18n.T("session.created", s.ID()))
	case "/sessions":
		metas, err := l.opts.Orch.List()
		if err != nil {
			l.printError(err)
			return false
		}
		if len(metas) == 0 {
			l.dim(i18n.T("session.none"))
			return false
		}
		for _, m := range metas {
			marker := " "
			if l.session != nil && m.ID == l.session.ID() {
				marker = "*"
			}
			fmt.Fprintf(l.out, "%s %s  %-12s  %s  %s\n", marker, m.ID, m.Stage, m.UpdatedAt.Local().Format("2006-01-02 15:04"), m.AdventureName)
		}
	case "/resume", "/use":
		if arg == "" {
			l.dim(i18n.T("cmd.resume"))
			return false
		}
		s, err := l.opts.Orch.Session(arg)
		if err != nil {
			l.printError(err)
			return false
		}
		l.use(s, i18n.T("session.resumed", s.ID(), s.View().CurrentStage))
	case "/back":
		snap, err := l.session.GoBack()
		if err != nil {
			l.printError(err)
			return false
		}
		l.dim(i18n.T("session.back", snap.CurrentStage))
	case "/state":
		fmt.Fprintln(l.out, l.markdown.Render(present.State(l.session.View())))
	case "/models":
		l.handleModels(input)
	default:
		l.color(ansiRed, i18n.T("error.unknown", parts[0]))
	}
	return false
}

func (l *Loop) handleModels(input string) {
	p := l.opts.Orch.Provider()
	if p == nil {
		l.printError(fmt.Errorf("no model provider configured"))
		return
	}
	current := p.CurrentModel()
	l.models = normalizedModels(l.models, current)
	if strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "/models")) == "" {
		for idx, m := range l.models {
			marker := " "
			if m == current {
				marker = "*"
			}
			fmt.Fprintf(l.out, "%s [%d] %s\n", marker, idx+1, m)
		}
		return
	}
	target, err := resolveModelTarget(input, l.models)
	if err != nil {
		l.color(ansiRed, fmt.Sprintf("%s (%v)", i18n.T("cmd.models"), err))
		return
	}
	if err := p.SetModel(target); err != nil {
		l.printError(err)
		return
	}
	l.models = normalizedModels(l.models, target)
	if l.opts.PersistModel != nil {
		if err := l.opts.PersistModel(target); err != nil {
			l.printError(err)
		}
	}
	l.dim("model: " + target)
}

// resolveModelTarget accepts a model id (case-insensitive match against the
// menu), a 1-based menu index, or a quoted id not in the menu.
func resolveModelTarget(input string, availableModels []string) (string, error) {
	raw := strings.TrimSpace(input)
	if !strings.HasPrefix(raw, "/models") {
		return "", fmt.Errorf("invalid models command")
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "/models"))
	if len(raw) >= 4 && strings.EqualFold(raw[:4], "set ") {
		raw = strings.TrimSpace(raw[4:])
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	} else if len(raw) >= 2 {
		last := raw[len(raw)-1]
		if (raw[0] == '\'' && last == '\'') || (raw[0] == '"' && last == '"') {
			raw = strings.TrimSpace(raw[1 : len(raw)-1])
		}
	}
	if raw == "" {
		return "", fmt.Errorf("missing model")
	}
	for _, model := range availableModels {
		if strings.EqualFold(strings.TrimSpace(model), raw) {
			return strings.TrimSpace(model), nil
		}
	}
	if index, err := strconv.Atoi(raw); err == nil {
		if index < 1 || index > len(availableModels) {
			return "", fmt.Errorf("index out of range")
		}
		return strings.TrimSpace(availableModels[index-1]), nil
	}
	return raw, nil
}

func normalizedModels(existing []string, current string) []string {
	out := make([]string, 0, len(existing)+1)
	seen := map[string]struct{}{}
	for _, model := range existing {
		trimmed := strings.TrimSpace(model)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	current = strings.TrimSpace(current)
	if current != "" {
		if _, ok := seen[current]; !ok {
			out = append([]string{current}, out...)
		}
	}
	return out
}
