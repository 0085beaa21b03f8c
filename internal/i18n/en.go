package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// UI (TUI/REPL) - Panel titles
	"panel.chat":     "Chat",
	"panel.session":  "Session",
	"panel.dials":    "Dials",
	"panel.pipeline": "Pipeline",

	// Stages
	"stage.setup":       "Setup",
	"stage.dial-tuning": "Dial tuning",
	"stage.frame":       "Frame",
	"stage.outline":     "Outline",
	"stage.scenes":      "Scenes",
	"stage.npcs":        "NPCs",
	"stage.adversaries": "Adversaries",
	"stage.items":       "Items",
	"stage.echoes":      "Echoes",
	"stage.complete":    "Complete",

	// Session
	"session.welcome":          "Welcome to %s. Let's tune the dials first: party size, tier, scene count and session length. Tell me about the adventure you have in mind.",
	"session.welcome_untitled": "Welcome. Let's tune the dials first: party size, tier, scene count and session length. Tell me about the adventure you have in mind.",
	"session.created":          "Session %s created",
	"session.resumed":          "Resumed session %s (%s)",
	"session.none":             "No saved sessions",
	"session.back":             "Back to %s",

	// UI - Status bar
	"status.ready":       "Ready",
	"status.streaming":   "Streaming...",
	"status.interrupted": "Generation interrupted",
	"status.tool":        "Running %s",
	"status.blocked":     "Next: %s (blocked: %s)",
	"status.next":        "Next: %s",

	// UI - Input
	"input.placeholder": "Describe your adventure... (Enter to send)",

	// UI - Keybindings (TUI)
	"keys.esc":    "esc interrupt",
	"keys.ctrl_b": "ctrl+b back",
	"keys.ctrl_c": "ctrl+c quit",

	// Commands
	"cmd.help":     "Show available commands",
	"cmd.new":      "Start a new adventure: /new <name>",
	"cmd.sessions": "List saved sessions",
	"cmd.resume":   "Resume a session: /resume <id>",
	"cmd.back":     "Return to the previous stage",
	"cmd.state":    "Show the session state",
	"cmd.models":   "Show or switch the model: /models [name|index]",
	"cmd.exit":     "Exit application",

	// Errors
	"error.provider": "Provider error: %s",
	"error.busy":     "A turn is already running",
	"error.unknown":  "Unknown command: %s",
}
