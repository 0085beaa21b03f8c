package contextmgr

import (
	"fmt"
	"strings"

	"forge/internal/chat"
	"forge/internal/dials"
	"forge/internal/session"
)

// Assembler 组装每轮发送给模型的消息
// Assembler builds the request messages of one turn: system prompt, the
// compressed history, then the in-flight user message.
type Assembler struct {
	SystemPrompt string
	Compressor   *Compressor
}

// NewAssembler creates an assembler with a base system prompt.
func NewAssembler(systemPrompt string, c *Compressor) *Assembler {
	return &Assembler{SystemPrompt: strings.TrimSpace(systemPrompt), Compressor: c}
}

// TurnContext is the authoring state the system prompt describes.
type TurnContext struct {
	Session session.Session
	Dials   dials.Set
	// Stage-specific lines such as the selected frame or pending scenes.
	Notes []string
}

// Assemble returns the request messages and the compression stats.
func (a *Assembler) Assemble(tc TurnContext, history []chat.Message, userTurn string) ([]chat.Message, Stats) {
	res := a.Compressor.Compress(history)
	out := make([]chat.Message, 0, len(res.Messages)+2)
	out = append(out, chat.Message{Role: chat.RoleSystem, Content: a.systemPrompt(tc)})
	out = append(out, res.Messages...)
	out = append(out, chat.Message{Role: chat.RoleUser, Content: userTurn})
	return out, res.Stats
}

func (a *Assembler) systemPrompt(tc TurnContext) string {
	var b strings.Builder
	if a.SystemPrompt != "" {
		b.WriteString(a.SystemPrompt)
		b.WriteString("\n\n")
	}
	name := tc.Session.AdventureName
	if name == "" {
		name = "(untitled)"
	}
	fmt.Fprintf(&b, "[SESSION]\nAdventure: %s\nStage: %s\n", name, tc.Session.CurrentStage)
	if len(tc.Session.StageHistory) > 0 {
		parts := make([]string, len(tc.Session.StageHistory))
		for i, st := range tc.Session.StageHistory {
			parts[i] = string(st)
		}
		fmt.Fprintf(&b, "Visited: %s\n", strings.Join(parts, " > "))
	}
	b.WriteString("\n[DIALS]\n")
	b.WriteString(tc.Dials.Summary())
	if missing := tc.Dials.Missing(); len(missing) > 0 {
		parts := make([]string, len(missing))
		for i, id := range missing {
			parts[i] = string(id)
		}
		fmt.Fprintf(&b, "\nUnconfirmed required dials: %s", strings.Join(parts, ", "))
	}
	if len(tc.Notes) > 0 {
		b.WriteString("\n\n[STAGE]\n")
		b.WriteString(strings.Join(tc.Notes, "\n"))
	}
	return b.String()
}
