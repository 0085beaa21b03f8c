// Package present renders session state and generated stage content as
// markdown for the terminal clients.
package present

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"forge/internal/events"
	"forge/internal/pipeline"
	"forge/internal/snapshot"
	"forge/internal/tools"
)

// Renderer 使用 Glamour 渲染 markdown
// Renderer renders markdown through glamour. It falls back to the raw text
// when glamour cannot start or fails.
type Renderer struct {
	r *glamour.TermRenderer
}

// NewRenderer wraps at width. Without color it uses the plain notty style.
func NewRenderer(width int, color bool) *Renderer {
	if width <= 0 {
		width = 80
	}
	style := glamour.WithAutoStyle()
	if !color {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{r: r}
}

func (m *Renderer) Render(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	if m == nil || m.r == nil {
		return content
	}
	out, err := m.r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// State describes a session: header, dials, frame, scenes, selection counts
// and what blocks the next stage.
func State(s snapshot.Snapshot) string {
	var b strings.Builder
	name := s.AdventureName
	if name == "" {
		name = "Untitled adventure"
	}
	fmt.Fprintf(&b, "# %s\n\n", name)
	fmt.Fprintf(&b, "Session `%s` · stage **%s**\n\n", s.ID, s.CurrentStage)

	b.WriteString("## Dials\n\n")
	b.WriteString(s.Dials.Summary())
	b.WriteString("\n\n")

	if f := s.SelectedFrame; f != nil {
		status := "selected"
		if s.FrameConfirmed {
			status = "confirmed"
		}
		fmt.Fprintf(&b, "## Frame (%s)\n\n**%s**: %s\n\n", status, f.Title, f.Premise)
	}
	if len(s.Scenes) > 0 {
		b.WriteString("## Scenes\n\n")
		for _, sc := range s.Scenes {
			fmt.Fprintf(&b, "%d. %s (%s)\n", sc.Brief.SceneNumber, sc.Brief.Title, sc.Status)
		}
		b.WriteString("\n")
	}
	b.WriteString(Counts(s))
	if next := NextStep(s); next != "" {
		fmt.Fprintf(&b, "\n> %s\n", next)
	}
	return b.String()
}

// Counts lists confirmed/total per downstream entity, one bullet each.
func Counts(s snapshot.Snapshot) string {
	counts := []struct {
		label     string
		total     int
		confirmed int
	}{
		{"NPCs", len(s.NPCs), s.ConfirmedNPCs.Len()},
		{"Adversaries", len(s.Adversaries), s.ConfirmedAdversaries.Len()},
		{"Items", len(s.Items), s.ConfirmedItems.Len()},
		{"Echoes", len(s.Echoes), s.ConfirmedEchoes.Len()},
	}
	var b strings.Builder
	for _, c := range counts {
		if c.total == 0 {
			continue
		}
		fmt.Fprintf(&b, "- %s: %d/%d confirmed\n", c.label, c.confirmed, c.total)
	}
	return b.String()
}

// NextStep names the next stage and its blocker, or "" at the last stage.
func NextStep(s snapshot.Snapshot) string {
	next := s.CurrentStage.Next()
	if next == s.CurrentStage {
		return ""
	}
	if blocker := s.State.Blocker(next, s.Dials); blocker != "" {
		return fmt.Sprintf("Next: %s (%s)", next, blocker)
	}
	return fmt.Sprintf("Next: %s", next)
}

// Scene renders one scene with its draft, if any.
func Scene(sc pipeline.Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Scene %d: %s\n\n", sc.Brief.SceneNumber, sc.Brief.Title)
	if sc.Draft == nil {
		fmt.Fprintf(&b, "_%s_\n", sc.Status)
		return b.String()
	}
	b.WriteString(sc.Draft.Narrative)
	b.WriteString("\n")
	if len(sc.Draft.KeyMoments) > 0 {
		b.WriteString("\n### Key moments\n\n")
		for _, m := range sc.Draft.KeyMoments {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if sc.Draft.Resolution != "" {
		fmt.Fprintf(&b, "\n### Resolution\n\n%s\n", sc.Draft.Resolution)
	}
	return b.String()
}

// Component renders the payload of a ui:ready event. ok is false for unknown
// components and undecodable payloads.
func Component(ui events.UIReady) (md string, ok bool) {
	var b strings.Builder
	switch ui.Component {
	case tools.ComponentFramePicker:
		var frames []pipeline.Frame
		if json.Unmarshal(ui.Payload, &frames) != nil {
			return "", false
		}
		b.WriteString("## Frames\n\n")
		for _, f := range frames {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", f.Title, f.ID, f.Premise)
		}
	case tools.ComponentOutline:
		var o pipeline.Outline
		if json.Unmarshal(ui.Payload, &o) != nil {
			return "", false
		}
		b.WriteString("## Outline\n\n")
		if o.Summary != "" {
			b.WriteString(o.Summary + "\n\n")
		}
		for _, sc := range o.Scenes {
			fmt.Fprintf(&b, "%d. **%s** (%s): %s\n", sc.SceneNumber, sc.Title, sc.SceneType, sc.Description)
		}
	case tools.ComponentSceneDraft:
		var sc pipeline.Scene
		if json.Unmarshal(ui.Payload, &sc) != nil {
			return "", false
		}
		b.WriteString(Scene(sc))
	case tools.ComponentNPCs:
		var npcs []pipeline.CompiledNPC
		if json.Unmarshal(ui.Payload, &npcs) != nil {
			return "", false
		}
		b.WriteString("## NPCs\n\n")
		for _, n := range npcs {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", n.Name, n.ID, n.Description)
		}
	case tools.ComponentEchoes:
		var echoes []pipeline.Echo
		if json.Unmarshal(ui.Payload, &echoes) != nil {
			return "", false
		}
		b.WriteString("## Echoes\n\n")
		for _, e := range echoes {
			fmt.Fprintf(&b, "- **%s** `%s` (%s): %s\n", e.Title, e.ID, e.Category, e.Content)
		}
	default:
		return "", false
	}
	return b.String(), true
}

// ToolError pulls the message out of a failed tool result.
func ToolError(result string) string {
	var f struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(result), &f) == nil && f.Error != "" {
		return f.Error
	}
	return result
}
