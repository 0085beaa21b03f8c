package pipeline

import (
	"fmt"
	"strings"

	"forge/internal/dials"
)

const generatorSystem = `You are a tabletop adventure designer. You write for game masters running a
single session for a small party. Answer with JSON only, no prose around it.`

func dialBlock(d dials.Set) string {
	return "Adventure dials:\n" + d.Summary()
}

func framePrompt(name string, d dials.Set, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Propose %d distinct frames (premise and setting) for an adventure", count)
	if name != "" {
		fmt.Fprintf(&b, " titled %q", name)
	}
	b.WriteString(".\n\n")
	b.WriteString(dialBlock(d))
	b.WriteString(`

Return {"frames":[{"title":"","premise":"","setting":"","hook":"","themes":[""]}]}.`)
	return b.String()
}

func outlinePrompt(f Frame, d dials.Set) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame: %s\n%s\n", f.Title, f.Premise)
	if f.Setting != "" {
		fmt.Fprintf(&b, "Setting: %s\n", f.Setting)
	}
	fmt.Fprintf(&b, "\nWrite an outline of exactly %d scenes.\n\n", d.SceneCount)
	b.WriteString(dialBlock(d))
	b.WriteString(`

Return {"summary":"","scenes":[{"title":"","description":"","keyElements":[""],"sceneType":"combat|exploration|social|mixed"}]}.`)
	return b.String()
}

func scenePrompt(f Frame, o Outline, brief SceneBrief, d dials.Set) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Frame: %s\n%s\n\nOutline:\n", f.Title, f.Premise)
	for _, sb := range o.Scenes {
		fmt.Fprintf(&b, "%d. %s (%s): %s\n", sb.SceneNumber, sb.Title, sb.SceneType, sb.Description)
	}
	fmt.Fprintf(&b, "\nDraft scene %d, %q.\nKey elements: %s\n\n", brief.SceneNumber, brief.Title, strings.Join(brief.KeyElements, ", "))
	b.WriteString(dialBlock(d))
	b.WriteString(`

Return {"narrative":"","keyMoments":[""],"resolution":"","extractedEntities":{"npcs":[{"name":"","kind":"","description":""}],"adversaries":[{"name":"","description":""}],"items":[{"name":"","kind":"","description":""}]}}.`)
	return b.String()
}

func echoPrompt(s State, d dials.Set) string {
	var b strings.Builder
	if s.SelectedFrame != nil {
		fmt.Fprintf(&b, "Frame: %s\n%s\n\n", s.SelectedFrame.Title, s.SelectedFrame.Premise)
	}
	b.WriteString("Scenes:\n")
	for _, sc := range s.Scenes {
		fmt.Fprintf(&b, "- %s", sc.Brief.Title)
		if sc.Draft != nil && sc.Draft.Resolution != "" {
			fmt.Fprintf(&b, ": %s", sc.Draft.Resolution)
		}
		b.WriteByte('\n')
	}
	if len(s.NPCs) > 0 {
		b.WriteString("NPCs: ")
		names := make([]string, len(s.NPCs))
		for i, n := range s.NPCs {
			names[i] = n.Name
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteByte('\n')
	}
	b.WriteString("\nWrite 3 to 5 echoes: recurring callbacks, foreshadowing or consequences the GM can weave through the session.\n\n")
	b.WriteString(dialBlock(d))
	b.WriteString(`

Return {"echoes":[{"category":"callback|foreshadowing|consequence","title":"","content":""}]}.`)
	return b.String()
}
