package tui

import (
	"fmt"
	"strings"

	"forge/internal/dials"
	"forge/internal/pipeline"
	"forge/internal/session"
	"forge/internal/snapshot"
)

// stageOrder is the authoring path shown in the sidebar.
var stageOrder = []session.Stage{
	session.StageSetup,
	session.StageDialTuning,
	session.StageFrame,
	session.StageOutline,
	session.StageScenes,
	session.StageNPCs,
	session.StageAdversaries,
	session.StageItems,
	session.StageEchoes,
	session.StageComplete,
}

// renderStageTrack marks visited stages, the current one and what is ahead.
func renderStageTrack(s snapshot.Snapshot, theme Theme, label func(session.Stage) string) string {
	visited := make(map[session.Stage]bool, len(s.StageHistory))
	for _, st := range s.StageHistory {
		visited[st] = true
	}
	lines := make([]string, 0, len(stageOrder))
	for _, st := range stageOrder {
		name := label(st)
		switch {
		case st == s.CurrentStage:
			lines = append(lines, theme.StageActiveStyle.Render("▶ "+name))
		case visited[st]:
			lines = append(lines, theme.StageDoneStyle.Render("✓ "+name))
		default:
			lines = append(lines, theme.MutedStyle.Render("· "+name))
		}
	}
	return strings.Join(lines, "\n")
}

// renderDials lists every dial with its value and confirmation mark.
func renderDials(d dials.Set) string {
	summary := strings.TrimSpace(d.Summary())
	if summary == "" {
		return "  -"
	}
	lines := strings.Split(summary, "\n")
	for i, l := range lines {
		lines[i] = "  " + strings.TrimPrefix(l, "- ")
	}
	return strings.Join(lines, "\n")
}

// renderPipeline is the plain-text pipeline panel: frame, scenes with their
// status and the scene draft still arriving, if any.
func renderPipeline(s snapshot.Snapshot) string {
	var b strings.Builder
	if f := s.SelectedFrame; f != nil {
		mark := "○"
		if s.FrameConfirmed {
			mark = "●"
		}
		fmt.Fprintf(&b, "%s %s\n  %s\n\n", mark, f.Title, f.Premise)
	} else if n := len(s.FrameCandidates); n > 0 {
		fmt.Fprintf(&b, "%d frame candidates\n\n", n)
	}
	for _, sc := range s.Scenes {
		fmt.Fprintf(&b, "%s %d. %s\n", sceneMark(sc.Status), sc.Brief.SceneNumber, sc.Brief.Title)
	}
	if s.StreamSceneID != "" && s.StreamBuffer != "" {
		fmt.Fprintf(&b, "\n… %s\n%s\n", s.StreamSceneID, tail(s.StreamBuffer, 600))
	}
	for _, line := range strings.Split(strings.TrimSpace(countsText(s)), "\n") {
		if line != "" {
			b.WriteString("\n" + line)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func countsText(s snapshot.Snapshot) string {
	var b strings.Builder
	add := func(label string, total, confirmed int) {
		if total > 0 {
			fmt.Fprintf(&b, "%s %d/%d\n", label, confirmed, total)
		}
	}
	add("NPCs", len(s.NPCs), s.ConfirmedNPCs.Len())
	add("Adversaries", len(s.Adversaries), s.ConfirmedAdversaries.Len())
	add("Items", len(s.Items), s.ConfirmedItems.Len())
	add("Echoes", len(s.Echoes), s.ConfirmedEchoes.Len())
	return b.String()
}

func sceneMark(st pipeline.SceneStatus) string {
	switch st {
	case pipeline.SceneConfirmed:
		return "●"
	case pipeline.SceneDrafted:
		return "◐"
	case pipeline.SceneGenerating:
		return "…"
	default:
		return "○"
	}
}

// tail keeps the last n bytes of s, starting at a line boundary when possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[len(s)-n:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		return s[i+1:]
	}
	return s
}
