package orchestrator

import (
	"fmt"
	"strings"

	"forge/internal/session"
	"forge/internal/snapshot"
)

// SystemPrompt is the base instruction for authoring turns.
const SystemPrompt = `You are Forge, a co-author for tabletop adventures. You guide the user through the stages
setup, dial-tuning, frame, outline, scenes, npcs, adversaries, items, echoes and complete.

Rules:
- Change session state only through tools. Never claim a change a tool did not confirm.
- Each stage is gated: the user confirms content before the next stage opens. Ask before confirming on their behalf.
- In dial-tuning, the four concrete dials (partySize, partyTier, sceneCount, sessionLength) must be confirmed before the frame stage.
- Generation can fail. Report the error and offer to retry; do not retry on your own.
- Keep replies short. Drafts and lists are shown to the user in panels, so summarise instead of repeating them.`

// stageNotes describes the pipeline around the current stage for the system
// prompt.
func stageNotes(s snapshot.Snapshot) []string {
	var notes []string
	if f := s.SelectedFrame; f != nil {
		state := "selected"
		if s.FrameConfirmed {
			state = "confirmed"
		}
		notes = append(notes, fmt.Sprintf("Frame (%s): %s - %s", state, f.Title, f.Premise))
	} else if n := len(s.FrameCandidates); n > 0 {
		notes = append(notes, fmt.Sprintf("Frame candidates: %d, none selected", n))
	}
	if o := s.Outline; o != nil {
		state := "draft"
		if o.IsConfirmed {
			state = "confirmed"
		}
		notes = append(notes, fmt.Sprintf("Outline (%s): %d scenes", state, len(o.Scenes)))
	}
	if len(s.Scenes) > 0 {
		parts := make([]string, len(s.Scenes))
		for i, sc := range s.Scenes {
			parts[i] = fmt.Sprintf("%s=%s", sc.ID(), sc.Status)
		}
		notes = append(notes, "Scenes: "+strings.Join(parts, ", "))
	}
	if len(s.NPCs) > 0 {
		notes = append(notes, fmt.Sprintf("NPCs: %d compiled, %d confirmed", len(s.NPCs), s.ConfirmedNPCs.Len()))
	}
	if len(s.Adversaries) > 0 {
		notes = append(notes, fmt.Sprintf("Adversaries: %d selected, %d confirmed", len(s.Adversaries), s.ConfirmedAdversaries.Len()))
	}
	if len(s.Items) > 0 {
		notes = append(notes, fmt.Sprintf("Items: %d selected, %d confirmed", len(s.Items), s.ConfirmedItems.Len()))
	}
	if len(s.Echoes) > 0 {
		notes = append(notes, fmt.Sprintf("Echoes: %d written, %d confirmed", len(s.Echoes), s.ConfirmedEchoes.Len()))
	}
	for _, st := range session.Stages() {
		if status := s.StatusOf(st); status.Error != "" {
			notes = append(notes, fmt.Sprintf("Last %s generation failed: %s", st, status.Error))
		}
	}
	if next := s.CurrentStage.Next(); next != s.CurrentStage {
		if b := s.Blocker(next, s.Dials); b != "" {
			notes = append(notes, fmt.Sprintf("Next stage %s is blocked: %s", next, b))
		} else {
			notes = append(notes, fmt.Sprintf("Next stage %s is open", next))
		}
	}
	return notes
}

