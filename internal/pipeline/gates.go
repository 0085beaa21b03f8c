package pipeline

import (
	"forge/internal/dials"
	"forge/internal/session"
)

// Gates are pure predicates over the current collections.

// CanProceedToOutline reports whether a frame is selected and confirmed.
func (s State) CanProceedToOutline() bool {
	return s.SelectedFrame != nil && s.FrameConfirmed
}

// CanProceedToScenes reports whether an outline exists and is confirmed.
func (s State) CanProceedToScenes() bool {
	return s.Outline != nil && len(s.Outline.Scenes) > 0 && s.Outline.IsConfirmed
}

// CanProceedToNPCs reports whether there are scenes and every one is confirmed.
func (s State) CanProceedToNPCs() bool {
	if len(s.Scenes) == 0 {
		return false
	}
	for _, sc := range s.Scenes {
		if sc.Status != SceneConfirmed {
			return false
		}
	}
	return true
}

// CanProceedToAdversaries reports whether there are NPCs and all are confirmed.
func (s State) CanProceedToAdversaries() bool {
	if len(s.NPCs) == 0 {
		return false
	}
	for _, n := range s.NPCs {
		if !s.ConfirmedNPCs.Has(n.ID) {
			return false
		}
	}
	return true
}

// CanProceedToItems reports whether adversaries are selected and all confirmed.
func (s State) CanProceedToItems() bool {
	if len(s.Adversaries) == 0 {
		return false
	}
	for _, a := range s.Adversaries {
		if !s.ConfirmedAdversaries.Has(a.ID) {
			return false
		}
	}
	return true
}

// CanProceedToEchoes reports whether items are selected and all confirmed.
func (s State) CanProceedToEchoes() bool {
	if len(s.Items) == 0 {
		return false
	}
	for _, i := range s.Items {
		if !s.ConfirmedItems.Has(i.Key()) {
			return false
		}
	}
	return true
}

// CanComplete reports whether echoes exist and all are confirmed.
func (s State) CanComplete() bool {
	if len(s.Echoes) == 0 {
		return false
	}
	for _, e := range s.Echoes {
		if !s.ConfirmedEchoes.Has(e.ID) {
			return false
		}
	}
	return true
}

// CanEnter 判断能否进入目标阶段
// CanEnter evaluates the gate guarding target. Stages at or before
// dial-tuning are always enterable; back-navigation never needs a gate.
func (s State) CanEnter(target session.Stage, d dials.Set) bool {
	switch target {
	case session.StageFrame:
		return d.RequiredComplete()
	case session.StageOutline:
		return d.RequiredComplete() && s.CanProceedToOutline()
	case session.StageScenes:
		return s.CanProceedToScenes()
	case session.StageNPCs:
		return s.CanProceedToNPCs()
	case session.StageAdversaries:
		return s.CanProceedToAdversaries()
	case session.StageItems:
		return s.CanProceedToItems()
	case session.StageEchoes:
		return s.CanProceedToEchoes()
	case session.StageComplete:
		return s.CanComplete()
	default:
		return target.Index() >= 0
	}
}

// Blocker explains why target is not enterable, or "" when it is.
func (s State) Blocker(target session.Stage, d dials.Set) string {
	if s.CanEnter(target, d) {
		return ""
	}
	switch target {
	case session.StageFrame:
		return "confirm the required dials first"
	case session.StageOutline:
		return "select and confirm a frame first"
	case session.StageScenes:
		return "confirm the outline first"
	case session.StageNPCs:
		return "confirm every scene first"
	case session.StageAdversaries:
		return "confirm every NPC first"
	case session.StageItems:
		return "select and confirm adversaries first"
	case session.StageEchoes:
		return "select and confirm items first"
	case session.StageComplete:
		return "confirm every echo first"
	default:
		return "unknown stage"
	}
}
