// Package session tracks the authoring stage of one adventure and the path
// the author took to reach it.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Stage 创作流程中的阶段
// Stage is one step of the linear authoring workflow.
type Stage string

const (
	StageSetup       Stage = "setup"
	StageDialTuning  Stage = "dial-tuning"
	StageFrame       Stage = "frame"
	StageOutline     Stage = "outline"
	StageScenes      Stage = "scenes"
	StageNPCs        Stage = "npcs"
	StageAdversaries Stage = "adversaries"
	StageItems       Stage = "items"
	StageEchoes      Stage = "echoes"
	StageComplete    Stage = "complete"
)

var order = []Stage{
	StageSetup,
	StageDialTuning,
	StageFrame,
	StageOutline,
	StageScenes,
	StageNPCs,
	StageAdversaries,
	StageItems,
	StageEchoes,
	StageComplete,
}

// Stages returns every stage in workflow order.
func Stages() []Stage {
	return append([]Stage(nil), order...)
}

// ParseStage 解析外部输入的阶段名
// ParseStage converts boundary input into a Stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	for _, st := range order {
		if st == s {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", raw)
}

// Index returns the position of s in workflow order, or -1.
func (s Stage) Index() int {
	for i, st := range order {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage after s; complete is its own successor.
func (s Stage) Next() Stage {
	i := s.Index()
	if i < 0 || i+1 >= len(order) {
		return StageComplete
	}
	return order[i+1]
}

// Session is the authoring session header. Zero value is a reset session.
type Session struct {
	ID                     string    `json:"sessionId"`
	AdventureName          string    `json:"adventureName"`
	CreatedAt              time.Time `json:"createdAt"`
	CurrentStage           Stage     `json:"stage"`
	StageHistory           []Stage   `json:"stageHistory"`
	ExternalConversationID string    `json:"externalConversationId,omitempty"`
}

// Init 创建新会话：阶段进入 dial-tuning，历史为 [setup]
// Init starts a new session in dial-tuning with setup on the history stack.
// Conversation reset and the welcome message are the caller's concern.
func Init(id, name string, now time.Time) Session {
	return Session{
		ID:            id,
		AdventureName: strings.TrimSpace(name),
		CreatedAt:     now.UTC(),
		CurrentStage:  StageDialTuning,
		StageHistory:  []Stage{StageSetup},
	}
}

// SetStage adopts stage, pushing the current one onto history. Equal stages
// are a no-op. Upstream completeness is not checked here.
// Earlier visits to stage are dropped so history never holds the current stage.
func (s Session) SetStage(stage Stage) Session {
	if stage == s.CurrentStage {
		return s
	}
	history := make([]Stage, 0, len(s.StageHistory)+1)
	for _, st := range s.StageHistory {
		if st != stage {
			history = append(history, st)
		}
	}
	if s.CurrentStage != "" {
		history = append(history, s.CurrentStage)
	}
	s.StageHistory = history
	s.CurrentStage = stage
	return s
}

// Advance moves to the next stage in workflow order.
func (s Session) Advance() Session {
	return s.SetStage(s.CurrentStage.Next())
}

// GoToPreviousStage pops the last history entry as the current stage.
func (s Session) GoToPreviousStage() Session {
	if len(s.StageHistory) == 0 {
		return s
	}
	last := len(s.StageHistory) - 1
	s.CurrentStage = s.StageHistory[last]
	s.StageHistory = append([]Stage(nil), s.StageHistory[:last]...)
	return s
}

// CanGoBack reports whether back-navigation has anywhere to go.
func (s Session) CanGoBack() bool {
	return len(s.StageHistory) > 0
}

// Reset clears every session field.
func (s Session) Reset() Session {
	return Session{}
}

// Normalize repairs a loaded session so history never contains the current stage.
func (s Session) Normalize() Session {
	if s.CurrentStage == "" {
		return s
	}
	history := make([]Stage, 0, len(s.StageHistory))
	for _, st := range s.StageHistory {
		if st == s.CurrentStage || st.Index() < 0 {
			continue
		}
		history = append(history, st)
	}
	s.StageHistory = history
	return s
}
