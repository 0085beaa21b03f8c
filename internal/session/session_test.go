package session

import (
	"slices"
	"testing"
	"time"
)

func TestInitStartsInDialTuning(t *testing.T) {
	s := Init("sess-1", "  The Sunken Bell ", time.Unix(100, 0))
	if s.CurrentStage != StageDialTuning {
		t.Fatalf("stage=%q, want %q", s.CurrentStage, StageDialTuning)
	}
	if !slices.Equal(s.StageHistory, []Stage{StageSetup}) {
		t.Fatalf("history=%v", s.StageHistory)
	}
	if s.AdventureName != "The Sunken Bell" {
		t.Fatalf("name=%q", s.AdventureName)
	}
}

func TestSetStagePushesHistory(t *testing.T) {
	s := Init("sess-1", "x", time.Now())
	s = s.SetStage(StageFrame)
	s = s.SetStage(StageOutline)
	want := []Stage{StageSetup, StageDialTuning, StageFrame}
	if !slices.Equal(s.StageHistory, want) {
		t.Fatalf("history=%v, want %v", s.StageHistory, want)
	}
	same := s.SetStage(StageOutline)
	if !slices.Equal(same.StageHistory, want) {
		t.Fatalf("equal stage should be a no-op, history=%v", same.StageHistory)
	}
}

func TestSetStageNeverKeepsCurrentInHistory(t *testing.T) {
	s := Init("sess-1", "x", time.Now()).SetStage(StageFrame).SetStage(StageOutline)
	s = s.SetStage(StageFrame)
	if slices.Contains(s.StageHistory, StageFrame) {
		t.Fatalf("history contains current stage: %v", s.StageHistory)
	}
	if s.StageHistory[len(s.StageHistory)-1] != StageOutline {
		t.Fatalf("last history entry=%q, want outline", s.StageHistory[len(s.StageHistory)-1])
	}
}

func TestGoToPreviousStage(t *testing.T) {
	s := Init("sess-1", "x", time.Now()).SetStage(StageFrame)
	prev := s.GoToPreviousStage()
	if prev.CurrentStage != StageDialTuning {
		t.Fatalf("stage=%q", prev.CurrentStage)
	}
	if !slices.Equal(prev.StageHistory, []Stage{StageSetup}) {
		t.Fatalf("history=%v", prev.StageHistory)
	}
	if !slices.Equal(s.StageHistory, []Stage{StageSetup, StageDialTuning}) {
		t.Fatalf("receiver mutated: %v", s.StageHistory)
	}

	empty := Session{CurrentStage: StageSetup}
	if got := empty.GoToPreviousStage(); got.CurrentStage != StageSetup {
		t.Fatalf("empty history should be a no-op, got %q", got.CurrentStage)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := Init("sess-1", "x", time.Now()).SetStage(StageFrame).Reset()
	if s.ID != "" || s.CurrentStage != "" || len(s.StageHistory) != 0 {
		t.Fatalf("reset left state: %+v", s)
	}
}

func TestParseStageAndNext(t *testing.T) {
	st, err := ParseStage(" NPCs ")
	if err != nil || st != StageNPCs {
		t.Fatalf("ParseStage: %q %v", st, err)
	}
	if _, err := ParseStage("epilogue"); err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if StageItems.Next() != StageEchoes || StageComplete.Next() != StageComplete {
		t.Fatal("unexpected Next ordering")
	}
}

func TestNormalizeDropsCurrentFromHistory(t *testing.T) {
	s := Session{CurrentStage: StageFrame, StageHistory: []Stage{StageSetup, StageFrame, "bogus"}}
	got := s.Normalize()
	if !slices.Equal(got.StageHistory, []Stage{StageSetup}) {
		t.Fatalf("history=%v", got.StageHistory)
	}
}
