package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"forge/internal/apperr"
	"forge/internal/dials"
	"forge/internal/provider"
	"forge/internal/session"
)

type scriptedProvider struct {
	replies []string
	err     error
	prompts []string
}

func (p *scriptedProvider) Chat(_ context.Context, req provider.ChatRequest, cb *provider.StreamCallbacks) (provider.ChatResponse, error) {
	p.prompts = append(p.prompts, req.Messages[len(req.Messages)-1].Content)
	if p.err != nil {
		return provider.ChatResponse{}, p.err
	}
	reply := p.replies[0]
	p.replies = p.replies[1:]
	if cb != nil && cb.OnTextChunk != nil {
		for i := 0; i < len(reply); i += 16 {
			cb.OnTextChunk(reply[i:min(i+16, len(reply))])
		}
	}
	return provider.ChatResponse{Content: reply}, nil
}

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) { return nil, nil }
func (p *scriptedProvider) Name() string                                             { return "scripted" }
func (p *scriptedProvider) CurrentModel() string                                     { return "test-model" }
func (p *scriptedProvider) SetModel(string) error                                    { return nil }

func TestGeneratorFramesFromFencedJSON(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Here you go:\n```json\n{\"frames\":[{\"title\":\"A\",\"premise\":\"p\"},{\"title\":\"B\",\"premise\":\"q\"}]}\n```"}}
	g := NewGenerator(p)
	st, err := g.Frames(context.Background(), State{}, Input{AdventureName: "Bells", Dials: dials.Defaults()})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.FrameCandidates) != 2 || st.FrameCandidates[1].ID != "frame-2" {
		t.Fatalf("candidates=%+v", st.FrameCandidates)
	}
	if st.StatusOf(session.StageFrame).Loading {
		t.Fatal("loading not cleared")
	}
	if !strings.Contains(p.prompts[0], `"Bells"`) || !strings.Contains(p.prompts[0], "partySize") {
		t.Fatalf("prompt=%s", p.prompts[0])
	}
}

func TestGeneratorOutlineTrimsToSceneCount(t *testing.T) {
	p := &scriptedProvider{replies: []string{`[{"title":"1"},{"title":"2"},{"title":"3"},{"title":"4"},{"title":"5"}]`}}
	st, _ := State{}.SelectFrame(Frame{Title: "F", Premise: "P"})
	st, _ = st.ConfirmFrame()
	st, err := NewGenerator(p).Outline(context.Background(), st, Input{Dials: dials.Defaults()})
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Outline.Scenes) != int(dials.DefaultSceneCount) || st.Outline.IsConfirmed {
		t.Fatalf("outline=%+v", st.Outline)
	}
}

func TestGeneratorOutlineNeedsConfirmedFrame(t *testing.T) {
	p := &scriptedProvider{replies: []string{`[{"title":"1"}]`}}
	st, _ := State{}.SelectFrame(Frame{Title: "F", Premise: "P"})
	st, err := NewGenerator(p).Outline(context.Background(), st, Input{Dials: dials.Defaults()})
	if !errors.Is(err, ErrFrameUnconfirmed) || st.Outline != nil || len(p.prompts) != 0 {
		t.Fatalf("err=%v outline=%v prompts=%d", err, st.Outline, len(p.prompts))
	}

	st, _ = st.ConfirmFrame()
	st, _ = st.SetOutline(Outline{Scenes: []SceneBrief{{Title: "Arrival"}}})
	st, _ = st.ConfirmOutline()
	before := len(st.Scenes)
	st, err = NewGenerator(p).Outline(context.Background(), st, Input{Dials: dials.Defaults()})
	if !errors.Is(err, ErrOutlineLocked) || len(st.Scenes) != before || len(p.prompts) != 0 {
		t.Fatalf("err=%v scenes=%d prompts=%d", err, len(st.Scenes), len(p.prompts))
	}
	if st.StatusOf(session.StageOutline).Loading {
		t.Fatal("refused outline left the stage loading")
	}
}

func TestGeneratorFailureIsStageScoped(t *testing.T) {
	p := &scriptedProvider{err: errors.New("upstream 500")}
	st, _ := State{}.SelectFrame(Frame{Title: "F"})
	st, _ = st.ConfirmFrame()
	st, err := NewGenerator(p).Outline(context.Background(), st, Input{Dials: dials.Defaults()})
	if apperr.KindOf(err) != apperr.KindStage {
		t.Fatalf("kind=%q err=%v", apperr.KindOf(err), err)
	}
	status := st.StatusOf(session.StageOutline)
	if status.Loading || !strings.Contains(status.Error, "upstream 500") {
		t.Fatalf("status=%+v", status)
	}
	if !st.CanProceedToOutline() {
		t.Fatal("confirmed frame disturbed")
	}
}

func TestGeneratorSceneDraftStreams(t *testing.T) {
	reply := `{"narrative":"Fog rolls in.","keyMoments":["bell tolls"],"resolution":"ok","extractedEntities":{"npcs":[{"name":"Sister Maren","kind":"ally"}]}}`
	p := &scriptedProvider{replies: []string{reply}}
	st, _ := State{}.SelectFrame(Frame{Title: "F"})
	st, _ = st.ConfirmFrame()
	st, _ = st.SetOutline(Outline{Scenes: []SceneBrief{{Title: "Arrival"}}})
	st, _ = st.ConfirmOutline()
	id := st.Scenes[0].ID()

	var updates int
	var sawGenerating bool
	st, err := NewGenerator(p).SceneDraft(context.Background(), st, Input{Dials: dials.Defaults()}, id, func(s State) {
		updates++
		if sc, _ := s.Scene(id); sc.Status == SceneGenerating {
			sawGenerating = true
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if updates < 2 || !sawGenerating {
		t.Fatalf("updates=%d generating=%v", updates, sawGenerating)
	}
	sc, _ := st.Scene(id)
	if sc.Status != SceneDrafted || sc.Draft.Narrative != "Fog rolls in." || st.StreamBuffer != "" {
		t.Fatalf("scene=%+v buffer=%q", sc, st.StreamBuffer)
	}

	st, _ = st.ConfirmScene(id, time.Now())
	st, err = NewGenerator(nil).CompileNPCs(st)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.NPCs) != 1 || st.NPCs[0].ID != "npc-sister-maren" {
		t.Fatalf("npcs=%+v", st.NPCs)
	}
}

func TestCompileNPCsMergesAcrossScenes(t *testing.T) {
	scenes := []Scene{
		{Brief: SceneBrief{ID: "s1"}, Status: SceneConfirmed, Draft: &SceneDraft{Entities: ExtractedEntities{NPCs: []EntityMention{{Name: "Old Tam", Description: "a ferryman"}}}}},
		{Brief: SceneBrief{ID: "s2"}, Status: SceneDrafted, Draft: &SceneDraft{Entities: ExtractedEntities{NPCs: []EntityMention{{Name: "Ignored"}}}}},
		{Brief: SceneBrief{ID: "s3"}, Status: SceneConfirmed, Draft: &SceneDraft{Entities: ExtractedEntities{NPCs: []EntityMention{{Name: "old tam", Description: "a ferryman with a secret"}}}}},
	}
	got := CompileNPCs(scenes)
	if len(got) != 1 {
		t.Fatalf("npcs=%+v", got)
	}
	if got[0].Description != "a ferryman with a secret" || len(got[0].SceneIDs) != 2 {
		t.Fatalf("npc=%+v", got[0])
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                     `{"a":1}`,
		"```json\n[1,2]\n```":         `[1,2]`,
		"Sure! {\"a\":{\"b\":2}} bye": `{"a":{"b":2}}`,
		"no json here":                "",
	}
	for in, want := range cases {
		if got := extractJSON(in); got != want {
			t.Fatalf("extractJSON(%q)=%q, want %q", in, got, want)
		}
	}
}
