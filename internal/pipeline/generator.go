package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/dials"
	"forge/internal/provider"
	"forge/internal/session"
)

// FrameCandidates is how many frames one generation proposes.
const FrameCandidates = 3

// Input is what every generation call needs besides pipeline state.
type Input struct {
	AdventureName string
	Dials         dials.Set
}

// Generator 通过模型生成各阶段内容
// Generator drives stage generation through a model provider. Each method
// returns the next State even on failure, with the stage error recorded, so the
// caller can always store it.
type Generator struct {
	llm provider.Provider
}

// NewGenerator creates a generator backed by p.
func NewGenerator(p provider.Provider) *Generator {
	return &Generator{llm: p}
}

func (g *Generator) complete(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if g == nil || g.llm == nil {
		return "", errors.New("no model provider configured")
	}
	var cb *provider.StreamCallbacks
	if onChunk != nil {
		cb = &provider.StreamCallbacks{OnTextChunk: onChunk}
	}
	resp, err := g.llm.Chat(ctx, provider.ChatRequest{
		Model: g.llm.CurrentModel(),
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: generatorSystem},
			{Role: chat.RoleUser, Content: prompt},
		},
	}, cb)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func stageFailure(st State, stage session.Stage, err error) (State, error) {
	st = st.FailStage(stage, err)
	if errors.Is(err, context.Canceled) {
		return st, apperr.Wrap(apperr.KindCancelled, string(stage)+" generation cancelled", err)
	}
	return st, apperr.Wrap(apperr.KindStage, string(stage)+" generation failed", err)
}

// Frames proposes frame candidates.
func (g *Generator) Frames(ctx context.Context, st State, in Input) (State, error) {
	st = st.BeginStage(session.StageFrame)
	text, err := g.complete(ctx, framePrompt(in.AdventureName, in.Dials, FrameCandidates), nil)
	if err != nil {
		return stageFailure(st, session.StageFrame, err)
	}
	var out struct {
		Frames []Frame `json:"frames"`
	}
	if err := decodeLenient(text, &out, "frames"); err != nil {
		return stageFailure(st, session.StageFrame, err)
	}
	if len(out.Frames) == 0 {
		return stageFailure(st, session.StageFrame, errors.New("model returned no frames"))
	}
	for i := range out.Frames {
		if out.Frames[i].ID == "" {
			out.Frames[i].ID = fmt.Sprintf("frame-%d", i+1)
		}
	}
	return st.SetFrameCandidates(out.Frames).FinishStage(session.StageFrame), nil
}

// Outline writes the scene outline for the confirmed frame. A confirmed
// outline is refused with ErrOutlineLocked and the state is left unchanged.
func (g *Generator) Outline(ctx context.Context, st State, in Input) (State, error) {
	if _, err := st.SetOutline(Outline{}); err != nil {
		return st, err
	}
	st = st.BeginStage(session.StageOutline)
	if st.SelectedFrame == nil || !st.FrameConfirmed {
		return stageFailure(st, session.StageOutline, ErrFrameUnconfirmed)
	}
	text, err := g.complete(ctx, outlinePrompt(*st.SelectedFrame, in.Dials), nil)
	if err != nil {
		return stageFailure(st, session.StageOutline, err)
	}
	var out Outline
	if err := decodeLenient(text, &out, "scenes"); err != nil {
		return stageFailure(st, session.StageOutline, err)
	}
	if len(out.Scenes) == 0 {
		return stageFailure(st, session.StageOutline, ErrNoOutline)
	}
	if n := int(in.Dials.SceneCount); n > 0 && len(out.Scenes) > n {
		out.Scenes = out.Scenes[:n]
	}
	next, err := st.SetOutline(out)
	if err != nil {
		return stageFailure(st, session.StageOutline, err)
	}
	return next.FinishStage(session.StageOutline), nil
}

// SceneDraft drafts one scene, streaming raw model text into the state's
// stream buffer. onUpdate sees each intermediate state.
func (g *Generator) SceneDraft(ctx context.Context, st State, in Input, sceneID string, onUpdate func(State)) (State, error) {
	if st.SelectedFrame == nil || st.Outline == nil {
		return stageFailure(st, session.StageScenes, errors.New("frame and outline are required"))
	}
	sc, ok := st.Scene(sceneID)
	if !ok {
		return st, fmt.Errorf("scene %q: %w", sceneID, ErrNotFound)
	}
	next, err := st.StartSceneGeneration(sceneID)
	if err != nil {
		return st, err
	}
	st = next
	if onUpdate != nil {
		onUpdate(st)
	}
	text, err := g.complete(ctx, scenePrompt(*st.SelectedFrame, *st.Outline, sc.Brief, in.Dials), func(chunk string) {
		st = st.AppendSceneStream(sceneID, chunk)
		if onUpdate != nil {
			onUpdate(st)
		}
	})
	if err != nil {
		return stageFailure(st, session.StageScenes, err)
	}
	var draft SceneDraft
	if err := decodeLenient(text, &draft, ""); err != nil {
		return stageFailure(st, session.StageScenes, err)
	}
	return st.SetSceneDraft(sceneID, draft)
}

// CompileNPCs rebuilds the NPC list from confirmed scene drafts.
func (g *Generator) CompileNPCs(st State) (State, error) {
	st = st.BeginStage(session.StageNPCs)
	npcs := CompileNPCs(st.Scenes)
	if len(npcs) == 0 {
		return stageFailure(st, session.StageNPCs, errors.New("no NPCs mentioned in confirmed scenes"))
	}
	return st.SetNPCs(npcs).FinishStage(session.StageNPCs), nil
}

// Echoes writes the echoes for the finished adventure.
func (g *Generator) Echoes(ctx context.Context, st State, in Input) (State, error) {
	st = st.BeginStage(session.StageEchoes)
	text, err := g.complete(ctx, echoPrompt(st, in.Dials), nil)
	if err != nil {
		return stageFailure(st, session.StageEchoes, err)
	}
	var out struct {
		Echoes []Echo `json:"echoes"`
	}
	if err := decodeLenient(text, &out, "echoes"); err != nil {
		return stageFailure(st, session.StageEchoes, err)
	}
	if len(out.Echoes) == 0 {
		return stageFailure(st, session.StageEchoes, errors.New("model returned no echoes"))
	}
	return st.SetEchoes(out.Echoes).FinishStage(session.StageEchoes), nil
}

// decodeLenient pulls the JSON payload out of model text: code fences and
// surrounding prose are ignored. A bare array is accepted in place of an
// object whose only field is wrapKey.
func decodeLenient(text string, v any, wrapKey string) error {
	payload := extractJSON(text)
	if payload == "" {
		return errors.New("model response contained no JSON")
	}
	if strings.HasPrefix(payload, "[") && wrapKey != "" {
		payload = fmt.Sprintf("{%q:%s}", wrapKey, payload)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("parse model JSON: %w", err)
	}
	return nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return ""
	}
	return text[start : end+1]
}
