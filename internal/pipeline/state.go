package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"forge/internal/apperr"
	"forge/internal/orderedset"
	"forge/internal/session"
)

var (
	// ErrFrameLocked is returned when changing a confirmed frame.
	ErrFrameLocked = apperr.New(apperr.KindValidation, "frame is confirmed")
	// ErrNoFrame is returned when confirming without a selected frame.
	ErrNoFrame = apperr.New(apperr.KindValidation, "no frame selected")
	// ErrFrameUnconfirmed is returned when outlining before the frame is confirmed.
	ErrFrameUnconfirmed = apperr.New(apperr.KindValidation, "frame is not confirmed")
	// ErrOutlineLocked is returned when replacing a confirmed outline.
	ErrOutlineLocked = apperr.New(apperr.KindValidation, "outline is confirmed; clear the outline stage first")
	// ErrNoOutline is returned when confirming an empty outline.
	ErrNoOutline = apperr.New(apperr.KindValidation, "outline has no scenes")
	// ErrNotFound is returned for ids absent from their collection.
	ErrNotFound = apperr.New(apperr.KindValidation, "not found")
	// ErrSceneConfirmed is returned when writing to a confirmed scene.
	ErrSceneConfirmed = apperr.New(apperr.KindValidation, "scene is confirmed; reset it first")
	// ErrNoDraft is returned when confirming a scene without content.
	ErrNoDraft = apperr.New(apperr.KindValidation, "scene has no draft")
)

// State 内容流水线的完整状态（值类型）
// State is the whole pipeline. The zero value is an empty pipeline.
type State struct {
	FrameCandidates []Frame `json:"frameCandidates,omitempty"`
	SelectedFrame   *Frame  `json:"selectedFrame"`
	FrameConfirmed  bool    `json:"frameConfirmed"`

	Outline *Outline `json:"outline"`
	Scenes  []Scene  `json:"scenes"`

	NPCs          []CompiledNPC  `json:"npcs"`
	ConfirmedNPCs orderedset.Set `json:"confirmedNpcIds"`

	Adversaries          []SelectedAdversary `json:"selectedAdversaries"`
	ConfirmedAdversaries orderedset.Set      `json:"confirmedAdversaryIds"`

	Items          []SelectedItem `json:"selectedItems"`
	ConfirmedItems orderedset.Set `json:"confirmedItemIds"`

	Echoes          []Echo         `json:"echoes"`
	ConfirmedEchoes orderedset.Set `json:"confirmedEchoIds"`

	Status map[session.Stage]StageStatus `json:"-"`

	// StreamSceneID and StreamBuffer hold the scene draft currently arriving.
	StreamSceneID string `json:"-"`
	StreamBuffer  string `json:"-"`
}

// StatusOf returns the loading/error flags of stage.
func (s State) StatusOf(stage session.Stage) StageStatus {
	return s.Status[stage]
}

func (s State) withStatus(stage session.Stage, st StageStatus) State {
	next := maps.Clone(s.Status)
	if next == nil {
		next = map[session.Stage]StageStatus{}
	}
	next[stage] = st
	s.Status = next
	return s
}

// BeginStage sets loading and clears any previous error.
func (s State) BeginStage(stage session.Stage) State {
	return s.withStatus(stage, StageStatus{Loading: true})
}

// FinishStage clears loading after a successful generation.
func (s State) FinishStage(stage session.Stage) State {
	return s.withStatus(stage, StageStatus{})
}

// FailStage records a stage-scoped error and clears loading. Data of other
// stages is untouched. A scene caught mid-generation falls back to draft if it
// had one, otherwise to pending.
func (s State) FailStage(stage session.Stage, err error) State {
	msg := "generation failed"
	if err != nil {
		msg = err.Error()
	}
	if stage == session.StageScenes && s.StreamSceneID != "" {
		if idx := s.sceneIndex(s.StreamSceneID); idx >= 0 && s.Scenes[idx].Status == SceneGenerating {
			s.Scenes = slices.Clone(s.Scenes)
			if s.Scenes[idx].Draft != nil {
				s.Scenes[idx].Status = SceneDrafted
			} else {
				s.Scenes[idx].Status = ScenePending
			}
		}
		s.StreamSceneID, s.StreamBuffer = "", ""
	}
	return s.withStatus(stage, StageStatus{Error: msg})
}

// --- frame ---

// SetFrameCandidates replaces the generated frame options.
func (s State) SetFrameCandidates(frames []Frame) State {
	s.FrameCandidates = slices.Clone(frames)
	return s
}

// SelectFrame chooses or authors a frame. A confirmed frame is immutable.
func (s State) SelectFrame(f Frame) (State, error) {
	if s.FrameConfirmed {
		return s, ErrFrameLocked
	}
	if strings.TrimSpace(f.Title) == "" && strings.TrimSpace(f.Premise) == "" {
		return s, apperr.New(apperr.KindValidation, "frame needs a title or premise")
	}
	f.Themes = slices.Clone(f.Themes)
	s.SelectedFrame = &f
	return s, nil
}

// SelectFrameCandidate selects a generated candidate by id.
func (s State) SelectFrameCandidate(id string) (State, error) {
	for _, f := range s.FrameCandidates {
		if f.ID == id {
			return s.SelectFrame(f)
		}
	}
	return s, fmt.Errorf("frame %q: %w", id, ErrNotFound)
}

// ConfirmFrame locks the selected frame.
func (s State) ConfirmFrame() (State, error) {
	if s.SelectedFrame == nil {
		return s, ErrNoFrame
	}
	s.FrameConfirmed = true
	return s, nil
}

// --- outline ---

// SetOutline replaces an unconfirmed outline. Once the outline is confirmed
// it and its scenes are only replaced after ClearFrom(StageOutline).
func (s State) SetOutline(o Outline) (State, error) {
	if (s.Outline != nil && s.Outline.IsConfirmed) || len(s.Scenes) > 0 {
		return s, ErrOutlineLocked
	}
	o.Scenes = slices.Clone(o.Scenes)
	for i := range o.Scenes {
		o.Scenes[i].SceneNumber = i + 1
		if o.Scenes[i].ID == "" {
			o.Scenes[i].ID = fmt.Sprintf("scene-%d", i+1)
		}
	}
	o.IsConfirmed = false
	s.Outline = &o
	return s, nil
}

// ConfirmOutline confirms the outline and seeds one pending scene per brief.
// Confirming again keeps existing scenes.
func (s State) ConfirmOutline() (State, error) {
	if s.Outline == nil || len(s.Outline.Scenes) == 0 {
		return s, ErrNoOutline
	}
	o := *s.Outline
	o.IsConfirmed = true
	s.Outline = &o
	if len(s.Scenes) == 0 {
		s.Scenes = make([]Scene, len(o.Scenes))
		for i, b := range o.Scenes {
			s.Scenes[i] = Scene{Brief: b, Status: ScenePending}
		}
	}
	return s, nil
}

// --- scenes ---

func (s State) sceneIndex(id string) int {
	return slices.IndexFunc(s.Scenes, func(sc Scene) bool { return sc.ID() == id })
}

// Scene returns the scene with id.
func (s State) Scene(id string) (Scene, bool) {
	if idx := s.sceneIndex(id); idx >= 0 {
		return s.Scenes[idx], true
	}
	return Scene{}, false
}

func (s State) editScene(id string, fn func(*Scene) error) (State, error) {
	idx := s.sceneIndex(id)
	if idx < 0 {
		return s, fmt.Errorf("scene %q: %w", id, ErrNotFound)
	}
	scenes := slices.Clone(s.Scenes)
	if err := fn(&scenes[idx]); err != nil {
		return s, err
	}
	s.Scenes = scenes
	return s, nil
}

// StartSceneGeneration moves a scene to generating and opens the stream buffer.
func (s State) StartSceneGeneration(id string) (State, error) {
	next, err := s.editScene(id, func(sc *Scene) error {
		if sc.Status == SceneConfirmed {
			return ErrSceneConfirmed
		}
		sc.Status = SceneGenerating
		return nil
	})
	if err != nil {
		return s, err
	}
	next.StreamSceneID, next.StreamBuffer = id, ""
	return next.BeginStage(session.StageScenes), nil
}

// AppendSceneStream adds a streamed chunk for the generating scene. Chunks for
// any other scene are ignored.
func (s State) AppendSceneStream(id, chunk string) State {
	if s.StreamSceneID != id {
		return s
	}
	s.StreamBuffer += chunk
	return s
}

// SetSceneDraft stores draft content and moves the scene to draft. Submitting
// over an existing draft overwrites it.
func (s State) SetSceneDraft(id string, draft SceneDraft) (State, error) {
	next, err := s.editScene(id, func(sc *Scene) error {
		if sc.Status == SceneConfirmed {
			return ErrSceneConfirmed
		}
		d := draft
		d.KeyMoments = slices.Clone(draft.KeyMoments)
		sc.Draft = &d
		sc.Status = SceneDrafted
		return nil
	})
	if err != nil {
		return s, err
	}
	if next.StreamSceneID == id {
		next.StreamSceneID, next.StreamBuffer = "", ""
		next = next.FinishStage(session.StageScenes)
	}
	return next, nil
}

// ConfirmScene confirms a drafted scene. Confirming twice keeps the first time.
func (s State) ConfirmScene(id string, at time.Time) (State, error) {
	return s.editScene(id, func(sc *Scene) error {
		switch sc.Status {
		case SceneConfirmed:
			return nil
		case SceneDrafted:
			t := at.UTC()
			sc.Status = SceneConfirmed
			sc.ConfirmedAt = &t
			return nil
		default:
			return fmt.Errorf("scene %q is %s: %w", sc.ID(), sc.Status, ErrNoDraft)
		}
	})
}

// ConfirmAllScenes confirms every drafted scene; others are left alone.
func (s State) ConfirmAllScenes(at time.Time) State {
	for _, sc := range s.Scenes {
		if sc.Status == SceneDrafted {
			s, _ = s.ConfirmScene(sc.ID(), at)
		}
	}
	return s
}

// ResetScene is the only way back from confirmed: the scene returns to pending
// with its draft dropped.
func (s State) ResetScene(id string) (State, error) {
	next, err := s.editScene(id, func(sc *Scene) error {
		sc.Status = ScenePending
		sc.Draft = nil
		sc.ConfirmedAt = nil
		return nil
	})
	if err != nil {
		return s, err
	}
	if next.StreamSceneID == id {
		next.StreamSceneID, next.StreamBuffer = "", ""
	}
	return next, nil
}

// NextPendingScene returns the first scene still waiting for a draft.
func (s State) NextPendingScene() (Scene, bool) {
	for _, sc := range s.Scenes {
		if sc.Status == ScenePending {
			return sc, true
		}
	}
	return Scene{}, false
}

// --- npcs ---

// SetNPCs replaces the compiled NPCs, keeping confirmations of NPCs that survive.
func (s State) SetNPCs(npcs []CompiledNPC) State {
	s.NPCs = slices.Clone(npcs)
	s.ConfirmedNPCs = s.ConfirmedNPCs.Retain(func(id string) bool { return s.hasNPC(id) })
	return s
}

func (s State) hasNPC(id string) bool {
	return slices.ContainsFunc(s.NPCs, func(n CompiledNPC) bool { return n.ID == id })
}

// ConfirmNPC confirms one NPC.
func (s State) ConfirmNPC(id string) (State, error) {
	if !s.hasNPC(id) {
		return s, fmt.Errorf("npc %q: %w", id, ErrNotFound)
	}
	s.ConfirmedNPCs = s.ConfirmedNPCs.Add(id)
	return s, nil
}

// UnconfirmNPC removes one NPC confirmation.
func (s State) UnconfirmNPC(id string) State {
	s.ConfirmedNPCs = s.ConfirmedNPCs.Remove(id)
	return s
}

// ConfirmAllNPCs confirms every NPC.
func (s State) ConfirmAllNPCs() State {
	for _, n := range s.NPCs {
		s.ConfirmedNPCs = s.ConfirmedNPCs.Add(n.ID)
	}
	return s
}

// --- adversaries ---

func (s State) adversaryIndex(id string) int {
	return slices.IndexFunc(s.Adversaries, func(a SelectedAdversary) bool { return a.ID == id })
}

// SelectAdversary adds an adversary. Selecting one already present increases
// its quantity instead of adding a duplicate.
func (s State) SelectAdversary(a SelectedAdversary) (State, error) {
	if strings.TrimSpace(a.ID) == "" {
		return s, apperr.New(apperr.KindValidation, "adversary id is required")
	}
	add := max(a.Quantity, 1)
	s.Adversaries = slices.Clone(s.Adversaries)
	if idx := s.adversaryIndex(a.ID); idx >= 0 {
		s.Adversaries[idx].Quantity = ClampQuantity(s.Adversaries[idx].Quantity + add)
		return s, nil
	}
	a.Quantity = ClampQuantity(add)
	s.Adversaries = append(s.Adversaries, a)
	return s, nil
}

// SetAdversaryQuantity sets a clamped quantity.
func (s State) SetAdversaryQuantity(id string, q int) (State, error) {
	idx := s.adversaryIndex(id)
	if idx < 0 {
		return s, fmt.Errorf("adversary %q: %w", id, ErrNotFound)
	}
	s.Adversaries = slices.Clone(s.Adversaries)
	s.Adversaries[idx].Quantity = ClampQuantity(q)
	return s, nil
}

// DeselectAdversary removes an adversary and its confirmation.
func (s State) DeselectAdversary(id string) State {
	s.Adversaries = slices.DeleteFunc(slices.Clone(s.Adversaries), func(a SelectedAdversary) bool { return a.ID == id })
	s.ConfirmedAdversaries = s.ConfirmedAdversaries.Remove(id)
	return s
}

// ConfirmAdversary confirms one selected adversary.
func (s State) ConfirmAdversary(id string) (State, error) {
	if s.adversaryIndex(id) < 0 {
		return s, fmt.Errorf("adversary %q: %w", id, ErrNotFound)
	}
	s.ConfirmedAdversaries = s.ConfirmedAdversaries.Add(id)
	return s, nil
}

// UnconfirmAdversary removes one adversary confirmation.
func (s State) UnconfirmAdversary(id string) State {
	s.ConfirmedAdversaries = s.ConfirmedAdversaries.Remove(id)
	return s
}

// ConfirmAllAdversaries confirms every selected adversary.
func (s State) ConfirmAllAdversaries() State {
	for _, a := range s.Adversaries {
		s.ConfirmedAdversaries = s.ConfirmedAdversaries.Add(a.ID)
	}
	return s
}

// --- items ---

func (s State) itemIndex(key string) int {
	return slices.IndexFunc(s.Items, func(i SelectedItem) bool { return i.Key() == key })
}

// SelectItem adds an item keyed by (category, name), increasing the quantity
// of an existing selection.
func (s State) SelectItem(item SelectedItem) (State, error) {
	if strings.TrimSpace(item.Name) == "" || strings.TrimSpace(item.Category) == "" {
		return s, apperr.New(apperr.KindValidation, "item category and name are required")
	}
	add := max(item.Quantity, 1)
	s.Items = slices.Clone(s.Items)
	if idx := s.itemIndex(item.Key()); idx >= 0 {
		s.Items[idx].Quantity = ClampQuantity(s.Items[idx].Quantity + add)
		return s, nil
	}
	item.Quantity = ClampQuantity(add)
	s.Items = append(s.Items, item)
	return s, nil
}

// SetItemQuantity sets a clamped quantity for the item with key.
func (s State) SetItemQuantity(key string, q int) (State, error) {
	idx := s.itemIndex(key)
	if idx < 0 {
		return s, fmt.Errorf("item %q: %w", key, ErrNotFound)
	}
	s.Items = slices.Clone(s.Items)
	s.Items[idx].Quantity = ClampQuantity(q)
	return s, nil
}

// DeselectItem removes an item and its confirmation.
func (s State) DeselectItem(key string) State {
	s.Items = slices.DeleteFunc(slices.Clone(s.Items), func(i SelectedItem) bool { return i.Key() == key })
	s.ConfirmedItems = s.ConfirmedItems.Remove(key)
	return s
}

// ConfirmItem confirms one selected item.
func (s State) ConfirmItem(key string) (State, error) {
	if s.itemIndex(key) < 0 {
		return s, fmt.Errorf("item %q: %w", key, ErrNotFound)
	}
	s.ConfirmedItems = s.ConfirmedItems.Add(key)
	return s, nil
}

// UnconfirmItem removes one item confirmation.
func (s State) UnconfirmItem(key string) State {
	s.ConfirmedItems = s.ConfirmedItems.Remove(key)
	return s
}

// ConfirmAllItems confirms every selected item.
func (s State) ConfirmAllItems() State {
	for _, i := range s.Items {
		s.ConfirmedItems = s.ConfirmedItems.Add(i.Key())
	}
	return s
}

// --- echoes ---

// SetEchoes replaces the echoes, keeping confirmations of echoes that survive.
func (s State) SetEchoes(echoes []Echo) State {
	s.Echoes = slices.Clone(echoes)
	for i := range s.Echoes {
		if s.Echoes[i].ID == "" {
			s.Echoes[i].ID = fmt.Sprintf("echo-%d", i+1)
		}
	}
	s.ConfirmedEchoes = s.ConfirmedEchoes.Retain(func(id string) bool {
		return slices.ContainsFunc(s.Echoes, func(e Echo) bool { return e.ID == id })
	})
	return s
}

// ConfirmEcho confirms one echo.
func (s State) ConfirmEcho(id string) (State, error) {
	if !slices.ContainsFunc(s.Echoes, func(e Echo) bool { return e.ID == id }) {
		return s, fmt.Errorf("echo %q: %w", id, ErrNotFound)
	}
	s.ConfirmedEchoes = s.ConfirmedEchoes.Add(id)
	return s, nil
}

// UnconfirmEcho removes one echo confirmation.
func (s State) UnconfirmEcho(id string) State {
	s.ConfirmedEchoes = s.ConfirmedEchoes.Remove(id)
	return s
}

// ConfirmAllEchoes confirms every echo.
func (s State) ConfirmAllEchoes() State {
	for _, e := range s.Echoes {
		s.ConfirmedEchoes = s.ConfirmedEchoes.Add(e.ID)
	}
	return s
}

// --- clearing ---

// ClearFrom clears stage and every stage after it. Stages before it keep
// their data and confirmations.
func (s State) ClearFrom(stage session.Stage) State {
	idx := stage.Index()
	clears := func(st session.Stage) bool { return idx >= 0 && st.Index() >= idx }
	if clears(session.StageFrame) {
		s.FrameCandidates, s.SelectedFrame, s.FrameConfirmed = nil, nil, false
	}
	if clears(session.StageOutline) {
		s.Outline = nil
	}
	if clears(session.StageScenes) {
		s.Scenes = nil
		s.StreamSceneID, s.StreamBuffer = "", ""
	}
	if clears(session.StageNPCs) {
		s.NPCs, s.ConfirmedNPCs = nil, orderedset.Set{}
	}
	if clears(session.StageAdversaries) {
		s.Adversaries, s.ConfirmedAdversaries = nil, orderedset.Set{}
	}
	if clears(session.StageItems) {
		s.Items, s.ConfirmedItems = nil, orderedset.Set{}
	}
	if clears(session.StageEchoes) {
		s.Echoes, s.ConfirmedEchoes = nil, orderedset.Set{}
	}
	status := maps.Clone(s.Status)
	for st := range status {
		if clears(st) {
			delete(status, st)
		}
	}
	s.Status = status
	return s
}

// Reset returns an empty pipeline.
func (s State) Reset() State {
	return State{}
}

// Normalize drops confirmations whose ids are no longer in their collection,
// clamps quantities and settles scenes saved mid-generation. Loaded snapshots
// pass through here.
func (s State) Normalize() State {
	s = s.SetNPCs(s.NPCs)
	s.ConfirmedAdversaries = s.ConfirmedAdversaries.Retain(func(id string) bool { return s.adversaryIndex(id) >= 0 })
	s.ConfirmedItems = s.ConfirmedItems.Retain(func(key string) bool { return s.itemIndex(key) >= 0 })
	s = s.SetEchoes(s.Echoes)
	s.Adversaries = slices.Clone(s.Adversaries)
	s.Items = slices.Clone(s.Items)
	s.Scenes = slices.Clone(s.Scenes)
	for i := range s.Scenes {
		if s.Scenes[i].Status != SceneGenerating {
			continue
		}
		if s.Scenes[i].Draft != nil {
			s.Scenes[i].Status = SceneDrafted
		} else {
			s.Scenes[i].Status = ScenePending
		}
	}
	for i := range s.Adversaries {
		s.Adversaries[i].Quantity = ClampQuantity(s.Adversaries[i].Quantity)
	}
	for i := range s.Items {
		s.Items[i].Quantity = ClampQuantity(s.Items[i].Quantity)
	}
	return s
}
