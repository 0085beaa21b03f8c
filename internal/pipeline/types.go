// Package pipeline is the confirmation-gated sequence of generation stages:
// frame, outline, scenes, NPCs, adversaries, items and echoes.
//
// State is a plain value. Every mutation is a method returning a new State,
// so the orchestrator can apply it atomically under its own lock.
package pipeline

import (
	"strings"
	"time"
)

// Frame 冒险的前提与设定
// Frame is the adventure premise, either generated or authored.
type Frame struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Premise  string   `json:"premise" yaml:"premise"`
	Setting  string   `json:"setting,omitempty" yaml:"setting,omitempty"`
	Hook     string   `json:"hook,omitempty" yaml:"hook,omitempty"`
	Themes   []string `json:"themes,omitempty" yaml:"themes,omitempty"`
	Authored bool     `json:"authored,omitempty" yaml:"authored,omitempty"`
}

// SceneBrief is one outline entry.
type SceneBrief struct {
	ID          string   `json:"id" yaml:"id"`
	SceneNumber int      `json:"sceneNumber" yaml:"sceneNumber"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	KeyElements []string `json:"keyElements" yaml:"keyElements"`
	SceneType   string   `json:"sceneType" yaml:"sceneType"`
}

// Outline is the ordered scene plan.
type Outline struct {
	Summary     string       `json:"summary,omitempty" yaml:"summary,omitempty"`
	Scenes      []SceneBrief `json:"scenes" yaml:"scenes"`
	IsConfirmed bool         `json:"isConfirmed" yaml:"isConfirmed"`
}

// SceneStatus 场景子状态机
// SceneStatus is the per-scene sub-machine state.
type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneGenerating SceneStatus = "generating"
	SceneDrafted    SceneStatus = "draft"
	SceneConfirmed  SceneStatus = "confirmed"
)

// EntityMention is an NPC, adversary or item named inside a scene draft.
type EntityMention struct {
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// ExtractedEntities groups the mentions of one draft.
type ExtractedEntities struct {
	NPCs        []EntityMention `json:"npcs" yaml:"npcs"`
	Adversaries []EntityMention `json:"adversaries" yaml:"adversaries"`
	Items       []EntityMention `json:"items" yaml:"items"`
}

// SceneDraft is generated scene content.
type SceneDraft struct {
	Narrative  string            `json:"narrative" yaml:"narrative"`
	KeyMoments []string          `json:"keyMoments" yaml:"keyMoments"`
	Resolution string            `json:"resolution" yaml:"resolution"`
	Entities   ExtractedEntities `json:"extractedEntities" yaml:"extractedEntities"`
}

// Scene pairs an outline brief with its draft.
type Scene struct {
	Brief       SceneBrief  `json:"brief" yaml:"brief"`
	Draft       *SceneDraft `json:"draft" yaml:"draft"`
	Status      SceneStatus `json:"status" yaml:"status"`
	ConfirmedAt *time.Time  `json:"confirmedAt,omitempty" yaml:"confirmedAt,omitempty"`
}

// ID returns the brief id.
func (s Scene) ID() string { return s.Brief.ID }

// CompiledNPC is an NPC merged from scene drafts.
type CompiledNPC struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Role        string   `json:"role,omitempty" yaml:"role,omitempty"`
	Description string   `json:"description" yaml:"description"`
	SceneIDs    []string `json:"sceneIds" yaml:"sceneIds"`
}

// SelectedAdversary is a chosen adversary and how many appear.
type SelectedAdversary struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Tier     int    `json:"tier,omitempty" yaml:"tier,omitempty"`
	Role     string `json:"role,omitempty" yaml:"role,omitempty"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// SelectedItem is a chosen item. Identity is (category, name): the same name
// may exist in several categories.
type SelectedItem struct {
	Category    string `json:"category" yaml:"category"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Quantity    int    `json:"quantity" yaml:"quantity"`
}

// Key returns the item identity used by the confirmed set.
func (i SelectedItem) Key() string {
	return ItemKey(i.Category, i.Name)
}

// ItemKey builds the (category, name) identity.
func ItemKey(category, name string) string {
	return strings.ToLower(strings.TrimSpace(category)) + "/" + strings.ToLower(strings.TrimSpace(name))
}

// Echo is a recurring callback or consequence threaded through the adventure.
type Echo struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Title    string `json:"title" yaml:"title"`
	Content  string `json:"content" yaml:"content"`
}

// StageStatus carries the loading and error flags of one generation stage.
type StageStatus struct {
	Loading bool   `json:"loading" yaml:"loading"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Quantity bounds for selected adversaries and items.
const (
	MinQuantity = 1
	MaxQuantity = 10
)

// ClampQuantity bounds q to [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	return max(MinQuantity, min(MaxQuantity, q))
}
