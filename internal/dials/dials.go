// Package dials holds the adjustable generation parameters of an adventure.
//
// Every dial has its own Go type implementing Value, so a value can only be
// written to the dial it belongs to. String-keyed access exists only at the
// JSON boundary through Parse.
package dials

import (
	"fmt"
	"slices"
	"strings"

	"forge/internal/apperr"
)

// ID 旋钮标识
// ID identifies a dial.
type ID string

const (
	PartySize         ID = "partySize"
	PartyTier         ID = "partyTier"
	SceneCount        ID = "sceneCount"
	SessionLength     ID = "sessionLength"
	Tone              ID = "tone"
	PillarBalance     ID = "pillarBalance"
	NPCDensity        ID = "npcDensity"
	Lethality         ID = "lethality"
	EmotionalRegister ID = "emotionalRegister"
	Themes            ID = "themes"
)

// MaxThemes bounds the themes multi-select.
const MaxThemes = 3

var (
	concreteIDs   = []ID{PartySize, PartyTier, SceneCount, SessionLength}
	conceptualIDs = []ID{Tone, PillarBalance, NPCDensity, Lethality, EmotionalRegister, Themes}
)

// ConcreteIDs returns the required dials in display order.
func ConcreteIDs() []ID { return append([]ID(nil), concreteIDs...) }

// ConceptualIDs returns the optional style dials in display order.
func ConceptualIDs() []ID { return append([]ID(nil), conceptualIDs...) }

// AllIDs returns every dial id.
func AllIDs() []ID { return append(ConcreteIDs(), conceptualIDs...) }

// ParseID validates a dial id coming from outside the type system.
func ParseID(raw string) (ID, error) {
	id := ID(strings.TrimSpace(raw))
	if slices.Contains(concreteIDs, id) || slices.Contains(conceptualIDs, id) {
		return id, nil
	}
	return "", apperr.New(apperr.KindValidation, fmt.Sprintf("unknown dial %q", raw))
}

// IsConcrete reports whether id is one of the required dials.
func (id ID) IsConcrete() bool {
	return slices.Contains(concreteIDs, id)
}

// Value is a dial value. The unexported method seals the union.
type Value interface {
	Dial() ID
	validate() error
}

type (
	PartySizeValue         int
	PartyTierValue         int
	SceneCountValue        int
	SessionLengthValue     string
	ToneValue              string
	NPCDensityValue        string
	LethalityValue         string
	EmotionalRegisterValue string
	Pillar                 string
	ThemeValue             string
	ThemesValue            []ThemeValue
)

// PillarBalanceValue orders the three play pillars by priority.
type PillarBalanceValue struct {
	Primary   Pillar `json:"primary" yaml:"primary"`
	Secondary Pillar `json:"secondary" yaml:"secondary"`
	Tertiary  Pillar `json:"tertiary" yaml:"tertiary"`
}

const (
	PillarCombat      Pillar = "combat"
	PillarExploration Pillar = "exploration"
	PillarSocial      Pillar = "social"
)

// Option domains. Order matters: keyword migration walks options in this order.
var (
	PartySizeOptions         = []PartySizeValue{2, 3, 4, 5, 6}
	PartyTierOptions         = []PartyTierValue{1, 2, 3, 4}
	SceneCountOptions        = []SceneCountValue{3, 4, 5, 6}
	SessionLengthOptions     = []SessionLengthValue{"2-3 hours", "3-4 hours", "4-5 hours"}
	ToneOptions              = []ToneValue{"grim", "serious", "balanced", "lighthearted", "whimsical"}
	NPCDensityOptions        = []NPCDensityValue{"sparse", "moderate", "rich"}
	LethalityOptions         = []LethalityValue{"forgiving", "standard", "dangerous", "deadly"}
	EmotionalRegisterOptions = []EmotionalRegisterValue{"thrilling", "tense", "heartfelt", "bittersweet", "epic"}
	PillarOptions            = []Pillar{PillarCombat, PillarExploration, PillarSocial}
	ThemeOptions             = []ThemeValue{"redemption", "betrayal", "survival", "discovery", "sacrifice", "power", "identity", "loyalty", "corruption", "hope"}
)

// Defaults for concrete dials.
const (
	DefaultPartySize     PartySizeValue     = 4
	DefaultPartyTier     PartyTierValue     = 1
	DefaultSceneCount    SceneCountValue    = 4
	DefaultSessionLength SessionLengthValue = "3-4 hours"
)

// DefaultPillarBalance is used when a legacy snapshot carries no balance at all.
var DefaultPillarBalance = PillarBalanceValue{Primary: PillarCombat, Secondary: PillarExploration, Tertiary: PillarSocial}

func (PartySizeValue) Dial() ID         { return PartySize }
func (PartyTierValue) Dial() ID         { return PartyTier }
func (SceneCountValue) Dial() ID        { return SceneCount }
func (SessionLengthValue) Dial() ID     { return SessionLength }
func (ToneValue) Dial() ID              { return Tone }
func (PillarBalanceValue) Dial() ID     { return PillarBalance }
func (NPCDensityValue) Dial() ID        { return NPCDensity }
func (LethalityValue) Dial() ID         { return Lethality }
func (EmotionalRegisterValue) Dial() ID { return EmotionalRegister }
func (ThemesValue) Dial() ID            { return Themes }

func (v PartySizeValue) validate() error     { return oneOf(PartySize, v, PartySizeOptions) }
func (v PartyTierValue) validate() error     { return oneOf(PartyTier, v, PartyTierOptions) }
func (v SceneCountValue) validate() error    { return oneOf(SceneCount, v, SceneCountOptions) }
func (v SessionLengthValue) validate() error { return oneOf(SessionLength, v, SessionLengthOptions) }
func (v ToneValue) validate() error          { return oneOf(Tone, v, ToneOptions) }
func (v NPCDensityValue) validate() error    { return oneOf(NPCDensity, v, NPCDensityOptions) }
func (v LethalityValue) validate() error     { return oneOf(Lethality, v, LethalityOptions) }
func (v EmotionalRegisterValue) validate() error {
	return oneOf(EmotionalRegister, v, EmotionalRegisterOptions)
}

func (v PillarBalanceValue) validate() error {
	got := []Pillar{v.Primary, v.Secondary, v.Tertiary}
	for _, p := range got {
		if !slices.Contains(PillarOptions, p) {
			return invalid(PillarBalance, fmt.Sprintf("unknown pillar %q", p))
		}
	}
	if v.Primary == v.Secondary || v.Primary == v.Tertiary || v.Secondary == v.Tertiary {
		return invalid(PillarBalance, "pillars must be distinct")
	}
	return nil
}

func (v ThemesValue) validate() error {
	if len(v) > MaxThemes {
		return invalid(Themes, fmt.Sprintf("at most %d themes", MaxThemes))
	}
	seen := map[ThemeValue]struct{}{}
	for _, t := range v {
		if !slices.Contains(ThemeOptions, t) {
			return invalid(Themes, fmt.Sprintf("unknown theme %q", t))
		}
		if _, dup := seen[t]; dup {
			return invalid(Themes, fmt.Sprintf("duplicate theme %q", t))
		}
		seen[t] = struct{}{}
	}
	return nil
}

func oneOf[T comparable](id ID, v T, options []T) error {
	if slices.Contains(options, v) {
		return nil
	}
	return invalid(id, fmt.Sprintf("value %v not in %v", v, options))
}

func invalid(id ID, msg string) error {
	return apperr.New(apperr.KindValidation, fmt.Sprintf("dial %s: %s", id, msg))
}

// Validate checks v against its dial's domain.
func Validate(v Value) error {
	if v == nil {
		return apperr.New(apperr.KindValidation, "dial value is nil")
	}
	return v.validate()
}
