package dials

import (
	"fmt"
	"slices"
	"strings"

	"forge/internal/apperr"
	"forge/internal/orderedset"
)

// Set 旋钮配置与确认集合；所有修改方法返回新值
// Set holds every dial value plus the confirmed ids. Mutating methods return
// a new Set and never touch the receiver.
type Set struct {
	PartySize         PartySizeValue          `json:"partySize" yaml:"partySize"`
	PartyTier         PartyTierValue          `json:"partyTier" yaml:"partyTier"`
	SceneCount        SceneCountValue         `json:"sceneCount" yaml:"sceneCount"`
	SessionLength     SessionLengthValue      `json:"sessionLength" yaml:"sessionLength"`
	Tone              *ToneValue              `json:"tone" yaml:"tone"`
	PillarBalance     *PillarBalanceValue     `json:"pillarBalance" yaml:"pillarBalance"`
	NPCDensity        *NPCDensityValue        `json:"npcDensity" yaml:"npcDensity"`
	Lethality         *LethalityValue         `json:"lethality" yaml:"lethality"`
	EmotionalRegister *EmotionalRegisterValue `json:"emotionalRegister" yaml:"emotionalRegister"`
	Themes            ThemesValue             `json:"themes" yaml:"themes"`
	Confirmed         orderedset.Set          `json:"confirmedDials" yaml:"confirmedDials"`
}

// Defaults returns a fresh dial set: concrete defaults, conceptual dials unset,
// nothing confirmed.
func Defaults() Set {
	return Set{
		PartySize:     DefaultPartySize,
		PartyTier:     DefaultPartyTier,
		SceneCount:    DefaultSceneCount,
		SessionLength: DefaultSessionLength,
		Themes:        ThemesValue{},
	}
}

// With 校验并写入一个旋钮值；失败时原值不变
// With validates v and returns a set holding it. On error the receiver is
// returned unchanged.
func (s Set) With(v Value) (Set, error) {
	if err := Validate(v); err != nil {
		return s, err
	}
	switch v := v.(type) {
	case PartySizeValue:
		s.PartySize = v
	case PartyTierValue:
		s.PartyTier = v
	case SceneCountValue:
		s.SceneCount = v
	case SessionLengthValue:
		s.SessionLength = v
	case ToneValue:
		s.Tone = &v
	case PillarBalanceValue:
		s.PillarBalance = &v
	case NPCDensityValue:
		s.NPCDensity = &v
	case LethalityValue:
		s.Lethality = &v
	case EmotionalRegisterValue:
		s.EmotionalRegister = &v
	case ThemesValue:
		s.Themes = append(ThemesValue{}, v...)
	}
	return s, nil
}

// Get returns the current value of id; ok is false for an unset conceptual dial.
func (s Set) Get(id ID) (Value, bool) {
	switch id {
	case PartySize:
		return s.PartySize, true
	case PartyTier:
		return s.PartyTier, true
	case SceneCount:
		return s.SceneCount, true
	case SessionLength:
		return s.SessionLength, true
	case Tone:
		if s.Tone != nil {
			return *s.Tone, true
		}
	case PillarBalance:
		if s.PillarBalance != nil {
			return *s.PillarBalance, true
		}
	case NPCDensity:
		if s.NPCDensity != nil {
			return *s.NPCDensity, true
		}
	case Lethality:
		if s.Lethality != nil {
			return *s.Lethality, true
		}
	case EmotionalRegister:
		if s.EmotionalRegister != nil {
			return *s.EmotionalRegister, true
		}
	case Themes:
		if len(s.Themes) > 0 {
			return slices.Clone(s.Themes), true
		}
	}
	return nil, false
}

// Confirm marks id as confirmed. Confirming twice is a no-op.
func (s Set) Confirm(id ID) (Set, error) {
	if _, err := ParseID(string(id)); err != nil {
		return s, err
	}
	s.Confirmed = s.Confirmed.Add(string(id))
	return s, nil
}

// Unconfirm removes id from the confirmed set.
func (s Set) Unconfirm(id ID) Set {
	s.Confirmed = s.Confirmed.Remove(string(id))
	return s
}

// IsConfirmed reports whether id is confirmed.
func (s Set) IsConfirmed(id ID) bool {
	return s.Confirmed.Has(string(id))
}

// ResetDial reverts one dial: concrete to its default, conceptual to unset.
// The dial is unconfirmed either way.
func (s Set) ResetDial(id ID) Set {
	d := Defaults()
	switch id {
	case PartySize:
		s.PartySize = d.PartySize
	case PartyTier:
		s.PartyTier = d.PartyTier
	case SceneCount:
		s.SceneCount = d.SceneCount
	case SessionLength:
		s.SessionLength = d.SessionLength
	case Tone:
		s.Tone = nil
	case PillarBalance:
		s.PillarBalance = nil
	case NPCDensity:
		s.NPCDensity = nil
	case Lethality:
		s.Lethality = nil
	case EmotionalRegister:
		s.EmotionalRegister = nil
	case Themes:
		s.Themes = ThemesValue{}
	}
	return s.Unconfirm(id)
}

// ResetAll reverts every dial.
func (s Set) ResetAll() Set {
	return Defaults()
}

// RequiredComplete reports whether all concrete dials are confirmed. It gates
// the move from dial-tuning to frame.
func (s Set) RequiredComplete() bool {
	for _, id := range concreteIDs {
		if !s.IsConfirmed(id) {
			return false
		}
	}
	return true
}

// Missing returns the concrete dials not yet confirmed, in display order.
func (s Set) Missing() []ID {
	var out []ID
	for _, id := range concreteIDs {
		if !s.IsConfirmed(id) {
			out = append(out, id)
		}
	}
	return out
}

// Summary renders the dials as prompt lines, one per dial.
func (s Set) Summary() string {
	var b strings.Builder
	for _, id := range AllIDs() {
		mark := " "
		if s.IsConfirmed(id) {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s: %s\n", mark, id, s.display(id))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s Set) display(id ID) string {
	v, ok := s.Get(id)
	if !ok {
		return "(unset)"
	}
	switch v := v.(type) {
	case PillarBalanceValue:
		return fmt.Sprintf("%s > %s > %s", v.Primary, v.Secondary, v.Tertiary)
	case ThemesValue:
		names := make([]string, len(v))
		for i, t := range v {
			names[i] = string(t)
		}
		return strings.Join(names, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// Apply parses a boundary value for id and writes it.
func (s Set) Apply(id ID, raw []byte) (Set, error) {
	v, err := Parse(id, raw)
	if err != nil {
		return s, err
	}
	return s.With(v)
}

// ErrUnknownDial is returned by Parse for ids outside the dial set.
var ErrUnknownDial = apperr.New(apperr.KindValidation, "unknown dial")
