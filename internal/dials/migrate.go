package dials

import (
	"encoding/json"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"forge/internal/orderedset"
)

// legacyBalanceKey is the flat combat/exploration string older snapshots carry.
const legacyBalanceKey = "combatExplorationBalance"

type keywordRule[T any] struct {
	value    T
	keywords []string
}

// Rules are checked in order; the first rule with any keyword contained in
// the lowercased legacy text wins.
var (
	toneRules = []keywordRule[ToneValue]{
		{"grim", []string{"grim", "dark", "gritty", "bleak", "horror", "grimdark"}},
		{"whimsical", []string{"whimsical", "whimsy", "silly", "goofy", "absurd", "comedic", "comedy"}},
		{"lighthearted", []string{"lighthearted", "light-hearted", "light", "fun", "cheer", "breezy", "upbeat"}},
		{"serious", []string{"serious", "somber", "sombre", "dramatic", "mature", "weighty"}},
		{"balanced", []string{"balanced", "balance", "mixed", "mix", "varied", "neutral"}},
	}
	npcDensityRules = []keywordRule[NPCDensityValue]{
		{"sparse", []string{"sparse", "few", "minimal", "lonely", "isolated"}},
		{"rich", []string{"rich", "many", "lots", "dense", "crowded", "bustling", "populated"}},
		{"moderate", []string{"moderate", "some", "medium", "average", "normal"}},
	}
	lethalityRules = []keywordRule[LethalityValue]{
		{"deadly", []string{"deadly", "lethal", "brutal", "meat grinder", "tpk"}},
		{"dangerous", []string{"dangerous", "danger", "hard", "challenging", "tough", "risky"}},
		{"forgiving", []string{"forgiving", "easy", "gentle", "safe", "low"}},
		{"standard", []string{"standard", "normal", "medium", "moderate", "default"}},
	}
	emotionalRegisterRules = []keywordRule[EmotionalRegisterValue]{
		{"bittersweet", []string{"bittersweet", "melanchol", "sad", "tragic", "wistful"}},
		{"thrilling", []string{"thrill", "exciting", "excitement", "action", "adrenaline"}},
		{"tense", []string{"tense", "tension", "suspense", "dread", "anxious", "paranoi"}},
		{"heartfelt", []string{"heartfelt", "warm", "touching", "emotional", "tender"}},
		{"epic", []string{"epic", "grand", "heroic", "sweeping", "legendary"}},
	}
	pillarKeywords = map[Pillar][]string{
		PillarCombat:      {"combat", "fight", "battle", "action", "tactical"},
		PillarExploration: {"exploration", "explore", "discovery", "travel", "dungeon", "wilderness"},
		PillarSocial:      {"social", "roleplay", "role-play", "intrigue", "talk", "diplomacy", "negotiation"},
	}
	sessionLengthRules = []keywordRule[SessionLengthValue]{
		{"2-3 hours", []string{"2-3", "short", "quick", "one-shot"}},
		{"4-5 hours", []string{"4-5", "long", "extended"}},
		{"3-4 hours", []string{"3-4", "medium", "standard"}},
	}
)

func matchKeyword[T ~string](text string, options []T, rules []keywordRule[T]) *T {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	for _, opt := range options {
		if string(opt) == text {
			v := opt
			return &v
		}
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				v := r.value
				return &v
			}
		}
	}
	return nil
}

// MigrateTone maps a legacy free-text tone to its nearest option, or nil.
func MigrateTone(text string) *ToneValue { return matchKeyword(text, ToneOptions, toneRules) }

// MigrateNPCDensity maps legacy npc density text, or nil.
func MigrateNPCDensity(text string) *NPCDensityValue {
	return matchKeyword(text, NPCDensityOptions, npcDensityRules)
}

// MigrateLethality maps legacy lethality text, or nil.
func MigrateLethality(text string) *LethalityValue {
	return matchKeyword(text, LethalityOptions, lethalityRules)
}

// MigrateEmotionalRegister maps legacy emotional register text, or nil.
func MigrateEmotionalRegister(text string) *EmotionalRegisterValue {
	return matchKeyword(text, EmotionalRegisterOptions, emotionalRegisterRules)
}

// MigratePillarBalance orders pillars by where their keywords first appear in
// text. Pillars never mentioned follow in default order. No mention at all
// yields the default balance.
func MigratePillarBalance(text string) PillarBalanceValue {
	text = strings.ToLower(text)
	pos := map[Pillar]int{}
	for _, p := range PillarOptions {
		best := math.MaxInt
		for _, kw := range pillarKeywords[p] {
			if i := strings.Index(text, kw); i >= 0 && i < best {
				best = i
			}
		}
		pos[p] = best
	}
	order := slices.Clone(PillarOptions)
	sort.SliceStable(order, func(i, j int) bool { return pos[order[i]] < pos[order[j]] })
	return PillarBalanceValue{Primary: order[0], Secondary: order[1], Tertiary: order[2]}
}

func clampInt(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

// UnmarshalJSON 加载时迁移旧版快照中的旋钮值
// UnmarshalJSON loads a dial set and migrates legacy values: free-text
// conceptual dials go through keyword matching, numerics are clamped and
// unknown enumerations fall back to defaults. It never fails on content, only
// on malformed JSON.
func (s *Set) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	out := Defaults()

	if raw, ok := fields[string(PartySize)]; ok {
		if n, ok := legacyInt(raw); ok {
			out.PartySize = PartySizeValue(clampInt(n, 2, 6))
		}
	}
	if raw, ok := fields[string(PartyTier)]; ok {
		if n, ok := legacyInt(raw); ok {
			out.PartyTier = PartyTierValue(clampInt(n, 1, 4))
		}
	}
	if raw, ok := fields[string(SceneCount)]; ok {
		if n, ok := legacyInt(raw); ok {
			out.SceneCount = SceneCountValue(clampInt(n, 3, 6))
		}
	}
	if raw, ok := fields[string(SessionLength)]; ok {
		if str, ok := legacyString(raw); ok {
			if v := matchKeyword(str, SessionLengthOptions, sessionLengthRules); v != nil {
				out.SessionLength = *v
			}
		}
	}
	if str, ok := legacyString(fields[string(Tone)]); ok {
		out.Tone = MigrateTone(str)
	}
	if str, ok := legacyString(fields[string(NPCDensity)]); ok {
		out.NPCDensity = MigrateNPCDensity(str)
	}
	if str, ok := legacyString(fields[string(Lethality)]); ok {
		out.Lethality = MigrateLethality(str)
	}
	if str, ok := legacyString(fields[string(EmotionalRegister)]); ok {
		out.EmotionalRegister = MigrateEmotionalRegister(str)
	}

	out.PillarBalance = migratePillarField(fields)

	if raw, ok := fields[string(Themes)]; ok && !isNull(raw) {
		if themes, err := parseThemes(raw); err == nil {
			out.Themes = keepValidThemes(themes)
		}
	}

	if raw, ok := fields["confirmedDials"]; ok && !isNull(raw) {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err == nil {
			confirmed := orderedset.Set{}
			for _, id := range ids {
				if id == legacyBalanceKey {
					id = string(PillarBalance)
				}
				if _, err := ParseID(id); err == nil {
					confirmed = confirmed.Add(id)
				}
			}
			out.Confirmed = confirmed
		}
	}

	*s = out
	return nil
}

// migratePillarField handles three cases: an explicit pillarBalance (kept if
// valid, null stays null), a legacy flat string, or neither (default).
func migratePillarField(fields map[string]json.RawMessage) *PillarBalanceValue {
	if raw, ok := fields[string(PillarBalance)]; ok {
		if isNull(raw) {
			return nil
		}
		if pb, err := parsePillarBalance(raw); err == nil && pb.validate() == nil {
			return &pb
		}
		if str, ok := legacyString(raw); ok {
			pb := MigratePillarBalance(str)
			return &pb
		}
		pb := DefaultPillarBalance
		return &pb
	}
	if str, ok := legacyString(fields[legacyBalanceKey]); ok {
		pb := MigratePillarBalance(str)
		return &pb
	}
	pb := DefaultPillarBalance
	return &pb
}

func keepValidThemes(in ThemesValue) ThemesValue {
	out := ThemesValue{}
	for _, t := range in {
		if len(out) == MaxThemes {
			break
		}
		if slices.Contains(ThemeOptions, t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || strings.TrimSpace(string(raw)) == "null"
}

func legacyInt(raw json.RawMessage) (int, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(math.Round(f)), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n, true
		}
	}
	return 0, false
}

func legacyString(raw json.RawMessage) (string, bool) {
	if isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
