package dials

import (
	"encoding/json"
	"errors"
	"testing"

	"forge/internal/apperr"
)

func TestWithRejectsOutOfDomainAndKeepsPriorValue(t *testing.T) {
	s, err := Defaults().With(PartySizeValue(5))
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	got, err := s.With(PartySizeValue(9))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, &apperr.Error{Kind: apperr.KindValidation}) {
		t.Fatalf("err kind=%q", apperr.KindOf(err))
	}
	if got.PartySize != 5 {
		t.Fatalf("partySize=%d after rejected write", got.PartySize)
	}
}

func TestThemesBoundedAndDistinct(t *testing.T) {
	cases := []struct {
		name    string
		themes  ThemesValue
		wantErr bool
	}{
		{"empty", ThemesValue{}, false},
		{"three", ThemesValue{"hope", "power", "loyalty"}, false},
		{"four", ThemesValue{"hope", "power", "loyalty", "betrayal"}, true},
		{"duplicate", ThemesValue{"hope", "hope"}, true},
		{"unknown", ThemesValue{"pizza"}, true},
	}
	for _, tc := range cases {
		_, err := Defaults().With(tc.themes)
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v, wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestPillarBalanceMustBePermutation(t *testing.T) {
	bad := PillarBalanceValue{Primary: PillarCombat, Secondary: PillarCombat, Tertiary: PillarSocial}
	if _, err := Defaults().With(bad); err == nil {
		t.Fatal("expected error for repeated pillar")
	}
	if _, err := Defaults().With(DefaultPillarBalance); err != nil {
		t.Fatalf("default balance rejected: %v", err)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	s, err := Defaults().Confirm(PartySize)
	if err != nil {
		t.Fatal(err)
	}
	s, _ = s.Confirm(PartySize)
	if s.Confirmed.Len() != 1 {
		t.Fatalf("confirmed=%v", s.Confirmed.Items())
	}
	if _, err := s.Confirm("bogus"); err == nil {
		t.Fatal("expected error confirming unknown dial")
	}
	if s.Unconfirm(PartySize).Confirmed.Len() != 0 {
		t.Fatal("unconfirm did not remove id")
	}
}

func TestRequiredComplete(t *testing.T) {
	s := Defaults()
	for i, id := range ConcreteIDs() {
		if s.RequiredComplete() {
			t.Fatalf("complete after %d confirmations", i)
		}
		s, _ = s.Confirm(id)
	}
	if !s.RequiredComplete() {
		t.Fatalf("missing=%v", s.Missing())
	}
	if s.ResetDial(PartyTier).RequiredComplete() {
		t.Fatal("reset should unconfirm the dial")
	}
}

func TestResetDial(t *testing.T) {
	s, _ := Defaults().With(PartyTierValue(3))
	s, _ = s.With(ToneValue("grim"))
	s, _ = s.Confirm(Tone)
	s = s.ResetDial(PartyTier).ResetDial(Tone)
	if s.PartyTier != DefaultPartyTier {
		t.Fatalf("partyTier=%d", s.PartyTier)
	}
	if s.Tone != nil || s.IsConfirmed(Tone) {
		t.Fatalf("tone not reset: %v confirmed=%v", s.Tone, s.IsConfirmed(Tone))
	}
}

func TestParseBoundaryValues(t *testing.T) {
	v, err := Parse(PartySize, []byte(`"3"`))
	if err != nil || v != PartySizeValue(3) {
		t.Fatalf("partySize: %v %v", v, err)
	}
	v, err = Parse(Tone, []byte(`"Grim"`))
	if err != nil || v != ToneValue("grim") {
		t.Fatalf("tone: %v %v", v, err)
	}
	v, err = Parse(PillarBalance, []byte(`["social","combat","exploration"]`))
	if err != nil {
		t.Fatalf("pillarBalance: %v", err)
	}
	if pb := v.(PillarBalanceValue); pb.Primary != PillarSocial || pb.Tertiary != PillarExploration {
		t.Fatalf("pillarBalance=%+v", pb)
	}
	if _, err := Parse(Lethality, []byte(`"extreme"`)); err == nil {
		t.Fatal("expected error for unknown lethality")
	}
	if _, err := Parse("colour", []byte(`"red"`)); !errors.Is(err, ErrUnknownDial) {
		t.Fatalf("unknown dial err=%v", err)
	}
}

func TestMigrateLegacyTone(t *testing.T) {
	if got := MigrateTone("very dark and gritty"); got == nil || *got != "grim" {
		t.Fatalf("tone=%v, want grim", got)
	}
	if got := MigrateTone("xyz123"); got != nil {
		t.Fatalf("tone=%v, want nil", *got)
	}
}

func TestUnmarshalMigratesLegacySnapshot(t *testing.T) {
	legacy := `{
		"partySize": 12,
		"partyTier": 0,
		"sceneCount": "5",
		"sessionLength": "a long evening",
		"tone": "very dark and gritty",
		"npcDensity": "xyz123",
		"lethality": "pretty brutal",
		"emotionalRegister": "heroic and grand",
		"combatExplorationBalance": "mostly social intrigue, a little combat",
		"themes": ["hope", "pizza", "hope", "power", "loyalty", "betrayal"],
		"confirmedDials": ["partySize", "combatExplorationBalance", "flavour"]
	}`
	var s Set
	if err := json.Unmarshal([]byte(legacy), &s); err != nil {
		t.Fatal(err)
	}
	if s.PartySize != 6 || s.PartyTier != 1 || s.SceneCount != 5 {
		t.Fatalf("numerics=%d/%d/%d", s.PartySize, s.PartyTier, s.SceneCount)
	}
	if s.SessionLength != "4-5 hours" {
		t.Fatalf("sessionLength=%q", s.SessionLength)
	}
	if s.Tone == nil || *s.Tone != "grim" {
		t.Fatalf("tone=%v", s.Tone)
	}
	if s.NPCDensity != nil {
		t.Fatalf("npcDensity=%v, want nil", *s.NPCDensity)
	}
	if s.Lethality == nil || *s.Lethality != "deadly" {
		t.Fatalf("lethality=%v", s.Lethality)
	}
	if s.EmotionalRegister == nil || *s.EmotionalRegister != "epic" {
		t.Fatalf("emotionalRegister=%v", s.EmotionalRegister)
	}
	want := PillarBalanceValue{Primary: PillarSocial, Secondary: PillarCombat, Tertiary: PillarExploration}
	if s.PillarBalance == nil || *s.PillarBalance != want {
		t.Fatalf("pillarBalance=%+v", s.PillarBalance)
	}
	if len(s.Themes) != 3 || s.Themes[0] != "hope" || s.Themes[2] != "loyalty" {
		t.Fatalf("themes=%v", s.Themes)
	}
	got := s.Confirmed.Items()
	if len(got) != 2 || got[0] != "partySize" || got[1] != "pillarBalance" {
		t.Fatalf("confirmed=%v", got)
	}
}

func TestUnmarshalPillarBalanceDefaults(t *testing.T) {
	var absent Set
	if err := json.Unmarshal([]byte(`{}`), &absent); err != nil {
		t.Fatal(err)
	}
	if absent.PillarBalance == nil || *absent.PillarBalance != DefaultPillarBalance {
		t.Fatalf("absent pillarBalance=%v", absent.PillarBalance)
	}

	var explicitNull Set
	if err := json.Unmarshal([]byte(`{"pillarBalance": null}`), &explicitNull); err != nil {
		t.Fatal(err)
	}
	if explicitNull.PillarBalance != nil {
		t.Fatalf("null pillarBalance migrated to %v", *explicitNull.PillarBalance)
	}
}

func TestRoundTripPreservesCurrentSnapshot(t *testing.T) {
	s, _ := Defaults().With(ToneValue("whimsical"))
	s, _ = s.With(ThemesValue{"discovery"})
	s, _ = s.Confirm(Tone)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var back Set
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Summary() != s.Summary() {
		t.Fatalf("summary changed:\n%s\n---\n%s", s.Summary(), back.Summary())
	}
}
