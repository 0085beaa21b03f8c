package dials

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"forge/internal/apperr"
)

// Parse 把边界输入（工具参数、MCP、HTTP）解析为类型化旋钮值
// Parse decodes a JSON value for dial id into its typed Value. The value is
// checked against the dial's domain.
func Parse(id ID, raw []byte) (Value, error) {
	var v Value
	var err error
	switch id {
	case PartySize:
		var n int
		n, err = parseInt(raw)
		v = PartySizeValue(n)
	case PartyTier:
		var n int
		n, err = parseInt(raw)
		v = PartyTierValue(n)
	case SceneCount:
		var n int
		n, err = parseInt(raw)
		v = SceneCountValue(n)
	case SessionLength:
		var str string
		str, err = parseString(raw)
		v = SessionLengthValue(str)
	case Tone:
		var str string
		str, err = parseString(raw)
		v = ToneValue(strings.ToLower(str))
	case NPCDensity:
		var str string
		str, err = parseString(raw)
		v = NPCDensityValue(strings.ToLower(str))
	case Lethality:
		var str string
		str, err = parseString(raw)
		v = LethalityValue(strings.ToLower(str))
	case EmotionalRegister:
		var str string
		str, err = parseString(raw)
		v = EmotionalRegisterValue(strings.ToLower(str))
	case PillarBalance:
		v, err = parsePillarBalance(raw)
	case Themes:
		v, err = parseThemes(raw)
	default:
		return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("dial %q", id), ErrUnknownDial)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, fmt.Sprintf("dial %s", id), err)
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func parseInt(raw []byte) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("expected integer, got %s", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", s)
	}
	return n, nil
}

func parseString(raw []byte) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("expected string, got %s", raw)
	}
	return strings.TrimSpace(s), nil
}

func parsePillarBalance(raw []byte) (PillarBalanceValue, error) {
	var pb PillarBalanceValue
	if err := json.Unmarshal(raw, &pb); err == nil && pb.Primary != "" {
		pb.Primary = Pillar(strings.ToLower(string(pb.Primary)))
		pb.Secondary = Pillar(strings.ToLower(string(pb.Secondary)))
		pb.Tertiary = Pillar(strings.ToLower(string(pb.Tertiary)))
		return pb, nil
	}
	var order []string
	if err := json.Unmarshal(raw, &order); err != nil || len(order) != 3 {
		return pb, fmt.Errorf("expected {primary,secondary,tertiary} or 3-element array, got %s", raw)
	}
	return PillarBalanceValue{
		Primary:   Pillar(strings.ToLower(order[0])),
		Secondary: Pillar(strings.ToLower(order[1])),
		Tertiary:  Pillar(strings.ToLower(order[2])),
	}, nil
}

func parseThemes(raw []byte) (ThemesValue, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("expected array of themes, got %s", raw)
		}
		list = strings.Split(one, ",")
	}
	out := ThemesValue{}
	for _, t := range list {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, ThemeValue(t))
		}
	}
	return out, nil
}
