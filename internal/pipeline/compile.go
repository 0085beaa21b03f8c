package pipeline

import (
	"strings"
	"unicode"
)

// CompileNPCs merges NPC mentions from confirmed scene drafts into one entry
// per name, in order of first appearance. The longest description wins.
func CompileNPCs(scenes []Scene) []CompiledNPC {
	var out []CompiledNPC
	index := map[string]int{}
	for _, sc := range scenes {
		if sc.Status != SceneConfirmed || sc.Draft == nil {
			continue
		}
		for _, m := range sc.Draft.Entities.NPCs {
			key := Slug(m.Name)
			if key == "" {
				continue
			}
			i, seen := index[key]
			if !seen {
				index[key] = len(out)
				out = append(out, CompiledNPC{
					ID:          "npc-" + key,
					Name:        strings.TrimSpace(m.Name),
					Role:        m.Kind,
					Description: m.Description,
					SceneIDs:    []string{sc.ID()},
				})
				continue
			}
			n := &out[i]
			if len(m.Description) > len(n.Description) {
				n.Description = m.Description
			}
			if n.Role == "" {
				n.Role = m.Kind
			}
			if n.SceneIDs[len(n.SceneIDs)-1] != sc.ID() {
				n.SceneIDs = append(n.SceneIDs, sc.ID())
			}
		}
	}
	return out
}

// MentionedAdversaries lists adversary mentions across drafted scenes,
// deduplicated by name.
func MentionedAdversaries(scenes []Scene) []EntityMention {
	return collectMentions(scenes, func(e ExtractedEntities) []EntityMention { return e.Adversaries })
}

// MentionedItems lists item mentions across drafted scenes, deduplicated by name.
func MentionedItems(scenes []Scene) []EntityMention {
	return collectMentions(scenes, func(e ExtractedEntities) []EntityMention { return e.Items })
}

func collectMentions(scenes []Scene, pick func(ExtractedEntities) []EntityMention) []EntityMention {
	var out []EntityMention
	seen := map[string]bool{}
	for _, sc := range scenes {
		if sc.Draft == nil {
			continue
		}
		for _, m := range pick(sc.Draft.Entities) {
			key := Slug(m.Name)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}

// Slug lowercases s and joins its letters and digits with single dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
