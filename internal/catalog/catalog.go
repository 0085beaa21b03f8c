// Package catalog is the small built-in reference list the adversary and item
// selection tools choose from.
package catalog

import (
	"slices"
	"strings"

	"forge/internal/pipeline"
)

// Adversary is a catalog adversary.
type Adversary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Tier        int    `json:"tier"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// Item is a catalog item. Names repeat across categories.
type Item struct {
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var adversaries = []Adversary{
	{ID: "bandit-cutthroat", Name: "Bandit Cutthroat", Tier: 1, Role: "skulk", Description: "Road thief who strikes from cover and flees when outnumbered."},
	{ID: "cave-ooze", Name: "Cave Ooze", Tier: 1, Role: "bruiser", Description: "Acidic mass that dissolves anything it engulfs."},
	{ID: "cultist-acolyte", Name: "Cultist Acolyte", Tier: 1, Role: "minion", Description: "Zealot who fights in packs and dies for the cause."},
	{ID: "dire-wolf", Name: "Dire Wolf", Tier: 1, Role: "standard", Description: "Pack hunter that drags targets away from allies."},
	{ID: "giant-spider", Name: "Giant Spider", Tier: 2, Role: "skulk", Description: "Web-spinner that poisons and restrains."},
	{ID: "mercenary-captain", Name: "Mercenary Captain", Tier: 2, Role: "leader", Description: "Veteran who commands hired blades and bargains when losing."},
	{ID: "stone-sentinel", Name: "Stone Sentinel", Tier: 2, Role: "solo", Description: "Animated guardian bound to a single doorway."},
	{ID: "hexbound-witch", Name: "Hexbound Witch", Tier: 3, Role: "support", Description: "Curse-weaver who turns allies against each other."},
	{ID: "young-dragon", Name: "Young Dragon", Tier: 3, Role: "solo", Description: "Territorial wyrm with a breath weapon and a long memory."},
	{ID: "demon-of-ash", Name: "Demon of Ash", Tier: 4, Role: "solo", Description: "Fire-wreathed fiend that leaves cinders where it walks."},
}

var items = []Item{
	{Category: "consumable", Name: "Minor Health Potion", Description: "Restores a small amount of health."},
	{Category: "consumable", Name: "Smoke Bomb", Description: "Obscures an area for a few moments."},
	{Category: "consumable", Name: "Antidote", Description: "Ends a poison effect."},
	{Category: "weapon", Name: "Silvered Blade", Description: "Harms creatures immune to common steel."},
	{Category: "weapon", Name: "Hunting Bow", Description: "Reliable ranged weapon."},
	{Category: "armor", Name: "Chain Shirt", Description: "Light mail worn under clothing."},
	{Category: "relic", Name: "Compass of the Lost", Description: "Points toward what its holder has lost."},
	{Category: "relic", Name: "Ember Crown", Description: "Warm to the touch; whispers of the old kings."},
	{Category: "loot", Name: "Ember Crown", Description: "A worthless replica sold to pilgrims."},
	{Category: "loot", Name: "Gold Coins", Description: "A purse of coins."},
}

// Adversaries lists the catalog, optionally filtered by tier (0 = any) and a
// case-insensitive name query.
func Adversaries(tier int, query string) []Adversary {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Adversary
	for _, a := range adversaries {
		if tier > 0 && a.Tier != tier {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(a.Name), query) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// FindAdversary looks an adversary up by id or exact name.
func FindAdversary(ref string) (Adversary, bool) {
	ref = strings.TrimSpace(ref)
	i := slices.IndexFunc(adversaries, func(a Adversary) bool {
		return a.ID == ref || strings.EqualFold(a.Name, ref)
	})
	if i < 0 {
		return Adversary{}, false
	}
	return adversaries[i], true
}

// Items lists the catalog, optionally filtered by category and name query.
func Items(category, query string) []Item {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []Item
	for _, it := range items {
		if category != "" && !strings.EqualFold(it.Category, category) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(it.Name), query) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// FindItem looks an item up by (category, name).
func FindItem(category, name string) (Item, bool) {
	key := pipeline.ItemKey(category, name)
	i := slices.IndexFunc(items, func(it Item) bool { return pipeline.ItemKey(it.Category, it.Name) == key })
	if i < 0 {
		return Item{}, false
	}
	return items[i], true
}

// Selection converts a catalog adversary into a pipeline selection.
func (a Adversary) Selection(quantity int) pipeline.SelectedAdversary {
	return pipeline.SelectedAdversary{ID: a.ID, Name: a.Name, Tier: a.Tier, Role: a.Role, Quantity: quantity}
}

// Selection converts a catalog item into a pipeline selection.
func (it Item) Selection(quantity int) pipeline.SelectedItem {
	return pipeline.SelectedItem{Category: it.Category, Name: it.Name, Description: it.Description, Quantity: quantity}
}
