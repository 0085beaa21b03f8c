package catalog

import "testing"

func TestFindItemIsKeyedByCategoryAndName(t *testing.T) {
	relic, ok := FindItem("relic", "ember crown")
	if !ok {
		t.Fatal("relic not found")
	}
	loot, ok := FindItem("LOOT", "Ember Crown")
	if !ok {
		t.Fatal("loot not found")
	}
	if relic.Description == loot.Description {
		t.Fatal("same name in two categories resolved to one item")
	}
	if _, ok := FindItem("weapon", "Ember Crown"); ok {
		t.Fatal("unexpected match in wrong category")
	}
}

func TestAdversaryFilters(t *testing.T) {
	if got := Adversaries(3, ""); len(got) != 2 {
		t.Fatalf("tier 3=%v", got)
	}
	if got := Adversaries(0, "wolf"); len(got) != 1 || got[0].ID != "dire-wolf" {
		t.Fatalf("query=%v", got)
	}
	a, ok := FindAdversary("Dire Wolf")
	if !ok || a.Selection(2).Quantity != 2 {
		t.Fatalf("find=%+v", a)
	}
}
