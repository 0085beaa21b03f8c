package orderedset

import (
	"encoding/json"
	"testing"
)

func TestSetAddIsIdempotent(t *testing.T) {
	s := New("a", "b")
	s2 := s.Add("a")
	if s2.Len() != 2 {
		t.Fatalf("len=%d, want 2", s2.Len())
	}
	s3 := s2.Add("c")
	if s.Len() != 2 {
		t.Fatalf("original mutated: len=%d", s.Len())
	}
	if got := s3.Items(); len(got) != 3 || got[2] != "c" {
		t.Fatalf("items=%v", got)
	}
}

func TestSetRemove(t *testing.T) {
	s := New("a", "b", "c").Remove("b")
	if s.Has("b") || s.Len() != 2 {
		t.Fatalf("items=%v", s.Items())
	}
	if s.Remove("zzz").Len() != 2 {
		t.Fatalf("removing absent member changed set")
	}
}

func TestSetJSONRoundTripKeepsOrder(t *testing.T) {
	var zero Set
	data, err := json.Marshal(zero)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Fatalf("empty set json=%s", data)
	}

	var s Set
	if err := json.Unmarshal([]byte(`["z","a","z",""]`), &s); err != nil {
		t.Fatal(err)
	}
	got := s.Items()
	if len(got) != 2 || got[0] != "z" || got[1] != "a" {
		t.Fatalf("items=%v", got)
	}
}

func TestSetRetain(t *testing.T) {
	s := New("a", "b", "c").Retain(func(id string) bool { return id != "a" })
	if s.Has("a") || !s.ContainsAll([]string{"b", "c"}) {
		t.Fatalf("items=%v", s.Items())
	}
}
