// Package orderedset provides an insertion-ordered set of strings that
// serializes as a JSON array.
package orderedset

import (
	"encoding/json"
	"slices"
)

// Set 保持插入顺序的字符串集合；零值可用
// Set is an insertion-ordered string set; the zero value is empty and ready to use.
type Set struct {
	items []string
}

// New builds a set from ids, dropping duplicates and keeping first occurrence.
func New(ids ...string) Set {
	var s Set
	for _, id := range ids {
		s = s.Add(id)
	}
	return s
}

// Has reports membership.
func (s Set) Has(id string) bool {
	return slices.Contains(s.items, id)
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.items)
}

// Add returns a set containing id. Adding an existing member returns s unchanged.
func (s Set) Add(id string) Set {
	if id == "" || s.Has(id) {
		return s
	}
	items := make([]string, len(s.items), len(s.items)+1)
	copy(items, s.items)
	return Set{items: append(items, id)}
}

// Remove returns a set without id.
func (s Set) Remove(id string) Set {
	idx := slices.Index(s.items, id)
	if idx < 0 {
		return s
	}
	items := make([]string, 0, len(s.items)-1)
	items = append(items, s.items[:idx]...)
	items = append(items, s.items[idx+1:]...)
	return Set{items: items}
}

// Items returns a copy of the members in insertion order.
func (s Set) Items() []string {
	return append([]string(nil), s.items...)
}

// Retain returns the subset whose members satisfy keep, preserving order.
func (s Set) Retain(keep func(string) bool) Set {
	out := make([]string, 0, len(s.items))
	for _, id := range s.items {
		if keep(id) {
			out = append(out, id)
		}
	}
	return Set{items: out}
}

// ContainsAll reports whether every id is a member.
func (s Set) ContainsAll(ids []string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as an ordered array; an empty set encodes as [].
func (s Set) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON decodes an array, dropping duplicates and empty ids.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = New(ids...)
	return nil
}

// MarshalYAML encodes the set as a plain sequence.
func (s Set) MarshalYAML() (any, error) {
	if s.items == nil {
		return []string{}, nil
	}
	return s.items, nil
}
