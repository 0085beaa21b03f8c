package storage

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if _, err := ulid.ParseStrict(id); err != nil {
		t.Fatalf("NewSessionID format unexpected: %q: %v", id, err)
	}
	id2 := NewSessionID()
	if id == id2 {
		t.Fatal("NewSessionID should produce different ids")
	}
	if id2 <= id {
		t.Fatalf("ids not monotonic: %s then %s", id, id2)
	}
}
