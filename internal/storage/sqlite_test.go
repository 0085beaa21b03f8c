package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"forge/internal/chat"
	"forge/internal/dials"
	"forge/internal/pipeline"
	"forge/internal/session"
	"forge/internal/snapshot"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSnapshot(id, name string) snapshot.Snapshot {
	sess := session.Init(id, name, time.Now())
	return snapshot.New(sess, dials.Defaults(), pipeline.State{})
}

func TestSQLiteStore_SnapshotCRUD(t *testing.T) {
	store := newTestStore(t)

	snap := testSnapshot("sess-1", "The Sunken Bell")
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	loaded, err := store.LoadSnapshot("sess-1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if loaded.AdventureName != "The Sunken Bell" || loaded.CurrentStage != session.StageDialTuning {
		t.Fatalf("loaded=%+v", loaded.Session)
	}

	snap.Session = snap.Session.SetStage(session.StageFrame)
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot update: %v", err)
	}
	metas, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(metas) != 1 || metas[0].Stage != "frame" || metas[0].CreatedAt.IsZero() {
		t.Fatalf("metas=%+v", metas)
	}

	if err := store.DeleteSession("sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.LoadSnapshot("sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load after delete err=%v", err)
	}
}

func TestSQLiteStore_ListOrder(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		if err := store.SaveSnapshot(testSnapshot(id, id)); err != nil {
			t.Fatal(err)
		}
	}
	_ = store.SaveSnapshot(testSnapshot("a", "a again"))
	metas, err := store.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 || metas[0].ID != "a" {
		t.Fatalf("metas=%+v", metas)
	}
}

func TestSQLiteStore_Messages(t *testing.T) {
	store := newTestStore(t)
	if err := store.SaveSnapshot(testSnapshot("sess-msg", "x")); err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	messages := []chat.Message{
		chat.AssistantMessage("Welcome", at),
		chat.UserMessage("hello", at.Add(time.Second)),
		{Role: chat.RoleTool, ToolCallID: "call_1", Content: "ok"},
		{Role: chat.RoleAssistant, Content: "hi there"},
	}
	if err := store.SaveMessages("sess-msg", messages); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}
	loaded, err := store.LoadMessages("sess-msg")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("LoadMessages count=%d, want 3 (tool message skipped)", len(loaded))
	}
	if !loaded[1].Timestamp.Equal(at.Add(time.Second)) || loaded[1].Content != "hello" {
		t.Fatalf("msg[1]=%+v", loaded[1])
	}

	if err := store.AppendMessages("sess-msg", 3, []chat.Message{{Role: chat.RoleUser, Content: "next"}}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}
	loaded, _ = store.LoadMessages("sess-msg")
	if len(loaded) != 4 || loaded[3].Content != "next" {
		t.Fatalf("after append=%+v", loaded)
	}

	if err := store.SaveMessages("sess-msg", []chat.Message{{Role: chat.RoleUser, Content: "only one"}}); err != nil {
		t.Fatal(err)
	}
	loaded, _ = store.LoadMessages("sess-msg")
	if len(loaded) != 1 {
		t.Fatalf("overwrite count=%d, want 1", len(loaded))
	}
}

func TestSQLiteStore_LoadNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.LoadSnapshot("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v", err)
	}
}

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}
