package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/snapshot"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates and initializes a SQLite database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		adventure_name TEXT NOT NULL DEFAULT '',
		stage          TEXT NOT NULL DEFAULT '',
		snapshot       TEXT NOT NULL,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		UNIQUE(session_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- Snapshot Operations ---

// SaveSnapshot inserts or replaces the snapshot of snap.ID.
func (s *SQLiteStore) SaveSnapshot(snap snapshot.Snapshot) error {
	if strings.TrimSpace(snap.ID) == "" {
		return apperr.New(apperr.KindPersistence, "snapshot has no session id")
	}
	now := time.Now().UTC()
	snap.SavedAt = now
	data, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}
	created := snap.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, adventure_name, stage, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			adventure_name=excluded.adventure_name,
			stage=excluded.stage,
			snapshot=excluded.snapshot,
			updated_at=excluded.updated_at`,
		snap.ID, snap.AdventureName, string(snap.CurrentStage), string(data),
		formatTime(created), formatTime(now),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "save snapshot", err)
	}
	return nil
}

// LoadSnapshot reads and migrates the snapshot of id.
func (s *SQLiteStore) LoadSnapshot(id string) (snapshot.Snapshot, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return snapshot.Snapshot{}, apperr.New(apperr.KindValidation, "session id is empty")
	}
	var data string
	err := s.db.QueryRow(`SELECT snapshot FROM sessions WHERE id=?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return snapshot.Snapshot{}, apperr.Wrap(apperr.KindPersistence, "load snapshot", err)
	}
	return snapshot.Decode([]byte(data))
}

// ListSessions returns stored sessions, most recently updated first.
func (s *SQLiteStore) ListSessions() ([]SessionMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, adventure_name, stage, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "list sessions", err)
	}
	defer rows.Close()

	var metas []SessionMeta
	for rows.Next() {
		var meta SessionMeta
		var created, updated string
		if err := rows.Scan(&meta.ID, &meta.AdventureName, &meta.Stage, &created, &updated); err != nil {
			continue
		}
		meta.CreatedAt = parseTime(created)
		meta.UpdatedAt = parseTime(updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// DeleteSession removes a session and its messages.
func (s *SQLiteStore) DeleteSession(id string) error {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id=?`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Message Operations ---

// SaveMessages replaces the message log. Only user and assistant messages are
// stored; tool traffic belongs to a single turn.
func (s *SQLiteStore) SaveMessages(sessionID string, messages []chat.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=?", sessionID); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "delete old messages", err)
	}
	if err := insertMessages(tx, sessionID, 0, messages); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendMessages stores messages starting at sequence number startSeq.
func (s *SQLiteStore) AppendMessages(sessionID string, startSeq int, messages []chat.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=? AND seq>=?", sessionID, startSeq); err != nil {
		return apperr.Wrap(apperr.KindPersistence, "trim messages", err)
	}
	if err := insertMessages(tx, sessionID, startSeq, messages); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessages(tx *sql.Tx, sessionID string, startSeq int, messages []chat.Message) error {
	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, seq, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Wrap(apperr.KindPersistence, "prepare insert", err)
	}
	defer stmt.Close()

	seq := startSeq
	now := time.Now().UTC()
	for _, msg := range messages {
		if !chat.IsConversational(msg.Role) {
			continue
		}
		at := msg.Timestamp
		if at.IsZero() {
			at = now
		}
		if _, err := stmt.Exec(sessionID, seq, msg.Role, msg.Content, formatTime(at)); err != nil {
			return apperr.Wrap(apperr.KindPersistence, fmt.Sprintf("insert message %d", seq), err)
		}
		seq++
	}
	return nil
}

// LoadMessages returns the message log in order.
func (s *SQLiteStore) LoadMessages(sessionID string) ([]chat.Message, error) {
	rows, err := s.db.Query(`
		SELECT role, content, created_at
		FROM messages WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, "query messages", err)
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var msg chat.Message
		var created string
		if err := rows.Scan(&msg.Role, &msg.Content, &created); err != nil {
			continue
		}
		msg.Timestamp = parseTime(created)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// --- Helpers ---

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
