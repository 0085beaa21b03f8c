// Package storage persists session snapshots and conversation history.
package storage

import (
	"time"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/snapshot"
)

// ErrNotFound is returned when a session id has no stored snapshot.
var ErrNotFound = apperr.New(apperr.KindPersistence, "session not found")

// Store 持久化接口
// Store persists one snapshot and one message log per session.
type Store interface {
	SaveSnapshot(snap snapshot.Snapshot) error
	LoadSnapshot(id string) (snapshot.Snapshot, error)
	ListSessions() ([]SessionMeta, error)
	DeleteSession(id string) error

	SaveMessages(sessionID string, messages []chat.Message) error
	AppendMessages(sessionID string, startSeq int, messages []chat.Message) error
	LoadMessages(sessionID string) ([]chat.Message, error)

	Close() error
}

// SessionMeta is the listing row of a stored session.
type SessionMeta struct {
	ID            string    `json:"id" yaml:"id"`
	AdventureName string    `json:"adventureName" yaml:"adventureName"`
	Stage         string    `json:"stage" yaml:"stage"`
	CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt"`
}
