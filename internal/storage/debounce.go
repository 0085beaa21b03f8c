package storage

import (
	"log"
	"sync"
	"time"

	"forge/internal/chat"
	"forge/internal/snapshot"
)

// DefaultSaveDelay is how long the saver waits for more changes before
// writing.
const DefaultSaveDelay = 2500 * time.Millisecond

type pendingSave struct {
	snap     snapshot.Snapshot
	messages []chat.Message
}

// Saver 防抖持久化
// Saver coalesces saves. Schedule records the latest state of a session and
// arms a timer; when it fires, every pending session is written once. A failed
// write is logged and dropped: the next Schedule queues it again.
type Saver struct {
	store  Store
	delay  time.Duration
	logger *log.Logger

	// writeMu orders batches: a batch is taken and written under it, so an
	// older batch never lands after a newer one.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]pendingSave
	timer   *time.Timer
	closed  bool
}

// NewSaver creates a saver writing to store. A non-positive delay uses
// DefaultSaveDelay; a nil logger uses log.Default.
func NewSaver(store Store, delay time.Duration, logger *log.Logger) *Saver {
	if delay <= 0 {
		delay = DefaultSaveDelay
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Saver{store: store, delay: delay, logger: logger, pending: map[string]pendingSave{}}
}

// Schedule queues snap and its message log for the next write.
func (s *Saver) Schedule(snap snapshot.Snapshot, messages []chat.Message) {
	if s == nil || snap.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[snap.ID] = pendingSave{snap: snap, messages: append([]chat.Message(nil), messages...)}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.fire)
	}
}

func (s *Saver) fire() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	batch := s.pending
	s.pending = map[string]pendingSave{}
	s.timer = nil
	s.mu.Unlock()
	s.write(batch)
}

func (s *Saver) write(batch map[string]pendingSave) {
	for id, p := range batch {
		if err := s.store.SaveSnapshot(p.snap); err != nil {
			s.logger.Printf("save session %s: %v", id, err)
			continue
		}
		if err := s.store.SaveMessages(id, p.messages); err != nil {
			s.logger.Printf("save messages %s: %v", id, err)
		}
	}
}

// Flush writes everything pending now.
func (s *Saver) Flush() {
	if s == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	batch := s.pending
	s.pending = map[string]pendingSave{}
	s.mu.Unlock()
	s.write(batch)
}

// Close flushes and stops accepting saves.
func (s *Saver) Close() {
	if s == nil {
		return
	}
	s.Flush()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
