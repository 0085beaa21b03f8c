// Package orchestrator runs authoring sessions: it owns the per-session lock,
// drives chat turns through the model provider and the adventure tools, and
// queues persistence.
package orchestrator

import (
	"fmt"
	"log"
	"sync"
	"time"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/contextmgr"
	"forge/internal/dials"
	"forge/internal/i18n"
	"forge/internal/pipeline"
	"forge/internal/provider"
	"forge/internal/session"
	"forge/internal/snapshot"
	"forge/internal/storage"
)

// ErrTurnInFlight is returned when a session already has a turn running.
var ErrTurnInFlight = apperr.New(apperr.KindBusy, "a turn is already in progress for this session")

// Options configures an Orchestrator. Provider is required; the rest have
// defaults.
type Options struct {
	Provider provider.Provider
	// Generator defaults to one backed by Provider.
	Generator *pipeline.Generator
	Assembler *contextmgr.Assembler
	Store     storage.Store
	// Saver debounces writes to Store. Nil disables persistence.
	Saver       *storage.Saver
	MaxSteps    int
	EventBuffer int
	Logger      *log.Logger
	Now         func() time.Time
}

// Orchestrator 管理所有创作会话
// Orchestrator owns the live sessions. Sessions are loaded from the store on
// first use and kept in memory afterwards.
type Orchestrator struct {
	provider    provider.Provider
	generator   *pipeline.Generator
	assembler   *contextmgr.Assembler
	store       storage.Store
	saver       *storage.Saver
	maxSteps    int
	eventBuffer int
	logger      *log.Logger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:    opts.Provider,
		generator:   opts.Generator,
		assembler:   opts.Assembler,
		store:       opts.Store,
		saver:       opts.Saver,
		maxSteps:    opts.MaxSteps,
		eventBuffer: opts.EventBuffer,
		logger:      opts.Logger,
		now:         opts.Now,
		sessions:    map[string]*Session{},
	}
	if o.generator == nil {
		o.generator = pipeline.NewGenerator(opts.Provider)
	}
	if o.assembler == nil {
		o.assembler = contextmgr.NewAssembler(SystemPrompt, contextmgr.NewCompressor(contextmgr.DefaultTokenizer()))
	}
	if o.maxSteps <= 0 {
		o.maxSteps = 24
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// InitSession starts a new session: fresh id, empty conversation seeded with
// the welcome message, stage dial-tuning with setup in history.
func (o *Orchestrator) InitSession(name string) (*Session, error) {
	now := o.now()
	sess := session.Init(storage.NewSessionID(), name, now)
	s := o.newSession(snapshot.New(sess, dials.Defaults(), pipeline.State{}), nil)
	s.messages = []chat.Message{chat.AssistantMessage(welcome(sess.AdventureName), now.UTC())}

	o.mu.Lock()
	o.sessions[sess.ID] = s
	o.mu.Unlock()
	s.save()
	return s, nil
}

func welcome(name string) string {
	if name == "" {
		return i18n.T("session.welcome_untitled")
	}
	return i18n.T("session.welcome", name)
}

// Session returns a live session, loading it from the store when needed.
func (o *Orchestrator) Session(id string) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[id]; ok {
		return s, nil
	}
	if o.store == nil {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	if o.saver != nil {
		o.saver.Flush()
	}
	snap, err := o.store.LoadSnapshot(id)
	if err != nil {
		return nil, err
	}
	msgs, err := o.store.LoadMessages(id)
	if err != nil {
		return nil, err
	}
	s := o.newSession(snap, msgs)
	o.sessions[id] = s
	return s, nil
}

// List returns stored sessions, most recently updated first.
func (o *Orchestrator) List() ([]storage.SessionMeta, error) {
	if o.store == nil {
		return nil, nil
	}
	if o.saver != nil {
		o.saver.Flush()
	}
	return o.store.ListSessions()
}

// Delete drops a session from memory and the store. A session with a turn
// running cannot be deleted.
func (o *Orchestrator) Delete(id string) error {
	o.mu.Lock()
	s, live := o.sessions[id]
	if live && s.Busy() {
		o.mu.Unlock()
		return ErrTurnInFlight
	}
	delete(o.sessions, id)
	o.mu.Unlock()
	if o.store == nil {
		return nil
	}
	if o.saver != nil {
		o.saver.Flush()
	}
	return o.store.DeleteSession(id)
}

// Provider returns the model provider.
func (o *Orchestrator) Provider() provider.Provider { return o.provider }

// Close writes pending saves.
func (o *Orchestrator) Close() {
	if o.saver != nil {
		o.saver.Flush()
	}
}
