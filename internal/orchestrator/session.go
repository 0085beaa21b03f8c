package orchestrator

import (
	"context"
	"slices"
	"strings"
	"sync"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/events"
	"forge/internal/pipeline"
	"forge/internal/snapshot"
	"forge/internal/tools"
)

// Session 单个创作会话的上下文对象
// Session is one authoring session: its snapshot, its conversation and the
// turn currently running. All state is guarded by mu. Tools reach the session
// through the tools.Workspace methods.
type Session struct {
	o        *Orchestrator
	registry *tools.Registry

	mu       sync.Mutex
	snap     snapshot.Snapshot
	messages []chat.Message
	busy     bool
	emitter  *events.Emitter
	cancel   context.CancelFunc
}

func (o *Orchestrator) newSession(snap snapshot.Snapshot, msgs []chat.Message) *Session {
	s := &Session{o: o, snap: snap, messages: slices.Clone(msgs)}
	s.registry = tools.NewRegistry(tools.AdventureTools(s)...)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ID
}

// View returns the current snapshot.
func (s *Session) View() snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Messages returns a copy of the conversation.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Registry returns the tools bound to this session.
func (s *Session) Registry() *tools.Registry { return s.registry }

// Busy reports whether a turn is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Update applies fn under the session lock and queues a save. An error from
// fn leaves the snapshot unchanged.
func (s *Session) Update(fn func(snapshot.Snapshot) (snapshot.Snapshot, error)) (snapshot.Snapshot, error) {
	s.mu.Lock()
	next, err := fn(s.snap)
	if err != nil {
		cur := s.snap
		s.mu.Unlock()
		return cur, err
	}
	s.snap = next
	s.mu.Unlock()
	s.save()
	return next, nil
}

// Generator returns the stage generator.
func (s *Session) Generator() *pipeline.Generator { return s.o.generator }

// PanelUpdate forwards a panel:update to the running turn.
func (s *Session) PanelUpdate(ctx context.Context, panel string, payload any) {
	if em := s.currentEmitter(); em != nil {
		if err := em.PanelUpdate(ctx, panel, payload); err != nil {
			s.o.logger.Printf("session %s: panel %s: %v", s.ID(), panel, err)
		}
	}
}

// UIReady forwards a ui:ready to the running turn.
func (s *Session) UIReady(ctx context.Context, component string, payload any) {
	if em := s.currentEmitter(); em != nil {
		if err := em.UIReady(ctx, component, payload); err != nil {
			s.o.logger.Printf("session %s: ui %s: %v", s.ID(), component, err)
		}
	}
}

func (s *Session) currentEmitter() *events.Emitter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitter
}

// mutate is Update for callers outside a turn: it refuses while one runs.
func (s *Session) mutate(fn func(snapshot.Snapshot) (snapshot.Snapshot, error)) (snapshot.Snapshot, error) {
	if s.Busy() {
		return s.View(), ErrTurnInFlight
	}
	return s.Update(fn)
}

// GoBack returns to the previously visited stage.
func (s *Session) GoBack() (snapshot.Snapshot, error) {
	return s.mutate(func(snap snapshot.Snapshot) (snapshot.Snapshot, error) {
		if !snap.Session.CanGoBack() {
			return snap, apperr.New(apperr.KindValidation, "no previous stage")
		}
		snap.Session = snap.Session.GoToPreviousStage()
		return snap, nil
	})
}

// Rename changes the adventure name.
func (s *Session) Rename(name string) (snapshot.Snapshot, error) {
	return s.mutate(func(snap snapshot.Snapshot) (snapshot.Snapshot, error) {
		snap.AdventureName = strings.TrimSpace(name)
		return snap, nil
	})
}

// Cancel stops the running turn, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) save() {
	if s.o.saver == nil {
		return
	}
	s.mu.Lock()
	snap, msgs := s.snap, slices.Clone(s.messages)
	s.mu.Unlock()
	s.o.saver.Schedule(snap, msgs)
}
