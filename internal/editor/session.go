package editor

import (
	"context"
	"sync"
	"time"

	"wanderboard/api/internal/board"
)

// Persistence is everything a session needs from the board persistence
// service.
type Persistence interface {
	Saver
	CollabService
}

// Session bundles the store, scheduler, and collaboration channel for one
// open board. It lives from editor open to editor close; Close flushes any
// unsaved state before the session is destroyed.
type Session struct {
	BoardID   string
	Store     *Store
	Scheduler *Scheduler
	Channel   *Channel

	mu       sync.Mutex
	lastUsed time.Time
}

// NewSession wires a session around a server snapshot.
func NewSession(b board.Board, svc Persistence, quiet time.Duration) (*Session, error) {
	store := NewStore()
	if err := store.LoadSnapshot(b); err != nil {
		return nil, err
	}
	scheduler := NewScheduler(store, svc, b.ID, quiet)
	store.OnMutate(scheduler.OnMutation)
	return &Session{
		BoardID:   b.ID,
		Store:     store,
		Scheduler: scheduler,
		Channel:   NewChannel(store, svc, b.ID),
		lastUsed:  time.Now(),
	}, nil
}

// Touch records activity for idle-session collection.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// IdleSince reports the last activity time.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Close flushes pending unsaved state. The in-memory board is discarded by
// the caller dropping the session.
func (s *Session) Close(ctx context.Context) error {
	return s.Scheduler.Flush(ctx)
}
