// Package editor holds the live editing session: the board store that is the
// single mutation boundary, the auto-save scheduler, and the collaboration
// channel. One Session exists per open board.
package editor

import (
	"errors"
	"sync"

	"wanderboard/api/internal/board"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoBoard          = errors.New("no board loaded")
)

// Op is one canvas or collaboration transform: it receives the current board
// and returns the replacement. Ops must not retain or mutate their input.
type Op func(board.Board) (board.Board, error)

// Store holds the authoritative in-memory board for a session. All mutations
// flow through Dispatch, which validates results before replacing the held
// board, so every producer (UI, collaboration, AI) shares one
// invariant-checking boundary.
type Store struct {
	mu          sync.Mutex
	board       board.Board
	loaded      bool
	dirty       bool
	version     uint64
	subscribers []func(board.Board)
	onMutate    func()
}

func NewStore() *Store {
	return &Store{}
}

// OnMutate registers the scheduler hook invoked after every accepted
// mutation. Must be set before the store is shared.
func (s *Store) OnMutate(fn func()) {
	s.onMutate = fn
}

// LoadSnapshot replaces the held board wholesale from a server snapshot.
// There is no field-level merge; later edits are layered on top.
func (s *Store) LoadSnapshot(b board.Board) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.board = b.Clone()
	s.loaded = true
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Dispatch runs a geometry-mutating operation for the given user. Viewers
// are rejected before the op runs; an op result violating the model
// invariants is rejected with the store state unchanged.
func (s *Store) Dispatch(userID string, op Op) (board.Board, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return board.Board{}, ErrNoBoard
	}
	if !CanEdit(s.board, userID) {
		s.mu.Unlock()
		return board.Board{}, ErrPermissionDenied
	}
	return s.applyAndNotify(op)
}

// Apply runs an operation without a capability check. Used for mutations the
// caller has already authorized (server reconciliation, owner bootstrap).
func (s *Store) Apply(op Op) (board.Board, error) {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return board.Board{}, ErrNoBoard
	}
	return s.applyAndNotify(op)
}

// applyAndNotify requires s.mu held on entry and releases it before invoking
// observers, so a subscriber may call back into the store.
func (s *Store) applyAndNotify(op Op) (board.Board, error) {
	next, err := op(s.board.Clone())
	if err != nil {
		s.mu.Unlock()
		return board.Board{}, err
	}
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return board.Board{}, err
	}
	s.board = next
	s.dirty = true
	s.version++
	snapshot := s.board.Clone()
	subscribers := append(([]func(board.Board))(nil), s.subscribers...)
	onMutate := s.onMutate
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
	if onMutate != nil {
		onMutate()
	}
	return snapshot, nil
}

// Snapshot returns an independent copy of the current board.
func (s *Store) Snapshot() (board.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return board.Board{}, ErrNoBoard
	}
	return s.board.Clone(), nil
}

// SnapshotVersion returns the current board together with the version it
// reflects, read under one lock. The scheduler pairs the returned version
// with MarkClean so a mutation racing a save cannot be marked persisted.
func (s *Store) SnapshotVersion() (board.Board, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return board.Board{}, 0, ErrNoBoard
	}
	return s.board.Clone(), s.version, nil
}

// Subscribe registers an observer called with a snapshot after each accepted
// mutation.
func (s *Store) Subscribe(fn func(board.Board)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Version increments on every accepted mutation. The scheduler uses it to
// detect edits that raced a save request.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Store) MarkDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// MarkClean records a completed persist, but only if no mutation has been
// accepted since the given version; a save snapshot raced by newer edits
// must not hide them from the next flush.
func (s *Store) MarkClean(version uint64) {
	s.mu.Lock()
	if s.version == version {
		s.dirty = false
	}
	s.mu.Unlock()
}
