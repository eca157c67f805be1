package editor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"wanderboard/api/internal/board"
)

// Saver is the slice of the persistence service the scheduler needs.
type Saver interface {
	AutoSave(ctx context.Context, boardID string, elements []board.Element, metadata board.Metadata) error
	UpdateBoard(ctx context.Context, boardID string, b board.Board) (board.Board, error)
}

// Scheduler debounces persistence. It is a two-state machine: Idle (no
// timer) and PendingFlush (one armed timer). Every store mutation cancels
// any armed timer and starts a fresh one, so a flush only fires after the
// quiet period passes without edits.
type Scheduler struct {
	store   *Store
	saver   Saver
	boardID string
	quiet   time.Duration

	mu    sync.Mutex
	timer *time.Timer // nil means Idle
	seq   uint64      // latest issued save sequence
}

func NewScheduler(store *Store, saver Saver, boardID string, quiet time.Duration) *Scheduler {
	return &Scheduler{store: store, saver: saver, boardID: boardID, quiet: quiet}
}

// OnMutation (re)arms the debounce timer. Wired to Store.OnMutate.
func (s *Scheduler) OnMutation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.flush)
}

// Pending reports whether a flush is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// flush runs on timer expiry: transition to Idle, persist elements and
// metadata, and swallow (log only) any failure. Auto-save is fire and
// forget; the next mutation schedules the next attempt.
func (s *Scheduler) flush() {
	s.mu.Lock()
	s.timer = nil
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	snapshot, version, err := s.store.SnapshotVersion()
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.saver.AutoSave(ctx, s.boardID, snapshot.Elements, snapshot.Metadata); err != nil {
		log.Printf("editor: auto-save board %s failed (seq %d): %v", s.boardID, seq, err)
		return
	}
	s.store.MarkClean(version)
}

// SaveNow performs an explicit full save, cancelling any pending auto-save
// so a late debounced write cannot clobber the explicit result. The
// server-confirmed board is applied back to the store only if this request
// is still the newest one and no local edit raced it; superseded responses
// are discarded rather than letting a stale payload overwrite newer state.
func (s *Scheduler) SaveNow(ctx context.Context) (board.Board, error) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	snapshot, version, err := s.store.SnapshotVersion()
	if err != nil {
		return board.Board{}, err
	}

	saved, err := s.saver.UpdateBoard(ctx, s.boardID, snapshot)
	if err != nil {
		return board.Board{}, fmt.Errorf("save board %s: %w", s.boardID, err)
	}

	s.mu.Lock()
	stale := seq != s.seq
	s.mu.Unlock()
	if stale || s.store.Version() != version {
		// Last write wins at the network layer; locally the newer state stays.
		return snapshot, nil
	}
	if err := s.store.LoadSnapshot(saved); err != nil {
		log.Printf("editor: server returned invalid board %s: %v", s.boardID, err)
		return snapshot, nil
	}
	return saved, nil
}

// Flush forces an immediate auto-save style persist if anything is dirty.
// Used when the editing session closes.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if !s.store.Dirty() {
		return nil
	}
	snapshot, version, err := s.store.SnapshotVersion()
	if err != nil {
		return err
	}
	if err := s.saver.AutoSave(ctx, s.boardID, snapshot.Elements, snapshot.Metadata); err != nil {
		return fmt.Errorf("flush board %s: %w", s.boardID, err)
	}
	s.store.MarkClean(version)
	return nil
}
