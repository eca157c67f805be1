package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wanderboard/api/internal/board"
	"wanderboard/api/internal/util"
)

// CanEdit is the single capability predicate gating geometry mutation.
// Owners and editors may mutate; viewers (and strangers) may only read.
func CanEdit(b board.Board, userID string) bool {
	c, ok := b.Collaborator(userID)
	if !ok {
		return false
	}
	return c.Role == board.RoleOwner || c.Role == board.RoleEditor
}

// CollabService is the slice of the persistence service the channel needs.
// The server owns the authoritative collaborator and message lists.
type CollabService interface {
	AddCollaborator(ctx context.Context, boardID, email string, role board.Role) ([]board.Collaborator, error)
	AddMessage(ctx context.Context, boardID string, msg board.Message) ([]board.Message, error)
}

// CallState tracks the video/voice call capability stub. State is kept for
// UI purposes only; no media transport exists behind it.
type CallState struct {
	Active  bool `json:"active"`
	Muted   bool `json:"muted"`
	VideoOn bool `json:"videoOn"`
}

// Channel manages the collaborator list and chat for one session.
type Channel struct {
	store   *Store
	svc     CollabService
	boardID string

	mu   sync.Mutex
	call CallState
}

func NewChannel(store *Store, svc CollabService, boardID string) *Channel {
	return &Channel{store: store, svc: svc, boardID: boardID}
}

// Invite appends a provisional collaborator entry and then replaces the
// local list with whatever the server returns. Names and avatars are never
// fabricated locally; the provisional entry only carries the email.
func (c *Channel) Invite(ctx context.Context, userID, email string, role board.Role) (board.Board, error) {
	snapshot, err := c.store.Snapshot()
	if err != nil {
		return board.Board{}, err
	}
	if !CanEdit(snapshot, userID) {
		return board.Board{}, ErrPermissionDenied
	}
	if role != board.RoleEditor && role != board.RoleViewer {
		return board.Board{}, fmt.Errorf("%w: cannot invite as %q", board.ErrInvalidBoard, role)
	}

	confirmed, err := c.svc.AddCollaborator(ctx, c.boardID, email, role)
	if err != nil {
		return board.Board{}, fmt.Errorf("invite %s: %w", email, err)
	}
	return c.store.Apply(func(b board.Board) (board.Board, error) {
		b.Collaborators = confirmed
		return b, nil
	})
}

// PostMessage appends the message locally for immediate display, then
// replaces the local message list with the server-confirmed one. The
// reconciliation guards against duplicate or out-of-order sends; local
// state is never trusted as append-only truth.
func (c *Channel) PostMessage(ctx context.Context, userID, text string) ([]board.Message, error) {
	snapshot, err := c.store.Snapshot()
	if err != nil {
		return nil, err
	}
	sender, ok := snapshot.Collaborator(userID)
	if !ok {
		return nil, ErrPermissionDenied
	}

	msg := board.Message{
		ID:        util.NewID("msg"),
		Sender:    sender.Name,
		SenderID:  sender.ID,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Type:      "text",
	}

	// Optimistic append.
	if _, err := c.store.Apply(func(b board.Board) (board.Board, error) {
		b.Messages = append(b.Messages, msg)
		return b, nil
	}); err != nil {
		return nil, err
	}

	confirmed, err := c.svc.AddMessage(ctx, c.boardID, msg)
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}

	// Replace on response.
	if _, err := c.store.Apply(func(b board.Board) (board.Board, error) {
		b.Messages = confirmed
		return b, nil
	}); err != nil {
		return nil, err
	}
	return confirmed, nil
}

// Call returns the current call stub state.
func (c *Channel) Call() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call
}

// SetCall updates the call stub state.
func (c *Channel) SetCall(state CallState) CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !state.Active {
		state.Muted = false
		state.VideoOn = false
	}
	c.call = state
	return c.call
}
