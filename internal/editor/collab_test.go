package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wanderboard/api/internal/board"
)

type fakeCollabService struct {
	mu            sync.Mutex
	collaborators []board.Collaborator
	messages      []board.Message
	collabErr     error
	messageErr    error
}

func (f *fakeCollabService) AddCollaborator(_ context.Context, _ string, email string, role board.Role) ([]board.Collaborator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.collabErr != nil {
		return nil, f.collabErr
	}
	f.collaborators = append(f.collaborators, board.Collaborator{
		ID:     "usr_" + email,
		Name:   "Confirmed " + email,
		Email:  email,
		Role:   role,
		Status: board.StatusOffline,
	})
	return append([]board.Collaborator(nil), f.collaborators...), nil
}

func (f *fakeCollabService) AddMessage(_ context.Context, _ string, msg board.Message) ([]board.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messageErr != nil {
		return nil, f.messageErr
	}
	// The server may rewrite ids and reorder; the channel must trust this
	// list over its optimistic local append.
	msg.ID = "msg_server_" + msg.ID
	f.messages = append(f.messages, msg)
	return append([]board.Message(nil), f.messages...), nil
}

func channelUnderTest(t *testing.T) (*Channel, *Store, *fakeCollabService) {
	t.Helper()
	store := loadedStore(t)
	snap, _ := store.Snapshot()
	svc := &fakeCollabService{collaborators: snap.Collaborators}
	return NewChannel(store, svc, "brd_session"), store, svc
}

func TestInviteReplacesListWithServerResponse(t *testing.T) {
	ch, store, _ := channelUnderTest(t)

	out, err := ch.Invite(context.Background(), "usr_owner", "nuno@example.com", board.RoleEditor)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if len(out.Collaborators) != 4 {
		t.Fatalf("expected 4 collaborators, got %d", len(out.Collaborators))
	}
	added := out.Collaborators[3]
	if added.Name != "Confirmed nuno@example.com" {
		t.Errorf("collaborator name must come from the server, got %q", added.Name)
	}
	got, _ := store.Snapshot()
	if len(got.Collaborators) != 4 {
		t.Error("server-confirmed list not merged into the store")
	}
}

func TestInviteRejectedForViewer(t *testing.T) {
	ch, store, _ := channelUnderTest(t)
	_, err := ch.Invite(context.Background(), "usr_viewer", "nuno@example.com", board.RoleEditor)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	got, _ := store.Snapshot()
	if len(got.Collaborators) != 3 {
		t.Error("board changed despite denial")
	}
}

func TestInviteRejectsOwnerRole(t *testing.T) {
	ch, _, _ := channelUnderTest(t)
	_, err := ch.Invite(context.Background(), "usr_owner", "nuno@example.com", board.RoleOwner)
	if !errors.Is(err, board.ErrInvalidBoard) {
		t.Fatalf("ownership is assigned at creation and never by invite, got %v", err)
	}
}

func TestPostMessageOptimisticThenReconciled(t *testing.T) {
	ch, store, _ := channelUnderTest(t)

	appended := make(chan board.Board, 4)
	store.Subscribe(func(b board.Board) { appended <- b })

	confirmed, err := ch.PostMessage(context.Background(), "usr_viewer", "love this palette")
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if len(confirmed) != 1 {
		t.Fatalf("expected one confirmed message, got %d", len(confirmed))
	}
	if confirmed[0].Sender != "Ines" || confirmed[0].SenderID != "usr_viewer" {
		t.Errorf("sender identity wrong: %+v", confirmed[0])
	}

	// First notification carries the optimistic append, second the
	// server-confirmed replacement.
	first := <-appended
	second := <-appended
	if len(first.Messages) != 1 || len(second.Messages) != 1 {
		t.Fatal("expected exactly one message in both phases")
	}
	if second.Messages[0].ID == first.Messages[0].ID {
		t.Error("reconciliation should have replaced the optimistic message with the server copy")
	}

	got, _ := store.Snapshot()
	if got.Messages[0].ID != confirmed[0].ID {
		t.Error("store does not hold the server-confirmed list")
	}
}

func TestPostMessageRejectsNonCollaborator(t *testing.T) {
	ch, _, _ := channelUnderTest(t)
	_, err := ch.PostMessage(context.Background(), "usr_stranger", "hi")
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestPostMessageViewerAllowed(t *testing.T) {
	ch, _, _ := channelUnderTest(t)
	// Viewers cannot mutate geometry but can read and write chat.
	if _, err := ch.PostMessage(context.Background(), "usr_viewer", "nice"); err != nil {
		t.Fatalf("viewer chat should be allowed: %v", err)
	}
}

func TestPostMessageTimestampsUTC(t *testing.T) {
	ch, store, _ := channelUnderTest(t)
	before := time.Now().UTC().Add(-time.Second)
	if _, err := ch.PostMessage(context.Background(), "usr_owner", "ping"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	got, _ := store.Snapshot()
	ts := got.Messages[0].Timestamp
	if ts.Before(before) || ts.Location() != time.UTC {
		t.Errorf("timestamp not a recent UTC time: %v", ts)
	}
}

func TestCallStubStateOnly(t *testing.T) {
	ch, _, _ := channelUnderTest(t)
	state := ch.SetCall(CallState{Active: true, Muted: true, VideoOn: true})
	if !state.Active || !state.Muted || !state.VideoOn {
		t.Errorf("call state not tracked: %+v", state)
	}
	state = ch.SetCall(CallState{Active: false, Muted: true, VideoOn: true})
	if state.Muted || state.VideoOn {
		t.Error("ending the call should reset mute and video flags")
	}
	if got := ch.Call(); got != state {
		t.Errorf("Call() = %+v, want %+v", got, state)
	}
}
