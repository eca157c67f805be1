package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"wanderboard/api/internal/auth"
	"wanderboard/api/internal/board"
	"wanderboard/api/internal/config"
	"wanderboard/api/internal/editor"
	"wanderboard/api/internal/export"
	"wanderboard/api/internal/genai"
	"wanderboard/api/internal/media"
	"wanderboard/api/internal/search"
	"wanderboard/api/internal/store"
	"wanderboard/api/internal/util"
)

// Session identifies the authenticated user behind a request.
type Session struct {
	UserID   string
	UserName string
	Email    string
}

type CreateBoardInput struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Themes       []string `json:"themes"`
	Activities   []string `json:"activities"`
	ColorPalette []string `json:"colorPalette"`
	// Preferences, when present, builds the board through the AI adapter
	// instead of the fields above.
	Preferences *genai.Preferences `json:"preferences"`
}

type UpdateBoardInput struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	Settings    *board.Settings `json:"settings"`
}

type ElementActionInput struct {
	Action    string             `json:"action"`
	Type      board.ElementType  `json:"type"`
	Patch     board.ElementPatch `json:"patch"`
	DX        float64            `json:"dx"`
	DY        float64            `json:"dy"`
	Width     float64            `json:"width"`
	Height    float64            `json:"height"`
	Rotation  int                `json:"rotation"`
	Direction board.Direction    `json:"direction"`
	Visible   bool               `json:"visible"`
}

type ExportInput struct {
	Format  string `json:"format"`
	Quality int    `json:"quality"`
}

type dataStore interface {
	Ping(context.Context) error
	CreateBoard(context.Context, board.Board, board.Collaborator) (board.Board, error)
	GetBoard(context.Context, string) (board.Board, error)
	ListBoards(context.Context, string, int) ([]store.BoardSummary, error)
	UpdateBoard(context.Context, string, board.Board) (board.Board, error)
	AutoSave(context.Context, string, []board.Element, board.Metadata) error
	DeleteBoard(context.Context, string) error
	AddCollaborator(context.Context, string, string, board.Role) ([]board.Collaborator, error)
	AddMessage(context.Context, string, board.Message) ([]board.Message, error)
}

type searchIndex interface {
	Healthy() bool
	IndexBoard(search.BoardDocument)
	RemoveBoard(string)
	Search(string, int) ([]string, error)
}

type presenceTracker interface {
	Heartbeat(ctx context.Context, boardID, userID string) error
	Leave(ctx context.Context, boardID, userID string) error
	Statuses(ctx context.Context, boardID string, userIDs []string) (map[string]board.PresenceStatus, error)
}

type mediaStore interface {
	UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, media.Dimensions, error)
	StoreExport(ctx context.Context, boardID, format, contentType string, data []byte) (string, error)
}

type boardGenerator interface {
	Generate(ctx context.Context, p genai.Preferences) (board.Board, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	search    searchIndex
	presence  presenceTracker
	media     mediaStore
	generator boardGenerator
	exportFn  func(board.Board, export.Request) (*export.Result, error)

	mu       sync.Mutex
	sessions map[string]*editor.Session
}

func New(cfg config.Config, dataStore dataStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		exportFn: export.Snapshot,
		sessions: make(map[string]*editor.Session),
	}
}

func (s *Service) WithSearch(idx searchIndex) *Service     { s.search = idx; return s }
func (s *Service) WithPresence(p presenceTracker) *Service { s.presence = p; return s }
func (s *Service) WithMedia(m mediaStore) *Service         { s.media = m; return s }
func (s *Service) WithGenerator(g boardGenerator) *Service { s.generator = g; return s }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login is the dev-grade identity flow: any name gets a signed token. The
// travel app fronts this with its own account system.
func (s *Service) Login(ctx context.Context, name, email string) (string, Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "name is required", nil)
	}
	session := Session{
		UserID:   util.NewID("usr"),
		UserName: name,
		Email:    strings.TrimSpace(email),
	}
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		UserID: session.UserID,
		Name:   session.UserName,
		Email:  session.Email,
		Exp:    time.Now().Add(s.cfg.TokenTTL).Unix(),
	})
	if err != nil {
		return "", Session{}, err
	}
	return token, session, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.UserID, UserName: claims.Name, Email: claims.Email}, nil
}

func (s *Service) CreateBoard(ctx context.Context, session Session, input CreateBoardInput) (board.Board, error) {
	var b board.Board
	if input.Preferences != nil {
		generated, err := s.generateBoard(ctx, *input.Preferences)
		if err != nil {
			return board.Board{}, err
		}
		b = generated
	} else {
		if strings.TrimSpace(input.Title) == "" {
			return board.Board{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "title is required", nil)
		}
		now := time.Now().UTC()
		b = board.Board{
			ID:           util.NewID("brd"),
			Title:        input.Title,
			Description:  input.Description,
			Themes:       input.Themes,
			Activities:   input.Activities,
			ColorPalette: input.ColorPalette,
			Elements:     []board.Element{},
			Settings:     board.DefaultSettings(),
			Messages:     []board.Message{},
			Metadata:     board.Metadata{CreatedAt: now, LastModified: now},
		}
	}

	owner := board.Collaborator{
		ID:     session.UserID,
		Name:   session.UserName,
		Email:  session.Email,
		Role:   board.RoleOwner,
		Status: board.StatusOffline,
	}
	created, err := s.store.CreateBoard(ctx, b, owner)
	if err != nil {
		return board.Board{}, err
	}
	s.indexBoard(created)
	return created, nil
}

func (s *Service) generateBoard(ctx context.Context, prefs genai.Preferences) (board.Board, error) {
	if s.generator == nil {
		return genai.WrapPayload(genai.Fallback(prefs)), nil
	}
	b, err := s.generator.Generate(ctx, prefs)
	if err != nil {
		return board.Board{}, domainError(http.StatusBadGateway, "GENERATION_FAILED", "AI generation failed", nil)
	}
	return b, nil
}

// GetBoard prefers the live session snapshot so readers see unsaved edits.
func (s *Service) GetBoard(ctx context.Context, boardID string) (board.Board, error) {
	if live := s.liveSession(boardID); live != nil {
		snapshot, err := live.Store.Snapshot()
		if err == nil {
			return s.overlayPresence(ctx, snapshot), nil
		}
	}
	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return board.Board{}, err
	}
	return s.overlayPresence(ctx, b), nil
}

func (s *Service) ListBoards(ctx context.Context, query string, limit int) ([]store.BoardSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query = strings.TrimSpace(query)
	if query != "" && s.search != nil && s.search.Healthy() {
		ids, err := s.search.Search(query, limit)
		if err == nil {
			return s.summariesByID(ctx, ids)
		}
		log.Printf("search degraded, falling back to sql: %v", err)
	}
	return s.store.ListBoards(ctx, query, limit)
}

func (s *Service) summariesByID(ctx context.Context, ids []string) ([]store.BoardSummary, error) {
	summaries := make([]store.BoardSummary, 0, len(ids))
	for _, id := range ids {
		b, err := s.store.GetBoard(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // stale index entry
			}
			return nil, err
		}
		summaries = append(summaries, store.BoardSummary{
			ID:          b.ID,
			Title:       b.Title,
			Description: b.Description,
			AIGenerated: b.Metadata.AIGenerated,
			UpdatedAt:   b.Metadata.LastModified,
		})
	}
	return summaries, nil
}

func (s *Service) UpdateBoard(ctx context.Context, session Session, boardID string, input UpdateBoardInput) (board.Board, error) {
	current, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return board.Board{}, err
	}
	if !editor.CanEdit(current, session.UserID) {
		return board.Board{}, editor.ErrPermissionDenied
	}
	if input.Title != nil {
		current.Title = strings.TrimSpace(*input.Title)
		if current.Title == "" {
			return board.Board{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "title cannot be empty", nil)
		}
	}
	if input.Description != nil {
		current.Description = *input.Description
	}
	if input.Settings != nil {
		current.Settings = *input.Settings
	}
	if err := current.Validate(); err != nil {
		return board.Board{}, err
	}

	saved, err := s.store.UpdateBoard(ctx, boardID, current)
	if err != nil {
		return board.Board{}, err
	}
	if live := s.liveSession(boardID); live != nil {
		if err := live.Store.LoadSnapshot(saved); err != nil {
			log.Printf("session refresh after board update failed: %v", err)
		}
	}
	s.indexBoard(saved)
	return saved, nil
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	current, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	if owner, ok := current.Collaborator(session.UserID); !ok || owner.Role != board.RoleOwner {
		return editor.ErrPermissionDenied
	}
	// Deleting the board discards any unsaved session edits on purpose.
	s.dropSession(boardID)
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemoveBoard(boardID)
	}
	return nil
}

// OpenBoard starts (or joins) the live editing session for a board. Any
// collaborator may open; role gating happens per operation.
func (s *Service) OpenBoard(ctx context.Context, session Session, boardID string) (board.Board, error) {
	s.mu.Lock()
	if live, ok := s.sessions[boardID]; ok {
		s.mu.Unlock()
		live.Touch()
		return s.GetBoard(ctx, boardID)
	}
	s.mu.Unlock()

	b, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return board.Board{}, err
	}
	if _, ok := b.Collaborator(session.UserID); !ok {
		return board.Board{}, editor.ErrPermissionDenied
	}

	live, err := editor.NewSession(b, s.store, s.cfg.AutoSaveQuiet)
	if err != nil {
		return board.Board{}, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[boardID]; ok {
		// Lost the race; use the session the other request created.
		s.mu.Unlock()
		existing.Touch()
		return s.GetBoard(ctx, boardID)
	}
	s.sessions[boardID] = live
	s.mu.Unlock()

	if s.presence != nil {
		_ = s.presence.Heartbeat(ctx, boardID, session.UserID)
	}
	return s.overlayPresence(ctx, b), nil
}

func (s *Service) CloseBoard(ctx context.Context, session Session, boardID string) error {
	live := s.dropSession(boardID)
	if s.presence != nil {
		_ = s.presence.Leave(ctx, boardID, session.UserID)
	}
	if live == nil {
		return nil
	}
	return live.Close(ctx)
}

func (s *Service) liveSession(boardID string) *editor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[boardID]
}

func (s *Service) dropSession(boardID string) *editor.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.sessions[boardID]
	delete(s.sessions, boardID)
	return live
}

func (s *Service) requireSession(boardID string) (*editor.Session, error) {
	live := s.liveSession(boardID)
	if live == nil {
		return nil, domainError(http.StatusConflict, "NO_SESSION", "board is not open for editing", nil)
	}
	live.Touch()
	return live, nil
}

// ApplyElementAction routes one canvas operation through the session store.
// elementID is empty for "add".
func (s *Service) ApplyElementAction(ctx context.Context, session Session, boardID, elementID string, input ElementActionInput) (board.Board, error) {
	live, err := s.requireSession(boardID)
	if err != nil {
		return board.Board{}, err
	}

	var op editor.Op
	switch input.Action {
	case "add":
		op = func(b board.Board) (board.Board, error) {
			next, _, err := board.AddElement(b, input.Type, input.Patch)
			return next, err
		}
	case "update":
		op = func(b board.Board) (board.Board, error) {
			return board.UpdateElement(b, elementID, input.Patch)
		}
	case "move":
		op = func(b board.Board) (board.Board, error) {
			return board.MoveElement(b, elementID, input.DX, input.DY)
		}
	case "resize":
		op = func(b board.Board) (board.Board, error) {
			return board.ResizeElement(b, elementID, input.Width, input.Height)
		}
	case "rotate":
		op = func(b board.Board) (board.Board, error) {
			return board.RotateElement(b, elementID, input.Rotation)
		}
	case "duplicate":
		op = func(b board.Board) (board.Board, error) {
			next, _, err := board.DuplicateElement(b, elementID)
			return next, err
		}
	case "delete":
		op = func(b board.Board) (board.Board, error) {
			return board.DeleteElement(b, elementID)
		}
	case "reorder":
		op = func(b board.Board) (board.Board, error) {
			return board.ReorderAdjacent(b, elementID, input.Direction)
		}
	case "visibility":
		op = func(b board.Board) (board.Board, error) {
			return board.SetVisibility(b, elementID, input.Visible)
		}
	default:
		return board.Board{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "unknown element action", map[string]any{"action": input.Action})
	}

	return live.Store.Dispatch(session.UserID, op)
}

// SaveBoard persists immediately, bypassing the quiet period.
func (s *Service) SaveBoard(ctx context.Context, session Session, boardID string) (board.Board, error) {
	live, err := s.requireSession(boardID)
	if err != nil {
		return board.Board{}, err
	}
	snapshot, err := live.Store.Snapshot()
	if err != nil {
		return board.Board{}, err
	}
	if !editor.CanEdit(snapshot, session.UserID) {
		return board.Board{}, editor.ErrPermissionDenied
	}
	saved, err := live.Scheduler.SaveNow(ctx)
	if err != nil {
		return board.Board{}, domainError(http.StatusBadGateway, "PERSISTENCE_FAILURE", "save failed", nil)
	}
	s.indexBoard(saved)
	return saved, nil
}

func (s *Service) Invite(ctx context.Context, session Session, boardID, email string, role board.Role) (board.Board, error) {
	live, err := s.requireSession(boardID)
	if err != nil {
		return board.Board{}, err
	}
	if strings.TrimSpace(email) == "" {
		return board.Board{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "email is required", nil)
	}
	return live.Channel.Invite(ctx, session.UserID, email, role)
}

func (s *Service) PostMessage(ctx context.Context, session Session, boardID, text string) ([]board.Message, error) {
	live, err := s.requireSession(boardID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "message text is required", nil)
	}
	return live.Channel.PostMessage(ctx, session.UserID, text)
}

func (s *Service) Messages(ctx context.Context, boardID string) ([]board.Message, error) {
	b, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if b.Messages == nil {
		return []board.Message{}, nil
	}
	return b.Messages, nil
}

func (s *Service) Call(boardID string) (editor.CallState, error) {
	live, err := s.requireSession(boardID)
	if err != nil {
		return editor.CallState{}, err
	}
	return live.Channel.Call(), nil
}

func (s *Service) SetCall(boardID string, state editor.CallState) (editor.CallState, error) {
	live, err := s.requireSession(boardID)
	if err != nil {
		return editor.CallState{}, err
	}
	return live.Channel.SetCall(state), nil
}

func (s *Service) Heartbeat(ctx context.Context, session Session, boardID string) error {
	if s.presence == nil {
		return nil
	}
	return s.presence.Heartbeat(ctx, boardID, session.UserID)
}

func (s *Service) overlayPresence(ctx context.Context, b board.Board) board.Board {
	if s.presence == nil || len(b.Collaborators) == 0 {
		return b
	}
	ids := make([]string, len(b.Collaborators))
	for i, c := range b.Collaborators {
		ids[i] = c.ID
	}
	statuses, err := s.presence.Statuses(ctx, b.ID, ids)
	if err != nil {
		return b
	}
	for i := range b.Collaborators {
		if status, ok := statuses[b.Collaborators[i].ID]; ok {
			b.Collaborators[i].Status = status
		}
	}
	return b
}

// Export renders the board, stores the artifact in media storage when
// configured, and returns a download URL (or the raw result otherwise).
func (s *Service) Export(ctx context.Context, boardID string, input ExportInput) (string, *export.Result, error) {
	b, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return "", nil, err
	}
	quality := input.Quality
	result, err := s.exportFn(b, export.Request{Format: export.Format(input.Format), Quality: quality})
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			return "", nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "unsupported export format", map[string]any{"format": input.Format})
		case errors.Is(err, export.ErrChromiumMissing):
			return "", nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "export renderer not installed", nil)
		default:
			return "", nil, domainError(http.StatusBadGateway, "EXPORT_FAILED", "board export failed", nil)
		}
	}
	if s.media == nil {
		return "", result, nil
	}
	url, err := s.media.StoreExport(ctx, boardID, input.Format, result.MimeType, result.Data)
	if err != nil {
		return "", nil, domainError(http.StatusBadGateway, "PERSISTENCE_FAILURE", "failed to store export artifact", nil)
	}
	return url, result, nil
}

func (s *Service) UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, media.Dimensions, error) {
	if s.media == nil {
		return "", media.Dimensions{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "media storage not configured", nil)
	}
	url, dims, err := s.media.UploadImage(ctx, filename, contentType, data)
	if err != nil {
		return "", media.Dimensions{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "unreadable image", nil)
	}
	return url, dims, nil
}

func (s *Service) indexBoard(b board.Board) {
	if s.search == nil {
		return
	}
	s.search.IndexBoard(search.BoardDocument{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Themes:      b.Themes,
		Activities:  b.Activities,
		AIGenerated: b.Metadata.AIGenerated,
		UpdatedAt:   b.Metadata.LastModified.Unix(),
	})
}

// CollectIdleSessions flushes and drops sessions idle past the TTL. Called
// from a background loop in main.
func (s *Service) CollectIdleSessions(ctx context.Context, idleTTL time.Duration) {
	cutoff := time.Now().Add(-idleTTL)

	s.mu.Lock()
	var expired []*editor.Session
	for id, live := range s.sessions {
		if live.IdleSince().Before(cutoff) {
			expired = append(expired, live)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, live := range expired {
		if err := live.Close(ctx); err != nil {
			log.Printf("idle session flush failed for %s: %v", live.BoardID, err)
		}
	}
}
