package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wanderboard/api/internal/board"
	"wanderboard/api/internal/util"
)

var ErrNotFound = errors.New("board not found")

// PostgresStore is the board persistence service. Boards are stored as one
// row with JSONB payloads; collaborators and messages live in their own
// tables because the server owns those lists authoritatively.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// CreateBoard inserts a board and its owner collaborator in one transaction.
// Ownership is assigned here and never reassigned afterwards.
func (s *PostgresStore) CreateBoard(ctx context.Context, b board.Board, owner board.Collaborator) (board.Board, error) {
	owner.Role = board.RoleOwner
	themes, err := marshalJSON(orEmpty(b.Themes))
	if err != nil {
		return board.Board{}, err
	}
	activities, err := marshalJSON(orEmpty(b.Activities))
	if err != nil {
		return board.Board{}, err
	}
	palette, err := marshalJSON(orEmpty(b.ColorPalette))
	if err != nil {
		return board.Board{}, err
	}
	elements, err := marshalJSON(b.Elements)
	if err != nil {
		return board.Board{}, err
	}
	settings, err := marshalJSON(b.Settings)
	if err != nil {
		return board.Board{}, err
	}
	metadata, err := marshalJSON(b.Metadata)
	if err != nil {
		return board.Board{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return board.Board{}, fmt.Errorf("begin create board: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards (id, title, description, themes, activities, color_palette, elements, settings, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.Title, b.Description, themes, activities, palette, elements, settings, metadata); err != nil {
		return board.Board{}, fmt.Errorf("insert board: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_collaborators (board_id, id, name, email, avatar, role)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, owner.ID, owner.Name, owner.Email, owner.Avatar, owner.Role); err != nil {
		return board.Board{}, fmt.Errorf("insert owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return board.Board{}, fmt.Errorf("commit create board: %w", err)
	}
	return s.GetBoard(ctx, b.ID)
}

// GetBoard assembles a full board from its row plus the collaborator and
// message tables. Collaborator presence comes back offline; the caller
// overlays live presence.
func (s *PostgresStore) GetBoard(ctx context.Context, id string) (board.Board, error) {
	var (
		b                                              board.Board
		themes, activities, palette, elements, settingsRaw, metadataRaw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, themes, activities, color_palette, elements, settings, metadata
		FROM boards WHERE id = $1
	`, id).Scan(&b.ID, &b.Title, &b.Description, &themes, &activities, &palette, &elements, &settingsRaw, &metadataRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Board{}, ErrNotFound
	}
	if err != nil {
		return board.Board{}, fmt.Errorf("get board %s: %w", id, err)
	}

	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{themes, &b.Themes},
		{activities, &b.Activities},
		{palette, &b.ColorPalette},
		{elements, &b.Elements},
		{settingsRaw, &b.Settings},
		{metadataRaw, &b.Metadata},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return board.Board{}, fmt.Errorf("decode board %s: %w", id, err)
		}
	}
	if b.Elements == nil {
		b.Elements = []board.Element{}
	}

	collaborators, err := s.listCollaborators(ctx, id)
	if err != nil {
		return board.Board{}, err
	}
	b.Collaborators = collaborators

	messages, err := s.listMessages(ctx, id)
	if err != nil {
		return board.Board{}, err
	}
	b.Messages = messages
	return b, nil
}

// ListBoards returns summaries ordered by recency, optionally filtered by a
// case-insensitive title/description match. This is also the search
// fallback when the index is unavailable.
func (s *PostgresStore) ListBoards(ctx context.Context, query string, limit int) ([]BoardSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	sqlQuery := `
		SELECT id, title, description, COALESCE((metadata->>'aiGenerated')::boolean, FALSE), updated_at
		FROM boards
	`
	args := []any{}
	if trimmed := strings.TrimSpace(query); trimmed != "" {
		sqlQuery += ` WHERE title ILIKE $1 OR description ILIKE $1`
		args = append(args, "%"+trimmed+"%")
	}
	sqlQuery += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	summaries := []BoardSummary{}
	for rows.Next() {
		var item BoardSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.Description, &item.AIGenerated, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board summary: %w", err)
		}
		summaries = append(summaries, item)
	}
	return summaries, rows.Err()
}

// UpdateBoard performs a full update of the board row and returns the
// reassembled board. Whole-board overwrite is the cross-session concurrency
// model; there is no element-level merge.
func (s *PostgresStore) UpdateBoard(ctx context.Context, id string, b board.Board) (board.Board, error) {
	themes, err := marshalJSON(orEmpty(b.Themes))
	if err != nil {
		return board.Board{}, err
	}
	activities, err := marshalJSON(orEmpty(b.Activities))
	if err != nil {
		return board.Board{}, err
	}
	palette, err := marshalJSON(orEmpty(b.ColorPalette))
	if err != nil {
		return board.Board{}, err
	}
	elements, err := marshalJSON(b.Elements)
	if err != nil {
		return board.Board{}, err
	}
	settings, err := marshalJSON(b.Settings)
	if err != nil {
		return board.Board{}, err
	}
	b.Metadata.LastModified = time.Now().UTC()
	metadata, err := marshalJSON(b.Metadata)
	if err != nil {
		return board.Board{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE boards
		SET title=$2, description=$3, themes=$4, activities=$5, color_palette=$6,
		    elements=$7, settings=$8, metadata=$9, updated_at=NOW()
		WHERE id=$1
	`, id, b.Title, b.Description, themes, activities, palette, elements, settings, metadata)
	if err != nil {
		return board.Board{}, fmt.Errorf("update board %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return board.Board{}, ErrNotFound
	}
	return s.GetBoard(ctx, id)
}

// AutoSave persists only the elements and metadata, the debounced hot path.
func (s *PostgresStore) AutoSave(ctx context.Context, id string, elements []board.Element, metadata board.Metadata) error {
	elementsRaw, err := marshalJSON(elements)
	if err != nil {
		return err
	}
	metadata.LastModified = time.Now().UTC()
	metadataRaw, err := marshalJSON(metadata)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE boards SET elements=$2, metadata=$3, updated_at=NOW() WHERE id=$1
	`, id, elementsRaw, metadataRaw)
	if err != nil {
		return fmt.Errorf("auto-save board %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteBoard(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete board %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCollaborator appends a provisional invitee and returns the
// authoritative list. The display name is derived server-side from the
// email; clients never fabricate names or avatars.
func (s *PostgresStore) AddCollaborator(ctx context.Context, boardID, email string, role board.Role) ([]board.Collaborator, error) {
	name := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		name = email[:at]
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO board_collaborators (board_id, id, name, email, avatar, role)
		VALUES ($1, $2, $3, $4, '', $5)
		ON CONFLICT (board_id, email) DO NOTHING
	`, boardID, util.NewID("usr"), name, email, role); err != nil {
		return nil, fmt.Errorf("add collaborator: %w", err)
	}
	return s.listCollaborators(ctx, boardID)
}

func (s *PostgresStore) listCollaborators(ctx context.Context, boardID string) ([]board.Collaborator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, avatar, role
		FROM board_collaborators WHERE board_id=$1
		ORDER BY created_at
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list collaborators: %w", err)
	}
	defer rows.Close()

	collaborators := []board.Collaborator{}
	for rows.Next() {
		var c board.Collaborator
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Avatar, &c.Role); err != nil {
			return nil, fmt.Errorf("scan collaborator: %w", err)
		}
		c.Status = board.StatusOffline
		collaborators = append(collaborators, c)
	}
	return collaborators, rows.Err()
}

// AddMessage appends to the append-only log and returns the full ordered
// list, which the caller treats as authoritative.
func (s *PostgresStore) AddMessage(ctx context.Context, boardID string, msg board.Message) ([]board.Message, error) {
	if msg.ID == "" {
		msg.ID = util.NewID("msg")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO board_messages (id, board_id, sender_id, sender, body, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, msg.ID, boardID, msg.SenderID, msg.Sender, msg.Text, msg.Type, msg.Timestamp); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	return s.listMessages(ctx, boardID)
}

func (s *PostgresStore) listMessages(ctx context.Context, boardID string) ([]board.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, sender, body, type, created_at
		FROM board_messages WHERE board_id=$1
		ORDER BY created_at, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []board.Message{}
	for rows.Next() {
		var m board.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.Sender, &m.Text, &m.Type, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
