package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// ChatStore implements store.ChatStore on Postgres. The full message list is
// kept as a JSONB blob alongside the indexed columns.
type ChatStore struct {
	db *sql.DB
}

func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Create(ctx context.Context, chat *store.Chat) (string, error) {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().Unix()
	if chat.CreatedAt == 0 {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now

	blob, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("encode chat: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO chat (id, user_id, title, chat, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		chat.ID, chat.UserID, chat.Title, blob, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert chat: %w", err)
	}
	return chat.ID, nil
}

func (s *ChatStore) Get(ctx context.Context, id string) (*store.Chat, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT chat FROM chat WHERE id = $1`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", id, err)
	}

	var chat store.Chat
	if err := json.Unmarshal(blob, &chat); err != nil {
		return nil, fmt.Errorf("decode chat %s: %w", id, err)
	}
	chat.ID = id
	return &chat, nil
}

// AppendMessages adds messages to an existing chat inside a transaction so
// concurrent appenders cannot drop each other's messages.
func (s *ChatStore) AppendMessages(ctx context.Context, id string, messages []store.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer tx.Rollback()

	var blob []byte
	err = tx.QueryRowContext(ctx, `SELECT chat FROM chat WHERE id = $1 FOR UPDATE`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock chat %s: %w", id, err)
	}

	var chat store.Chat
	if err := json.Unmarshal(blob, &chat); err != nil {
		return fmt.Errorf("decode chat %s: %w", id, err)
	}

	chat.Messages = append(chat.Messages, messages...)
	chat.UpdatedAt = time.Now().Unix()

	updated, err := json.Marshal(&chat)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE chat SET chat = $1, updated_at = $2 WHERE id = $3`,
		updated, chat.UpdatedAt, id)
	if err != nil {
		return fmt.Errorf("update chat %s: %w", id, err)
	}
	return tx.Commit()
}
