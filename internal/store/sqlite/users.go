package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// UserStore implements store.UserStore on SQLite.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) Get(ctx context.Context, id string) (*store.User, error) {
	var (
		user     store.User
		email    sql.NullString
		settings sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, settings FROM app_user WHERE id = ?`, id).
		Scan(&user.ID, &user.Name, &email, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	user.Email = strOrEmpty(email)
	if settings.Valid && settings.String != "" {
		user.Settings = &store.UserSettings{}
		if err := json.Unmarshal([]byte(settings.String), user.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for %s: %w", id, err)
		}
	}
	return &user, nil
}
