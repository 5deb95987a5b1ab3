package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/promptsched/internal/store"
)

// UserStore implements store.UserStore on Postgres.
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
		settings []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, settings FROM app_user WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &email, &settings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	user.Email = strOrEmpty(email)
	if len(settings) > 0 {
		user.Settings = &store.UserSettings{}
		if err := json.Unmarshal(settings, user.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for %s: %w", id, err)
		}
	}
	return &user, nil
}
