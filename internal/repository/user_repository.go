package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/session-authority/internal/model"
)

// UserRepo persists users keyed by their unique username.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// FindOrCreate resolves a username to its user row, inserting one on
// first sight. The lookup and insert are separate statements; a
// concurrent insert losing the race is absorbed by re-reading after
// a duplicate-key error.
func (r *UserRepo) FindOrCreate(ctx context.Context, username string) (model.User, error) {
	username = strings.TrimSpace(username)
	u, err := r.GetByUsername(ctx, username)
	if err == nil {
		return u, nil
	}
	if err != ErrUserNotFound {
		return model.User{}, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username) VALUES (?)", username)
	if err != nil {
		// 1062 = duplicate key; another request created the row first.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return r.GetByUsername(ctx, username)
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	u.ID = uint64(id)
	u.Username = username
	return u, nil
}

// GetByUsername fetches a user by its exact username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, username, created_at FROM users WHERE username=? LIMIT 1",
		strings.TrimSpace(username)).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}
