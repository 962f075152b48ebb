package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateUser persists a new account. Usernames are stored lowercase.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, username, email, phone, password_hash, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.Phone, u.PasswordHash, fmtTime(now), fmtTime(now),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrUsernameTaken
	}
	return err
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	row := s.db.QueryRowContext(ctx, userCols+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) UserByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, userCols+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

const userCols = `SELECT id, username, email, phone, password_hash, created_at, updated_at`

func scanUser(row rowScanner) (*User, error) {
	var (
		u                    User
		createdAt, updatedAt string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Phone, &u.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}
