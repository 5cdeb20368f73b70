package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skywatch-labs/skywatch/internal/model"
)

// CreateUser inserts a new identity. The caller is responsible for putting a
// hash, not a plaintext, into PasswordHash. ID and CreatedAt are assigned
// here when empty.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	u.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO users (id, username, password_hash, role, last_login_at, created_at)
		VALUES (:id, :username, :password_hash, :role, :last_login_at, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("insert user: %w", classify(err))
	}
	return nil
}

// GetUser returns an identity by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE id = ?")
	if err := s.db.GetContext(ctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// GetUserByUsername returns an identity by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	q := s.db.Rebind("SELECT * FROM users WHERE username = ?")
	if err := s.db.GetContext(ctx, &u, q, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return &u, nil
}

// ListUsers returns all identities ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY username"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// HasRole reports whether at least one identity holds role. Used for
// first-run detection of a missing teacher account.
func (s *Store) HasRole(ctx context.Context, role model.Role) (bool, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM users WHERE role = ?")
	if err := s.db.GetContext(ctx, &count, q, role); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return count > 0, nil
}

// TouchLastLogin sets last_login_at for an identity.
func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	q := s.db.Rebind("UPDATE users SET last_login_at = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update last login rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SwapPasswordHash replaces the stored hash with next only if it still
// equals old.
// ErrNotFound means the identity is gone or its hash changed underneath.
func (s *Store) SwapPasswordHash(ctx context.Context, id, old, next string) error {
	q := s.db.Rebind("UPDATE users SET password_hash = ? WHERE id = ? AND password_hash = ?")
	result, err := s.db.ExecContext(ctx, q, next, id, old)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password hash rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
