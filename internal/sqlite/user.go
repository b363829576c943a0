package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jvossen/ensemble/internal/repository"
)

// UserRepository implements repository.UserRepository for SQLite
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new account
func (r *UserRepository) Create(ctx context.Context, user *repository.User) error {
	query := `
		INSERT INTO users (username, password_hash, email, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.PasswordHash,
		user.Email,
		user.CreatedAt,
	)

	if violates(err, "UNIQUE") {
		return repository.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// Get retrieves an account by username
func (r *UserRepository) Get(ctx context.Context, username string) (*repository.User, error) {
	query := `
		SELECT username, password_hash, email, created_at
		FROM users
		WHERE username = ?
	`

	var user repository.User
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.Username,
		&user.PasswordHash,
		&email,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Email = email.String

	return &user, nil
}
