package sqlite

import (
	"context"
	"fmt"

	"github.com/jvossen/ensemble/internal/repository"
)

// ContributorRepository implements repository.ContributorRepository for SQLite
type ContributorRepository struct {
	db *DB
}

// NewContributorRepository creates a new ContributorRepository
func NewContributorRepository(db *DB) *ContributorRepository {
	return &ContributorRepository{db: db}
}

// Add records that a user may edit a project. Adding the same pair twice
// is not an error.
func (r *ContributorRepository) Add(ctx context.Context, username, projectID string) error {
	query := `
		INSERT INTO contributors (username, project_id)
		VALUES (?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, username, projectID)

	if violates(err, "UNIQUE") {
		return nil
	}
	if violates(err, "FOREIGN KEY") {
		return repository.ErrForeignKeyViolation
	}
	if err != nil {
		return fmt.Errorf("failed to add contributor: %w", err)
	}

	return nil
}

// Users returns all usernames attached to a project
func (r *ContributorRepository) Users(ctx context.Context, projectID string) ([]string, error) {
	query := `
		SELECT username FROM contributors
		WHERE project_id = ?
		ORDER BY username ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributors: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("failed to scan contributor: %w", err)
		}
		users = append(users, username)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributor rows: %w", err)
	}

	return users, nil
}

// Projects returns all project IDs a user contributes to
func (r *ContributorRepository) Projects(ctx context.Context, username string) ([]string, error) {
	query := `
		SELECT project_id FROM contributors
		WHERE username = ?
		ORDER BY project_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributed projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributor rows: %w", err)
	}

	return ids, nil
}
