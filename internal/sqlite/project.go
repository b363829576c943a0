package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jvossen/ensemble/internal/repository"
)

// ProjectRepository implements repository.ProjectRepository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a project index row
func (r *ProjectRepository) Create(ctx context.Context, rec *repository.ProjectRecord) error {
	query := `
		INSERT INTO projects (id, name, owner, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Name,
		rec.Owner,
		rec.CreatedAt,
	)

	if violates(err, "UNIQUE") {
		return repository.ErrDuplicate
	}
	if violates(err, "FOREIGN KEY") {
		return repository.ErrForeignKeyViolation
	}
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project index row by ID
func (r *ProjectRepository) Get(ctx context.Context, id string) (*repository.ProjectRecord, error) {
	query := `
		SELECT id, name, owner, created_at
		FROM projects
		WHERE id = ?
	`

	var rec repository.ProjectRecord
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&rec.Name,
		&rec.Owner,
		&rec.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &rec, nil
}

