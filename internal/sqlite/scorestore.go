package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/score"
)

// ScoreStore implements repository.ScoreStore for SQLite, holding the
// serialized metadata and parts of each project as discrete fields.
type ScoreStore struct {
	db *DB
}

// NewScoreStore creates a new ScoreStore
func NewScoreStore(db *DB) *ScoreStore {
	return &ScoreStore{db: db}
}

// Load reads and deserializes a project's content
func (s *ScoreStore) Load(ctx context.Context, id string) (*score.Project, error) {
	query := `
		SELECT metadata, parts
		FROM scores
		WHERE project_id = ?
	`

	var metadata, parts string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&metadata, &parts)

	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load score: %w", err)
	}

	proj, err := score.Deserialize(id, metadata, parts)
	if err != nil {
		return nil, fmt.Errorf("failed to decode score %s: %w", id, err)
	}

	return proj, nil
}

// Save serializes and upserts a project's content. The write replaces the
// whole row, so a reader never observes a half-written score.
func (s *ScoreStore) Save(ctx context.Context, proj *score.Project) error {
	metadata, parts, err := proj.Serialize()
	if err != nil {
		return fmt.Errorf("failed to encode score %s: %w", proj.ID, err)
	}

	query := `
		INSERT INTO scores (project_id, metadata, parts, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			metadata = excluded.metadata,
			parts = excluded.parts,
			saved_at = excluded.saved_at
	`

	if _, err := s.db.ExecContext(ctx, query, proj.ID, metadata, parts, time.Now()); err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}

	return nil
}
