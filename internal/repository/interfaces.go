package repository

import (
	"context"
	"time"

	"github.com/jvossen/ensemble/internal/score"
)

// User is a registered account. The password is stored only as a hash.
type User struct {
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}

// ProjectRecord is the index entry for a project. The document itself
// lives in the ScoreStore.
type ProjectRecord struct {
	ID        string
	Name      string
	Owner     string
	CreatedAt time.Time
}

// UserRepository manages account persistence
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, username string) (*User, error)
}

// ProjectRepository manages the project index
type ProjectRepository interface {
	Create(ctx context.Context, rec *ProjectRecord) error
	Get(ctx context.Context, id string) (*ProjectRecord, error)
}

// ContributorRepository manages the (username, project) access relation
type ContributorRepository interface {
	Add(ctx context.Context, username, projectID string) error
	Users(ctx context.Context, projectID string) ([]string, error)
	Projects(ctx context.Context, username string) ([]string, error)
}

// ScoreStore is the blob store for project content. Writes are atomic per
// record; there is no cross-record transaction with the project index.
type ScoreStore interface {
	Load(ctx context.Context, id string) (*score.Project, error)
	Save(ctx context.Context, proj *score.Project) error
}
