package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/score"
)

// Service handles the project index: creation, lookup, listing, and
// sharing with additional contributors. The live document itself is the
// checkout pool's business; this service only touches the store.
type Service struct {
	index        repository.ProjectRepository
	users        repository.UserRepository
	contributors repository.ContributorRepository
	store        repository.ScoreStore
	logger       *slog.Logger
}

// NewService creates a new project service.
func NewService(
	index repository.ProjectRepository,
	users repository.UserRepository,
	contributors repository.ContributorRepository,
	store repository.ScoreStore,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		index:        index,
		users:        users,
		contributors: contributors,
		store:        store,
		logger:       logger,
	}
}

// Create makes a new empty project owned by owner: an initial score in the
// store, an index row, and the owner's contributor row. The store and the
// index are written independently; a crash between them leaves an orphan
// score, which later writes simply overwrite.
func (s *Service) Create(ctx context.Context, owner, name, metadataJSON string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrInvalidInput
	}
	if _, err := s.users.Get(ctx, owner); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("loading owner: %w", err)
	}

	metadata := map[string]string{}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	metadata["owner"] = owner
	metadata["name"] = name

	proj := score.New(metadata)

	if err := s.store.Save(ctx, proj); err != nil {
		return "", fmt.Errorf("saving initial score: %w", err)
	}
	if err := s.index.Create(ctx, &repository.ProjectRecord{
		ID:        proj.ID,
		Name:      name,
		Owner:     owner,
		CreatedAt: time.Now(),
	}); err != nil {
		return "", fmt.Errorf("creating project index: %w", err)
	}
	if err := s.contributors.Add(ctx, owner, proj.ID); err != nil {
		return "", fmt.Errorf("adding owner as contributor: %w", err)
	}

	s.logger.Info("created project", "project", proj.ID, "owner", owner, "name", name)
	return proj.ID, nil
}

// Get fetches a project index record.
func (s *Service) Get(ctx context.Context, id string) (*repository.ProjectRecord, error) {
	rec, err := s.index.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return rec, nil
}

// ListByUser returns the IDs of every project the user contributes to.
func (s *Service) ListByUser(ctx context.Context, username string) ([]string, error) {
	ids, err := s.contributors.Projects(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return ids, nil
}

// Contributors returns the usernames attached to a project.
func (s *Service) Contributors(ctx context.Context, projectID string) ([]string, error) {
	users, err := s.contributors.Users(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing contributors: %w", err)
	}
	return users, nil
}

// Share adds a user to a project's contributors. Sharing with an existing
// contributor is a no-op.
func (s *Service) Share(ctx context.Context, projectID, username string) error {
	if _, err := s.users.Get(ctx, username); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUnknownUser
		}
		return fmt.Errorf("loading user: %w", err)
	}

	err := s.contributors.Add(ctx, username, projectID)
	if errors.Is(err, repository.ErrForeignKeyViolation) {
		return ErrProjectNotFound
	}
	if err != nil {
		return fmt.Errorf("adding contributor: %w", err)
	}

	s.logger.Info("shared project", "project", projectID, "with", username)
	return nil
}
