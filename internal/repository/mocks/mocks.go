package mocks

import (
	"context"

	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/score"
	"github.com/stretchr/testify/mock"
)

// UserRepository is a mock for repository.UserRepository.
type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) Create(ctx context.Context, user *repository.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepository) Get(ctx context.Context, username string) (*repository.User, error) {
	args := m.Called(ctx, username)
	if user, ok := args.Get(0).(*repository.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

// ProjectRepository is a mock for repository.ProjectRepository.
type ProjectRepository struct {
	mock.Mock
}

func (m *ProjectRepository) Create(ctx context.Context, rec *repository.ProjectRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *ProjectRepository) Get(ctx context.Context, id string) (*repository.ProjectRecord, error) {
	args := m.Called(ctx, id)
	if rec, ok := args.Get(0).(*repository.ProjectRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

// ContributorRepository is a mock for repository.ContributorRepository.
type ContributorRepository struct {
	mock.Mock
}

func (m *ContributorRepository) Add(ctx context.Context, username, projectID string) error {
	args := m.Called(ctx, username, projectID)
	return args.Error(0)
}

func (m *ContributorRepository) Users(ctx context.Context, projectID string) ([]string, error) {
	args := m.Called(ctx, projectID)
	if users, ok := args.Get(0).([]string); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ContributorRepository) Projects(ctx context.Context, username string) ([]string, error) {
	args := m.Called(ctx, username)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

// ScoreStore is a mock for repository.ScoreStore.
type ScoreStore struct {
	mock.Mock
}

func (m *ScoreStore) Load(ctx context.Context, id string) (*score.Project, error) {
	args := m.Called(ctx, id)
	if proj, ok := args.Get(0).(*score.Project); ok {
		return proj, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *ScoreStore) Save(ctx context.Context, proj *score.Project) error {
	args := m.Called(ctx, proj)
	return args.Error(0)
}
