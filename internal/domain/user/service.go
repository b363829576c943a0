package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jvossen/ensemble/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Service handles account registration and login.
type Service struct {
	users        repository.UserRepository
	contributors repository.ContributorRepository
	logger       *slog.Logger
}

// NewService creates a new user service.
func NewService(users repository.UserRepository, contributors repository.ContributorRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, contributors: contributors, logger: logger}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password, email string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	err = s.users.Create(ctx, &repository.User{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		CreatedAt:    time.Now(),
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("registered user", "username", username)
	return nil
}

// Login verifies credentials and returns the IDs of every project the
// user may edit. Unknown users and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, username, password string) ([]string, error) {
	account, err := s.users.Get(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLoginFailed
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrLoginFailed
	}

	projects, err := s.contributors.Projects(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return projects, nil
}
