// Package session owns the cookie table mapping subscription tokens to
// (user, project) pairs, and drives the checkout pool: subscribing pins
// the project in memory, unsubscribing unpins it and persists on the
// final release.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/score"
)

// Service handles subscription lifecycle.
type Service struct {
	contributors repository.ContributorRepository
	store        repository.ScoreStore
	pool         *pool.Pool
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

// NewService creates a new session service.
func NewService(
	contributors repository.ContributorRepository,
	store repository.ScoreStore,
	p *pool.Pool,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		contributors: contributors,
		store:        store,
		pool:         p,
		logger:       logger,
		sessions:     make(map[string]Session),
	}
}

// Subscribe authorizes the user against the project's contributor list,
// pins the project in the pool, and returns a fresh session cookie. On an
// authorization failure nothing is pinned.
func (s *Service) Subscribe(ctx context.Context, username, projectID string) (string, error) {
	names, err := s.contributors.Users(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("loading contributors: %w", err)
	}
	authorized := false
	for _, name := range names {
		if name == username {
			authorized = true
			break
		}
	}
	if !authorized {
		return "", ErrNotAuthorized
	}

	if _, err := s.pool.Checkout(ctx, projectID, func(ctx context.Context) (*score.Project, error) {
		return s.store.Load(ctx, projectID)
	}); err != nil {
		return "", err
	}

	// Cookies are UUIDs; collisions are ignored, they "don't" happen.
	cookie := uuid.NewString()

	s.mu.Lock()
	s.sessions[cookie] = Session{Username: username, ProjectID: projectID}
	s.mu.Unlock()

	s.logger.Info("subscribed", "username", username, "project", projectID)
	return cookie, nil
}

// ParseCookie checks that a string has the shape of a session cookie.
// It says nothing about whether the cookie belongs to a live session.
func ParseCookie(cookie string) error {
	if _, err := uuid.Parse(cookie); err != nil {
		return ErrMalformedCookie
	}
	return nil
}

// Unsubscribe tears down the session for a cookie and releases its pin.
// When the pin was the last one the document is persisted and evicted. A
// second unsubscribe with the same cookie fails and persists nothing.
func (s *Service) Unsubscribe(ctx context.Context, cookie string) error {
	if err := ParseCookie(cookie); err != nil {
		return err
	}

	s.mu.Lock()
	sess, ok := s.sessions[cookie]
	if ok {
		delete(s.sessions, cookie)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}

	guard := s.pool.Guard(sess.ProjectID)
	guard.Lock()
	defer guard.Unlock()

	err := s.pool.Release(sess.ProjectID, func(proj *score.Project) error {
		return s.store.Save(ctx, proj)
	})
	if err != nil {
		// The session is already gone; a release failure means a caller
		// bug or a failed final save, neither of which un-subscribes.
		return fmt.Errorf("releasing project %s: %w", sess.ProjectID, err)
	}

	s.logger.Info("unsubscribed", "username", sess.Username, "project", sess.ProjectID)
	return nil
}

// Resolve looks up the session for a cookie without touching it. Mutation
// handlers use it to check that a request's claimed project matches an
// active subscription.
func (s *Service) Resolve(cookie string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[cookie]
	return sess, ok
}

// Count reports the number of live sessions.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
