package session_test

import (
	"context"
	"testing"

	"github.com/jvossen/ensemble/internal/domain/session"
	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/repository/mocks"
	"github.com/jvossen/ensemble/internal/score"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*session.Service, *pool.Pool, *mocks.ScoreStore, *score.Project) {
	t.Helper()
	proj := score.New(map[string]string{"owner": "alice", "name": "Quartet"})

	contributors := &mocks.ContributorRepository{}
	contributors.On("Users", mock.Anything, proj.ID).Return([]string{"alice"}, nil)

	store := &mocks.ScoreStore{}
	store.On("Load", mock.Anything, proj.ID).Return(proj, nil)

	p := pool.New()
	svc := session.NewService(contributors, store, p, nil)
	return svc, p, store, proj
}

func TestSubscribeUnsubscribeLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, p, store, proj := newFixture(t)
	store.On("Save", mock.Anything, proj).Return(nil)

	cookie, err := svc.Subscribe(ctx, "alice", proj.ID)
	require.NoError(t, err)
	require.NotEmpty(t, cookie)
	require.Equal(t, 1, p.Refs(proj.ID))

	sess, ok := svc.Resolve(cookie)
	require.True(t, ok)
	require.Equal(t, "alice", sess.Username)
	require.Equal(t, proj.ID, sess.ProjectID)

	require.NoError(t, svc.Unsubscribe(ctx, cookie))
	require.Equal(t, 0, p.Refs(proj.ID))
	_, ok = svc.Resolve(cookie)
	require.False(t, ok)
	require.Zero(t, svc.Count())

	// The final release persisted the document exactly once.
	store.AssertNumberOfCalls(t, "Save", 1)
}

func TestSubscribeNotContributor(t *testing.T) {
	ctx := context.Background()
	proj := score.New(map[string]string{"owner": "alice"})

	contributors := &mocks.ContributorRepository{}
	contributors.On("Users", mock.Anything, proj.ID).Return([]string{"alice"}, nil)

	store := &mocks.ScoreStore{}
	store.On("Load", mock.Anything, proj.ID).Return(proj, nil)

	p := pool.New()
	svc := session.NewService(contributors, store, p, nil)

	// alice pins the project first.
	_, err := svc.Subscribe(ctx, "alice", proj.ID)
	require.NoError(t, err)
	require.Equal(t, 1, p.Refs(proj.ID))

	// bob is rejected and the ref count is untouched.
	_, err = svc.Subscribe(ctx, "bob", proj.ID)
	require.ErrorIs(t, err, session.ErrNotAuthorized)
	require.Equal(t, 1, p.Refs(proj.ID))
}

func TestDoubleUnsubscribe(t *testing.T) {
	ctx := context.Background()
	svc, _, store, proj := newFixture(t)
	store.On("Save", mock.Anything, proj).Return(nil)

	cookie, err := svc.Subscribe(ctx, "alice", proj.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(ctx, cookie))
	require.ErrorIs(t, svc.Unsubscribe(ctx, cookie), session.ErrNotSubscribed)

	// No second persist fired.
	store.AssertNumberOfCalls(t, "Save", 1)
}

func TestUnsubscribeMalformedCookie(t *testing.T) {
	svc, _, _, _ := newFixture(t)
	require.ErrorIs(t, svc.Unsubscribe(context.Background(), "not-a-cookie"), session.ErrMalformedCookie)
}

func TestTwoSubscribersShareOnePin(t *testing.T) {
	ctx := context.Background()
	proj := score.New(map[string]string{"owner": "alice"})

	contributors := &mocks.ContributorRepository{}
	contributors.On("Users", mock.Anything, proj.ID).Return([]string{"alice", "bob"}, nil)

	store := &mocks.ScoreStore{}
	store.On("Load", mock.Anything, proj.ID).Return(proj, nil)
	store.On("Save", mock.Anything, proj).Return(nil)

	p := pool.New()
	svc := session.NewService(contributors, store, p, nil)

	c1, err := svc.Subscribe(ctx, "alice", proj.ID)
	require.NoError(t, err)
	c2, err := svc.Subscribe(ctx, "bob", proj.ID)
	require.NoError(t, err)
	require.Equal(t, 2, p.Refs(proj.ID))
	// The document is only loaded once for both subscribers.
	store.AssertNumberOfCalls(t, "Load", 1)

	require.NoError(t, svc.Unsubscribe(ctx, c1))
	require.Equal(t, 1, p.Refs(proj.ID))
	store.AssertNumberOfCalls(t, "Save", 0)

	require.NoError(t, svc.Unsubscribe(ctx, c2))
	require.Equal(t, 0, p.Refs(proj.ID))
	store.AssertNumberOfCalls(t, "Save", 1)
}
