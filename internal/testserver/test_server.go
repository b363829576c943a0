// Package testserver stands up the full stack on an in-memory database
// for integration tests: real repositories, services, pool, flusher,
// hub, and HTTP surface.
package testserver

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jvossen/ensemble/internal/broadcast"
	"github.com/jvossen/ensemble/internal/domain/project"
	"github.com/jvossen/ensemble/internal/domain/session"
	"github.com/jvossen/ensemble/internal/domain/user"
	"github.com/jvossen/ensemble/internal/mutate"
	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/score"
	"github.com/jvossen/ensemble/internal/server"
	"github.com/jvossen/ensemble/internal/sqlite"
)

type TestServer struct {
	Server  *httptest.Server
	DB      *sqlite.DB
	Pool    *pool.Pool
	Hub     *broadcast.Hub
	Flusher *pool.Flusher
	Store   *sqlite.ScoreStore

	stopFlusher context.CancelFunc
}

// Options tweak the stack for a test. The zero value works.
type Options struct {
	// FlushInterval overrides the periodic flush cadence. Defaults to
	// a minute, long enough that it never fires mid-test unless the
	// test wants it to.
	FlushInterval time.Duration
}

func New(t *testing.T, opts Options) *TestServer {
	t.Helper()

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Minute
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	userRepo := sqlite.NewUserRepository(db)
	projectRepo := sqlite.NewProjectRepository(db)
	contributorRepo := sqlite.NewContributorRepository(db)
	store := sqlite.NewScoreStore(db)

	userSvc := user.NewService(userRepo, contributorRepo, nil)
	projectSvc := project.NewService(projectRepo, userRepo, contributorRepo, store, nil)

	p := pool.New()
	sessionSvc := session.NewService(contributorRepo, store, p, nil)
	dispatcher := mutate.NewDispatcher(p, store, nil)
	hub := broadcast.NewHub(nil)

	flushCtx, stopFlusher := context.WithCancel(context.Background())
	flusher := pool.NewFlusher(p, func(proj *score.Project) error {
		return store.Save(context.Background(), proj)
	}, opts.FlushInterval, nil)
	go flusher.Run(flushCtx)

	s := server.New(userSvc, projectSvc, sessionSvc, dispatcher, p, store, hub, nil)
	srv := httptest.NewServer(s.Handler())

	ts := &TestServer{
		Server:      srv,
		DB:          db,
		Pool:        p,
		Hub:         hub,
		Flusher:     flusher,
		Store:       store,
		stopFlusher: stopFlusher,
	}

	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		stopFlusher()
		flusher.Wait()
		_ = db.Close()
	})

	return ts
}

// Shutdown runs the graceful stop sequence early, before the test's
// cleanup would. Tests that assert on the final flush use this.
func (ts *TestServer) Shutdown() {
	ts.Server.Close()
	ts.Hub.Close()
	ts.stopFlusher()
	ts.Flusher.Wait()
}

// EventsURL is the websocket address for a cookie's event stream.
func (ts *TestServer) EventsURL(cookie string) string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/events?cookie=" + cookie
}
