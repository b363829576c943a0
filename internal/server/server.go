// Package server is the client-facing surface: an RPC endpoint that
// routes requests to the domain services and an event endpoint that
// streams successful edits to project subscribers.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jvossen/ensemble/internal/broadcast"
	"github.com/jvossen/ensemble/internal/domain/project"
	"github.com/jvossen/ensemble/internal/domain/session"
	"github.com/jvossen/ensemble/internal/domain/user"
	"github.com/jvossen/ensemble/internal/mutate"
	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/repository"
	"github.com/jvossen/ensemble/internal/wire"
)

// ProtocolVersion is exchanged during the handshake. Clients on a
// different version are told to upgrade before anything else.
const ProtocolVersion = "1.0.0"

type handlerFunc func(ctx context.Context, args []string) wire.Reply

// Server wires the request surface to the domain services. One instance
// serves every project.
type Server struct {
	logger *slog.Logger

	users    *user.Service
	projects *project.Service
	sessions *session.Service

	dispatcher *mutate.Dispatcher
	pool       *pool.Pool
	store      repository.ScoreStore
	hub        *broadcast.Hub

	handlers map[string]handlerFunc
	upgrader websocket.Upgrader
	router   *mux.Router
}

func New(
	users *user.Service,
	projects *project.Service,
	sessions *session.Service,
	dispatcher *mutate.Dispatcher,
	p *pool.Pool,
	store repository.ScoreStore,
	hub *broadcast.Hub,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:     logger,
		users:      users,
		projects:   projects,
		sessions:   sessions,
		dispatcher: dispatcher,
		pool:       p,
		store:      store,
		hub:        hub,
	}
	s.handlers = map[string]handlerFunc{
		"register":       s.handleRegister,
		"login":          s.handleLogin,
		"create_project": s.handleCreateProject,
		"list_projects":  s.handleListProjects,
		"get_project":    s.handleGetProject,
		"subscribe":      s.handleSubscribe,
		"unsubscribe":    s.handleUnsubscribe,
		"update":         s.handleUpdate,
		"handshake":      s.handleHandshake,
		"share":          s.handleShare,
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Methods(http.MethodPost).Path("/rpc").HandlerFunc(s.serveRPC)
	r.Methods(http.MethodGet).Path("/events").HandlerFunc(s.serveEvents)
	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.serveHealth)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method, "url", r.URL.Path,
			"status", m.Code, "duration", m.Duration)
	})
}

// serveEvents upgrades the connection and attaches it to the broadcast
// hub under the caller's session cookie. The cookie must belong to a
// live subscription.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	cookie := r.URL.Query().Get("cookie")
	sess, ok := s.sessions.Resolve(cookie)
	if !ok {
		http.Error(w, "You are not subscribed", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.hub.Attach(cookie, sess.ProjectID, conn)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
