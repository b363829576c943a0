package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jvossen/ensemble/internal/broadcast"
	"github.com/jvossen/ensemble/internal/domain/project"
	"github.com/jvossen/ensemble/internal/domain/session"
	"github.com/jvossen/ensemble/internal/domain/user"
	"github.com/jvossen/ensemble/internal/mutate"
	"github.com/jvossen/ensemble/internal/pool"
	"github.com/jvossen/ensemble/internal/server"
	"github.com/jvossen/ensemble/internal/sqlite"
	"github.com/jvossen/ensemble/internal/wire"
)

type fixture struct {
	srv  *httptest.Server
	pool *pool.Pool
	hub  *broadcast.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	projects := sqlite.NewProjectRepository(db)
	contributors := sqlite.NewContributorRepository(db)
	store := sqlite.NewScoreStore(db)

	p := pool.New()
	hub := broadcast.NewHub(nil)
	t.Cleanup(hub.Close)

	userSvc := user.NewService(users, contributors, nil)
	projectSvc := project.NewService(projects, users, contributors, store, nil)
	sessionSvc := session.NewService(contributors, store, p, nil)
	dispatcher := mutate.NewDispatcher(p, store, nil)

	s := server.New(userSvc, projectSvc, sessionSvc, dispatcher, p, store, hub, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, pool: p, hub: hub}
}

func (f *fixture) call(t *testing.T, name string, args ...string) wire.Reply {
	t.Helper()
	if args == nil {
		args = []string{}
	}
	body, err := json.Marshal(wire.Request{Name: name, Args: args})
	require.NoError(t, err)

	resp, err := http.Post(f.srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var reply wire.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func (f *fixture) mustOK(t *testing.T, name string, args ...string) any {
	t.Helper()
	reply := f.call(t, name, args...)
	require.Equal(t, wire.StatusOK, reply.Status, "handler %s: %v", name, reply.Payload)
	return reply.Payload
}

func (f *fixture) events(t *testing.T, cookie string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events?cookie=" + cookie
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandshake(t *testing.T) {
	f := newFixture(t)
	payload := f.mustOK(t, "handshake", server.ProtocolVersion)
	require.Equal(t, server.ProtocolVersion, payload)

	reply := f.call(t, "handshake", "0.0.1")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, server.ProtocolVersion, reply.Payload)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, "register", "alice", "hunter2", "alice@example.com")

	reply := f.call(t, "register", "alice", "other", "alice@example.com")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "Username is taken", reply.Payload)

	f.mustOK(t, "login", "alice", "hunter2")

	reply = f.call(t, "login", "alice", "wrong")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "failed to login", reply.Payload)

	reply = f.call(t, "login", "nobody", "hunter2")
	require.Equal(t, "failed to login", reply.Payload)
}

func TestProjectLifecycle(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, "register", "alice", "hunter2", "alice@example.com")

	id, ok := f.mustOK(t, "create_project", "alice", "Quartet", `{"style": "baroque"}`).(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	listing, ok := f.mustOK(t, "list_projects", "alice").([]any)
	require.True(t, ok)
	require.Len(t, listing, 1)
	entry := listing[0].(map[string]any)
	require.Equal(t, id, entry["id"])
	require.Equal(t, "Quartet", entry["name"])
	require.Equal(t, "alice", entry["owner"])

	payload := f.mustOK(t, "get_project", id).(map[string]any)
	require.Equal(t, id, payload["id"])
	require.Contains(t, payload["metadata"], "baroque")

	reply := f.call(t, "get_project", "no-such-project")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "What project is that", reply.Payload)

	reply = f.call(t, "create_project", "nobody", "X", "{}")
	require.Equal(t, "Who is that", reply.Payload)
}

func TestShareAndSubscribe(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, "register", "alice", "hunter2", "alice@example.com")
	f.mustOK(t, "register", "bob", "sekrit", "bob@example.com")
	id := f.mustOK(t, "create_project", "alice", "Quartet", "{}").(string)

	// Bob is not a contributor yet.
	reply := f.call(t, "subscribe", "bob", id)
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "You are not a contributor", reply.Payload)
	require.Zero(t, f.pool.Refs(id))

	reply = f.call(t, "share", "nobody", id)
	require.Equal(t, "Who is that", reply.Payload)
	reply = f.call(t, "share", "bob", "no-such-project")
	require.Equal(t, "What project is that", reply.Payload)

	f.mustOK(t, "share", "bob", id)

	cookie := f.mustOK(t, "subscribe", "bob", id).(string)
	require.NotEmpty(t, cookie)
	require.Equal(t, 1, f.pool.Refs(id))

	f.mustOK(t, "unsubscribe", cookie)
	require.Zero(t, f.pool.Refs(id))

	reply = f.call(t, "unsubscribe", cookie)
	require.Equal(t, "You are not subscribed", reply.Payload)
	reply = f.call(t, "unsubscribe", "not-a-uuid")
	require.Equal(t, "That doesn't look like a cookie", reply.Payload)
}

func TestUpdateAppliesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, "register", "alice", "hunter2", "alice@example.com")
	id := f.mustOK(t, "create_project", "alice", "Quartet", "{}").(string)
	cookie := f.mustOK(t, "subscribe", "alice", id).(string)

	conn := f.events(t, cookie)
	waitSubscribers(t, f.hub, id, 1)

	payload := f.mustOK(t, "update",
		cookie, id, "insertNote", `["0.0", "piano", "C4", "1.0"]`, "0", "0.0")
	affected := payload.(map[string]any)
	require.Equal(t, 0.0, affected["start"])
	require.Equal(t, 1.0, affected["end"])

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	broadcastReq, err := wire.DecodeRequest(msg)
	require.NoError(t, err)
	require.Equal(t, "update", broadcastReq.Name)
	require.Equal(t, "insertNote", broadcastReq.Args[2])

	// The sender's cookie is a bearer credential and must never reach
	// other subscribers.
	require.Empty(t, broadcastReq.Args[0])
	require.NotContains(t, string(msg), cookie)

	// The document kept the edit.
	doc := f.mustOK(t, "get_project", id).(map[string]any)
	require.Contains(t, doc["parts"], "C4")

	// The subscriber pin is the only pin left.
	require.Equal(t, 1, f.pool.Refs(id))
}

func TestFailedUpdateIsNotBroadcast(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, "register", "alice", "hunter2", "alice@example.com")
	id := f.mustOK(t, "create_project", "alice", "Quartet", "{}").(string)
	cookie := f.mustOK(t, "subscribe", "alice", id).(string)

	conn := f.events(t, cookie)
	waitSubscribers(t, f.hub, id, 1)

	reply := f.call(t, "update", cookie, id, "dropTables", "[]", "0", "0")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "INVALID OPERATION", reply.Payload)

	// Out-of-range part index fails after checkout; still no broadcast
	// and no leaked pin beyond the subscriber's.
	reply = f.call(t, "update", cookie, id, "insertNote", `["0", "p", "C4", "1"]`, "9", "0")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "Internal Server Error", reply.Payload)
	require.Equal(t, 1, f.pool.Refs(id))

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "nothing should have been broadcast")
}

func TestUpdateRequiresMatchingSession(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, "register", "alice", "hunter2", "alice@example.com")
	first := f.mustOK(t, "create_project", "alice", "One", "{}").(string)
	second := f.mustOK(t, "create_project", "alice", "Two", "{}").(string)
	cookie := f.mustOK(t, "subscribe", "alice", first).(string)

	reply := f.call(t, "update", "garbage", first, "chat", `["hi"]`, "", "")
	require.Equal(t, "That doesn't look like a cookie", reply.Payload)

	reply = f.call(t, "update",
		"00000000-0000-0000-0000-000000000000", first, "chat", `["hi"]`, "", "")
	require.Equal(t, "You are not subscribed", reply.Payload)

	// A real cookie for a different project does not work either.
	reply = f.call(t, "update", cookie, second, "chat", `["hi"]`, "", "")
	require.Equal(t, "You are not subscribed", reply.Payload)
}

func TestMalformedEnvelopes(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Post(f.srv.URL+"/rpc", "application/json", strings.NewReader(`[1,2]`))
	require.NoError(t, err)
	defer resp.Body.Close()
	var reply wire.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "Malformed request", reply.Payload)

	reply = f.call(t, "no_such_handler")
	require.Equal(t, wire.StatusFail, reply.Status)

	reply = f.call(t, "register", "too", "few")
	require.Equal(t, "wrong number of arguments", reply.Payload)
}

func TestEventsRequireSubscription(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events?cookie=unknown"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func waitSubscribers(t *testing.T, hub *broadcast.Hub, projectID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(projectID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("project %s never reached %d subscribers", projectID, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
