package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jvossen/ensemble/internal/server"
	"github.com/jvossen/ensemble/internal/testserver"
	"github.com/jvossen/ensemble/internal/wire"
)

func call(t *testing.T, ts *testserver.TestServer, name string, args ...string) wire.Reply {
	t.Helper()
	if args == nil {
		args = []string{}
	}
	body, err := json.Marshal(wire.Request{Name: name, Args: args})
	require.NoError(t, err)

	resp, err := http.Post(ts.Server.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var reply wire.Reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	return reply
}

func mustOK(t *testing.T, ts *testserver.TestServer, name string, args ...string) any {
	t.Helper()
	reply := call(t, ts, name, args...)
	require.Equal(t, wire.StatusOK, reply.Status, "handler %s: %v", name, reply.Payload)
	return reply.Payload
}

func readBroadcast(t *testing.T, conn *websocket.Conn) wire.Request {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	req, err := wire.DecodeRequest(msg)
	require.NoError(t, err)
	return req
}

// TestCollaborationWorkflow drives the whole stack the way two clients
// would: account setup, project creation, sharing, subscription, edits
// fanned out over the event stream, and teardown.
func TestCollaborationWorkflow(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})

	require.Equal(t, server.ProtocolVersion, mustOK(t, ts, "handshake", server.ProtocolVersion))

	mustOK(t, ts, "register", "alice", "hunter2", "alice@example.com")
	mustOK(t, ts, "register", "bob", "sekrit", "bob@example.com")

	mustOK(t, ts, "login", "alice", "hunter2")
	id := mustOK(t, ts, "create_project", "alice", "Quartet", `{"style": "baroque"}`).(string)

	// Bob can see it only after alice shares it.
	listing := mustOK(t, ts, "list_projects", "bob").([]any)
	require.Empty(t, listing)
	mustOK(t, ts, "share", "bob", id)
	listing = mustOK(t, ts, "list_projects", "bob").([]any)
	require.Len(t, listing, 1)

	aliceCookie := mustOK(t, ts, "subscribe", "alice", id).(string)
	bobCookie := mustOK(t, ts, "subscribe", "bob", id).(string)
	require.Equal(t, 2, ts.Pool.Refs(id))

	bobConn, _, err := websocket.DefaultDialer.Dial(ts.EventsURL(bobCookie), nil)
	require.NoError(t, err)
	defer bobConn.Close()
	waitFor(t, func() bool { return ts.Hub.Subscribers(id) == 1 })

	// Alice edits; bob sees every accepted edit, in order.
	mustOK(t, ts, "update", aliceCookie, id, "insertNote", `["0.0", "piano", "C4", "1.0"]`, "0", "0.0")
	mustOK(t, ts, "update", aliceCookie, id, "changeKeySignature", `["0.0", "piano", "2"]`, "0", "0.0")
	mustOK(t, ts, "update", aliceCookie, id, "chat", `["nice"]`, "", "")

	first := readBroadcast(t, bobConn)
	require.Equal(t, "insertNote", first.Args[2])
	second := readBroadcast(t, bobConn)
	require.Equal(t, "changeKeySignature", second.Args[2])
	third := readBroadcast(t, bobConn)
	require.Equal(t, "chat", third.Args[2])

	// Alice's cookie would let bob act as her; the fan-out blanks it.
	for _, req := range []wire.Request{first, second, third} {
		require.Empty(t, req.Args[0])
		require.NotEqual(t, aliceCookie, req.Args[0])
	}

	// A rejected edit reaches nobody.
	reply := call(t, ts, "update", bobCookie, id, "explode", "[]", "0", "0")
	require.Equal(t, wire.StatusFail, reply.Status)
	require.Equal(t, "INVALID OPERATION", reply.Payload)

	doc := mustOK(t, ts, "get_project", id).(map[string]any)
	require.Contains(t, doc["parts"], "C4")

	mustOK(t, ts, "unsubscribe", aliceCookie)
	require.Equal(t, 1, ts.Pool.Refs(id))
	mustOK(t, ts, "unsubscribe", bobCookie)
	require.Zero(t, ts.Pool.Refs(id))

	// The final release persisted the edits.
	proj, err := ts.Store.Load(context.Background(), id)
	require.NoError(t, err)
	part, err := proj.Part(0)
	require.NoError(t, err)
	require.Len(t, part.Notes, 1)
	require.Equal(t, "C4", part.Notes[0].Pitch)
}

// TestShutdownFlushesPinnedDocuments covers the stop sequence: documents
// still pinned by subscribers are written out by the flusher's final
// pass.
func TestShutdownFlushesPinnedDocuments(t *testing.T) {
	ts := testserver.New(t, testserver.Options{})

	mustOK(t, ts, "register", "alice", "hunter2", "alice@example.com")
	id := mustOK(t, ts, "create_project", "alice", "Quartet", "{}").(string)
	cookie := mustOK(t, ts, "subscribe", "alice", id).(string)
	mustOK(t, ts, "update", cookie, id, "insertNote", `["4.0", "piano", "G4", "2.0"]`, "0", "4.0")

	// Never unsubscribed; the document is only in memory.
	ts.Shutdown()

	proj, err := ts.Store.Load(context.Background(), id)
	require.NoError(t, err)
	part, err := proj.Part(0)
	require.NoError(t, err)
	require.Len(t, part.Notes, 1)
	require.Equal(t, "G4", part.Notes[0].Pitch)
}

// TestPeriodicFlushKeepsStoreFresh runs with a fast flush interval and
// checks that the stored copy catches up while the pin stays put.
func TestPeriodicFlushKeepsStoreFresh(t *testing.T) {
	ts := testserver.New(t, testserver.Options{FlushInterval: 50 * time.Millisecond})

	mustOK(t, ts, "register", "alice", "hunter2", "alice@example.com")
	id := mustOK(t, ts, "create_project", "alice", "Quartet", "{}").(string)
	cookie := mustOK(t, ts, "subscribe", "alice", id).(string)
	mustOK(t, ts, "update", cookie, id, "insertNote", `["0.0", "piano", "E4", "1.0"]`, "0", "0.0")

	waitFor(t, func() bool {
		proj, err := ts.Store.Load(context.Background(), id)
		if err != nil {
			return false
		}
		part, err := proj.Part(0)
		return err == nil && len(part.Notes) == 1
	})

	// Flushing never evicts.
	require.Equal(t, 1, ts.Pool.Refs(id))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
