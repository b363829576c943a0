// Package broadcast fans successful edits out to project subscribers
// over websocket connections. Each subscriber attaches with the session
// cookie it got from subscribing; publishes address a project and reach
// every attached cookie for it.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub tracks the live event connections grouped by project.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	clients  map[string]*Client
	projects map[string]map[*Client]struct{}
	closed   bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		clients:  make(map[string]*Client),
		projects: make(map[string]map[*Client]struct{}),
	}
}

// Attach registers a connection under a session cookie and starts its
// pumps. A second attach for the same cookie replaces the first. Attach
// blocks until the connection drops or the hub detaches it.
func (h *Hub) Attach(cookie, projectID string, conn *websocket.Conn) {
	client := newClient(cookie, projectID, conn)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if prev, ok := h.clients[cookie]; ok {
		h.removeLocked(prev)
		prev.close()
	}
	h.clients[cookie] = client
	set, ok := h.projects[projectID]
	if !ok {
		set = make(map[*Client]struct{})
		h.projects[projectID] = set
	}
	set[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscriber attached", "project_id", projectID)

	go client.writeLoop()
	client.readLoop(func() {
		h.detachClient(client)
	})
	<-client.Done()
}

// Detach drops the connection registered under cookie, if any.
func (h *Hub) Detach(cookie string) {
	h.mu.Lock()
	client, ok := h.clients[cookie]
	if ok {
		h.removeLocked(client)
	}
	h.mu.Unlock()
	if ok {
		client.close()
	}
}

// detachClient drops this exact client. If the cookie has since been
// claimed by a replacement connection, the replacement stays attached.
func (h *Hub) detachClient(client *Client) {
	h.mu.Lock()
	if current, ok := h.clients[client.cookie]; ok && current == client {
		h.removeLocked(client)
	}
	h.mu.Unlock()
	client.close()
}

// Publish queues msg for every subscriber of the project. A subscriber
// whose queue is full is dropped; the publish itself never blocks.
// Callers publishing under the project lock get per-project ordering
// for free, since enqueues happen before the lock is released.
func (h *Hub) Publish(projectID string, msg []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.projects[projectID] {
		select {
		case client.send <- msg:
		case <-client.done:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("dropping slow subscriber", "project_id", projectID)
		h.detachClient(client)
	}
}

// Subscribers reports how many connections a project currently has.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}

// Close drops every connection and rejects future attaches.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.projects = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
}

// removeLocked unlinks a client from both indexes. Caller holds mu.
func (h *Hub) removeLocked(client *Client) {
	delete(h.clients, client.cookie)
	set := h.projects[client.projectID]
	delete(set, client)
	if len(set) == 0 {
		delete(h.projects, client.projectID)
	}
}
