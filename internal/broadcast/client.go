package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendQueueSize bounds the per-subscriber backlog. A subscriber
	// that falls this far behind is dropped rather than allowed to
	// stall everyone else's fan-out.
	sendQueueSize = 64
)

// Client is one subscriber's event connection. The send channel is never
// closed; writers signal shutdown through done so concurrent publishers
// cannot panic on a closed channel.
type Client struct {
	cookie    string
	projectID string
	conn      *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(cookie, projectID string, conn *websocket.Conn) *Client {
	return &Client{
		cookie:    cookie,
		projectID: projectID,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// Done is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writeLoop drains the send queue onto the connection and keeps the
// peer alive with pings. It exits when the client is closed or a write
// fails.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// readLoop discards inbound frames. Subscribers only listen on this
// connection, but reading is still required to process control frames
// and notice disconnects.
func (c *Client) readLoop(onClose func()) {
	defer onClose()
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
