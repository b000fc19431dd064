package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/channels"
)

// ConnInfo carries the identity attached to one websocket connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one websocket connection attached to the channel registry.
// Writes are serialized; gorilla connections allow one writer at a time.
type Client struct {
	conn *websocket.Conn
	info ConnInfo

	writeMu sync.Mutex
	closed  bool
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, info: info}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.info.ConnID }

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() int { return c.info.UserID }

// Send writes one envelope as a JSON text frame.
func (c *Client) Send(env channels.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteJSON(env)
}

// Close shuts the underlying connection. Safe to call more than once.
func (c *Client) Close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}
