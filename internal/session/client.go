package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one user's live attachment to a note room. The generated ID is the
// ownership key for presence and unicast lookups; the websocket conn is never
// used as a map key.
type Client struct {
	ID       string
	UserName string
	NoteID   string
	JoinedAt time.Time

	conn *websocket.Conn
	mu   sync.Mutex
	hook func([]byte) error
}

func NewClient(conn *websocket.Conn, noteID, userName string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserName: userName,
		NoteID:   noteID,
		JoinedAt: time.Now().UTC(),
		conn:     conn,
	}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func([]byte) error) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// send writes one pre-serialized frame. A non-nil error means the transport is
// broken and the client should be detached.
func (c *Client) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		return c.hook(data)
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
