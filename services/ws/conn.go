package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/trezcool/shule/core"
)

const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4 << 10
	sendQueueSize  = 64
)

// Conn is one live connection of one authenticated user. It is ephemeral:
// destroyed on disconnect, never reused - a reconnecting client gets a brand
// new Conn with a new ID.
type Conn struct {
	ID     string
	UserID string
	Name   string

	sock *websocket.Conn
	send chan []byte

	// room memberships; guarded by the owning hub's mutex
	rooms map[core.RoomID]struct{}

	closeOnce sync.Once
}

func newConn(userID, name string, sock *websocket.Conn) *Conn {
	return &Conn{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
		sock:   sock,
		send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[core.RoomID]struct{}),
	}
}

// trySend queues data for the write pump without ever blocking the caller.
// A slow consumer with a full queue is skipped: the live path is best-effort.
func (c *Conn) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// writePump pumps queued messages out to the socket and keeps the
// connection alive with pings. One per connection; it owns all writes.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
