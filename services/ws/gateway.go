package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/notification"
	"github.com/trezcool/shule/core/user"
)

// client -> server ops
const (
	opJoin                 = "join"
	opLeave                = "leave"
	opTypingStart          = "typing-start"
	opTypingStop           = "typing-stop"
	opMarkNotificationRead = "mark-notification-read"
)

// clientFrame is what peers send over the wire. Unknown ops and malformed
// frames are dropped; they never tear the connection down.
type clientFrame struct {
	Op             string `json:"op"`
	Room           string `json:"room,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

// Gateway authenticates websocket handshakes and runs the read side of every
// accepted connection.
type Gateway struct {
	hub      *Hub
	auth     *user.TokenAuthority
	notifSvc *notification.Service
	logger   core.Logger
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, auth *user.TokenAuthority, notifSvc *notification.Service, logger core.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		auth:     auth,
		notifSvc: notifSvc,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 10,
			WriteBufferSize: 1 << 10,
			CheckOrigin:     func(r *http.Request) bool { return true }, // TODO: restrict to portal origins once they are fixed
		},
	}
}

// Connect upgrades an HTTP request to a websocket session. The credential is
// verified before the upgrade: a bad one fails the handshake without touching
// presence or room state. On success the connection is registered, auto-joined
// to its user's self room and the global room, and served until it drops.
func (g *Gateway) Connect(w http.ResponseWriter, r *http.Request) error {
	identity, err := g.auth.Verify(r.URL.Query().Get("token"))
	if err != nil {
		return err
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied to the client
		return nil
	}

	c := newConn(identity.UserID, identity.Name, sock)
	cameOnline := g.hub.Register(c)
	g.hub.Join(c, core.SelfRoom(c.UserID))
	g.hub.Join(c, core.RoomGlobal)

	go c.writePump()

	g.hub.Send(c, core.EventOnlineUsersList, g.hub.OnlineUsers())
	if cameOnline {
		g.hub.Broadcast(core.RoomGlobal, core.EventUserOnline, userPayload{UserID: c.UserID, Name: c.Name})
	}

	g.readPump(r.Context(), c)
	return nil
}

type userPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

type typingPayload struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name,omitempty"`
	ConversationID string `json:"conversation_id"`
	Typing         bool   `json:"typing"`
}

// readPump reads frames off a connection until it drops, then tears the
// connection down. One per connection; it owns all reads.
func (g *Gateway) readPump(ctx context.Context, c *Conn) {
	defer g.disconnect(c)

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("ws: read failed for conn "+c.ID, err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.logger.Debug("ws: dropping malformed frame from conn "+c.ID, err)
			continue
		}
		g.dispatch(ctx, c, frame)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *Conn, frame clientFrame) {
	switch frame.Op {
	case opJoin:
		room, err := core.ParseRoomID(frame.Room)
		if err != nil {
			g.logger.Debug("ws: dropping join for invalid room " + frame.Room)
			return
		}
		if userID, ok := room.SelfUserID(); ok && userID != c.UserID {
			return // self rooms are not joinable by other users
		}
		g.hub.Join(c, room)

	case opLeave:
		room, err := core.ParseRoomID(frame.Room)
		if err != nil {
			return
		}
		g.hub.Leave(c, room)

	case opTypingStart, opTypingStop:
		if frame.ConversationID == "" {
			return
		}
		g.hub.Broadcast(core.ConversationRoom(frame.ConversationID), core.EventTyping, typingPayload{
			UserID:         c.UserID,
			Name:           c.Name,
			ConversationID: frame.ConversationID,
			Typing:         frame.Op == opTypingStart,
		})

	case opMarkNotificationRead:
		n, err := g.notifSvc.Get(ctx, frame.NotificationID)
		if err != nil || n.UserID != c.UserID {
			return
		}
		if err := g.notifSvc.MarkRead(ctx, n.ID); err != nil {
			g.logger.Error("ws: marking notification read", err)
		}

	default:
		g.logger.Debug("ws: dropping unknown op " + frame.Op + " from conn " + c.ID)
	}
}

func (g *Gateway) disconnect(c *Conn) {
	if g.hub.Unregister(c) {
		g.hub.Broadcast(core.RoomGlobal, core.EventUserOffline, userPayload{UserID: c.UserID, Name: c.Name})
	}
}
