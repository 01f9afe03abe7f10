package core

import (
	"strings"

	"github.com/pkg/errors"
)

// Rooms are named groups of live connections that receive the same
// broadcast. They are derived from connection membership, never persisted.
//
// Categories:
//   self:{userID}     - all connections of one user
//   conversation:{id} - members of a conversation
//   group:{id}        - members of a school group (class, parents, staff...)
//   global            - every authenticated connection
type RoomID string

const (
	RoomGlobal RoomID = "global"

	roomSelfPrefix         = "self:"
	roomConversationPrefix = "conversation:"
	roomGroupPrefix        = "group:"
)

var ErrInvalidRoom = errors.New("invalid room")

func SelfRoom(userID string) RoomID { return RoomID(roomSelfPrefix + userID) }

func ConversationRoom(id string) RoomID { return RoomID(roomConversationPrefix + id) }

func GroupRoom(id string) RoomID { return RoomID(roomGroupPrefix + id) }

// ParseRoomID validates a client-provided room name.
func ParseRoomID(s string) (RoomID, error) {
	s = CleanString(s)
	if s == string(RoomGlobal) {
		return RoomGlobal, nil
	}
	for _, prefix := range []string{roomSelfPrefix, roomConversationPrefix, roomGroupPrefix} {
		if key := strings.TrimPrefix(s, prefix); key != s && key != "" {
			return RoomID(s), nil
		}
	}
	return "", ErrInvalidRoom
}

// SelfUserID returns the owning user ID of a self room.
func (r RoomID) SelfUserID() (string, bool) {
	key := strings.TrimPrefix(string(r), roomSelfPrefix)
	if key == string(r) || key == "" {
		return "", false
	}
	return key, true
}

// Live channel event names (server -> client).
const (
	EventNotification            = "notification"
	EventNotificationUnreadCount = "notification-unread-count"
	EventMessageNew              = "message-new"
	EventTyping                  = "typing"
	EventOnlineUsersList         = "online-users-list"
	EventAnnouncementNew         = "announcement-new"
	EventLiveClassStarted        = "live-class-started"
	EventLiveClassEnded          = "live-class-ended"
	EventUserOnline              = "user-online"
	EventUserOffline             = "user-offline"
)

// Broadcaster is any service that can deliver an event to every connection
// currently joined to a room. Broadcasting to an empty room is a no-op;
// delivery on the live path is best-effort.
type Broadcaster interface {
	Broadcast(room RoomID, event string, payload interface{})
}
