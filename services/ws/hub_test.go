package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/presence"
)

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newTestHub() *Hub {
	return NewHub(presence.NewRegistry(), nopLogger{})
}

// drain decodes every event currently queued on a connection.
func drain(t *testing.T, c *Conn) []Event {
	t.Helper()

	var evts []Event
	for {
		select {
		case data := <-c.send:
			var evt Event
			require.NoError(t, json.Unmarshal(data, &evt))
			evts = append(evts, evt)
		default:
			return evts
		}
	}
}

func TestHubBroadcastEmptyRoomIsNoop(t *testing.T) {
	hub := newTestHub()
	c := newConn("u1", "Amina", nil)
	hub.Register(c)

	hub.Broadcast(core.ConversationRoom("nobody-here"), core.EventMessageNew, "hi")

	assert.Empty(t, drain(t, c))
}

func TestHubBroadcastReachesRoomMembersInOrder(t *testing.T) {
	hub := newTestHub()
	c1 := newConn("u1", "Amina", nil)
	c2 := newConn("u2", "Baraka", nil)
	c3 := newConn("u3", "Chiku", nil)
	for _, c := range []*Conn{c1, c2, c3} {
		hub.Register(c)
	}
	room := core.ConversationRoom("c1")
	hub.Join(c1, room)
	hub.Join(c2, room)

	hub.Broadcast(room, core.EventMessageNew, "first")
	hub.Broadcast(room, core.EventMessageNew, "second")
	hub.Broadcast(room, core.EventTyping, nil)

	for _, c := range []*Conn{c1, c2} {
		evts := drain(t, c)
		require.Len(t, evts, 3)
		assert.Equal(t, core.EventMessageNew, evts[0].Event)
		assert.Equal(t, "first", evts[0].Data)
		assert.Equal(t, "second", evts[1].Data)
		assert.Equal(t, core.EventTyping, evts[2].Event)
	}
	assert.Empty(t, drain(t, c3))
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := newTestHub()
	c := newConn("u1", "Amina", nil)
	hub.Register(c)
	room := core.GroupRoom("g1")
	hub.Join(c, room)
	hub.Join(c, room)

	hub.Broadcast(room, core.EventAnnouncementNew, "once")

	assert.Len(t, drain(t, c), 1)
}

func TestHubJoinUnregisteredConnIsNoop(t *testing.T) {
	hub := newTestHub()
	c := newConn("u1", "Amina", nil)
	hub.Join(c, core.RoomGlobal)

	hub.Broadcast(core.RoomGlobal, core.EventUserOnline, nil)

	assert.Empty(t, drain(t, c))
}

func TestHubUnregisterLeavesAllRoomsAndTracksPresence(t *testing.T) {
	hub := newTestHub()
	c1 := newConn("u1", "Amina", nil)
	c2 := newConn("u1", "Amina", nil)

	assert.True(t, hub.Register(c1), "first connection must bring the user online")
	assert.False(t, hub.Register(c2), "second connection must not report online again")
	hub.Join(c1, core.RoomGlobal)
	hub.Join(c2, core.RoomGlobal)

	assert.False(t, hub.Unregister(c1), "user still has a live connection")
	assert.True(t, hub.Unregister(c2), "last connection must take the user offline")
	assert.False(t, hub.Unregister(c2), "repeated unregister must be a no-op")

	hub.Broadcast(core.RoomGlobal, core.EventUserOnline, nil)
	assert.Empty(t, hub.OnlineUsers())
}

func TestHubSlowConsumerIsSkipped(t *testing.T) {
	hub := newTestHub()
	c := newConn("u1", "Amina", nil)
	hub.Register(c)
	hub.Join(c, core.RoomGlobal)

	for i := 0; i < sendQueueSize+5; i++ {
		hub.Broadcast(core.RoomGlobal, core.EventMessageNew, i)
	}

	// overflow is dropped, the queue itself stays intact
	assert.Len(t, drain(t, c), sendQueueSize)
}

func TestHubCloseRejectsNewRegistrations(t *testing.T) {
	hub := newTestHub()
	c := newConn("u1", "Amina", nil)
	hub.Register(c)
	hub.Close()

	assert.Empty(t, hub.OnlineUsers())
	assert.False(t, hub.Register(newConn("u2", "Baraka", nil)))
}
