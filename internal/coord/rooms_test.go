package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"parley/internal/event"
)

func newTestRooms(t *testing.T) (*Rooms, *Presence) {
	t.Helper()
	p := NewPresence(testLogger(t))
	return NewRooms(p, testLogger(t)), p
}

func TestRooms_JoinLeaveIdempotent(t *testing.T) {
	rooms, _ := newTestRooms(t)

	rooms.Join("room1", "alice")
	rooms.Join("room1", "alice")
	rooms.Join("room1", "bob")
	assert.Equal(t, []string{"alice", "bob"}, rooms.Members("room1"))

	rooms.Leave("room1", "alice")
	rooms.Leave("room1", "alice")
	assert.Equal(t, []string{"bob"}, rooms.Members("room1"))

	rooms.Leave("room1", "carol") // never joined
	assert.Equal(t, []string{"bob"}, rooms.Members("room1"))
}

func TestRooms_RoomsOf(t *testing.T) {
	rooms, _ := newTestRooms(t)

	rooms.Join("room1", "alice")
	rooms.Join("group_7", "alice")
	rooms.Join("room2", "bob")

	assert.Equal(t, []string{"group_7", "room1"}, rooms.RoomsOf("alice"))
	assert.Empty(t, rooms.RoomsOf("carol"))

	rooms.Leave("room1", "alice")
	rooms.Leave("group_7", "alice")
	assert.Empty(t, rooms.RoomsOf("alice"))
}

func TestRooms_BroadcastSkipsOfflineAndExcluded(t *testing.T) {
	rooms, presence := newTestRooms(t)

	alice, bob := &fakeConn{}, &fakeConn{}
	presence.Register("alice", alice)
	presence.Register("bob", bob)

	rooms.Join("room1", "alice")
	rooms.Join("room1", "bob")
	rooms.Join("room1", "carol") // member but offline

	n := rooms.Broadcast("room1", event.New("test-event", nil), "alice")
	assert.Equal(t, 1, n, "only bob is online and not excluded")
	assert.Equal(t, []string{"test-event"}, bob.eventNames())
	assert.Empty(t, alice.eventNames(), "sender must not receive its own broadcast")
}

func TestRooms_BroadcastEmptyRoomIsNoop(t *testing.T) {
	rooms, _ := newTestRooms(t)
	assert.Equal(t, 0, rooms.Broadcast("nobody-home", event.New("test-event", nil), ""))
}

func TestRooms_MembershipSurvivesReconnect(t *testing.T) {
	rooms, presence := newTestRooms(t)

	c1 := &fakeConn{}
	presence.Register("alice", c1)
	rooms.Join("group_1", "alice")

	presence.Unregister("alice", c1)
	assert.Equal(t, 0, rooms.Broadcast("group_1", event.New("test-event", nil), ""),
		"offline member is skipped, not removed")

	// reconnect with a fresh connection: fan-out resolves the new target
	c2 := &fakeConn{}
	presence.Register("alice", c2)
	assert.Equal(t, 1, rooms.Broadcast("group_1", event.New("test-event", nil), ""))
	assert.Equal(t, []string{"test-event"}, c2.eventNames())
}

func TestRooms_Route(t *testing.T) {
	rooms, presence := newTestRooms(t)

	bob := &fakeConn{}
	presence.Register("bob", bob)

	assert.True(t, rooms.Route("bob", event.New("direct", nil)))
	assert.Equal(t, []string{"direct"}, bob.eventNames())

	assert.False(t, rooms.Route("carol", event.New("direct", nil)),
		"routing to an offline principal reports offline for push fallback")
}

func TestDirectRoom(t *testing.T) {
	assert.Equal(t, DirectRoom("alice", "bob"), DirectRoom("bob", "alice"))
	assert.NotEqual(t, DirectRoom("alice", "bob"), DirectRoom("alice", "carol"))
	assert.True(t, IsDirectRoom(DirectRoom("alice", "bob")))
	assert.False(t, IsDirectRoom("group_1"))
}
