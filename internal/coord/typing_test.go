package coord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTyping_StartCoalescesDuplicates(t *testing.T) {
	tr := NewTyping()

	assert.True(t, tr.Start("room1", "alice"), "first start is a transition")
	assert.False(t, tr.Start("room1", "alice"), "duplicate start is coalesced")
	assert.True(t, tr.IsTyping("room1", "alice"))

	assert.True(t, tr.Start("room2", "alice"), "same user, different room is a new fact")
}

func TestTyping_Stop(t *testing.T) {
	tr := NewTyping()

	tr.Start("room1", "alice")
	assert.True(t, tr.Stop("room1", "alice"))
	assert.False(t, tr.IsTyping("room1", "alice"))
	assert.False(t, tr.Stop("room1", "alice"), "stopping an absent fact is a no-op")

	assert.True(t, tr.Start("room1", "alice"), "stop clears the coalescing state")
}

func TestTyping_StopAllOnDisconnect(t *testing.T) {
	tr := NewTyping()

	tr.Start("room1", "alice")
	tr.Start("room2", "alice")
	tr.Start("room1", "bob")

	rooms := tr.StopAll("alice")
	assert.Equal(t, []string{"room1", "room2"}, rooms)
	assert.False(t, tr.IsTyping("room1", "alice"))
	assert.False(t, tr.IsTyping("room2", "alice"))
	assert.True(t, tr.IsTyping("room1", "bob"), "other users' facts are untouched")

	assert.Empty(t, tr.StopAll("alice"), "second StopAll finds nothing")
}
