package coord

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresence_RegisterUnregister(t *testing.T) {
	p := NewPresence(testLogger(t))

	c1 := &fakeConn{}
	evicted, replaced := p.Register("alice", c1)
	assert.Nil(t, evicted, "first register must not evict")
	assert.False(t, replaced)
	assert.True(t, p.IsOnline("alice"))

	got, ok := p.Get("alice")
	assert.True(t, ok)
	assert.Same(t, c1, got.(*fakeConn))

	assert.True(t, p.Unregister("alice", c1))
	assert.False(t, p.IsOnline("alice"), "no stale online after unregister")
	assert.False(t, p.Unregister("alice", c1), "second unregister is silent")
}

func TestPresence_ReconnectEvictsOldConnection(t *testing.T) {
	p := NewPresence(testLogger(t))

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	p.Register("alice", c1)

	evicted, replaced := p.Register("alice", c2)
	assert.True(t, replaced)
	assert.Same(t, c1, evicted.(*fakeConn), "expected the first connection back for closing")

	// the old connection's disconnect arrives after the eviction; it must
	// not remove the new mapping
	assert.False(t, p.Unregister("alice", c1))
	assert.True(t, p.IsOnline("alice"))

	got, _ := p.Get("alice")
	assert.Same(t, c2, got.(*fakeConn))
}

func TestPresence_OnlineSnapshot(t *testing.T) {
	p := NewPresence(testLogger(t))
	p.Register("alice", &fakeConn{})
	p.Register("bob", &fakeConn{})
	p.Register("carol", &fakeConn{})
	p.Unregister("bob", mustGet(t, p, "bob"))

	assert.ElementsMatch(t, []string{"alice", "carol"}, p.OnlineSnapshot())
	assert.Equal(t, 2, p.Count())
}

func TestPresence_IsOnlineReflectsLastOperation(t *testing.T) {
	// interleave register/unregister pairs and check the registry always
	// reflects the most recent operation for the principal
	p := NewPresence(testLogger(t))

	for i := 0; i < 100; i++ {
		c := &fakeConn{}
		p.Register("alice", c)
		assert.True(t, p.IsOnline("alice"))
		p.Unregister("alice", c)
		assert.False(t, p.IsOnline("alice"))
	}
}

func TestPresence_ConcurrentRegisterSinglemapping(t *testing.T) {
	p := NewPresence(testLogger(t))

	var wg sync.WaitGroup
	conns := make([]*fakeConn, 32)
	for i := range conns {
		conns[i] = &fakeConn{}
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			if evicted, _ := p.Register("alice", c); evicted != nil {
				evicted.Close()
			}
		}(conns[i])
	}
	wg.Wait()

	// exactly one connection survives; every other one was evicted and
	// handed back for closing exactly once
	assert.Equal(t, 1, p.Count())
	winner, ok := p.Get("alice")
	assert.True(t, ok)

	closed := 0
	for _, c := range conns {
		if c.isClosed() {
			closed++
		} else {
			assert.Same(t, winner.(*fakeConn), c, "the only unclosed connection must be the registered one")
		}
	}
	assert.Equal(t, len(conns)-1, closed)
}

func mustGet(t *testing.T, p *Presence, id string) Conn {
	t.Helper()
	c, ok := p.Get(id)
	if !ok {
		t.Fatal(fmt.Sprintf("expected %s to be online", id))
	}
	return c
}
