package coord

import (
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"parley/internal/event"
)

// fakeConn records everything the coordinator sends on it.
type fakeConn struct {
	mu     sync.Mutex
	events []event.WsEvent
	closed bool
	full   bool // simulate a saturated egress buffer
}

func (c *fakeConn) Send(ev event.WsEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) eventNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		names = append(names, ev.Event)
	}
	return names
}

func (c *fakeConn) eventsOf(name string) []event.WsEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.WsEvent
	for _, ev := range c.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) countOf(name string) int {
	return len(c.eventsOf(name))
}

func decodePayload[T any](t *testing.T, ev event.WsEvent) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		t.Fatalf("failed to decode %s payload: %v", ev.Event, err)
	}
	return out
}

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}
