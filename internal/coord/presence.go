package coord

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type presenceEntry struct {
	conn     Conn
	joinedAt time.Time
}

// Presence maps each principal to at most one live connection. A later
// Register for the same principal supersedes the earlier connection; the
// caller force-closes the evicted one and runs its disconnect cleanup.
// Register and Unregister are a single atomic check-and-set per principal so
// a transition is observed at most once even under races.
type Presence struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry
	log     *zap.Logger
}

func NewPresence(log *zap.Logger) *Presence {
	return &Presence{
		entries: make(map[string]*presenceEntry),
		log:     log,
	}
}

// Register inserts the mapping for principalID. When a connection already
// existed it is returned as evicted and replaced reports true; the mapping
// then points at conn either way.
func (p *Presence) Register(principalID string, conn Conn) (evicted Conn, replaced bool) {
	p.mu.Lock()
	prev, ok := p.entries[principalID]
	p.entries[principalID] = &presenceEntry{conn: conn, joinedAt: time.Now()}
	p.mu.Unlock()

	if ok {
		p.log.Info("superseding live connection",
			zap.String("user_id", principalID),
		)
		return prev.conn, true
	}
	return nil, false
}

// Unregister removes the mapping for principalID, but only while it still
// points at conn. A disconnect racing with an eviction finds the mapping
// already replaced and is silently ignored; that race is expected.
func (p *Presence) Unregister(principalID string, conn Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[principalID]
	if !ok || entry.conn != conn {
		return false
	}
	delete(p.entries, principalID)
	return true
}

// Get returns the live connection for a principal, if any.
func (p *Presence) Get(principalID string) (Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[principalID]
	if !ok {
		return nil, false
	}
	return entry.conn, true
}

func (p *Presence) IsOnline(principalID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[principalID]
	return ok
}

// OnlineSnapshot returns the ids of every currently connected principal.
// Used by the push collaborator path to decide on out-of-band delivery.
func (p *Presence) OnlineSnapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live connections.
func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
