package coord

import (
	"sort"
	"sync"
)

// Typing tracks ephemeral, non-persisted "is typing" facts per room. A fact
// lives until an explicit stop signal or the principal's disconnect; the
// tracker itself runs no timers.
type Typing struct {
	mu     sync.Mutex
	byRoom map[string]map[string]struct{}
	byUser map[string]map[string]struct{}
}

func NewTyping() *Typing {
	return &Typing{
		byRoom: make(map[string]map[string]struct{}),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Start inserts a typing fact. It reports whether the fact is new; duplicate
// starts for an already-typing principal are coalesced so the caller emits
// one broadcast per transition.
func (t *Typing) Start(roomID, principalID string) bool {
	if roomID == "" || principalID == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.byRoom[roomID]
	if !ok {
		room = make(map[string]struct{})
		t.byRoom[roomID] = room
	}
	if _, exists := room[principalID]; exists {
		return false
	}
	room[principalID] = struct{}{}

	user, ok := t.byUser[principalID]
	if !ok {
		user = make(map[string]struct{})
		t.byUser[principalID] = user
	}
	user[roomID] = struct{}{}
	return true
}

// Stop removes a typing fact, reporting whether one existed.
func (t *Typing) Stop(roomID, principalID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(roomID, principalID)
}

// StopAll removes every typing fact of a principal, returning the affected
// rooms so the caller can broadcast the stop to each. Used on disconnect.
func (t *Typing) StopAll(principalID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	user, ok := t.byUser[principalID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(user))
	for roomID := range user {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	for _, roomID := range rooms {
		t.remove(roomID, principalID)
	}
	return rooms
}

// IsTyping reports whether a typing fact exists.
func (t *Typing) IsTyping(roomID, principalID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.byRoom[roomID]
	if !ok {
		return false
	}
	_, exists := room[principalID]
	return exists
}

// remove must be called with t.mu held.
func (t *Typing) remove(roomID, principalID string) bool {
	room, ok := t.byRoom[roomID]
	if !ok {
		return false
	}
	if _, exists := room[principalID]; !exists {
		return false
	}
	delete(room, principalID)
	if len(room) == 0 {
		delete(t.byRoom, roomID)
	}
	if user, ok := t.byUser[principalID]; ok {
		delete(user, roomID)
		if len(user) == 0 {
			delete(t.byUser, principalID)
		}
	}
	return true
}
