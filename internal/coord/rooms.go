package coord

import (
	"crypto/sha1"
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"parley/internal/event"
)

const shardCount = 64 // tune: 16/64/128 depending on load

type memberSet map[string]struct{}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]memberSet
}

// Rooms maintains membership sets for personal, direct and group rooms and
// fans events out to the live connection of every member. Membership is keyed
// by principal id, not connection, so it survives reconnects; the live
// fan-out target is resolved through the Presence Registry at send time.
type Rooms struct {
	shards   [shardCount]*roomBucket
	presence *Presence
	log      *zap.Logger

	// reverse index: principal -> rooms joined, for presence fan-out
	indexMu     sync.RWMutex
	memberships map[string]map[string]struct{}
}

func NewRooms(presence *Presence, log *zap.Logger) *Rooms {
	r := &Rooms{
		presence:    presence,
		log:         log,
		memberships: make(map[string]map[string]struct{}),
	}
	for i := 0; i < shardCount; i++ {
		r.shards[i] = &roomBucket{rooms: make(map[string]memberSet)}
	}
	return r
}

func getShard(roomID string) uint32 {
	if roomID == "" {
		return 0
	}
	h := sha1.Sum([]byte(roomID))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

// DirectRoom computes the implicit room key for a pair of principals,
// independent of which side asks.
func DirectRoom(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "direct_" + a + ":" + b
}

// IsDirectRoom reports whether a room key names a direct chat.
func IsDirectRoom(roomID string) bool {
	return strings.HasPrefix(roomID, "direct_")
}

// Join adds a principal to a room. Idempotent.
func (r *Rooms) Join(roomID, principalID string) {
	if roomID == "" || principalID == "" {
		return
	}

	b := r.shards[getShard(roomID)]
	b.Lock()
	members, ok := b.rooms[roomID]
	if !ok {
		members = make(memberSet)
		b.rooms[roomID] = members
	}
	members[principalID] = struct{}{}
	b.Unlock()

	r.indexMu.Lock()
	joined, ok := r.memberships[principalID]
	if !ok {
		joined = make(map[string]struct{})
		r.memberships[principalID] = joined
	}
	joined[roomID] = struct{}{}
	r.indexMu.Unlock()
}

// Leave removes a principal from a room. Idempotent; leaving a room the
// principal never joined has no effect.
func (r *Rooms) Leave(roomID, principalID string) {
	b := r.shards[getShard(roomID)]
	b.Lock()
	if members, ok := b.rooms[roomID]; ok {
		delete(members, principalID)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
	b.Unlock()

	r.indexMu.Lock()
	if joined, ok := r.memberships[principalID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.memberships, principalID)
		}
	}
	r.indexMu.Unlock()
}

// Members returns a snapshot of a room's membership.
func (r *Rooms) Members(roomID string) []string {
	b := r.shards[getShard(roomID)]
	b.RLock()
	defer b.RUnlock()

	members, ok := b.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoomsOf returns every room the principal currently belongs to.
func (r *Rooms) RoomsOf(principalID string) []string {
	r.indexMu.RLock()
	defer r.indexMu.RUnlock()

	joined, ok := r.memberships[principalID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(joined))
	for id := range joined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Broadcast delivers ev to the live connection of every online member of the
// room, skipping exclude. Offline members are skipped silently; queuing for
// them is the push collaborator's job, triggered separately by the caller.
// Returns the number of connections the event was enqueued on.
func (r *Rooms) Broadcast(roomID string, ev event.WsEvent, exclude string) int {
	b := r.shards[getShard(roomID)]
	b.RLock()
	members, ok := b.rooms[roomID]
	if !ok || len(members) == 0 {
		b.RUnlock()
		return 0
	}
	targets := make([]string, 0, len(members))
	for id := range members {
		if id != exclude {
			targets = append(targets, id)
		}
	}
	b.RUnlock()

	delivered := 0
	for _, id := range targets {
		conn, online := r.presence.Get(id)
		if !online {
			continue
		}
		if conn.Send(ev) {
			delivered++
		} else {
			r.log.Warn("dropping event for slow connection",
				zap.String("user_id", id),
				zap.String("room_id", roomID),
				zap.String("event", ev.Event),
			)
		}
	}
	return delivered
}

// Route delivers ev directly to one principal's live connection. The return
// value tells the caller whether the principal was online, so it can decide
// to invoke the push collaborator instead.
func (r *Rooms) Route(principalID string, ev event.WsEvent) bool {
	conn, online := r.presence.Get(principalID)
	if !online {
		return false
	}
	if !conn.Send(ev) {
		r.log.Warn("dropping event for slow connection",
			zap.String("user_id", principalID),
			zap.String("event", ev.Event),
		)
	}
	return true
}
