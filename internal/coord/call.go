package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parley/internal/event"
	"parley/internal/model"
)

type pendingSignal struct {
	from string
	data json.RawMessage
}

// callSession is the live state of one call. The durable record is written
// through the CallStore; only the persisted id links the two.
type callSession struct {
	id         string // session table key; equals recordID once persisted
	recordID   string // empty while the record write is still in flight
	callerID   string
	receiverID string
	callType   string
	state      string
	pending    []pendingSignal
	flushing   bool // Answer is draining pending; relays keep buffering
	createdAt  time.Time
	answeredAt *time.Time
}

func (s *callSession) hasParticipant(userID string) bool {
	return userID == s.callerID || userID == s.receiverID
}

func (s *callSession) other(userID string) string {
	if userID == s.callerID {
		return s.receiverID
	}
	return s.callerID
}

func terminalState(state string) bool {
	return state == event.CallStateEnded || state == event.CallStateFailed
}

// Calls orchestrates call signaling: the per-call state machine, the
// negotiation-data buffer and disconnect-triggered cleanup. All session table
// mutations happen under one mutex; persistence and routing happen outside
// it so critical sections stay short.
type Calls struct {
	store    CallStore
	users    UserStore
	rooms    *Rooms
	presence *Presence
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*callSession
	byUser   map[string]string // principal -> active session key
}

func NewCalls(store CallStore, users UserStore, rooms *Rooms, presence *Presence, log *zap.Logger) *Calls {
	return &Calls{
		store:    store,
		users:    users,
		rooms:    rooms,
		presence: presence,
		log:      log,
		sessions: make(map[string]*callSession),
		byUser:   make(map[string]string),
	}
}

// Initiate starts a call from callerID to the payload's receiver. It is
// rejected with ErrCapacity when either party already has a non-terminal
// session and with ErrUnavailable when the receiver is offline; in the
// offline case no call record is created. On success the session enters
// ringing, a call record is persisted and the offer is routed to the
// receiver's personal room.
func (c *Calls) Initiate(ctx context.Context, callerID string, p model.CallInitiatePayload) (string, error) {
	if p.CallType != event.CallTypeVoice && p.CallType != event.CallTypeVideo {
		return "", fmt.Errorf("initiate call: unknown call type %q: %w", p.CallType, ErrInvalidState)
	}
	if p.ReceiverID == "" || p.ReceiverID == callerID {
		return "", fmt.Errorf("initiate call: bad receiver: %w", ErrInvalidState)
	}

	now := time.Now()
	session := &callSession{
		id:         "pending_" + uuid.New().String(),
		callerID:   callerID,
		receiverID: p.ReceiverID,
		callType:   p.CallType,
		state:      event.CallStateRinging,
		createdAt:  now,
	}

	c.mu.Lock()
	if _, busy := c.byUser[callerID]; busy {
		c.mu.Unlock()
		return "", fmt.Errorf("initiate call: caller already in a call: %w", ErrCapacity)
	}
	if _, busy := c.byUser[p.ReceiverID]; busy {
		c.mu.Unlock()
		return "", fmt.Errorf("initiate call: receiver already in a call: %w", ErrCapacity)
	}
	if !c.presence.IsOnline(p.ReceiverID) {
		c.mu.Unlock()
		return "", fmt.Errorf("initiate call: receiver offline: %w", ErrUnavailable)
	}
	// reserve both parties before the record write so a concurrent
	// initiate cannot slip in while we are suspended on persistence
	c.sessions[session.id] = session
	c.byUser[callerID] = session.id
	c.byUser[p.ReceiverID] = session.id
	c.mu.Unlock()

	record := &model.Call{
		CallerID:   callerID,
		ReceiverID: p.ReceiverID,
		CallType:   p.CallType,
		Status:     event.CallStateRinging,
		CreatedAt:  now,
	}
	recordID, err := c.store.CreateCallRecord(ctx, record)
	if err != nil {
		c.mu.Lock()
		c.removeLocked(session)
		c.mu.Unlock()
		return "", fmt.Errorf("initiate call: %w: %w", ErrPersistence, err)
	}

	c.mu.Lock()
	if _, ok := c.sessions[session.id]; !ok {
		// a disconnect finalized the reservation while the record write
		// was in flight
		c.mu.Unlock()
		endedAt := time.Now()
		if uerr := c.store.UpdateCallRecord(ctx, recordID, model.CallRecordUpdate{
			Status:    event.CallStateEnded,
			EndReason: event.CallEndReasonDisconnected,
			EndedAt:   &endedAt,
		}); uerr != nil {
			c.log.Error("failed to close orphaned call record", zap.String("call_id", recordID), zap.Error(uerr))
		}
		return "", fmt.Errorf("initiate call: %w", ErrUnavailable)
	}
	delete(c.sessions, session.id)
	session.id = recordID
	session.recordID = recordID
	c.sessions[recordID] = session
	c.byUser[callerID] = recordID
	c.byUser[p.ReceiverID] = recordID
	c.mu.Unlock()

	caller := model.UserRef{ID: callerID}
	if u, err := c.users.GetUser(ctx, callerID); err == nil {
		caller.Username = u.Username
		caller.Avatar = u.Avatar
	}

	c.rooms.Route(p.ReceiverID, event.New(event.EventCallIncoming, model.CallIncomingEvent{
		CallID:   recordID,
		CallType: p.CallType,
		Caller:   caller,
		Offer:    p.Offer,
	}))

	c.log.Info("call initiated",
		zap.String("call_id", recordID),
		zap.String("caller_id", callerID),
		zap.String("receiver_id", p.ReceiverID),
		zap.String("call_type", p.CallType),
	)
	return recordID, nil
}

// Answer transitions ringing -> answered. Only the session's receiver may
// answer, and only the first of two concurrent answers succeeds; the other
// observes the state already advanced. Negotiation data buffered during
// ringing is flushed in arrival order after the answer is routed.
func (c *Calls) Answer(ctx context.Context, callID, by string, answer json.RawMessage) error {
	c.mu.Lock()
	s, ok := c.sessions[callID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("answer call %s: %w", callID, ErrNotFound)
	}
	if !s.hasParticipant(by) {
		c.mu.Unlock()
		return fmt.Errorf("answer call %s: %w", callID, ErrUnauthorized)
	}
	if by != s.receiverID {
		c.mu.Unlock()
		return fmt.Errorf("answer call %s: only the receiver may answer: %w", callID, ErrUnauthorized)
	}
	if s.state != event.CallStateRinging {
		c.mu.Unlock()
		return fmt.Errorf("answer call %s in state %s: %w", callID, s.state, ErrInvalidState)
	}
	now := time.Now()
	s.state = event.CallStateAnswered
	s.answeredAt = &now
	s.flushing = true
	callerID, receiverID := s.callerID, s.receiverID
	c.mu.Unlock()

	if err := c.store.UpdateCallRecord(ctx, callID, model.CallRecordUpdate{Status: event.CallStateAnswered}); err != nil {
		c.log.Error("failed to persist answered status", zap.String("call_id", callID), zap.Error(err))
	}

	c.rooms.Route(callerID, event.New(event.EventCallAnswered, model.CallAnsweredEvent{
		CallID: callID,
		Answer: answer,
	}))

	// data generated before the remote description existed becomes
	// meaningful now; deliver it in the order it arrived. A relay that
	// races this flush keeps buffering until the backlog is drained, so
	// it cannot overtake signals that arrived earlier.
	flushed := 0
	for {
		c.mu.Lock()
		if len(s.pending) == 0 {
			s.flushing = false
			c.mu.Unlock()
			break
		}
		batch := s.pending
		s.pending = nil
		c.mu.Unlock()
		for _, sig := range batch {
			target := receiverID
			if sig.from == receiverID {
				target = callerID
			}
			c.rooms.Route(target, event.New(event.EventCallSignal, model.CallSignalEvent{
				CallID:    callID,
				Candidate: sig.data,
				From:      sig.from,
			}))
		}
		flushed += len(batch)
	}

	c.log.Info("call answered", zap.String("call_id", callID), zap.Int("flushed_signals", flushed))
	return nil
}

// Relay forwards opaque negotiation data between participants. While the
// session is still ringing, or while an answer is draining the ringing-time
// backlog, the data is buffered; afterwards it is routed immediately to the
// other party.
func (c *Calls) Relay(callID, from string, data json.RawMessage) error {
	c.mu.Lock()
	s, ok := c.sessions[callID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("relay on call %s: %w", callID, ErrNotFound)
	}
	if !s.hasParticipant(from) {
		c.mu.Unlock()
		return fmt.Errorf("relay on call %s: %w", callID, ErrUnauthorized)
	}
	if terminalState(s.state) {
		c.mu.Unlock()
		return fmt.Errorf("relay on call %s in state %s: %w", callID, s.state, ErrInvalidState)
	}
	if s.state == event.CallStateRinging || s.flushing {
		s.pending = append(s.pending, pendingSignal{from: from, data: data})
		c.mu.Unlock()
		return nil
	}
	target := s.other(from)
	c.mu.Unlock()

	c.rooms.Route(target, event.New(event.EventCallSignal, model.CallSignalEvent{
		CallID:    callID,
		Candidate: data,
		From:      from,
	}))
	return nil
}

// UpdateConnectivity maps a connectivity observation onto the session state.
// A hard failure triggers the same cleanup as an explicit end, including
// closing the call record with the accumulated duration.
func (c *Calls) UpdateConnectivity(ctx context.Context, callID, by, observed string) error {
	switch observed {
	case event.CallStateConnected, event.CallStateReconnecting, event.CallStateFailed:
	default:
		return fmt.Errorf("connectivity %q on call %s: %w", observed, callID, ErrInvalidState)
	}

	c.mu.Lock()
	s, ok := c.sessions[callID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("connectivity on call %s: %w", callID, ErrNotFound)
	}
	if !s.hasParticipant(by) {
		c.mu.Unlock()
		return fmt.Errorf("connectivity on call %s: %w", callID, ErrUnauthorized)
	}
	if s.state == event.CallStateRinging || terminalState(s.state) {
		c.mu.Unlock()
		return fmt.Errorf("connectivity on call %s in state %s: %w", callID, s.state, ErrInvalidState)
	}
	if observed != event.CallStateFailed {
		s.state = observed
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	fin, ok := c.finalize(ctx, callID, event.CallStateFailed, event.CallEndReasonFailure)
	if !ok {
		return nil // lost the race to another terminal transition
	}
	c.rooms.Route(fin.session.other(by), event.New(event.EventCallEnded, model.CallEndedEvent{
		CallID:   callID,
		EndedBy:  by,
		Reason:   event.CallEndReasonFailure,
		Duration: fin.duration,
	}))
	return nil
}

// Decline rejects a ringing call. Only the receiver may decline. A decline
// on an already-terminal session is a no-op so duplicate network messages
// stay benign.
func (c *Calls) Decline(ctx context.Context, callID, by, reason string) error {
	c.mu.Lock()
	s, ok := c.sessions[callID]
	if !ok {
		// terminal sessions leave the table, so a duplicate decline
		// arrives as an unknown id; benign under retried messages
		c.mu.Unlock()
		return nil
	}
	if !s.hasParticipant(by) {
		c.mu.Unlock()
		return fmt.Errorf("decline call %s: %w", callID, ErrUnauthorized)
	}
	if by != s.receiverID {
		c.mu.Unlock()
		return fmt.Errorf("decline call %s: only the receiver may decline: %w", callID, ErrUnauthorized)
	}
	if terminalState(s.state) {
		c.mu.Unlock()
		return nil
	}
	if s.state != event.CallStateRinging {
		c.mu.Unlock()
		return fmt.Errorf("decline call %s in state %s: %w", callID, s.state, ErrInvalidState)
	}
	callerID := s.callerID
	c.mu.Unlock()

	if reason == "" {
		reason = event.CallEndReasonDeclined
	}
	if _, ok := c.finalize(ctx, callID, event.CallStateEnded, reason); !ok {
		return nil
	}
	c.rooms.Route(callerID, event.New(event.EventCallDeclined, model.CallDeclinedEvent{
		CallID: callID,
		Reason: reason,
	}))
	c.log.Info("call declined", zap.String("call_id", callID), zap.String("reason", reason))
	return nil
}

// End hangs up a call from either side. Idempotent on terminal sessions.
func (c *Calls) End(ctx context.Context, callID, by string) error {
	c.mu.Lock()
	s, ok := c.sessions[callID]
	if !ok {
		// duplicate end after the session already reached a terminal
		// state; see Decline
		c.mu.Unlock()
		return nil
	}
	if !s.hasParticipant(by) {
		c.mu.Unlock()
		return fmt.Errorf("end call %s: %w", callID, ErrUnauthorized)
	}
	if terminalState(s.state) {
		c.mu.Unlock()
		return nil
	}
	other := s.other(by)
	c.mu.Unlock()

	fin, ok := c.finalize(ctx, callID, event.CallStateEnded, event.CallEndReasonNormal)
	if !ok {
		return nil
	}
	c.rooms.Route(other, event.New(event.EventCallEnded, model.CallEndedEvent{
		CallID:   callID,
		EndedBy:  by,
		Reason:   event.CallEndReasonNormal,
		Duration: fin.duration,
	}))
	c.log.Info("call ended", zap.String("call_id", callID), zap.String("ended_by", by))
	return nil
}

// HandleDisconnect ends the principal's active call, if any, with reason
// "peer disconnected". The other party is notified exactly once; the
// finalize check-and-remove guarantees a single notifier even when the
// disconnect races with an explicit end.
func (c *Calls) HandleDisconnect(ctx context.Context, principalID string) {
	c.mu.Lock()
	callID, ok := c.byUser[principalID]
	c.mu.Unlock()
	if !ok {
		return
	}

	fin, ok := c.finalize(ctx, callID, event.CallStateEnded, event.CallEndReasonDisconnected)
	if !ok {
		return
	}
	c.rooms.Route(fin.session.other(principalID), event.New(event.EventCallEnded, model.CallEndedEvent{
		CallID:   fin.session.id,
		EndedBy:  principalID,
		Reason:   event.CallEndReasonDisconnected,
		Duration: fin.duration,
	}))
	c.log.Info("call ended by disconnect",
		zap.String("call_id", fin.session.id),
		zap.String("user_id", principalID),
	)
}

// ActiveCall returns the id of the principal's non-terminal session, if any.
func (c *Calls) ActiveCall(principalID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.byUser[principalID]
	return id, ok
}

type finalized struct {
	session  *callSession
	duration int
}

// finalize removes the session from the live table and closes its record.
// It reports false when another terminal transition already won; exactly one
// caller observes true per session. The in-memory session is removed even if
// the record update fails - the live experience takes priority over the
// historical record, which can be repaired out-of-band.
func (c *Calls) finalize(ctx context.Context, callID, state, reason string) (finalized, bool) {
	c.mu.Lock()
	s, ok := c.sessions[callID]
	if !ok || terminalState(s.state) {
		c.mu.Unlock()
		return finalized{}, false
	}
	s.state = state
	c.removeLocked(s)
	duration := 0
	if s.answeredAt != nil {
		duration = int(time.Since(*s.answeredAt).Seconds())
	}
	c.mu.Unlock()

	if s.recordID != "" {
		endedAt := time.Now()
		err := c.store.UpdateCallRecord(ctx, s.recordID, model.CallRecordUpdate{
			Status:    state,
			EndReason: reason,
			Duration:  duration,
			EndedAt:   &endedAt,
		})
		if err != nil {
			c.log.Error("failed to close call record",
				zap.String("call_id", s.recordID),
				zap.Error(err),
			)
		}
	}
	return finalized{session: s, duration: duration}, true
}

// removeLocked drops the session and its byUser entries. Must be called with
// c.mu held.
func (c *Calls) removeLocked(s *callSession) {
	delete(c.sessions, s.id)
	if c.byUser[s.callerID] == s.id {
		delete(c.byUser, s.callerID)
	}
	if c.byUser[s.receiverID] == s.id {
		delete(c.byUser, s.receiverID)
	}
}
