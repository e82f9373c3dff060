package coord

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"parley/internal/event"
	"parley/internal/model"
)

// Coordinator is the real-time session coordinator: it owns the four shared
// tables (presence, rooms, delivery, calls plus the typing facts) and the
// cross-component flows between them. The transport layer calls into it and
// it never calls back into the transport except through Conn.
type Coordinator struct {
	presence *Presence
	rooms    *Rooms
	delivery *Delivery
	typing   *Typing
	calls    *Calls

	users    UserStore
	notifier Notifier
	log      *zap.Logger
}

func NewCoordinator(messages MessageStore, callStore CallStore, users UserStore, notifier Notifier, log *zap.Logger) *Coordinator {
	presence := NewPresence(log)
	rooms := NewRooms(presence, log)
	return &Coordinator{
		presence: presence,
		rooms:    rooms,
		delivery: NewDelivery(messages, log),
		typing:   NewTyping(),
		calls:    NewCalls(callStore, users, rooms, presence, log),
		users:    users,
		notifier: notifier,
		log:      log,
	}
}

// Presence exposes the registry for the status surfaces.
func (co *Coordinator) Presence() *Presence { return co.presence }

// Rooms exposes the multiplexer for the transport's join/leave handling.
func (co *Coordinator) Rooms() *Rooms { return co.rooms }

// OnConnect registers a new connection. When the principal already had a
// live connection the old one is evicted: its call cleanup and typing stops
// run, then it is closed, all before this call returns, so the new
// connection never coexists with the old one. The principal joins its
// personal room and, on an offline-to-online transition, a user-online event
// goes out to every room it belongs to.
func (co *Coordinator) OnConnect(ctx context.Context, principalID string, conn Conn) {
	evicted, replaced := co.presence.Register(principalID, conn)
	if replaced {
		// synthetic disconnect for the superseded connection
		co.calls.HandleDisconnect(ctx, principalID)
		co.stopAllTyping(principalID)
		evicted.Close()
	}

	co.rooms.Join(principalID, principalID)

	if err := co.users.SetOnlineStatus(ctx, principalID, true); err != nil {
		co.log.Error("failed to persist online status", zap.String("user_id", principalID), zap.Error(err))
	}

	if !replaced {
		co.broadcastPresence(ctx, principalID, true)
	}
	co.log.Info("user connected", zap.String("user_id", principalID))
}

// OnDisconnect tears down a closed connection. When the mapping was already
// superseded by an eviction the cleanup has run on the eviction path and
// nothing happens here.
func (co *Coordinator) OnDisconnect(ctx context.Context, principalID string, conn Conn) {
	if !co.presence.Unregister(principalID, conn) {
		return
	}

	co.calls.HandleDisconnect(ctx, principalID)
	co.stopAllTyping(principalID)

	now := time.Now()
	if err := co.users.UpdateLastSeen(ctx, principalID, now); err != nil {
		co.log.Error("failed to update last seen", zap.String("user_id", principalID), zap.Error(err))
	}
	if err := co.users.SetOnlineStatus(ctx, principalID, false); err != nil {
		co.log.Error("failed to persist offline status", zap.String("user_id", principalID), zap.Error(err))
	}

	co.broadcastPresence(ctx, principalID, false)
	co.log.Info("user disconnected", zap.String("user_id", principalID))
}

// OnJoinRoom adds the principal to a room.
func (co *Coordinator) OnJoinRoom(principalID, roomID string) {
	co.rooms.Join(roomID, principalID)
}

// OnLeaveRoom removes the principal from a room and drops any typing fact it
// held there.
func (co *Coordinator) OnLeaveRoom(principalID, roomID string) {
	if co.typing.Stop(roomID, principalID) {
		co.rooms.Broadcast(roomID, event.New(event.EventUserStoppedTyping, model.TypingEvent{
			RoomID: roomID,
			UserID: principalID,
		}), principalID)
	}
	co.rooms.Leave(roomID, principalID)
}

// OnJoinGroups joins the group room for every listed group id, typically on
// connect.
func (co *Coordinator) OnJoinGroups(principalID string, groupIDs []string) {
	for _, groupID := range groupIDs {
		co.rooms.Join(model.GroupRoom(groupID), principalID)
	}
}

// OnSubmitMessage persists the envelope and, only after persistence
// succeeded, fans it out: to the chat room, to a direct recipient's personal
// room as a notification, and to the push collaborator when the recipient is
// offline. The returned envelope carries the authoritative id and status for
// the sender's acknowledgment.
func (co *Coordinator) OnSubmitMessage(ctx context.Context, senderID string, p model.SendMessagePayload) (*model.Envelope, error) {
	msgType := p.Type
	if msgType == "" {
		msgType = "text"
	}
	env := &model.Envelope{
		ProvisionalID: p.TempID,
		SenderID:      senderID,
		ReceiverID:    p.ReceiverID,
		GroupID:       p.GroupID,
		Type:          msgType,
		Body:          p.Body,
		MediaID:       p.MediaID,
		ReplyToID:     p.ReplyToID,
	}

	if _, err := co.delivery.Submit(ctx, env); err != nil {
		return env, err
	}

	sender := model.UserRef{ID: senderID}
	if u, uerr := co.users.GetUser(ctx, senderID); uerr == nil {
		sender.Username = u.Username
		sender.Avatar = u.Avatar
	}

	receiveEv := event.New(event.EventReceiveMessage, env)

	if env.GroupID != "" {
		co.rooms.Broadcast(model.GroupRoom(env.GroupID), receiveEv, senderID)
		return env, nil
	}

	co.rooms.Broadcast(DirectRoom(senderID, env.ReceiverID), receiveEv, senderID)

	online := co.rooms.Route(env.ReceiverID, event.New(event.EventMessageNotification, model.MessageNotification{
		Message: *env,
		From:    sender,
	}))
	if !online {
		if err := co.notifier.Notify(ctx, env.ReceiverID, Notification{
			Title: sender.Username,
			Body:  env.Body,
			Kind:  "message",
			Data: map[string]string{
				"messageId": env.PersistedID,
				"senderId":  senderID,
			},
		}); err != nil {
			co.log.Error("push notification failed",
				zap.String("user_id", env.ReceiverID),
				zap.Error(err),
			)
		}
	}
	return env, nil
}

// OnAckDelivered records delivery acknowledgments from ackerID and notifies
// the sender of the messages that actually advanced. The payload's sender id
// is a claim; only ids whose tracked envelope carries that sender count, so
// an acker cannot direct status updates at an arbitrary principal.
func (co *Coordinator) OnAckDelivered(ctx context.Context, ackerID string, p model.MessagesDeliveredPayload) {
	transitioned := co.delivery.AcknowledgeDelivered(ctx, p.MessageIDs, ackerID, p.SenderID)
	if len(transitioned) == 0 {
		return
	}
	now := time.Now()
	co.rooms.Route(p.SenderID, event.New(event.EventMessageStatusUpdate, model.MessageStatusUpdate{
		MessageIDs: transitioned,
		Status:     model.StatusDelivered,
		UserID:     ackerID,
		At:         &now,
	}))
}

// OnAckRead marks every message from the payload's sender to readerID as
// read and notifies the sender once.
func (co *Coordinator) OnAckRead(ctx context.Context, readerID string, p model.MessagesReadPayload) {
	count := co.delivery.AcknowledgeRead(ctx, p.SenderID, readerID)
	if count == 0 {
		return
	}
	now := time.Now()
	co.rooms.Route(p.SenderID, event.New(event.EventMessageStatusUpdate, model.MessageStatusUpdate{
		RoomID: p.RoomID,
		Status: model.StatusRead,
		UserID: readerID,
		At:     &now,
	}))
}

// OnTypingStart inserts a typing fact and broadcasts it to the room,
// excluding the typist. Duplicate starts are coalesced.
func (co *Coordinator) OnTypingStart(ctx context.Context, principalID, roomID string) {
	if !co.typing.Start(roomID, principalID) {
		return
	}
	typist := model.TypingEvent{RoomID: roomID, UserID: principalID}
	if u, err := co.users.GetUser(ctx, principalID); err == nil {
		typist.Username = u.Username
	}
	co.rooms.Broadcast(roomID, event.New(event.EventUserTyping, typist), principalID)
}

// OnTypingStop removes a typing fact and broadcasts the stop.
func (co *Coordinator) OnTypingStop(principalID, roomID string) {
	if !co.typing.Stop(roomID, principalID) {
		return
	}
	co.rooms.Broadcast(roomID, event.New(event.EventUserStoppedTyping, model.TypingEvent{
		RoomID: roomID,
		UserID: principalID,
	}), principalID)
}

// OnlineStatus answers an online-status query for a set of users.
func (co *Coordinator) OnlineStatus(userIDs []string) []model.OnlineStatusEntry {
	entries := make([]model.OnlineStatusEntry, 0, len(userIDs))
	for _, id := range userIDs {
		entries = append(entries, model.OnlineStatusEntry{
			UserID:   id,
			IsOnline: co.presence.IsOnline(id),
		})
	}
	return entries
}

// OnCallInitiate starts a call and returns the assigned call id.
func (co *Coordinator) OnCallInitiate(ctx context.Context, callerID string, p model.CallInitiatePayload) (string, error) {
	return co.calls.Initiate(ctx, callerID, p)
}

// OnCallAnswer answers a ringing call.
func (co *Coordinator) OnCallAnswer(ctx context.Context, by string, p model.CallAnswerPayload) error {
	return co.calls.Answer(ctx, p.CallID, by, p.Answer)
}

// OnCallDecline declines a ringing call.
func (co *Coordinator) OnCallDecline(ctx context.Context, by string, p model.CallDeclinePayload) error {
	return co.calls.Decline(ctx, p.CallID, by, p.Reason)
}

// OnCallEnd hangs up a call.
func (co *Coordinator) OnCallEnd(ctx context.Context, by string, p model.CallEndPayload) error {
	return co.calls.End(ctx, p.CallID, by)
}

// OnCallSignal relays opaque negotiation data.
func (co *Coordinator) OnCallSignal(by string, p model.CallSignalPayload) error {
	return co.calls.Relay(p.CallID, by, p.Candidate)
}

// OnCallConnectivity applies a connectivity observation.
func (co *Coordinator) OnCallConnectivity(ctx context.Context, by string, p model.CallConnectivityPayload) error {
	return co.calls.UpdateConnectivity(ctx, p.CallID, by, p.State)
}

// stopAllTyping drops every typing fact of a principal and broadcasts the
// stop to each affected room. Used on disconnect and eviction.
func (co *Coordinator) stopAllTyping(principalID string) {
	for _, roomID := range co.typing.StopAll(principalID) {
		co.rooms.Broadcast(roomID, event.New(event.EventUserStoppedTyping, model.TypingEvent{
			RoomID: roomID,
			UserID: principalID,
		}), principalID)
	}
}

// broadcastPresence fans an online/offline transition out to every room the
// principal belongs to, at most once per transition.
func (co *Coordinator) broadcastPresence(ctx context.Context, principalID string, online bool) {
	ev := model.PresenceEvent{UserID: principalID}
	if u, err := co.users.GetUser(ctx, principalID); err == nil {
		ev.Username = u.Username
	}

	name := event.EventUserOnline
	if !online {
		now := time.Now()
		ev.LastSeen = &now
		name = event.EventUserOffline
	}

	raw, _ := json.Marshal(ev)
	wsEv := event.WsEvent{Event: name, Payload: raw}
	for _, roomID := range co.rooms.RoomsOf(principalID) {
		if roomID == principalID {
			continue // no point telling yourself
		}
		co.rooms.Broadcast(roomID, wsEv, principalID)
	}
}
