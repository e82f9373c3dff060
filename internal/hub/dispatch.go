package hub

import (
	"encoding/json"
	"log"

	"parley/internal/coord"
	"parley/internal/event"
	"parley/internal/model"
)

// session is the slice of Client the dispatcher needs. Everything it does is
// "who sent this" plus "push a reply down the same pipe".
type session interface {
	UserID() string
	Send(ev event.WsEvent) bool
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	h.dispatch(ev, c)
}

func (h *Hub) dispatch(ev event.WsEvent, c session) {
	switch ev.Event {
	case event.EventJoinRoom:
		var p model.RoomPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnJoinRoom(c.UserID(), p.RoomID)

	case event.EventLeaveRoom:
		var p model.RoomPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnLeaveRoom(c.UserID(), p.RoomID)

	case event.EventJoinGroups:
		var p model.JoinGroupsPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnJoinGroups(c.UserID(), p.GroupIDs)

	case event.EventSendMessage:
		var p model.SendMessagePayload
		if !decode(ev, &p, c) {
			return
		}
		env, err := h.coordinator.OnSubmitMessage(h.ctx, c.UserID(), p)
		if err != nil {
			log.Printf("message from %s failed: %v", c.UserID(), err)
			c.Send(event.New(event.EventMessageError, model.MessageErrorPayload{
				TempID: p.TempID,
				Error:  coord.Code(err),
			}))
			return
		}
		c.Send(event.New(event.EventMessageSent, model.MessageSentAck{
			TempID:  p.TempID,
			Message: *env,
		}))

	case event.EventMessagesDelivered:
		var p model.MessagesDeliveredPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnAckDelivered(h.ctx, c.UserID(), p)

	case event.EventMessagesRead:
		var p model.MessagesReadPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnAckRead(h.ctx, c.UserID(), p)

	case event.EventTypingStart:
		var p model.TypingPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnTypingStart(h.ctx, c.UserID(), p.RoomID)

	case event.EventTypingStop:
		var p model.TypingPayload
		if !decode(ev, &p, c) {
			return
		}
		h.coordinator.OnTypingStop(c.UserID(), p.RoomID)

	case event.EventGetOnlineStatus:
		var p model.OnlineStatusQuery
		if !decode(ev, &p, c) {
			return
		}
		c.Send(event.New(event.EventOnlineStatus, h.coordinator.OnlineStatus(p.UserIDs)))

	case event.EventCallInitiate:
		var p model.CallInitiatePayload
		if !decode(ev, &p, c) {
			return
		}
		callID, err := h.coordinator.OnCallInitiate(h.ctx, c.UserID(), p)
		if err != nil {
			h.sendCallFailure(c, "", err)
			return
		}
		c.Send(event.New(event.EventCallInitiated, model.CallInitiatedAck{
			CallID:     callID,
			ReceiverID: p.ReceiverID,
		}))

	case event.EventCallAnswer:
		var p model.CallAnswerPayload
		if !decode(ev, &p, c) {
			return
		}
		if err := h.coordinator.OnCallAnswer(h.ctx, c.UserID(), p); err != nil {
			h.sendCallFailure(c, p.CallID, err)
		}

	case event.EventCallDecline:
		var p model.CallDeclinePayload
		if !decode(ev, &p, c) {
			return
		}
		if err := h.coordinator.OnCallDecline(h.ctx, c.UserID(), p); err != nil {
			h.sendCallFailure(c, p.CallID, err)
		}

	case event.EventCallEnd:
		var p model.CallEndPayload
		if !decode(ev, &p, c) {
			return
		}
		if err := h.coordinator.OnCallEnd(h.ctx, c.UserID(), p); err != nil {
			h.sendCallFailure(c, p.CallID, err)
		}

	case event.EventCallSignal:
		var p model.CallSignalPayload
		if !decode(ev, &p, c) {
			return
		}
		if err := h.coordinator.OnCallSignal(c.UserID(), p); err != nil {
			h.sendCallFailure(c, p.CallID, err)
		}

	case event.EventCallConnectivity:
		var p model.CallConnectivityPayload
		if !decode(ev, &p, c) {
			return
		}
		if err := h.coordinator.OnCallConnectivity(h.ctx, c.UserID(), p); err != nil {
			h.sendCallFailure(c, p.CallID, err)
		}

	default:
		log.Printf("unknown event type: %s", ev.Event)
		c.Send(event.New(event.EventMessageError, model.ErrorPayload{
			Code:    "unknown_event",
			Message: "unknown event type: " + ev.Event,
		}))
	}
}

func (h *Hub) sendCallFailure(c session, callID string, err error) {
	log.Printf("call operation by %s failed: %v", c.UserID(), err)
	c.Send(event.New(event.EventCallFailed, model.CallFailedEvent{
		CallID: callID,
		Code:   coord.Code(err),
		Reason: err.Error(),
	}))
}

func decode(ev event.WsEvent, dst any, c session) bool {
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		log.Printf("failed to unmarshal %s payload from %s: %v", ev.Event, c.UserID(), err)
		c.Send(event.New(event.EventMessageError, model.ErrorPayload{
			Code:    "bad_payload",
			Message: "malformed " + ev.Event + " payload",
		}))
		return false
	}
	return true
}
