package model

import (
	"encoding/json"
	"time"
)

// -----------------------------------------------------------------
// WebSocket event payloads - client to server
// -----------------------------------------------------------------

// SendMessagePayload is the body of a send-message event.
type SendMessagePayload struct {
	TempID     string `json:"tempId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
	Type       string `json:"type,omitempty"`
	Body       string `json:"body"`
	MediaID    string `json:"mediaId,omitempty"`
	ReplyToID  string `json:"replyToId,omitempty"`
}

// MessagesDeliveredPayload acknowledges delivery of a batch of messages.
type MessagesDeliveredPayload struct {
	MessageIDs []string `json:"messageIds"`
	SenderID   string   `json:"senderId"`
}

// MessagesReadPayload marks every message from SenderID to the acking user
// as read ("open the chat marks everything read").
type MessagesReadPayload struct {
	SenderID string `json:"senderId"`
	RoomID   string `json:"roomId,omitempty"`
}

// TypingPayload scopes a typing start/stop signal to a room.
type TypingPayload struct {
	RoomID string `json:"roomId"`
}

// RoomPayload names a room for join/leave.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// JoinGroupsPayload joins the group rooms for all of a user's groups at once.
type JoinGroupsPayload struct {
	GroupIDs []string `json:"groupIds"`
}

// OnlineStatusQuery asks for the online flag of a set of users.
type OnlineStatusQuery struct {
	UserIDs []string `json:"userIds"`
}

// CallInitiatePayload starts a call. Offer is opaque negotiation data,
// relayed verbatim to the receiver.
type CallInitiatePayload struct {
	ReceiverID string          `json:"receiverId"`
	CallType   string          `json:"callType"`
	Offer      json.RawMessage `json:"offer"`
}

// CallAnswerPayload answers a ringing call. Answer is opaque.
type CallAnswerPayload struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer"`
}

// CallDeclinePayload declines a ringing call.
type CallDeclinePayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// CallEndPayload hangs up a call.
type CallEndPayload struct {
	CallID string `json:"callId"`
}

// CallSignalPayload carries opaque negotiation data between participants.
type CallSignalPayload struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallConnectivityPayload reports an observed connectivity state for a call.
type CallConnectivityPayload struct {
	CallID string `json:"callId"`
	State  string `json:"state"` // "connected", "reconnecting" or "failed"
}

// -----------------------------------------------------------------
// WebSocket event payloads - server to client
// -----------------------------------------------------------------

// UserRef identifies the sender/caller in outbound events.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// MessageSentAck confirms persistence to the submitting client, linking the
// client's provisional id to the authoritative message.
type MessageSentAck struct {
	TempID  string   `json:"tempId,omitempty"`
	Message Envelope `json:"message"`
}

// MessageErrorPayload reports a failed submission back to the sender.
type MessageErrorPayload struct {
	TempID string `json:"tempId,omitempty"`
	Error  string `json:"error"`
}

// MessageNotification is delivered to the recipient's personal room so the
// client can raise a notification even when the chat is not open.
type MessageNotification struct {
	Message Envelope `json:"message"`
	From    UserRef  `json:"from"`
}

// MessageStatusUpdate notifies a sender that messages advanced to delivered
// or read.
type MessageStatusUpdate struct {
	MessageIDs []string   `json:"messageIds,omitempty"`
	RoomID     string     `json:"roomId,omitempty"`
	Status     string     `json:"status"`
	UserID     string     `json:"userId"`
	At         *time.Time `json:"at,omitempty"`
}

// TypingEvent announces that a user started or stopped typing in a room.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// PresenceEvent announces an online/offline transition.
type PresenceEvent struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username,omitempty"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// OnlineStatusEntry is one row of an online-status response.
type OnlineStatusEntry struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}

// CallIncomingEvent notifies the receiver of a ringing call.
type CallIncomingEvent struct {
	CallID   string          `json:"callId"`
	CallType string          `json:"callType"`
	Caller   UserRef         `json:"caller"`
	Offer    json.RawMessage `json:"offer"`
}

// CallInitiatedAck confirms the assigned call id to the caller.
type CallInitiatedAck struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

// CallAnsweredEvent carries the opaque answer back to the caller.
type CallAnsweredEvent struct {
	CallID string          `json:"callId"`
	Answer json.RawMessage `json:"answer"`
}

// CallSignalEvent relays opaque negotiation data to the other participant.
type CallSignalEvent struct {
	CallID    string          `json:"callId"`
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

// CallDeclinedEvent notifies the caller of a decline.
type CallDeclinedEvent struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

// CallEndedEvent notifies the other party that the call reached a terminal
// state.
type CallEndedEvent struct {
	CallID   string `json:"callId"`
	EndedBy  string `json:"endedBy,omitempty"`
	Reason   string `json:"reason"`
	Duration int    `json:"duration"`
}

// CallFailedEvent reports a call operation failure to the invoking client.
type CallFailedEvent struct {
	CallID string `json:"callId,omitempty"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// ErrorPayload is the generic error shape sent over the socket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
