package event

import "encoding/json"

// Chat event types - client to server
const (
	EventJoinRoom          = "join-room"
	EventLeaveRoom         = "leave-room"
	EventJoinGroups        = "join-groups"
	EventSendMessage       = "send-message"
	EventMessagesDelivered = "messages-delivered"
	EventMessagesRead      = "messages-read"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventGetOnlineStatus   = "get-online-status"
)

// Chat event types - server to client
const (
	EventReceiveMessage      = "receive-message"
	EventMessageSent         = "message-sent"
	EventMessageError        = "message-error"
	EventMessageNotification = "new-message-notification"
	EventMessageStatusUpdate = "message-status-update"
	EventUserTyping          = "user-typing"
	EventUserStoppedTyping   = "user-stopped-typing"
	EventUserOnline          = "user-online"
	EventUserOffline         = "user-offline"
	EventOnlineStatus        = "online-status"
)

// WsEvent is the framing for every message exchanged over the socket.
// Payload is opaque to the transport; each handler unmarshals its own shape.
type WsEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// New wraps a payload struct into a WsEvent. Marshal errors are not possible
// for the payload types defined in internal/model.
func New(name string, payload any) WsEvent {
	raw, _ := json.Marshal(payload)
	return WsEvent{Event: name, Payload: raw}
}
