package coord

import (
	"context"
	"time"

	"parley/internal/event"
	"parley/internal/model"
)

// Conn is one live transport session. The coordinator never owns the
// underlying socket; it only enqueues events and asks for closure.
type Conn interface {
	// Send enqueues an event for delivery. It reports false when the
	// connection is closed or its outbound buffer stayed full.
	Send(ev event.WsEvent) bool

	// Close tears the connection down. Safe to call more than once.
	Close()
}

// MessageStore is the persistence collaborator for messages. Durable
// single-row writes are assumed; no cross-row transactions are required.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *model.Message) (string, error)
	MarkDelivered(ctx context.Context, messageIDs []string, receiverID string, at time.Time) error
	MarkRead(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error)
}

// CallStore is the persistence collaborator for call records.
type CallStore interface {
	CreateCallRecord(ctx context.Context, call *model.Call) (string, error)
	UpdateCallRecord(ctx context.Context, callID string, update model.CallRecordUpdate) error
}

// UserStore resolves display attributes and keeps the durable online flag
// and last-seen timestamp in step with the Presence Registry.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	SetOnlineStatus(ctx context.Context, userID string, online bool) error
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Notification is the payload handed to the push collaborator when a target
// is offline at the moment of a message event.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Kind  string            `json:"kind"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier is the push-notification collaborator for offline fallback.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}
