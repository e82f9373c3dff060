package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message delivery statuses. Transitions are monotonic under
// sending < sent < delivered < read; failed is reachable from sending only.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message represents the durable chat message document in MongoDB.
type Message struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SenderID    string             `json:"senderId" bson:"sender_id"`
	ReceiverID  string             `json:"receiverId,omitempty" bson:"receiver_id,omitempty"`
	GroupID     string             `json:"groupId,omitempty" bson:"group_id,omitempty"`
	Type        string             `json:"type" bson:"type"`
	Body        string             `json:"body" bson:"body"`
	MediaID     string             `json:"mediaId,omitempty" bson:"media_id,omitempty"`
	ReplyToID   string             `json:"replyToId,omitempty" bson:"reply_to_id,omitempty"`
	Status      string             `json:"status" bson:"status"`
	CreatedAt   time.Time          `json:"createdAt" bson:"created_at"`
	DeliveredAt *time.Time         `json:"deliveredAt,omitempty" bson:"delivered_at,omitempty"`
	ReadAt      *time.Time         `json:"readAt,omitempty" bson:"read_at,omitempty"`
}

// Envelope is the in-flight representation of a submitted message, distinct
// from the durable record. ProvisionalID is the client-generated id used for
// optimistic UI reconciliation against the server-assigned PersistedID.
type Envelope struct {
	ProvisionalID string    `json:"tempId,omitempty"`
	PersistedID   string    `json:"id,omitempty"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId,omitempty"`
	GroupID       string    `json:"groupId,omitempty"`
	Type          string    `json:"type"`
	Body          string    `json:"body"`
	MediaID       string    `json:"mediaId,omitempty"`
	ReplyToID     string    `json:"replyToId,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RoomID returns the fan-out target for the envelope: the group room for
// group messages, the receiver's personal room otherwise.
func (e *Envelope) RoomID() string {
	if e.GroupID != "" {
		return GroupRoom(e.GroupID)
	}
	return e.ReceiverID
}
