package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Call represents the durable call record in MongoDB. The live session state
// is owned by the coordinator; this document only survives for history.
type Call struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CallerID   string             `json:"callerId" bson:"caller_id"`
	ReceiverID string             `json:"receiverId" bson:"receiver_id"`
	CallType   string             `json:"callType" bson:"call_type"`
	Status     string             `json:"status" bson:"status"`
	EndReason  string             `json:"endReason,omitempty" bson:"end_reason,omitempty"`
	Duration   int                `json:"duration" bson:"duration"`
	CreatedAt  time.Time          `json:"createdAt" bson:"created_at"`
	EndedAt    *time.Time         `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
}

// CallRecordUpdate carries the fields written when a call reaches a terminal
// state or changes status mid-flight.
type CallRecordUpdate struct {
	Status    string
	EndReason string
	Duration  int
	EndedAt   *time.Time
}
