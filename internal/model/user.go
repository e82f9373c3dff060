package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a user document in MongoDB. Authentication happens
// upstream; the coordinator only needs the id and display attributes.
type User struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	UserID    string             `json:"userId" bson:"user_id"`
	Username  string             `json:"username" bson:"username"`
	Avatar    string             `json:"avatar" bson:"avatar"`
	IsOnline  bool               `json:"isOnline" bson:"is_online"`
	LastSeen  *time.Time         `json:"lastSeen,omitempty" bson:"last_seen,omitempty"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt *time.Time         `json:"updatedAt,omitempty" bson:"updated_at,omitempty"`
}

// GroupRoom returns the room key for a group id.
func GroupRoom(groupID string) string {
	return "group_" + groupID
}
