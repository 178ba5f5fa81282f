package domain

import "time"

const MaxMessageLen = 4000

type MessageID int64

// Message is a persisted chat record as it is broadcast to a room.
type Message struct {
	ID            MessageID `json:"id"`
	GroupID       GroupID   `json:"group_id"`
	SenderID      UserID    `json:"sender_id"`
	Text          string    `json:"message_text"`
	CreatedAt     time.Time `json:"created_at"`
	SenderName    string    `json:"sender_name"`
	SenderCollege string    `json:"sender_college"`
}
