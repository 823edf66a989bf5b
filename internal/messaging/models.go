package messaging

import (
	"time"

	"support-gateway/internal/auth"
)

type MessageType string

const (
	TypeText       MessageType = "text"
	TypeVoice      MessageType = "voice"
	TypeImage      MessageType = "image"
	TypeVideo      MessageType = "video"
	TypeLocation   MessageType = "location"
	TypeCallRecord MessageType = "call_record"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeVoice, TypeImage, TypeVideo, TypeLocation, TypeCallRecord:
		return true
	default:
		return false
	}
}

// Message is a chat-style event addressed to exactly one recipient.
// Sender display fields are denormalized at send time so the recipient's
// UI renders without a directory round trip.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	SenderRole     auth.Role   `json:"sender_role"`
	SenderName     string      `json:"sender_name,omitempty"`
	SenderAvatar   string      `json:"sender_avatar,omitempty"`
	SenderPhone    string      `json:"sender_phone,omitempty"`
	ReceiverID     string      `json:"receiver_id"`
	ReceiverRole   auth.Role   `json:"receiver_role"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"message_type"`
	Timestamp      time.Time   `json:"timestamp"`

	// Type-specific payload.
	DurationSeconds int     `json:"duration,omitempty"`     // voice, call_record
	MediaURL        string  `json:"media_url,omitempty"`    // voice, image, video
	Latitude        float64 `json:"latitude,omitempty"`     // location
	Longitude       float64 `json:"longitude,omitempty"`    // location
	Address         string  `json:"address,omitempty"`      // location
	CallID          string  `json:"call_id,omitempty"`      // call_record
	CallStatus      string  `json:"call_status,omitempty"`  // call_record
}

// Ack is echoed to the sender after a successful forward-or-queue.
type Ack struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Queued         bool      `json:"queued"`
	Timestamp      time.Time `json:"timestamp"`
}

// DrainAck closes a fetch-offline request. Zero count is a normal outcome.
type DrainAck struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
