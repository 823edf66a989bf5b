package notify

import "context"

// Notifier is the push-notification trigger contract. Delivery itself is a
// separate worker; everything here is fire-and-forget from the gateway's
// perspective and callers only log failures.
type Notifier interface {
	SendMessageNotification(ctx context.Context, recipientID, senderName, content, messageType, conversationID string) error
	SendCallNotification(ctx context.Context, recipientID, callerName, callID, conversationID string) error
}

// Payload is the wire shape published for the push worker.
type Payload struct {
	Kind           string `json:"kind"` // "message" or "call"
	RecipientID    string `json:"recipient_id"`
	SenderName     string `json:"sender_name"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	CallID         string `json:"call_id,omitempty"`
	ConversationID string `json:"conversation_id"`
}

const (
	KindMessage = "message"
	KindCall    = "call"
)
