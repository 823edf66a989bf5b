package notify

import (
	"context"
	"sync"
)

// MemoryNotifier records triggers for tests.
type MemoryNotifier struct {
	mu       sync.Mutex
	payloads []Payload
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (n *MemoryNotifier) SendMessageNotification(ctx context.Context, recipientID, senderName, content, messageType, conversationID string) error {
	n.record(Payload{Kind: KindMessage, RecipientID: recipientID, SenderName: senderName, Content: content, MessageType: messageType, ConversationID: conversationID})
	return nil
}

func (n *MemoryNotifier) SendCallNotification(ctx context.Context, recipientID, callerName, callID, conversationID string) error {
	n.record(Payload{Kind: KindCall, RecipientID: recipientID, SenderName: callerName, CallID: callID, ConversationID: conversationID})
	return nil
}

func (n *MemoryNotifier) record(p Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, p)
}

func (n *MemoryNotifier) Payloads() []Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Payload, len(n.payloads))
	copy(out, n.payloads)
	return out
}
