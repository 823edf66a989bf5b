package messaging

import (
	"sync"
)

// OfflineQueue buffers undelivered messages per recipient identity.
// Insertion order per recipient is the delivery order. The queue lives in
// process memory only: a restart drops it, which matches the presence model
// (clients re-sync on reconnect).
type OfflineQueue struct {
	mu     sync.Mutex
	queues map[string][]Message
}

func NewOfflineQueue() *OfflineQueue {
	return &OfflineQueue{queues: make(map[string][]Message)}
}

// Enqueue appends to the recipient's FIFO.
func (q *OfflineQueue) Enqueue(recipientID string, m Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queues[recipientID] = append(q.queues[recipientID], m)
}

// Drain removes and returns the recipient's queued messages in insertion
// order. An empty result is not an error.
func (q *OfflineQueue) Drain(recipientID string) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	msgs := q.queues[recipientID]
	delete(q.queues, recipientID)
	return msgs
}

// Len reports the queue depth for a recipient.
func (q *OfflineQueue) Len(recipientID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queues[recipientID])
}
