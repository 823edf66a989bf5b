package messaging

import "context"

// Store is the document-store contract for conversation messages. Writes
// are best-effort from the delivery path's perspective: a store outage must
// never block a live conversation.
type Store interface {
	InsertMessage(ctx context.Context, m Message) error
}
