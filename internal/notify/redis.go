package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes push triggers to a pub/sub channel consumed by
// the push worker. Publishing to zero subscribers is not an error; a worker
// outage surfaces as missed pushes, never as gateway failures.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
}

func NewRedisNotifier(rdb *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, channel: channel}
}

func (n *RedisNotifier) SendMessageNotification(ctx context.Context, recipientID, senderName, content, messageType, conversationID string) error {
	return n.publish(ctx, Payload{
		Kind:           KindMessage,
		RecipientID:    recipientID,
		SenderName:     senderName,
		Content:        content,
		MessageType:    messageType,
		ConversationID: conversationID,
	})
}

func (n *RedisNotifier) SendCallNotification(ctx context.Context, recipientID, callerName, callID, conversationID string) error {
	return n.publish(ctx, Payload{
		Kind:           KindCall,
		RecipientID:    recipientID,
		SenderName:     callerName,
		CallID:         callID,
		ConversationID: conversationID,
	})
}

func (n *RedisNotifier) publish(ctx context.Context, p Payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, b).Err()
}
