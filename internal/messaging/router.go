package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"support-gateway/internal/directory"
	"support-gateway/internal/notify"
	"support-gateway/internal/presence"
)

// Outbound chat events.
const (
	EventMessageReceived = "message-received"
	EventMessageSentAck  = "message-sent-ack"
	EventOfflineAck      = "offline-messages-ack"
)

var ErrInvalidMessage = errors.New("invalid message")

// SendRequest is the inbound send-message payload.
type SendRequest struct {
	ConversationID string      `json:"conversationId"`
	ReceiverID     string      `json:"receiverId"`
	Content        string      `json:"content"`
	MessageType    MessageType `json:"messageType"`

	DurationSeconds int     `json:"duration,omitempty"`
	MediaURL        string  `json:"mediaUrl,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
	Address         string  `json:"address,omitempty"`
}

// Router delivers chat events: forward when the recipient is reachable,
// queue-and-push when not. The two outcomes are mutually exclusive and
// total for every send.
type Router struct {
	presence *presence.Registry
	queue    *OfflineQueue
	store    Store
	dir      directory.Directory
	notifier notify.Notifier

	clock func() time.Time
	log   *slog.Logger

	// Message ids are current-time based; the counter keeps them strictly
	// increasing within the process when sends land on the same
	// millisecond.
	idMu   sync.Mutex
	lastID int64
}

func NewRouter(reg *presence.Registry, queue *OfflineQueue, store Store, dir directory.Directory, notifier notify.Notifier, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		presence: reg,
		queue:    queue,
		store:    store,
		dir:      dir,
		notifier: notifier,
		clock:    time.Now,
		log:      log,
	}
}

// Send routes one message from the connected sender to its recipient.
func (r *Router) Send(ctx context.Context, sender presence.Conn, req SendRequest) error {
	if req.ConversationID == "" || req.ReceiverID == "" {
		return ErrInvalidMessage
	}
	if req.MessageType == "" {
		req.MessageType = TypeText
	}
	if !req.MessageType.Valid() {
		return ErrInvalidMessage
	}

	now := r.clock().UTC()
	msg := Message{
		ID:              r.nextID(now),
		ConversationID:  req.ConversationID,
		SenderID:        sender.Identity(),
		SenderRole:      sender.Role(),
		ReceiverID:      req.ReceiverID,
		ReceiverRole:    sender.Role().Opposite(),
		Content:         req.Content,
		MessageType:     req.MessageType,
		Timestamp:       now,
		DurationSeconds: req.DurationSeconds,
		MediaURL:        req.MediaURL,
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		Address:         req.Address,
	}
	r.decorate(ctx, &msg)

	// The stored copy is the conversation history; an outage there must not
	// block the live exchange.
	if r.store != nil {
		if err := r.store.InsertMessage(ctx, msg); err != nil {
			r.log.Error("message store write failed", "message_id", msg.ID, "conversation_id", msg.ConversationID, "err", err)
		}
	}

	recipient, online := r.presence.Lookup(msg.ReceiverID, msg.ReceiverRole)
	if online {
		_ = recipient.Send(EventMessageReceived, msg)
		_ = sender.Send(EventMessageSentAck, Ack{ID: msg.ID, ConversationID: msg.ConversationID, Timestamp: now})
		return nil
	}

	r.queue.Enqueue(msg.ReceiverID, msg)
	_ = sender.Send(EventMessageSentAck, Ack{ID: msg.ID, ConversationID: msg.ConversationID, Queued: true, Timestamp: now})

	if r.notifier != nil {
		if err := r.notifier.SendMessageNotification(ctx, msg.ReceiverID, msg.SenderName, msg.Content, string(msg.MessageType), msg.ConversationID); err != nil {
			r.log.Warn("push trigger failed", "recipient", msg.ReceiverID, "err", err)
		}
	}
	return nil
}

// FetchOffline drains the requester's queue in insertion order and closes
// with a count ack. Zero is a normal answer, not an error.
func (r *Router) FetchOffline(ctx context.Context, conn presence.Conn) error {
	msgs := r.queue.Drain(conn.Identity())
	for _, m := range msgs {
		_ = conn.Send(EventMessageReceived, m)
	}
	return conn.Send(EventOfflineAck, DrainAck{Count: len(msgs), Timestamp: r.clock().UTC()})
}

// Decorate fills in the sender display fields. A directory miss degrades to
// empty fields rather than failing the send.
func (r *Router) decorate(ctx context.Context, m *Message) {
	if r.dir == nil {
		return
	}
	p, err := r.dir.Lookup(ctx, m.SenderID, m.SenderRole)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			r.log.Warn("sender profile lookup failed", "sender", m.SenderID, "err", err)
		}
		return
	}
	m.SenderName = p.Name
	m.SenderAvatar = p.Avatar
	m.SenderPhone = p.Phone
}

func (r *Router) nextID(now time.Time) string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	id := now.UnixMilli()
	if id <= r.lastID {
		id = r.lastID + 1
	}
	r.lastID = id
	return strconv.FormatInt(id, 10)
}
