package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"support-gateway/internal/auth"
	"support-gateway/internal/directory"
	"support-gateway/internal/notify"
	"support-gateway/internal/presence"
)

type fakeConn struct {
	id   string
	role auth.Role

	mu     sync.Mutex
	events []fakeEvent
}

type fakeEvent struct {
	Event string
	Data  any
}

func newFakeConn(id string, role auth.Role) *fakeConn {
	return &fakeConn{id: id, role: role}
}

func (f *fakeConn) Identity() string { return f.id }
func (f *fakeConn) Role() auth.Role  { return f.role }

func (f *fakeConn) Send(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fakeEvent{Event: event, Data: data})
	return nil
}

func (f *fakeConn) byEvent(name string) []fakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeEvent
	for _, e := range f.events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestRouter(t *testing.T) (*Router, *presence.Registry, *MemoryStore, *notify.MemoryNotifier, *directory.MemoryDirectory) {
	t.Helper()
	reg := presence.NewRegistry(nil, nil)
	store := NewMemoryStore()
	notifier := notify.NewMemoryNotifier()
	dir := directory.NewMemoryDirectory()
	r := NewRouter(reg, NewOfflineQueue(), store, dir, notifier, nil)
	r.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return r, reg, store, notifier, dir
}

func TestSend_ForwardsToOnlineRecipient(t *testing.T) {
	r, reg, store, notifier, dir := newTestRouter(t)
	dir.Put(auth.RoleAgent, directory.Profile{ID: "a1", Name: "Dana", Avatar: "https://cdn/a1.png"})

	user := newFakeConn("u1", auth.RoleUser)
	agent := newFakeConn("a1", auth.RoleAgent)
	reg.Register(user)
	reg.Register(agent)

	err := r.Send(context.Background(), agent, SendRequest{
		ConversationID: "c1",
		ReceiverID:     "u1",
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	recv := user.byEvent(EventMessageReceived)
	if len(recv) != 1 {
		t.Fatalf("expected 1 message-received, got %d", len(recv))
	}
	msg := recv[0].Data.(Message)
	if msg.Content != "hello" || msg.SenderID != "a1" || msg.SenderName != "Dana" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.MessageType != TypeText {
		t.Fatalf("expected text default, got %s", msg.MessageType)
	}

	acks := agent.byEvent(EventMessageSentAck)
	if len(acks) != 1 {
		t.Fatalf("expected 1 ack, got %d", len(acks))
	}
	if acks[0].Data.(Ack).Queued {
		t.Fatalf("online delivery must not report queued")
	}
	if len(store.Messages()) != 1 {
		t.Fatalf("expected message persisted")
	}
	if len(notifier.Payloads()) != 0 {
		t.Fatalf("no push for online recipient")
	}
}

func TestSend_QueuesAndTriggersPushWhenOffline(t *testing.T) {
	r, reg, _, notifier, dir := newTestRouter(t)
	dir.Put(auth.RoleAgent, directory.Profile{ID: "a1", Name: "Dana"})

	agent := newFakeConn("a1", auth.RoleAgent)
	reg.Register(agent)

	err := r.Send(context.Background(), agent, SendRequest{
		ConversationID: "c1",
		ReceiverID:     "u1",
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if r.queue.Len("u1") != 1 {
		t.Fatalf("expected message queued for u1")
	}
	pushes := notifier.Payloads()
	if len(pushes) != 1 {
		t.Fatalf("expected 1 push trigger, got %d", len(pushes))
	}
	if pushes[0].RecipientID != "u1" || pushes[0].SenderName != "Dana" || pushes[0].Content != "hello" {
		t.Fatalf("unexpected push payload: %+v", pushes[0])
	}
	acks := agent.byEvent(EventMessageSentAck)
	if len(acks) != 1 || !acks[0].Data.(Ack).Queued {
		t.Fatalf("expected queued ack")
	}
}

func TestFetchOffline_DrainsOnceInOrder(t *testing.T) {
	r, reg, _, _, _ := newTestRouter(t)

	agent := newFakeConn("a1", auth.RoleAgent)
	reg.Register(agent)

	for _, content := range []string{"one", "two", "three"} {
		if err := r.Send(context.Background(), agent, SendRequest{ConversationID: "c1", ReceiverID: "u1", Content: content}); err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}

	user := newFakeConn("u1", auth.RoleUser)
	reg.Register(user)

	if err := r.FetchOffline(context.Background(), user); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	recv := user.byEvent(EventMessageReceived)
	if len(recv) != 3 {
		t.Fatalf("expected 3 delivered, got %d", len(recv))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got := recv[i].Data.(Message).Content; got != want {
			t.Fatalf("position %d: got %q want %q", i, got, want)
		}
	}
	acks := user.byEvent(EventOfflineAck)
	if len(acks) != 1 || acks[0].Data.(DrainAck).Count != 3 {
		t.Fatalf("expected drain ack of 3")
	}

	// Idempotence: an immediate second fetch acknowledges zero.
	if err := r.FetchOffline(context.Background(), user); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	acks = user.byEvent(EventOfflineAck)
	if len(acks) != 2 || acks[1].Data.(DrainAck).Count != 0 {
		t.Fatalf("expected zero-count ack on second fetch")
	}
	if got := len(user.byEvent(EventMessageReceived)); got != 3 {
		t.Fatalf("no redelivery expected, got %d", got)
	}
}

func TestSend_DirectoryMissIsNonFatal(t *testing.T) {
	r, reg, _, _, _ := newTestRouter(t)

	user := newFakeConn("u1", auth.RoleUser)
	agent := newFakeConn("a1", auth.RoleAgent)
	reg.Register(user)
	reg.Register(agent)

	if err := r.Send(context.Background(), agent, SendRequest{ConversationID: "c1", ReceiverID: "u1", Content: "x"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	msg := user.byEvent(EventMessageReceived)[0].Data.(Message)
	if msg.SenderName != "" || msg.SenderAvatar != "" {
		t.Fatalf("expected empty display fields on directory miss")
	}
}

func TestSend_RejectsMalformedRequests(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t)
	agent := newFakeConn("a1", auth.RoleAgent)

	if err := r.Send(context.Background(), agent, SendRequest{ReceiverID: "u1"}); err == nil {
		t.Fatalf("expected error for missing conversation id")
	}
	if err := r.Send(context.Background(), agent, SendRequest{ConversationID: "c1"}); err == nil {
		t.Fatalf("expected error for missing receiver")
	}
	if err := r.Send(context.Background(), agent, SendRequest{ConversationID: "c1", ReceiverID: "u1", MessageType: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown message type")
	}
}

func TestNextID_MonotonicWithinSameMillisecond(t *testing.T) {
	r, _, _, _, _ := newTestRouter(t)
	now := time.Unix(1700000000, 0).UTC()
	a := r.nextID(now)
	b := r.nextID(now)
	if a >= b {
		t.Fatalf("ids must be strictly increasing: %s then %s", a, b)
	}
}
