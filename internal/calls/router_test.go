package calls

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"support-gateway/internal/auth"
	"support-gateway/internal/directory"
	"support-gateway/internal/messaging"
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

type fixture struct {
	router   *Router
	registry *presence.Registry
	tracker  *Tracker
	repo     *MemoryRepo
	store    *messaging.MemoryStore
	notifier *notify.MemoryNotifier
	dir      *directory.MemoryDirectory
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: presence.NewRegistry(nil, nil),
		repo:     NewMemoryRepo(),
		store:    messaging.NewMemoryStore(),
		notifier: notify.NewMemoryNotifier(),
		dir:      directory.NewMemoryDirectory(),
		now:      time.Unix(1700000000, 0).UTC(),
	}
	f.tracker = NewTracker(30*time.Minute, nil)
	f.tracker.clock = func() time.Time { return f.now }
	f.router = NewRouter(f.registry, f.tracker, f.repo, f.store, f.dir, f.notifier, nil, nil)
	f.router.clock = func() time.Time { return f.now }
	return f
}

func (f *fixture) connect(id string, role auth.Role) *fakeConn {
	c := newFakeConn(id, role)
	f.registry.Register(c)
	return c
}

func TestInitiate_ForwardsEnrichedIncomingCall(t *testing.T) {
	f := newFixture(t)
	f.dir.Put(auth.RoleAgent, directory.Profile{ID: "a1", Name: "Dana", Avatar: "https://cdn/a1.png"})
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	err := f.router.Initiate(context.Background(), agent, InitiateRequest{
		CallerID: "a1", RecipientID: "u1", CallID: "call-1", ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	incoming := user.byEvent(EventIncomingCall)
	if len(incoming) != 1 {
		t.Fatalf("expected incoming-call, got %d", len(incoming))
	}
	ic := incoming[0].Data.(IncomingCall)
	if ic.CallerID != "a1" || ic.CallerName != "Dana" || ic.CallerAvatar != "https://cdn/a1.png" {
		t.Fatalf("expected enriched caller fields: %+v", ic)
	}
	if len(agent.byEvent(EventCallInitiated)) != 1 {
		t.Fatalf("expected call-initiated ack")
	}
	if len(f.repo.Records()) != 0 {
		t.Fatalf("no record is written at initiate")
	}
}

func TestInitiate_OfflineRecipientTriggersPushAndFails(t *testing.T) {
	f := newFixture(t)
	f.dir.Put(auth.RoleAgent, directory.Profile{ID: "a1", Name: "Dana"})
	agent := f.connect("a1", auth.RoleAgent)

	err := f.router.Initiate(context.Background(), agent, InitiateRequest{
		CallerID: "a1", RecipientID: "u1", CallID: "call-1", ConversationID: "c1",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	failed := agent.byEvent(EventCallFailed)
	if len(failed) != 1 || failed[0].Data.(CallEvent).Reason != reasonRecipientOffline {
		t.Fatalf("expected offline call-failed, got %+v", failed)
	}
	pushes := f.notifier.Payloads()
	if len(pushes) != 1 || pushes[0].Kind != notify.KindCall || pushes[0].SenderName != "Dana" {
		t.Fatalf("expected call push trigger, got %+v", pushes)
	}
}

type fullLimiter struct{}

func (fullLimiter) Acquire(ctx context.Context, callerID string) (bool, error) { return false, nil }
func (fullLimiter) Release(ctx context.Context, callerID string) error         { return nil }

func TestInitiate_OverCapFailsFast(t *testing.T) {
	f := newFixture(t)
	f.router.limiter = fullLimiter{}
	agent := f.connect("a1", auth.RoleAgent)
	f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	failed := agent.byEvent(EventCallFailed)
	if len(failed) != 1 || failed[0].Data.(CallEvent).Reason != reasonTooManyCalls {
		t.Fatalf("expected cap call-failed, got %+v", failed)
	}
	if _, ok := f.tracker.Resolve("call-1"); ok {
		t.Fatalf("rejected initiation must not linger in the tracker")
	}
}

func TestAccept_ForwardsToOriginalCaller(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1", ConversationID: "c1"}); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if err := f.router.Accept(context.Background(), user, AcceptRequest{CallID: "call-1", RecipientID: "a1"}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	acc := agent.byEvent(EventCallAccepted)
	if len(acc) != 1 || acc[0].Data.(CallEvent).From != "u1" {
		t.Fatalf("expected call-accepted from u1, got %+v", acc)
	}
	if len(f.repo.Records()) != 0 {
		t.Fatalf("accept must not persist anything")
	}
}

// Scenario: agent calls online user, user rejects.
func TestReject_RecordsOnceAndAttributesTrueCaller(t *testing.T) {
	f := newFixture(t)
	f.dir.Put(auth.RoleAgent, directory.Profile{ID: "a1", Name: "Dana"})
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1", ConversationID: "c1"}); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if err := f.router.Reject(context.Background(), user, TerminalRequest{CallID: "call-1", RecipientID: "a1", ConversationID: "c1"}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if len(agent.byEvent(EventCallRejected)) != 1 {
		t.Fatalf("expected caller to receive call-rejected")
	}

	recs := f.repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Status != CallStatusRejected || rec.CallerID != "a1" || rec.CallerRole != auth.RoleAgent {
		t.Fatalf("unexpected record: %+v", rec)
	}

	// Both chat UIs get the synthesized message, attributed to the caller.
	for _, c := range []*fakeConn{agent, user} {
		msgs := c.byEvent(messaging.EventMessageReceived)
		if len(msgs) != 1 {
			t.Fatalf("expected 1 synthesized message for %s, got %d", c.id, len(msgs))
		}
		m := msgs[0].Data.(messaging.Message)
		if m.SenderID != "a1" || m.Content != "rejected the call" || m.MessageType != messaging.TypeCallRecord {
			t.Fatalf("unexpected synthesized message: %+v", m)
		}
	}
	if len(f.store.Messages()) != 1 {
		t.Fatalf("synthesized message must be persisted once")
	}
}

// Scenario: agent cancels before the user answers.
func TestCancel_RecordsMissedCall(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1", ConversationID: "c1"}); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if err := f.router.Cancel(context.Background(), agent, TerminalRequest{CallID: "call-1", RecipientID: "u1", ConversationID: "c1"}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if len(user.byEvent(EventCallCancelled)) != 1 {
		t.Fatalf("expected receiver to see call-cancelled")
	}
	recs := f.repo.Records()
	if len(recs) != 1 || recs[0].Status != CallStatusMissed || recs[0].CallerID != "a1" {
		t.Fatalf("expected missed record attributed to a1, got %+v", recs)
	}
}

// Scenario: answered call ends after 95 seconds.
func TestEnd_RecordsCompletedCallWithDuration(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1", ConversationID: "c1"}); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if err := f.router.Accept(context.Background(), user, AcceptRequest{CallID: "call-1", RecipientID: "a1"}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	f.now = f.now.Add(95 * time.Second)
	if err := f.router.End(context.Background(), agent, TerminalRequest{CallID: "call-1", RecipientID: "u1", ConversationID: "c1", DurationSeconds: 95}); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	recs := f.repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Status != CallStatusCompleted || rec.DurationSeconds != 95 || rec.CallerID != "a1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	msgs := user.byEvent(messaging.EventMessageReceived)
	if len(msgs) != 1 || msgs[0].Data.(messaging.Message).Content != "voice call: 01:35" {
		t.Fatalf("expected duration summary, got %+v", msgs)
	}
}

// Either side may report the terminal event; attribution must come from
// the initiation, never from the event sender.
func TestEnd_FromReceiverStillAttributesOriginalCaller(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1", ConversationID: "c1"}); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	if err := f.router.End(context.Background(), user, TerminalRequest{CallID: "call-1", RecipientID: "a1", ConversationID: "c1", DurationSeconds: 10}); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	recs := f.repo.Records()
	if len(recs) != 1 || recs[0].CallerID != "a1" || recs[0].CallerRole != auth.RoleAgent {
		t.Fatalf("expected record attributed to a1, got %+v", recs)
	}
}

func TestCloseOut_SecondTerminalEventIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.Initiate(context.Background(), agent, InitiateRequest{RecipientID: "u1", CallID: "call-1", ConversationID: "c1"}); err != nil {
		t.Fatalf("initiate failed: %v", err)
	}
	// Both sides race to close the same call.
	if err := f.router.Reject(context.Background(), user, TerminalRequest{CallID: "call-1", RecipientID: "a1", ConversationID: "c1"}); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if err := f.router.End(context.Background(), agent, TerminalRequest{CallID: "call-1", RecipientID: "u1", ConversationID: "c1", DurationSeconds: 3}); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	recs := f.repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(recs))
	}
	if len(f.store.Messages()) != 1 {
		t.Fatalf("only the first close synthesizes a message")
	}
}

// When the tracker entry is missing the event's sender is treated as the
// answerer and the named recipient as the original caller.
func TestCloseOut_FallbackAttributionWithoutTrackerEntry(t *testing.T) {
	f := newFixture(t)
	f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)

	if err := f.router.End(context.Background(), user, TerminalRequest{CallID: "call-x", RecipientID: "a1", ConversationID: "c1", DurationSeconds: 5}); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	recs := f.repo.Records()
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]
	if rec.CallerID != "a1" || rec.CallerRole != auth.RoleAgent || rec.ReceiverID != "u1" {
		t.Fatalf("fallback attribution wrong: %+v", rec)
	}
}

func TestRelay_ForwardsVerbatimWithSenderAttached(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)
	user := f.connect("u1", auth.RoleUser)
	_ = user

	payload := json.RawMessage(`{"sdp":"v=0..."}`)
	if err := f.router.Relay(context.Background(), agent, EventWebRTCOffer, RelayRequest{CallID: "call-1", RecipientID: "u1", Payload: payload}); err != nil {
		t.Fatalf("relay failed: %v", err)
	}

	offers := user.byEvent(EventWebRTCOffer)
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	ev := offers[0].Data.(RelayEvent)
	if ev.From != "a1" || string(ev.Payload) != `{"sdp":"v=0..."}` {
		t.Fatalf("unexpected relay event: %+v", ev)
	}
}

func TestRelay_UnreachableRecipientDropsSilently(t *testing.T) {
	f := newFixture(t)
	agent := f.connect("a1", auth.RoleAgent)

	err := f.router.Relay(context.Background(), agent, EventWebRTCICECandidate, RelayRequest{CallID: "call-1", RecipientID: "u1", Payload: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("drop must be silent, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "00:00"},
		{95, "01:35"},
		{3599, "59:59"},
		{-5, "00:00"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Fatalf("formatDuration(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
