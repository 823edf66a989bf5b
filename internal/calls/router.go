package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"support-gateway/internal/directory"
	"support-gateway/internal/messaging"
	"support-gateway/internal/notify"
	"support-gateway/internal/presence"

	"github.com/google/uuid"
)

// Outbound call events.
const (
	EventIncomingCall  = "incoming-call"
	EventCallInitiated = "call-initiated"
	EventCallFailed    = "call-failed"
	EventCallAccepted  = "call-accepted"
	EventCallRejected  = "call-rejected"
	EventCallCancelled = "call-cancelled"
	EventCallEnded     = "call-ended"
)

// WebRTC pass-through events keep their inbound names.
const (
	EventWebRTCOffer        = "webrtc-offer"
	EventWebRTCAnswer       = "webrtc-answer"
	EventWebRTCICECandidate = "webrtc-ice-candidate"
)

const (
	reasonRecipientOffline = "recipient offline"
	reasonTooManyCalls     = "too many concurrent calls"
)

var ErrInvalidCallEvent = errors.New("invalid call event")

type InitiateRequest struct {
	CallerID       string `json:"callerId"`
	RecipientID    string `json:"recipientId"`
	CallID         string `json:"callId"`
	ConversationID string `json:"conversationId"`
}

type AcceptRequest struct {
	CallID      string `json:"callId"`
	RecipientID string `json:"recipientId"` // the original caller
}

type TerminalRequest struct {
	CallID          string `json:"callId"`
	RecipientID     string `json:"recipientId"`
	ConversationID  string `json:"conversationId"`
	DurationSeconds int    `json:"duration,omitempty"`
}

type RelayRequest struct {
	CallID      string          `json:"callId"`
	RecipientID string          `json:"recipientId"`
	Payload     json.RawMessage `json:"payload"`
}

type IncomingCall struct {
	CallID         string    `json:"callId"`
	CallerID       string    `json:"callerId"`
	CallerRole     string    `json:"callerRole"`
	ConversationID string    `json:"conversationId"`
	CallerName     string    `json:"callerName,omitempty"`
	CallerAvatar   string    `json:"callerAvatar,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type CallEvent struct {
	CallID string `json:"callId"`
	From   string `json:"from,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type RelayEvent struct {
	CallID  string          `json:"callId"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Router brokers call signaling between a caller and a receiver who may or
// may not be currently connected, and records call outcomes exactly once.
// Correctness of the live call always outranks the historical record: a
// failed store write is logged and never blocks an already-forwarded event.
type Router struct {
	presence *presence.Registry
	tracker  *Tracker
	repo     Repository
	store    messaging.Store
	dir      directory.Directory
	notifier notify.Notifier
	limiter  InitiationLimiter

	clock func() time.Time
	log   *slog.Logger
}

func NewRouter(
	reg *presence.Registry,
	tracker *Tracker,
	repo Repository,
	store messaging.Store,
	dir directory.Directory,
	notifier notify.Notifier,
	limiter InitiationLimiter,
	log *slog.Logger,
) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		presence: reg,
		tracker:  tracker,
		repo:     repo,
		store:    store,
		dir:      dir,
		notifier: notifier,
		limiter:  limiter,
		clock:    time.Now,
		log:      log,
	}
}

// Initiate starts the ringing phase. No CallRecord is written here; the
// initiation is only tracked so a later terminal event can attribute the
// call to the side that placed it.
func (r *Router) Initiate(ctx context.Context, sender presence.Conn, req InitiateRequest) error {
	if req.CallID == "" || req.RecipientID == "" {
		return ErrInvalidCallEvent
	}
	now := r.clock().UTC()

	r.tracker.Record(CallInitiation{
		CallID:         req.CallID,
		CallerID:       sender.Identity(),
		CallerRole:     sender.Role(),
		ReceiverID:     req.RecipientID,
		ReceiverRole:   sender.Role().Opposite(),
		ConversationID: req.ConversationID,
		CreatedAt:      now,
	})

	if r.limiter != nil {
		ok, err := r.limiter.Acquire(ctx, sender.Identity())
		if err != nil {
			// A cap-store outage must not take calling down with it.
			r.log.Warn("initiation cap check failed", "caller", sender.Identity(), "err", err)
		} else if !ok {
			r.tracker.Delete(req.CallID)
			return sender.Send(EventCallFailed, CallEvent{CallID: req.CallID, Reason: reasonTooManyCalls})
		}
	}

	caller := r.callerProfile(ctx, sender)

	recipient, online := r.presence.Lookup(req.RecipientID, sender.Role().Opposite())
	if !online {
		if r.notifier != nil {
			if err := r.notifier.SendCallNotification(ctx, req.RecipientID, caller.Name, req.CallID, req.ConversationID); err != nil {
				r.log.Warn("call push trigger failed", "recipient", req.RecipientID, "err", err)
			}
		}
		r.releaseCap(ctx, sender.Identity())
		return sender.Send(EventCallFailed, CallEvent{CallID: req.CallID, Reason: reasonRecipientOffline})
	}

	_ = recipient.Send(EventIncomingCall, IncomingCall{
		CallID:         req.CallID,
		CallerID:       sender.Identity(),
		CallerRole:     string(sender.Role()),
		ConversationID: req.ConversationID,
		CallerName:     caller.Name,
		CallerAvatar:   caller.Avatar,
		Timestamp:      now,
	})
	return sender.Send(EventCallInitiated, CallEvent{CallID: req.CallID})
}

// Accept forwards the pickup to the original caller. Nothing is persisted;
// the call only becomes history on a terminal event.
func (r *Router) Accept(ctx context.Context, sender presence.Conn, req AcceptRequest) error {
	if req.CallID == "" || req.RecipientID == "" {
		return ErrInvalidCallEvent
	}
	caller, online := r.presence.Lookup(req.RecipientID, sender.Role().Opposite())
	if !online {
		r.log.Debug("accept for unreachable caller", "call_id", req.CallID, "caller", req.RecipientID)
		return nil
	}
	return caller.Send(EventCallAccepted, CallEvent{CallID: req.CallID, From: sender.Identity()})
}

// Reject closes a ringing call from the receiver's side.
func (r *Router) Reject(ctx context.Context, sender presence.Conn, req TerminalRequest) error {
	return r.closeOut(ctx, sender, req, CallStatusRejected, EventCallRejected)
}

// Cancel closes a ringing call from the caller's side; the outcome is
// recorded as a missed call for the receiver.
func (r *Router) Cancel(ctx context.Context, sender presence.Conn, req TerminalRequest) error {
	return r.closeOut(ctx, sender, req, CallStatusMissed, EventCallCancelled)
}

// End closes an answered call with its elapsed duration.
func (r *Router) End(ctx context.Context, sender presence.Conn, req TerminalRequest) error {
	return r.closeOut(ctx, sender, req, CallStatusCompleted, EventCallEnded)
}

// Relay forwards a WebRTC offer/answer/ICE payload verbatim with the
// sender's identity attached. No state is kept; an unreachable recipient
// drops the frame and the media layer above is expected to time out.
func (r *Router) Relay(ctx context.Context, sender presence.Conn, event string, req RelayRequest) error {
	if req.CallID == "" || req.RecipientID == "" {
		return ErrInvalidCallEvent
	}
	recipient, online := r.presence.Lookup(req.RecipientID, sender.Role().Opposite())
	if !online {
		return nil
	}
	return recipient.Send(event, RelayEvent{CallID: req.CallID, From: sender.Identity(), Payload: req.Payload})
}

// closeOut handles every terminal event. Any of reject/cancel/end may be
// emitted by either the original caller's or the original receiver's
// connection, so the true caller is recovered from the tracker; when the
// entry has expired the sender of the terminal event is treated as the
// answerer and the named recipient as the original caller. That fallback
// can mislabel direction for very long-pending calls and is kept for
// behavioral parity.
func (r *Router) closeOut(ctx context.Context, sender presence.Conn, req TerminalRequest, status CallStatus, event string) error {
	if req.CallID == "" || req.RecipientID == "" {
		return ErrInvalidCallEvent
	}
	now := r.clock().UTC()

	if other, online := r.presence.Lookup(req.RecipientID, sender.Role().Opposite()); online {
		_ = other.Send(event, CallEvent{CallID: req.CallID, From: sender.Identity()})
	}

	rec := CallRecord{
		CallID:          req.CallID,
		ConversationID:  req.ConversationID,
		DurationSeconds: req.DurationSeconds,
		Status:          status,
		EndTime:         now,
	}
	if init, ok := r.tracker.Resolve(req.CallID); ok {
		rec.CallerID = init.CallerID
		rec.CallerRole = init.CallerRole
		rec.ReceiverID = init.ReceiverID
		rec.ReceiverRole = init.ReceiverRole
		rec.StartTime = init.CreatedAt
		if rec.ConversationID == "" {
			rec.ConversationID = init.ConversationID
		}
	} else {
		rec.CallerID = req.RecipientID
		rec.CallerRole = sender.Role().Opposite()
		rec.ReceiverID = sender.Identity()
		rec.ReceiverRole = sender.Role()
		rec.StartTime = now.Add(-time.Duration(req.DurationSeconds) * time.Second)
	}

	created, err := r.repo.CloseOut(ctx, rec)
	if err != nil {
		// The live event is already forwarded; the record can be repaired
		// offline.
		r.log.Error("call record write failed", "call_id", req.CallID, "status", status, "err", err)
		return nil
	}
	if !created {
		// A second terminal event for an already-closed call: absorbed.
		r.log.Debug("duplicate terminal call event", "call_id", req.CallID, "status", status)
		return nil
	}

	r.tracker.Delete(req.CallID)
	r.releaseCap(ctx, rec.CallerID)
	r.broadcastSummary(ctx, rec, now)
	return nil
}

// broadcastSummary synthesizes the system chat message for a closed call,
// attributed to the true caller regardless of which side reported the
// terminal event, and shows it to both chat UIs immediately.
func (r *Router) broadcastSummary(ctx context.Context, rec CallRecord, now time.Time) {
	msg := messaging.Message{
		ID:              uuid.NewString(),
		ConversationID:  rec.ConversationID,
		SenderID:        rec.CallerID,
		SenderRole:      rec.CallerRole,
		ReceiverID:      rec.ReceiverID,
		ReceiverRole:    rec.ReceiverRole,
		Content:         summaryContent(rec),
		MessageType:     messaging.TypeCallRecord,
		Timestamp:       now,
		DurationSeconds: rec.DurationSeconds,
		CallID:          rec.CallID,
		CallStatus:      string(rec.Status),
	}
	if r.dir != nil {
		if p, err := r.dir.Lookup(ctx, rec.CallerID, rec.CallerRole); err == nil {
			msg.SenderName = p.Name
			msg.SenderAvatar = p.Avatar
		}
	}

	if r.store != nil {
		if err := r.store.InsertMessage(ctx, msg); err != nil {
			r.log.Error("call summary store write failed", "call_id", rec.CallID, "err", err)
		}
	}

	if c, ok := r.presence.Lookup(rec.CallerID, rec.CallerRole); ok {
		_ = c.Send(messaging.EventMessageReceived, msg)
	}
	if c, ok := r.presence.Lookup(rec.ReceiverID, rec.ReceiverRole); ok {
		_ = c.Send(messaging.EventMessageReceived, msg)
	}
}

func summaryContent(rec CallRecord) string {
	switch rec.Status {
	case CallStatusRejected:
		return "rejected the call"
	case CallStatusMissed:
		return "missed call"
	default:
		return "voice call: " + formatDuration(rec.DurationSeconds)
	}
}

func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (r *Router) callerProfile(ctx context.Context, sender presence.Conn) directory.Profile {
	if r.dir == nil {
		return directory.Profile{}
	}
	p, err := r.dir.Lookup(ctx, sender.Identity(), sender.Role())
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			r.log.Warn("caller profile lookup failed", "caller", sender.Identity(), "err", err)
		}
		return directory.Profile{}
	}
	return p
}

func (r *Router) releaseCap(ctx context.Context, callerID string) {
	if r.limiter == nil || callerID == "" {
		return
	}
	if err := r.limiter.Release(ctx, callerID); err != nil {
		r.log.Warn("initiation cap release failed", "caller", callerID, "err", err)
	}
}
