package calls

import (
	"time"

	"support-gateway/internal/auth"
)

// CallStatus is the persisted outcome of a call attempt.
//
// The live state machine is Ringing -> {Accepted, Rejected, Cancelled};
// Accepted -> Active -> Ended. Only terminal outcomes are recorded:
// Rejected, Cancelled (recorded as missed) and Ended (recorded as
// completed).
type CallStatus string

const (
	CallStatusCompleted CallStatus = "completed"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusMissed    CallStatus = "missed"
)

// CallRecord is the durable, per-call-id outcome written to the document
// store. Exactly one record per call id is ever created; later terminal
// events mutate the close-out fields of the existing row.
type CallRecord struct {
	ConversationID  string     `json:"conversation_id" db:"conversation_id"`
	CallID          string     `json:"call_id" db:"call_id"`
	CallerID        string     `json:"caller_id" db:"caller_id"`
	CallerRole      auth.Role  `json:"caller_role" db:"caller_role"`
	ReceiverID      string     `json:"receiver_id" db:"receiver_id"`
	ReceiverRole    auth.Role  `json:"receiver_role" db:"receiver_role"`
	DurationSeconds int        `json:"duration" db:"duration"`
	Status          CallStatus `json:"status" db:"status"`
	StartTime       time.Time  `json:"start_time" db:"start_time"`
	EndTime         time.Time  `json:"end_time" db:"end_time"`
}

// CallInitiation is the ephemeral bookkeeping that lets any later handler
// determine which side of a call was the true originator. It is never
// persisted; a restart loses in-flight attribution and the close-out path
// falls back to its sender-is-answerer heuristic.
type CallInitiation struct {
	CallID         string
	CallerID       string
	CallerRole     auth.Role
	ReceiverID     string
	ReceiverRole   auth.Role
	ConversationID string
	CreatedAt      time.Time
}
