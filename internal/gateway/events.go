package gateway

// Inbound events carried in the {event, data} envelope.
const (
	EventJoinConversation = "join-conversation"
	EventSendMessage      = "send-message"
	EventFetchOffline     = "fetch-offline-messages"
	EventInitiateCall     = "initiate-call"
	EventAcceptCall       = "accept-call"
	EventRejectCall       = "reject-call"
	EventCancelCall       = "cancel-call"
	EventEndCall          = "end-call"
	EventHeartbeatPing    = "heartbeat-ping"
)

// Outbound events owned by the gateway itself. Presence, chat and call
// events are named by their packages.
const (
	EventHeartbeatPong = "heartbeat-pong"
	EventError         = "error"
)

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

type HeartbeatPing struct {
	Timestamp int64 `json:"timestamp"`
}

type HeartbeatPong struct {
	Timestamp       int64 `json:"timestamp"`
	ServerTimestamp int64 `json:"serverTimestamp"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
