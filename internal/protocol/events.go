// Package protocol defines the event names and payloads exchanged over the
// signal socket. Every frame is an Envelope: {"type": <event>, "data": <payload>}.
package protocol

// Inbound events.
const (
	EventPing           = "ping"
	EventUserConnect    = "user_connect"
	EventJoinGroup      = "join_group"
	EventLeaveGroup     = "leave_group"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventDeleteMessages = "delete_messages"
	EventStartCall      = "start-call"
	EventEndCall        = "end-call"
	EventWebRTCJoin     = "webrtc-join-call"
	EventWebRTCLeave    = "webrtc-leave-call"
)

// Events relayed unicast in both directions.
const (
	EventWebRTCOffer     = "webrtc-offer"
	EventWebRTCAnswer    = "webrtc-answer"
	EventWebRTCCandidate = "webrtc-ice-candidate"
)

// EventUserJoinedCall is both the inbound call join and its broadcast.
const EventUserJoinedCall = "user-joined-call"

// Outbound events.
const (
	EventPong             = "pong"
	EventError            = "error"
	EventNewMessage       = "new_message"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventUserDisconnected = "user_disconnected"
	EventMessagesDeleted  = "messages_deleted"
	EventUserTyping       = "user_typing"
	EventUserStopTyping   = "user_stop_typing"
	EventCallStarted      = "call-started"
	EventCallEnded        = "call-ended"
	EventUserLeftCall     = "user-left-call"
	EventWebRTCUserJoined = "webrtc-user-joined"
	EventWebRTCUserLeft   = "webrtc-user-left"
)

// IsRelay reports whether an event is forwarded unicast to a target user.
func IsRelay(event string) bool {
	switch event {
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		return true
	}
	return false
}
