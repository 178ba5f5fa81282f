package protocol

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/domain"
)

// Inbound payloads.

type UserConnect struct {
	UserID  domain.UserID `json:"userId" validate:"required,max=64"`
	Name    string        `json:"name" validate:"required,max=100"`
	Email   string        `json:"email" validate:"omitempty,email"`
	College string        `json:"college" validate:"max=200"`
}

type GroupRef struct {
	GroupID domain.GroupID `json:"groupId" validate:"required"`
	UserID  domain.UserID  `json:"userId"`
}

type SendMessage struct {
	GroupID     domain.GroupID `json:"groupId" validate:"required"`
	SenderID    domain.UserID  `json:"senderId"`
	MessageText string         `json:"messageText" validate:"required"`
}

type Typing struct {
	GroupID  domain.GroupID `json:"groupId" validate:"required"`
	UserName string         `json:"userName"`
}

type DeleteMessages struct {
	GroupID    domain.GroupID     `json:"groupId" validate:"required"`
	MessageIDs []domain.MessageID `json:"messageIds" validate:"required,min=1,max=500,dive,gt=0"`
}

type StartCall struct {
	GroupID    domain.GroupID `json:"groupId" validate:"required"`
	CallID     domain.CallID  `json:"callId" validate:"required,max=128"`
	CallType   string         `json:"callType" validate:"required,oneof=audio video"`
	CallerID   domain.UserID  `json:"callerId"`
	CallerName string         `json:"callerName"`
	GroupName  string         `json:"groupName"`
}

type JoinedCall struct {
	GroupID  domain.GroupID `json:"groupId" validate:"required"`
	CallID   domain.CallID  `json:"callId" validate:"required"`
	UserID   domain.UserID  `json:"userId"`
	UserName string         `json:"userName"`
}

type EndCall struct {
	GroupID    domain.GroupID `json:"groupId" validate:"required"`
	CallID     domain.CallID  `json:"callId" validate:"required"`
	CallerName string         `json:"callerName"`
	Duration   *int64         `json:"duration,omitempty" validate:"omitempty,gte=0"`
}

// CallPresence is the payload of webrtc-join-call and webrtc-leave-call.
type CallPresence struct {
	GroupID  domain.GroupID `json:"groupId" validate:"required"`
	UserID   domain.UserID  `json:"userId"`
	UserName string         `json:"userName"`
}

// Signal is an inbound offer, answer or candidate addressed to one user.
// The session description or candidate is relayed untouched.
type Signal struct {
	GroupID      domain.GroupID  `json:"groupId"`
	TargetUserID domain.UserID   `json:"targetUserId" validate:"required"`
	FromUserID   domain.UserID   `json:"fromUserId"`
	FromUserName string          `json:"fromUserName"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// Body returns the relayed part matching the event.
func (s Signal) Body(event string) json.RawMessage {
	switch event {
	case EventWebRTCOffer:
		return s.Offer
	case EventWebRTCAnswer:
		return s.Answer
	case EventWebRTCCandidate:
		return s.Candidate
	}
	return nil
}

// Outbound payloads.

type ErrorEvent struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type UserPresence struct {
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name"`
}

type MessagesDeleted struct {
	GroupID    domain.GroupID     `json:"groupId"`
	MessageIDs []domain.MessageID `json:"messageIds"`
}

type UserTyping struct {
	GroupID  domain.GroupID `json:"groupId"`
	UserName string         `json:"userName,omitempty"`
}

type CallStarted struct {
	CallID     domain.CallID   `json:"callId"`
	CallType   domain.CallKind `json:"callType"`
	CallerName string          `json:"callerName"`
	CallerID   domain.UserID   `json:"callerId"`
	GroupName  string          `json:"groupName"`
	GroupID    domain.GroupID  `json:"groupId"`
}

type UserJoinedCall struct {
	CallID   domain.CallID `json:"callId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

// CallEnded.Duration is nil only when an unknown call is ended without a
// reported duration.
type CallEnded struct {
	CallID     domain.CallID `json:"callId"`
	CallerName string        `json:"callerName"`
	Duration   *int64        `json:"duration,omitempty"`
}

type UserLeftCall struct {
	CallID   domain.CallID `json:"callId"`
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
	Duration int64         `json:"duration"`
}

// CallPeer is the payload of webrtc-user-joined and webrtc-user-left.
type CallPeer struct {
	UserID   domain.UserID `json:"userId"`
	UserName string        `json:"userName"`
}

// RelayedSignal is the unicast form of Signal delivered to the target.
type RelayedSignal struct {
	FromUserID   domain.UserID   `json:"fromUserId"`
	FromUserName string          `json:"fromUserName,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// NewRelayedSignal places body under the key matching the event.
func NewRelayedSignal(event string, from domain.UserID, fromName string, body json.RawMessage) RelayedSignal {
	out := RelayedSignal{FromUserID: from, FromUserName: fromName}
	switch event {
	case EventWebRTCOffer:
		out.Offer = body
	case EventWebRTCAnswer:
		out.Answer = body
	case EventWebRTCCandidate:
		out.Candidate = body
	}
	return out
}

// Body returns the relayed part matching the event.
func (s RelayedSignal) Body(event string) json.RawMessage {
	switch event {
	case EventWebRTCOffer:
		return s.Offer
	case EventWebRTCAnswer:
		return s.Answer
	case EventWebRTCCandidate:
		return s.Candidate
	}
	return nil
}
