package domain

import (
	"errors"
	"time"
)

const MaxCallIDLen = 128

var ErrUnknownCallKind = errors.New("unknown call kind")

type CallID string

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func ParseCallKind(s string) (CallKind, error) {
	switch CallKind(s) {
	case CallAudio, CallVideo:
		return CallKind(s), nil
	}
	return "", ErrUnknownCallKind
}

// Call is an active call. It belongs to exactly one group.
type Call struct {
	ID        CallID    `json:"callId"`
	Group     GroupID   `json:"groupId"`
	GroupName string    `json:"groupName,omitempty"`
	Kind      CallKind  `json:"callType"`
	Initiator Identity  `json:"caller"`
	StartedAt time.Time `json:"startedAt"`
}

type Participant struct {
	UserID   UserID    `json:"userId"`
	Name     string    `json:"userName"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Seconds is the wire form of a duration; partial seconds are dropped and
// negative values clamp to zero.
func Seconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
