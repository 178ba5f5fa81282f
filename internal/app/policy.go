package app

import (
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a connection that refused a broadcast frame.
type Policy interface {
	OnBackPressure(room domain.RoomKey, conn core.ConnID) BackpressureAction
}

// SimplePolicy disconnects slow consumers; their state is then unwound by
// disconnect cleanup.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.RoomKey, core.ConnID) BackpressureAction {
	return KickMember
}

// LenientPolicy keeps slow consumers and loses the frame.
type LenientPolicy struct{}

func (LenientPolicy) OnBackPressure(domain.RoomKey, core.ConnID) BackpressureAction {
	return DropFrame
}
