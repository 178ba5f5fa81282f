package orch

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Connect binds a freshly opened transport. cancel must close it.
func (o *Orchestrator) Connect(cid core.ConnID, sig core.SignalConnection, cancel func(), token string) {
	o.Registry.Bind(cid, sig, cancel, token)
	o.Metrics.ConnOpened()
}

func (o *Orchestrator) UserConnect(cid core.ConnID, p protocol.UserConnect) error {
	id, err := domain.NewIdentity(p.UserID, p.Name, p.Email, p.College)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	o.Registry.Register(cid, *id)
	return nil
}

// Disconnect unwinds everything cid took part in: call participations,
// room subscriptions and the registry entry. Calling it twice is a no-op.
func (o *Orchestrator) Disconnect(cid core.ConnID) {
	id, _ := o.Registry.Lookup(cid)

	for _, d := range o.Calls.LeaveConn(cid) {
		o.announceDeparture(d)
	}

	for _, room := range o.Rooms.RemoveConn(cid) {
		switch room.Kind {
		case domain.RoomGroup:
			o.broadcast(room, protocol.EventUserDisconnected, protocol.UserPresence{UserID: id.ID, Name: id.Name}, cid)
		case domain.RoomCall:
			o.broadcast(room, protocol.EventWebRTCUserLeft, protocol.CallPeer{UserID: id.ID, UserName: id.Name}, cid)
		}
	}

	if _, ok := o.Registry.Remove(cid); ok {
		o.Metrics.ConnClosed()
		log.Info().Str("module", "orch").Str("conn", string(cid)).Str("user", string(id.ID)).Msg("disconnected")
	}
}
