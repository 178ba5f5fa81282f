package orch

import (
	"context"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) JoinGroup(ctx context.Context, cid core.ConnID, p protocol.GroupRef) error {
	id, err := o.actor(cid, p.UserID)
	if err != nil {
		return err
	}
	room := domain.GroupRoom(p.GroupID)
	err = o.Rooms.Join(ctx, room, cid, id.ID)
	o.observeMembership(err)
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("user", string(id.ID)).Str("group", string(p.GroupID)).Msg("joined group")
	o.broadcast(room, protocol.EventUserJoined, protocol.UserPresence{UserID: id.ID, Name: id.Name}, cid)

	// A late joiner learns about running calls the same way as everyone else.
	for _, call := range o.Calls.ActiveInGroup(p.GroupID) {
		o.SendTo(cid, protocol.EventCallStarted, callStarted(call))
	}
	return nil
}

// LeaveGroup is idempotent; only a real unsubscribe is announced.
func (o *Orchestrator) LeaveGroup(cid core.ConnID, p protocol.GroupRef) error {
	room := domain.GroupRoom(p.GroupID)
	if !o.Rooms.Leave(room, cid) {
		return nil
	}
	id, _ := o.Registry.Lookup(cid)
	o.broadcast(room, protocol.EventUserLeft, protocol.UserPresence{UserID: id.ID, Name: id.Name}, cid)
	return nil
}

// Typing is relayed only for connections subscribed to the room; no state
// is kept between typing and stop_typing.
func (o *Orchestrator) Typing(cid core.ConnID, p protocol.Typing) error {
	id, err := o.actor(cid, "")
	if err != nil {
		return err
	}
	room := domain.GroupRoom(p.GroupID)
	if !o.Rooms.IsSubscribed(room, cid) {
		log.Debug().Str("module", "orch").Str("conn", string(cid)).Str("group", string(p.GroupID)).Msg("typing outside room dropped")
		return nil
	}
	name := p.UserName
	if name == "" {
		name = id.Name
	}
	o.broadcast(room, protocol.EventUserTyping, protocol.UserTyping{GroupID: p.GroupID, UserName: name}, cid)
	return nil
}

func (o *Orchestrator) StopTyping(cid core.ConnID, p protocol.Typing) error {
	if _, err := o.actor(cid, ""); err != nil {
		return err
	}
	room := domain.GroupRoom(p.GroupID)
	if !o.Rooms.IsSubscribed(room, cid) {
		return nil
	}
	o.broadcast(room, protocol.EventUserStopTyping, protocol.UserTyping{GroupID: p.GroupID}, cid)
	return nil
}
