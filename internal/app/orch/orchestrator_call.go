package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// StartCall registers the call and tells the whole group, initiator
// included, so every tab of every member learns about it.
func (o *Orchestrator) StartCall(ctx context.Context, cid core.ConnID, p protocol.StartCall) error {
	id, err := o.actor(cid, p.CallerID)
	if err != nil {
		return err
	}
	kind, err := domain.ParseCallKind(p.CallType)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	err = o.Rooms.Authorize(ctx, p.GroupID, id.ID)
	o.observeMembership(err)
	if err != nil {
		return err
	}

	initiator := id
	if p.CallerName != "" {
		initiator.Name = p.CallerName
	}
	call, err := o.Calls.Start(domain.Call{
		ID:        p.CallID,
		Group:     p.GroupID,
		GroupName: p.GroupName,
		Kind:      kind,
		Initiator: initiator,
	}, cid)
	if err != nil {
		return err
	}
	o.Metrics.ActiveCalls(o.Calls.Len())

	o.broadcast(domain.GroupRoom(call.Group), protocol.EventCallStarted, callStarted(call), "")
	return nil
}

func callStarted(call domain.Call) protocol.CallStarted {
	return protocol.CallStarted{
		CallID:     call.ID,
		CallType:   call.Kind,
		CallerName: call.Initiator.Name,
		CallerID:   call.Initiator.ID,
		GroupName:  call.GroupName,
		GroupID:    call.Group,
	}
}

// JoinCall ignores calls it does not know; the client learned the id from
// call-started and the call may be gone already.
func (o *Orchestrator) JoinCall(ctx context.Context, cid core.ConnID, p protocol.JoinedCall) error {
	id, err := o.actor(cid, p.UserID)
	if err != nil {
		return err
	}
	err = o.Rooms.Authorize(ctx, p.GroupID, id.ID)
	o.observeMembership(err)
	if err != nil {
		return err
	}
	if call, _, ok := o.Calls.Get(p.CallID); !ok || call.Group != p.GroupID {
		log.Debug().Str("module", "orch").Str("call", string(p.CallID)).Msg("join of unknown call ignored")
		return nil
	}
	name := id.Name
	if p.UserName != "" {
		name = p.UserName
	}
	if _, ok := o.Calls.Join(p.CallID, id.ID, name, cid); !ok {
		return nil
	}
	o.broadcast(domain.GroupRoom(p.GroupID), protocol.EventUserJoinedCall, protocol.UserJoinedCall{
		CallID:   p.CallID,
		UserID:   id.ID,
		UserName: name,
	}, "")
	return nil
}

// EndCall always announces call-ended, also for calls already gone.
func (o *Orchestrator) EndCall(ctx context.Context, cid core.ConnID, p protocol.EndCall) error {
	id, err := o.actor(cid, "")
	if err != nil {
		return err
	}
	err = o.Rooms.Authorize(ctx, p.GroupID, id.ID)
	o.observeMembership(err)
	if err != nil {
		return err
	}
	if call, _, ok := o.Calls.Get(p.CallID); ok && call.Group != p.GroupID {
		log.Warn().Str("module", "orch").Str("call", string(p.CallID)).Str("group", string(p.GroupID)).Msg("end of call from another group ignored")
		return nil
	}

	var reported *time.Duration
	if p.Duration != nil {
		d := time.Duration(*p.Duration) * time.Second
		reported = &d
	}
	ending := o.Calls.End(p.CallID, reported)
	o.Metrics.ActiveCalls(o.Calls.Len())

	callerName := p.CallerName
	if callerName == "" {
		callerName = id.Name
	}
	out := protocol.CallEnded{CallID: p.CallID, CallerName: callerName}
	if ending.Duration != nil {
		secs := domain.Seconds(*ending.Duration)
		out.Duration = &secs
	}
	o.broadcast(domain.GroupRoom(p.GroupID), protocol.EventCallEnded, out, "")
	return nil
}

// WebRTCJoinCall subscribes cid to the call room of the group and tells the
// peers already there.
func (o *Orchestrator) WebRTCJoinCall(ctx context.Context, cid core.ConnID, p protocol.CallPresence) error {
	id, err := o.actor(cid, p.UserID)
	if err != nil {
		return err
	}
	room := domain.CallRoom(p.GroupID)
	err = o.Rooms.Join(ctx, room, cid, id.ID)
	o.observeMembership(err)
	if err != nil {
		return err
	}
	name := id.Name
	if p.UserName != "" {
		name = p.UserName
	}
	o.broadcast(room, protocol.EventWebRTCUserJoined, protocol.CallPeer{UserID: id.ID, UserName: name}, cid)
	return nil
}

// WebRTCLeaveCall runs leaveCall for the user's participation in the group's
// call and drops the call room subscription.
func (o *Orchestrator) WebRTCLeaveCall(cid core.ConnID, p protocol.CallPresence) error {
	id, err := o.actor(cid, p.UserID)
	if err != nil {
		return err
	}
	departed := false
	if d, ok := o.Calls.LeaveGroup(p.GroupID, id.ID); ok {
		departed = true
		o.announceDeparture(d)
	}
	room := domain.CallRoom(p.GroupID)
	if o.Rooms.Leave(room, cid) || departed {
		name := id.Name
		if p.UserName != "" {
			name = p.UserName
		}
		o.broadcast(room, protocol.EventWebRTCUserLeft, protocol.CallPeer{UserID: id.ID, UserName: name}, cid)
	}
	return nil
}

func (o *Orchestrator) announceDeparture(d app.Departure) {
	group := domain.GroupRoom(d.Call.Group)
	o.broadcast(group, protocol.EventUserLeftCall, protocol.UserLeftCall{
		CallID:   d.Call.ID,
		UserID:   d.Participant.UserID,
		UserName: d.Participant.Name,
		Duration: domain.Seconds(d.Duration),
	}, "")
	if d.CallEnded {
		secs := domain.Seconds(d.CallDuration)
		o.broadcast(group, protocol.EventCallEnded, protocol.CallEnded{
			CallID:     d.Call.ID,
			CallerName: d.Call.Initiator.Name,
			Duration:   &secs,
		}, "")
	}
	o.Metrics.ActiveCalls(o.Calls.Len())
}

// CallView is an active call with its current participants.
type CallView struct {
	domain.Call
	Participants []domain.Participant `json:"participants"`
}

// ActiveCalls lists the running calls of a group for one of its members.
func (o *Orchestrator) ActiveCalls(ctx context.Context, uid domain.UserID, group domain.GroupID) ([]CallView, error) {
	err := o.Rooms.Authorize(ctx, group, uid)
	o.observeMembership(err)
	if err != nil {
		return nil, err
	}
	views := []CallView{}
	for _, c := range o.Calls.ActiveInGroup(group) {
		call, parts, ok := o.Calls.Get(c.ID)
		if !ok {
			continue
		}
		views = append(views, CallView{Call: call, Participants: parts})
	}
	return views, nil
}
