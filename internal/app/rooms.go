package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// SignalDirectory resolves a connection to its transport.
type SignalDirectory interface {
	Signal(cid core.ConnID) (core.SignalConnection, bool)
}

// RoomIndex maps rooms to subscribed connections. Subscribing requires the
// membership collaborator to accept the user; the check runs before any
// lock is taken and is bounded by timeout.
type RoomIndex struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomKey]map[core.ConnID]domain.UserID
	byConn map[core.ConnID]map[domain.RoomKey]struct{}

	members core.MembershipChecker
	signals SignalDirectory
	timeout time.Duration
}

func NewRoomIndex(members core.MembershipChecker, signals SignalDirectory, timeout time.Duration) *RoomIndex {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RoomIndex{
		rooms:   make(map[domain.RoomKey]map[core.ConnID]domain.UserID),
		byConn:  make(map[core.ConnID]map[domain.RoomKey]struct{}),
		members: members,
		signals: signals,
		timeout: timeout,
	}
}

// Authorize asks the membership collaborator whether uid belongs to group.
// A slow or failing collaborator yields ErrMembershipUnavailable.
func (x *RoomIndex) Authorize(ctx context.Context, group domain.GroupID, uid domain.UserID) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := x.members.IsMember(ctx, group, uid)
		done <- answer{ok: ok, err: err}
	}()

	var a answer
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrMembershipUnavailable, ctx.Err())
	case a = <-done:
	}
	if a.err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMembershipUnavailable, a.err)
	}
	if !a.ok {
		return fmt.Errorf("%w: user %s is not a member of group %s", domain.ErrUnauthorized, uid, group)
	}
	return nil
}

// Join subscribes cid to room. On any error nothing is mutated.
func (x *RoomIndex) Join(ctx context.Context, room domain.RoomKey, cid core.ConnID, uid domain.UserID) error {
	if err := x.Authorize(ctx, room.Group, uid); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	subs, ok := x.rooms[room]
	if !ok {
		subs = make(map[core.ConnID]domain.UserID)
		x.rooms[room] = subs
	}
	subs[cid] = uid
	keys, ok := x.byConn[cid]
	if !ok {
		keys = make(map[domain.RoomKey]struct{})
		x.byConn[cid] = keys
	}
	keys[room] = struct{}{}
	log.Info().Str("module", "app.rooms").Str("room", room.String()).Str("conn", string(cid)).Msg("subscribed")
	return nil
}

// Leave reports whether cid was subscribed. Leaving twice is a no-op.
func (x *RoomIndex) Leave(room domain.RoomKey, cid core.ConnID) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.leaveLocked(room, cid)
}

func (x *RoomIndex) leaveLocked(room domain.RoomKey, cid core.ConnID) bool {
	subs, ok := x.rooms[room]
	if !ok {
		return false
	}
	if _, ok := subs[cid]; !ok {
		return false
	}
	delete(subs, cid)
	if len(subs) == 0 {
		delete(x.rooms, room)
	}
	if keys, ok := x.byConn[cid]; ok {
		delete(keys, room)
		if len(keys) == 0 {
			delete(x.byConn, cid)
		}
	}
	log.Info().Str("module", "app.rooms").Str("room", room.String()).Str("conn", string(cid)).Msg("unsubscribed")
	return true
}

// RemoveConn unsubscribes cid from every room and returns those rooms.
func (x *RoomIndex) RemoveConn(cid core.ConnID) []domain.RoomKey {
	x.mu.Lock()
	defer x.mu.Unlock()
	keys := lo.Keys(x.byConn[cid])
	for _, room := range keys {
		x.leaveLocked(room, cid)
	}
	return keys
}

func (x *RoomIndex) IsSubscribed(room domain.RoomKey, cid core.ConnID) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.rooms[room][cid]
	return ok
}

func (x *RoomIndex) MembersOf(room domain.RoomKey) []core.ConnID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return lo.Keys(x.rooms[room])
}

func (x *RoomIndex) RoomsOf(cid core.ConnID) []domain.RoomKey {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return lo.Keys(x.byConn[cid])
}

// Broadcast enqueues frame on every subscriber except exclude. Sends never
// block; a subscriber whose queue refuses the frame is reported as dropped.
func (x *RoomIndex) Broadcast(room domain.RoomKey, frame core.Frame, exclude core.ConnID) core.PublishResult {
	res := core.PublishResult{}
	for _, cid := range x.MembersOf(room) {
		if cid == exclude {
			continue
		}
		sig, ok := x.signals.Signal(cid)
		if !ok {
			continue
		}
		if err := sig.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, cid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.rooms").Str("room", room.String()).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
