package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type participantEntry struct {
	domain.Participant
	Conn core.ConnID
}

type callEntry struct {
	call         domain.Call
	participants map[domain.UserID]*participantEntry
}

// Departure describes one participant removal.
type Departure struct {
	Call        domain.Call
	Participant domain.Participant
	Duration    time.Duration
	// CallEnded is set when the departure emptied the call and removed it.
	CallEnded    bool
	CallDuration time.Duration
}

// Ending describes an endCall.
type Ending struct {
	CallID   domain.CallID
	Call     *domain.Call
	Duration *time.Duration
}

// CallRegistry holds the active calls. Every mutation happens under one
// lock, so the first Start for an id wins.
type CallRegistry struct {
	mu      sync.Mutex
	calls   map[domain.CallID]*callEntry
	byGroup map[domain.GroupID]map[domain.CallID]struct{}
	clock   Clock
}

func NewCallRegistry(clock Clock) *CallRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CallRegistry{
		calls:   make(map[domain.CallID]*callEntry),
		byGroup: make(map[domain.GroupID]map[domain.CallID]struct{}),
		clock:   clock,
	}
}

// Start registers a call with its initiator as first participant.
func (r *CallRegistry) Start(call domain.Call, initiatorConn core.ConnID) (domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[call.ID]; ok {
		return domain.Call{}, fmt.Errorf("%w: %s", domain.ErrCallIDConflict, call.ID)
	}
	now := r.clock.Now()
	call.StartedAt = now
	r.calls[call.ID] = &callEntry{
		call: call,
		participants: map[domain.UserID]*participantEntry{
			call.Initiator.ID: {
				Participant: domain.Participant{UserID: call.Initiator.ID, Name: call.Initiator.Name, JoinedAt: now},
				Conn:        initiatorConn,
			},
		},
	}
	calls, ok := r.byGroup[call.Group]
	if !ok {
		calls = make(map[domain.CallID]struct{})
		r.byGroup[call.Group] = calls
	}
	calls[call.ID] = struct{}{}
	log.Info().Str("module", "app.calls").Str("call", string(call.ID)).Str("group", string(call.Group)).Msg("call started")
	return call, nil
}

// Join adds a participant. It reports false for an unknown call. A repeated
// join keeps the first join time.
func (r *CallRegistry) Join(id domain.CallID, uid domain.UserID, name string, conn core.ConnID) (domain.Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	if p, ok := e.participants[uid]; ok {
		p.Conn = conn
		return e.call, true
	}
	e.participants[uid] = &participantEntry{
		Participant: domain.Participant{UserID: uid, Name: name, JoinedAt: r.clock.Now()},
		Conn:        conn,
	}
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("user", string(uid)).Msg("participant joined")
	return e.call, true
}

// End removes the call. reported overrides the computed duration. Ending an
// unknown call returns an Ending without Call.
func (r *CallRegistry) End(id domain.CallID, reported *time.Duration) Ending {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := Ending{CallID: id, Duration: reported}
	e, ok := r.calls[id]
	if !ok {
		return out
	}
	call := e.call
	out.Call = &call
	if reported == nil {
		d := r.clock.Now().Sub(call.StartedAt)
		out.Duration = &d
	}
	r.dropLocked(id)
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("call ended")
	return out
}

// Leave removes uid from call id. A second Leave for the same pair is a no-op.
func (r *CallRegistry) Leave(id domain.CallID, uid domain.UserID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(id, uid)
}

// LeaveGroup removes uid from whichever active call of group it is in.
func (r *CallRegistry) LeaveGroup(group domain.GroupID, uid domain.UserID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.byGroup[group] {
		if _, ok := r.calls[id].participants[uid]; ok {
			return r.leaveLocked(id, uid)
		}
	}
	return Departure{}, false
}

// LeaveConn removes every participation that was joined through conn.
func (r *CallRegistry) LeaveConn(conn core.ConnID) []Departure {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Departure
	for id, e := range r.calls {
		for uid, p := range e.participants {
			if p.Conn != conn {
				continue
			}
			if d, ok := r.leaveLocked(id, uid); ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func (r *CallRegistry) leaveLocked(id domain.CallID, uid domain.UserID) (Departure, bool) {
	e, ok := r.calls[id]
	if !ok {
		return Departure{}, false
	}
	p, ok := e.participants[uid]
	if !ok {
		return Departure{}, false
	}
	now := r.clock.Now()
	delete(e.participants, uid)
	d := Departure{
		Call:        e.call,
		Participant: p.Participant,
		Duration:    max(now.Sub(p.JoinedAt), 0),
	}
	if len(e.participants) == 0 {
		d.CallEnded = true
		d.CallDuration = max(now.Sub(e.call.StartedAt), 0)
		r.dropLocked(id)
	}
	log.Info().Str("module", "app.calls").Str("call", string(id)).Str("user", string(uid)).Dur("duration", d.Duration).Msg("participant left")
	return d, true
}

func (r *CallRegistry) dropLocked(id domain.CallID) {
	e, ok := r.calls[id]
	if !ok {
		return
	}
	delete(r.calls, id)
	if calls, ok := r.byGroup[e.call.Group]; ok {
		delete(calls, id)
		if len(calls) == 0 {
			delete(r.byGroup, e.call.Group)
		}
	}
}

// Get returns a call and its participants ordered by join time.
func (r *CallRegistry) Get(id domain.CallID) (domain.Call, []domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.calls[id]
	if !ok {
		return domain.Call{}, nil, false
	}
	ps := lo.MapToSlice(e.participants, func(_ domain.UserID, p *participantEntry) domain.Participant {
		return p.Participant
	})
	sort.Slice(ps, func(i, j int) bool { return ps[i].JoinedAt.Before(ps[j].JoinedAt) })
	return e.call, ps, true
}

func (r *CallRegistry) ActiveInGroup(group domain.GroupID) []domain.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Call, 0, len(r.byGroup[group]))
	for id := range r.byGroup[group] {
		out = append(out, r.calls[id].call)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (r *CallRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
