// Package orch routes inbound hub events: it checks membership, mutates the
// registries and fans the outcome out to rooms or single connections.
package orch

import (
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	defaultStoreTimeout  = 5 * time.Second
	defaultMaxMessageLen = domain.MaxMessageLen
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomIndex
	Calls    *app.CallRegistry
	Messages core.MessageStore
	Policy   app.Policy
	Metrics  *metrics.Metrics

	MaxMessageLen int
	StoreTimeout  time.Duration

	// seq serializes accept-persist-broadcast per group, which gives every
	// subscriber the same message order.
	seq keyedMutex
}

// actor resolves the identity behind cid. A payload that names another
// user than the registered one is rejected.
func (o *Orchestrator) actor(cid core.ConnID, claimed domain.UserID) (domain.Identity, error) {
	id, ok := o.Registry.Lookup(cid)
	if !ok {
		return domain.Identity{}, domain.ErrNotConnected
	}
	if claimed != "" && claimed != id.ID {
		return domain.Identity{}, fmt.Errorf("%w: connection of %s cannot act as %s", domain.ErrUnauthorized, id.ID, claimed)
	}
	return id, nil
}

func (o *Orchestrator) observeMembership(err error) {
	if err == nil {
		o.Metrics.Membership("ok")
		return
	}
	o.Metrics.Membership(domain.ErrorCode(err))
}

func (o *Orchestrator) encode(event string, payload any) core.Frame {
	b, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("event", event).Msg("encode")
		return nil
	}
	return core.Frame(b)
}

func (o *Orchestrator) broadcast(room domain.RoomKey, event string, payload any, exclude core.ConnID) {
	frame := o.encode(event, payload)
	if frame == nil {
		return
	}
	res := o.Rooms.Broadcast(room, frame, exclude)
	o.handleDropped(room, res)
}

// SendTo delivers one event to a single connection.
func (o *Orchestrator) SendTo(cid core.ConnID, event string, payload any) {
	frame := o.encode(event, payload)
	if frame == nil {
		return
	}
	sig, ok := o.Registry.Signal(cid)
	if !ok {
		return
	}
	if err := sig.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(cid)).Str("event", event).Msg("send to connection failed")
	}
}

// SendError reports err to the originating connection only.
func (o *Orchestrator) SendError(cid core.ConnID, err error) {
	code := domain.ErrorCode(err)
	o.Metrics.Rejected(code)
	o.SendTo(cid, protocol.EventError, protocol.ErrorEvent{Message: err.Error(), Code: code})
}

func (o *Orchestrator) handleDropped(room domain.RoomKey, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	o.Metrics.Dropped(len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, cid := range res.Dropped {
		switch o.Policy.OnBackPressure(room, cid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("conn", string(cid)).Str("room", room.String()).Msg("kicking slow connection")
			o.Registry.Cancel(cid)
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) storeTimeout() time.Duration {
	if o.StoreTimeout > 0 {
		return o.StoreTimeout
	}
	return defaultStoreTimeout
}

func (o *Orchestrator) maxMessageLen() int {
	if o.MaxMessageLen > 0 {
		return o.MaxMessageLen
	}
	return defaultMaxMessageLen
}

// keyedMutex serializes work per group. An entry lives only while some
// goroutine holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.GroupID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key domain.GroupID) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[domain.GroupID]*refMutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
