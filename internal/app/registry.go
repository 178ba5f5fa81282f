package app

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type connEntry struct {
	Identity *domain.Identity
	Signal   core.SignalConnection
	Cancel   func()
	Token    string
}

// Registry is the connection registry. It owns the connId -> identity map
// and the userId -> connIds reverse index; both change under one lock.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*connEntry
	byUser map[domain.UserID]map[core.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnID]struct{}),
	}
}

// Bind attaches the transport of a freshly opened connection. cancel must
// tear the transport down.
func (r *Registry) Bind(cid core.ConnID, sig core.SignalConnection, cancel func(), token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		e = &connEntry{}
		r.conns[cid] = e
	}
	e.Signal = sig
	e.Cancel = cancel
	e.Token = token
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("bound signal")
}

// Register sets the identity of a connection. Calling it again replaces the
// identity and moves the connection in the reverse index.
func (r *Registry) Register(cid core.ConnID, id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		e = &connEntry{}
		r.conns[cid] = e
	}
	if e.Identity != nil && e.Identity.ID != id.ID {
		r.unindex(e.Identity.ID, cid)
	}
	e.Identity = &id
	set, ok := r.byUser[id.ID]
	if !ok {
		set = make(map[core.ConnID]struct{})
		r.byUser[id.ID] = set
	}
	set[cid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("user", string(id.ID)).Msg("registered identity")
}

func (r *Registry) Lookup(cid core.ConnID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.Identity == nil {
		return domain.Identity{}, false
	}
	return *e.Identity, true
}

// Signal implements the transport lookup used by room broadcasts.
func (r *Registry) Signal(cid core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.Signal == nil {
		return nil, false
	}
	return e.Signal, true
}

func (r *Registry) FindConnectionsForUser(uid domain.UserID) []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.byUser[uid])
}

// Remove drops the connection. It reports false when the connection was
// already gone; the identity is nil if user_connect never arrived.
func (r *Registry) Remove(cid core.ConnID) (*domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return nil, false
	}
	delete(r.conns, cid)
	if e.Identity != nil {
		r.unindex(e.Identity.ID, cid)
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("removed connection")
	return e.Identity, true
}

func (r *Registry) unindex(uid domain.UserID, cid core.ConnID) {
	set := r.byUser[uid]
	delete(set, cid)
	if len(set) == 0 {
		delete(r.byUser, uid)
	}
}

// Cancel tears down the transport of a connection; disconnect cleanup then
// runs from the adapter.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("canceled connection")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
