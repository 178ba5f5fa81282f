package mesh

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const maxEarlyCandidates = 64

// slot holds everything the engine knows about one remote peer. Its mutex
// serializes all transitions for that peer and outlives the links it holds.
type slot struct {
	mu     sync.Mutex
	remote domain.UserID
	link   *link
	// early keeps remote candidates that arrived while there was no link.
	early []webrtc.ICECandidateInit
}

func (s *slot) buffer(c webrtc.ICECandidateInit) {
	if len(s.early) >= maxEarlyCandidates {
		s.early = s.early[1:]
	}
	s.early = append(s.early, c)
}

// link is one peer connection towards a remote participant. state,
// remoteSet and pending are guarded by the owning slot's mutex.
type link struct {
	remote    domain.UserID
	pc        core.PeerConnection
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit

	// omu guards the local candidate outbox; candidates are gathered on
	// pion goroutines, outside the slot lock.
	omu      sync.Mutex
	outbox   []webrtc.ICECandidateInit
	released bool
}

// local queues c until the description of this link has been handed to the
// signaler, then sends directly.
func (l *link) local(ctx context.Context, sig Signaler, c webrtc.ICECandidateInit) {
	l.omu.Lock()
	defer l.omu.Unlock()
	if !l.released {
		l.outbox = append(l.outbox, c)
		return
	}
	l.sendCandidate(ctx, sig, c)
}

// release flushes the outbox; later candidates go out immediately.
func (l *link) release(ctx context.Context, sig Signaler) {
	l.omu.Lock()
	defer l.omu.Unlock()
	if l.released {
		return
	}
	l.released = true
	for _, c := range l.outbox {
		l.sendCandidate(ctx, sig, c)
	}
	l.outbox = nil
}

func (l *link) sendCandidate(ctx context.Context, sig Signaler, c webrtc.ICECandidateInit) {
	if err := sig.SendCandidate(ctx, l.remote, c); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("target", string(l.remote)).Msg("send candidate")
	}
}

// remoteDescribed marks the remote description as set and applies every
// candidate that waited for it.
func (l *link) remoteDescribed() {
	l.remoteSet = true
	for _, c := range l.pending {
		l.addCandidate(c)
	}
	l.pending = nil
}

func (l *link) addCandidate(c webrtc.ICECandidateInit) {
	if err := l.pc.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(l.remote)).Msg("add candidate")
	}
}

// close is idempotent.
func (l *link) close() {
	if l.state == Closed {
		return
	}
	l.state = Closed
	if err := l.pc.Close(); err != nil {
		log.Warn().Err(err).Str("module", "mesh").Str("peer", string(l.remote)).Msg("close peer connection")
	}
}
