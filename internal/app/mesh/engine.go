// Package mesh drives the client side of a call: one peer link per remote
// participant, negotiated over the hub's signaling relay.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
)

var (
	ErrClosed    = errors.New("engine closed")
	ErrAudioOnly = errors.New("audio only call")
)

// Signaler hands negotiation messages to the relay. Messages to one target
// must be delivered in the order they were sent.
type Signaler interface {
	SendOffer(ctx context.Context, to domain.UserID, offer webrtc.SessionDescription) error
	SendAnswer(ctx context.Context, to domain.UserID, answer webrtc.SessionDescription) error
	SendCandidate(ctx context.Context, to domain.UserID, c webrtc.ICECandidateInit) error
}

type Options struct {
	Self     domain.UserID
	Factory  core.PeerFactory
	Signaler Signaler
	// Media is closed by Leave. It may be nil.
	Media          core.LocalMedia
	OfferCacheSize int
}

// Engine keeps a full mesh of peer links for one call.
type Engine struct {
	self     domain.UserID
	factory  core.PeerFactory
	signaler Signaler
	media    core.LocalMedia

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	slots  map[domain.UserID]*slot
	offers *offerLog
	closed bool
}

func New(parent context.Context, opts Options) *Engine {
	ctx, cancel := context.WithCancel(parent)
	return &Engine{
		self:     opts.Self,
		factory:  opts.Factory,
		signaler: opts.Signaler,
		media:    opts.Media,
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(map[domain.UserID]*slot),
		offers:   newOfferLog(opts.OfferCacheSize),
	}
}

// PeerJoined starts an offer towards remote unless a live link exists.
func (e *Engine) PeerJoined(remote domain.UserID) error {
	if remote == e.self {
		return nil
	}
	s, err := e.slot(remote)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.isClosed() {
		return ErrClosed
	}

	if s.link != nil && s.link.state != Closed {
		log.Debug().Str("module", "mesh").Str("peer", string(remote)).Str("state", s.link.state.String()).Msg("link exists, reusing")
		return nil
	}

	l, err := e.newLink(s)
	if err != nil {
		return err
	}
	l.state = Offering
	offer, err := l.pc.CreateOffer(e.ctx)
	if err != nil {
		e.drop(s, l)
		return fmt.Errorf("create offer for %s: %w", remote, err)
	}
	l.state = AwaitingAnswer
	if err := e.signaler.SendOffer(e.ctx, remote, offer); err != nil {
		e.drop(s, l)
		return fmt.Errorf("send offer to %s: %w", remote, err)
	}
	l.release(e.ctx, e.signaler)
	log.Info().Str("module", "mesh").Str("peer", string(remote)).Msg("offer sent")
	return nil
}

// HandleOffer answers an inbound offer. A link that is mid-negotiation is
// replaced; a connected one renegotiates in place.
func (e *Engine) HandleOffer(from domain.UserID, offer webrtc.SessionDescription) error {
	if from == e.self {
		return nil
	}
	s, err := e.slot(from)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.isClosed() {
		return ErrClosed
	}
	fp := fingerprint(from, offer.SDP)
	if e.seenOffer(fp) {
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("duplicate offer dropped")
		return nil
	}

	l := s.link
	if l != nil && l.state != Closed && !l.state.stable() {
		log.Info().Str("module", "mesh").Str("peer", string(from)).Str("state", l.state.String()).Msg("replacing stale link")
		e.drop(s, l)
		l = nil
	}
	if l == nil || l.state == Closed {
		if l, err = e.newLink(s); err != nil {
			return err
		}
	}

	l.state = AnsweringOffer
	answer, err := l.pc.AcceptOffer(e.ctx, offer)
	if err != nil {
		e.drop(s, l)
		return fmt.Errorf("accept offer from %s: %w", from, err)
	}
	l.remoteDescribed()
	if err := e.signaler.SendAnswer(e.ctx, from, answer); err != nil {
		e.drop(s, l)
		return fmt.Errorf("send answer to %s: %w", from, err)
	}
	// Only an answered offer counts as handled; a failed one may be retransmitted.
	e.recordOffer(fp)
	l.release(e.ctx, e.signaler)
	l.state = Connected
	log.Info().Str("module", "mesh").Str("peer", string(from)).Msg("answer sent")
	return nil
}

// HandleAnswer applies an answer only while the link is waiting for one.
func (e *Engine) HandleAnswer(from domain.UserID, answer webrtc.SessionDescription) error {
	s, ok := e.existing(from)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.link
	if l == nil || l.state != AwaitingAnswer {
		log.Debug().Str("module", "mesh").Str("peer", string(from)).Msg("answer without pending offer dropped")
		return nil
	}
	if err := l.pc.ApplyAnswer(answer); err != nil {
		e.drop(s, l)
		return fmt.Errorf("apply answer from %s: %w", from, err)
	}
	l.remoteDescribed()
	l.state = Connected
	log.Info().Str("module", "mesh").Str("peer", string(from)).Msg("answer applied")
	return nil
}

// HandleCandidate applies c, or keeps it until there is a link with a
// remote description to apply it to.
func (e *Engine) HandleCandidate(from domain.UserID, c webrtc.ICECandidateInit) error {
	if from == e.self {
		return nil
	}
	s, err := e.slot(from)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.link
	switch {
	case l == nil || l.state == Closed:
		s.buffer(c)
	case !l.remoteSet:
		l.pending = append(l.pending, c)
	default:
		l.addCandidate(c)
	}
	return nil
}

// PeerLeft closes the link towards remote. Calling it again is a no-op.
func (e *Engine) PeerLeft(remote domain.UserID) {
	s, ok := e.existing(remote)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link != nil {
		e.drop(s, s.link)
		log.Info().Str("module", "mesh").Str("peer", string(remote)).Msg("peer left")
	}
	s.early = nil
}

// Leave halts every negotiation, closes all links and the local media, and
// returns once they are released. It is idempotent.
func (e *Engine) Leave() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	slots := lo.Values(e.slots)
	e.slots = make(map[domain.UserID]*slot)
	e.offers.reset()
	e.mu.Unlock()

	e.cancel()

	var wg conc.WaitGroup
	for _, s := range slots {
		wg.Go(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.link != nil {
				e.drop(s, s.link)
			}
			s.early = nil
		})
	}
	wg.Wait()

	if e.media != nil {
		if err := e.media.Close(); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Msg("close local media")
		}
	}
	log.Info().Str("module", "mesh").Int("links", len(slots)).Msg("left call")
}

// ToggleMute flips the microphone and reports whether it is now muted.
func (e *Engine) ToggleMute() (bool, error) {
	if e.media == nil || e.isClosed() {
		return false, ErrClosed
	}
	enabled := !e.media.Enabled(webrtc.RTPCodecTypeAudio)
	e.media.SetEnabled(webrtc.RTPCodecTypeAudio, enabled)
	return !enabled, nil
}

// ToggleCamera flips the camera of a video call and reports whether it is
// now on.
func (e *Engine) ToggleCamera() (bool, error) {
	if e.media == nil || e.isClosed() {
		return false, ErrClosed
	}
	if e.media.Kind() != domain.CallVideo {
		return false, ErrAudioOnly
	}
	enabled := !e.media.Enabled(webrtc.RTPCodecTypeVideo)
	e.media.SetEnabled(webrtc.RTPCodecTypeVideo, enabled)
	return enabled, nil
}

// State reports the state of the current link towards remote.
func (e *Engine) State(remote domain.UserID) State {
	s, ok := e.existing(remote)
	if !ok {
		return Idle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return Idle
	}
	return s.link.state
}

// Peers lists remote users with a link that is not closed.
func (e *Engine) Peers() []domain.UserID {
	e.mu.Lock()
	slots := lo.Values(e.slots)
	e.mu.Unlock()

	var peers []domain.UserID
	for _, s := range slots {
		s.mu.Lock()
		if s.link != nil && s.link.state != Closed {
			peers = append(peers, s.remote)
		}
		s.mu.Unlock()
	}
	return peers
}

func (e *Engine) Closed() bool {
	return e.isClosed()
}

// newLink creates a link in s. Must be called with s.mu held.
func (e *Engine) newLink(s *slot) (*link, error) {
	pc, err := e.factory.NewPeer(s.remote)
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", s.remote, err)
	}
	l := &link{remote: s.remote, pc: pc, state: Idle, pending: s.early}
	s.early = nil
	s.link = l

	pc.OnICECandidate(func(c webrtc.ICECandidateInit) {
		l.local(e.ctx, e.signaler, c)
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		switch st {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			// Close may fire this callback synchronously while s.mu is held.
			go e.dropIfCurrent(s, l, st)
		}
	})
	return l, nil
}

func (e *Engine) dropIfCurrent(s *slot, l *link, st webrtc.PeerConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link != l || l.state == Closed {
		return
	}
	log.Warn().Str("module", "mesh").Str("peer", string(s.remote)).Str("state", st.String()).Msg("peer connection lost")
	e.drop(s, l)
}

// drop closes l and forgets it. Must be called with s.mu held.
func (e *Engine) drop(s *slot, l *link) {
	l.close()
	if s.link == l {
		s.link = nil
	}
}

func (e *Engine) slot(remote domain.UserID) (*slot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	s, ok := e.slots[remote]
	if !ok {
		s = &slot{remote: remote}
		e.slots[remote] = s
	}
	return s, nil
}

func (e *Engine) existing(remote domain.UserID) (*slot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.slots[remote]
	return s, ok
}

func (e *Engine) seenOffer(fp string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offers.has(fp)
}

func (e *Engine) recordOffer(fp string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offers.record(fp)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
