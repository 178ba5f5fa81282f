package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Connection is one pion peer connection towards a remote participant.
// Candidates trickle through OnICECandidate; descriptions are returned
// without waiting for gathering to complete.
type Connection struct {
	pc     *webrtc.PeerConnection
	remote domain.UserID
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	onICE   func(webrtc.ICECandidateInit)
	onState func(webrtc.PeerConnectionState)
	sinks   []*Sink
}

func newConnection(pc *webrtc.PeerConnection, remote domain.UserID) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{pc: pc, remote: remote, ctx: ctx, cancel: cancel}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("peer", string(remote)).Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", string(remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("peer", string(remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		sink := NewSink(track, remote)
		c.mu.Lock()
		c.sinks = append(c.sinks, sink)
		c.mu.Unlock()
		go sink.Drain(c.ctx)
	})

	return c
}

func (c *Connection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) AcceptOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Sinks returns the remote tracks received so far.
func (c *Connection) Sinks() []*Sink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Sink(nil), c.sinks...)
}

// Close stops the remote track readers and the peer connection.
func (c *Connection) Close() error {
	c.cancel()
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("peer", string(c.remote)).Msg("closed")
	}
	return err
}
