package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// maxGap bounds what counts as loss; larger jumps are treated as a stream
// restart.
const maxGap = 1000

// Sink drains one remote track and keeps packet statistics. Media is not
// played back.
type Sink struct {
	Src    *webrtc.TrackRemote
	remote domain.UserID

	packets atomic.Uint64
	lost    atomic.Uint64

	// only touched by the draining goroutine
	last    uint16
	started bool
}

func NewSink(src *webrtc.TrackRemote, remote domain.UserID) *Sink {
	return &Sink{Src: src, remote: remote}
}

// Drain reads RTP packets until ctx is done or the track ends.
func (s *Sink) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := s.Src.ReadRTP()
		if err != nil {
			log.Debug().Err(err).Str("module", "webrtc").Str("peer", string(s.remote)).Msg("remote track ended")
			return
		}
		s.observe(pkt)
	}
}

func (s *Sink) observe(pkt *rtp.Packet) {
	s.packets.Add(1)
	seq := pkt.SequenceNumber
	if s.started {
		if gap := seq - s.last - 1; gap > 0 && gap < maxGap {
			s.lost.Add(uint64(gap))
		}
	}
	s.last = seq
	s.started = true
}

func (s *Sink) Packets() uint64 { return s.packets.Load() }
func (s *Sink) Lost() uint64    { return s.lost.Load() }
