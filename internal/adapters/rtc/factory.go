package rtc

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Factory creates peer connections that send the shared local media.
type Factory struct {
	api   *webrtc.API
	cfg   webrtc.Configuration
	media *LocalMedia
}

func NewFactory(api *webrtc.API, cfg webrtc.Configuration, media *LocalMedia) *Factory {
	return &Factory{api: api, cfg: cfg, media: media}
}

func (f *Factory) NewPeer(remote domain.UserID) (core.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	for _, t := range f.media.Tracks() {
		sender, err := pc.AddTrack(t.Local)
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Local.Kind(), err)
		}
		go readRTCP(sender, remote)
	}
	return newConnection(pc, remote), nil
}

// readRTCP keeps the interceptors fed; it returns when the sender stops.
func readRTCP(sender *webrtc.RTPSender, remote domain.UserID) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			log.Debug().Str("module", "webrtc").Str("peer", string(remote)).Msg("rtcp reader stopped")
			return
		}
	}
}
