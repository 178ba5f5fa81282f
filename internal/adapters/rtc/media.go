package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

type TrackState int32

const (
	TrackStateLive TrackState = iota
	TrackStateMuted
	TrackStateStopped
)

var ErrTrackStopped = errors.New("track stopped")

// opusSilence is one 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Track is one local capture track shared by every peer connection of a call.
type Track struct {
	Local *webrtc.TrackLocalStaticSample
	state atomic.Int32 // Zero by default (TrackStateLive)
}

func (t *Track) State() TrackState {
	return TrackState(t.state.Load())
}

// WriteSample drops the sample while the track is muted.
func (t *Track) WriteSample(s media.Sample) error {
	switch t.State() {
	case TrackStateStopped:
		return ErrTrackStopped
	case TrackStateMuted:
		return nil
	}
	return t.Local.WriteSample(s)
}

// LocalMedia owns the local tracks of a call: audio always, video for video
// calls.
type LocalMedia struct {
	kind  domain.CallKind
	audio *Track
	video *Track

	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocalMedia(kind domain.CallKind) (*LocalMedia, error) {
	stream := "huddle-" + uuid.NewString()
	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", stream)
	if err != nil {
		return nil, fmt.Errorf("audio track: %w", err)
	}
	m := &LocalMedia{kind: kind, audio: &Track{Local: audio}, cancel: func() {}}
	if kind == domain.CallVideo {
		video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", stream)
		if err != nil {
			return nil, fmt.Errorf("video track: %w", err)
		}
		m.video = &Track{Local: video}
	}
	return m, nil
}

func (m *LocalMedia) Kind() domain.CallKind {
	return m.kind
}

func (m *LocalMedia) Tracks() []*Track {
	if m.video == nil {
		return []*Track{m.audio}
	}
	return []*Track{m.audio, m.video}
}

func (m *LocalMedia) track(kind webrtc.RTPCodecType) *Track {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return m.audio
	case webrtc.RTPCodecTypeVideo:
		return m.video
	}
	return nil
}

func (m *LocalMedia) SetEnabled(kind webrtc.RTPCodecType, enabled bool) bool {
	t := m.track(kind)
	if t == nil || t.State() == TrackStateStopped {
		return false
	}
	if enabled {
		t.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateLive))
	} else {
		t.state.CompareAndSwap(int32(TrackStateLive), int32(TrackStateMuted))
	}
	log.Info().Str("module", "webrtc").Str("kind", kind.String()).Bool("enabled", enabled).Msg("local track toggled")
	return true
}

func (m *LocalMedia) Enabled(kind webrtc.RTPCodecType) bool {
	t := m.track(kind)
	return t != nil && t.State() == TrackStateLive
}

// WriteSample writes to the track of kind, if the call has one.
func (m *LocalMedia) WriteSample(kind webrtc.RTPCodecType, s media.Sample) error {
	t := m.track(kind)
	if t == nil {
		return fmt.Errorf("no %s track", kind)
	}
	return t.WriteSample(s)
}

// Start feeds the audio track with silence every 20ms until ctx is done or
// the media is closed. A headless participant has no microphone.
func (m *LocalMedia) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.audio.WriteSample(media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond}); err != nil {
					if !errors.Is(err, ErrTrackStopped) {
						log.Warn().Err(err).Str("module", "webrtc").Msg("write audio sample")
					}
					return
				}
			}
		}
	}()
}

// Close stops every track and waits for the sample pump. Idempotent.
func (m *LocalMedia) Close() error {
	m.once.Do(func() {
		for _, t := range m.Tracks() {
			t.state.Store(int32(TrackStateStopped))
		}
		m.cancel()
		m.wg.Wait()
		log.Info().Str("module", "webrtc").Msg("local media released")
	})
	return nil
}
