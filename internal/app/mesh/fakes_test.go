package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
)

type fakePeer struct {
	mu       sync.Mutex
	local    domain.UserID
	remote   domain.UserID
	seq      int
	gather   []webrtc.ICECandidateInit
	onICE    func(webrtc.ICECandidateInit)
	onState  func(webrtc.PeerConnectionState)
	added    []webrtc.ICECandidateInit
	answered bool
	closed   bool
}

func (p *fakePeer) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	p.emitGathered()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 o=%s-%d offer to %s", p.local, p.seq, p.remote)}, nil
}

func (p *fakePeer) AcceptOffer(ctx context.Context, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	p.emitGathered()
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("v=0 o=%s-%d answer to %s", p.local, p.seq, p.remote)}, nil
}

func (p *fakePeer) ApplyAnswer(webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answered = true
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, c)
	return nil
}

func (p *fakePeer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.PeerConnectionStateClosed
	}
	return webrtc.PeerConnectionStateNew
}

func (p *fakePeer) OnICECandidate(f func(webrtc.ICECandidateInit)) { p.onICE = f }

func (p *fakePeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) { p.onState = f }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) emitGathered() {
	for _, c := range p.gather {
		p.onICE(c)
	}
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) addedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.added...)
}

type fakeFactory struct {
	mu     sync.Mutex
	local  domain.UserID
	gather []webrtc.ICECandidateInit
	peers  []*fakePeer
	fail   bool
}

func (f *fakeFactory) NewPeer(remote domain.UserID) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no media device")
	}
	p := &fakePeer{local: f.local, remote: remote, seq: len(f.peers), gather: f.gather}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) all() []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePeer(nil), f.peers...)
}

func (f *fakeFactory) open() int {
	n := 0
	for _, p := range f.all() {
		if !p.isClosed() {
			n++
		}
	}
	return n
}

type sent struct {
	kind string
	to   domain.UserID
	sdp  string
	cand string
}

// recorder is a Signaler that only records what it was asked to send.
type recorder struct {
	mu   sync.Mutex
	sent []sent
	// failAnswers makes that many SendAnswer calls fail.
	failAnswers int
}

func (r *recorder) SendOffer(_ context.Context, to domain.UserID, offer webrtc.SessionDescription) error {
	r.add(sent{kind: "offer", to: to, sdp: offer.SDP})
	return nil
}

func (r *recorder) SendAnswer(_ context.Context, to domain.UserID, answer webrtc.SessionDescription) error {
	r.mu.Lock()
	if r.failAnswers > 0 {
		r.failAnswers--
		r.mu.Unlock()
		return errors.New("socket closed")
	}
	r.mu.Unlock()
	r.add(sent{kind: "answer", to: to, sdp: answer.SDP})
	return nil
}

func (r *recorder) SendCandidate(_ context.Context, to domain.UserID, c webrtc.ICECandidateInit) error {
	r.add(sent{kind: "candidate", to: to, cand: c.Candidate})
	return nil
}

func (r *recorder) add(s sent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.kind)
	}
	return out
}

func (r *recorder) last() sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

// bus connects engines the way the hub relay does: one FIFO queue per
// sender and target pair, delivered on its own goroutine.
type bus struct {
	mu      sync.Mutex
	engines map[domain.UserID]*Engine
	queues  map[[2]domain.UserID]chan func(*Engine)
	wg      sync.WaitGroup
}

func newBus() *bus {
	return &bus{
		engines: make(map[domain.UserID]*Engine),
		queues:  make(map[[2]domain.UserID]chan func(*Engine)),
	}
}

func (b *bus) attach(id domain.UserID, e *Engine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engines[id] = e
}

func (b *bus) post(from, to domain.UserID, deliver func(*Engine)) {
	b.mu.Lock()
	key := [2]domain.UserID{from, to}
	q, ok := b.queues[key]
	if !ok {
		q = make(chan func(*Engine), 256)
		b.queues[key] = q
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for f := range q {
				b.mu.Lock()
				e := b.engines[to]
				b.mu.Unlock()
				if e != nil {
					f(e)
				}
			}
		}()
	}
	b.mu.Unlock()
	q <- deliver
}

func (b *bus) close() {
	b.mu.Lock()
	for _, q := range b.queues {
		close(q)
	}
	b.queues = map[[2]domain.UserID]chan func(*Engine){}
	b.mu.Unlock()
	b.wg.Wait()
}

type busSignaler struct {
	b    *bus
	from domain.UserID
}

func (s busSignaler) SendOffer(_ context.Context, to domain.UserID, offer webrtc.SessionDescription) error {
	s.b.post(s.from, to, func(e *Engine) { _ = e.HandleOffer(s.from, offer) })
	return nil
}

func (s busSignaler) SendAnswer(_ context.Context, to domain.UserID, answer webrtc.SessionDescription) error {
	s.b.post(s.from, to, func(e *Engine) { _ = e.HandleAnswer(s.from, answer) })
	return nil
}

func (s busSignaler) SendCandidate(_ context.Context, to domain.UserID, c webrtc.ICECandidateInit) error {
	s.b.post(s.from, to, func(e *Engine) { _ = e.HandleCandidate(s.from, c) })
	return nil
}

type fakeMedia struct {
	mu      sync.Mutex
	kind    domain.CallKind
	enabled map[webrtc.RTPCodecType]bool
	closed  int
}

func newFakeMedia(kind domain.CallKind) *fakeMedia {
	m := &fakeMedia{kind: kind, enabled: map[webrtc.RTPCodecType]bool{webrtc.RTPCodecTypeAudio: true}}
	if kind == domain.CallVideo {
		m.enabled[webrtc.RTPCodecTypeVideo] = true
	}
	return m
}

func (m *fakeMedia) Kind() domain.CallKind { return m.kind }

func (m *fakeMedia) SetEnabled(kind webrtc.RTPCodecType, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enabled[kind]; !ok {
		return false
	}
	m.enabled[kind] = enabled
	return true
}

func (m *fakeMedia) Enabled(kind webrtc.RTPCodecType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled[kind]
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}
