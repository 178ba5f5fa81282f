package wsclient

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/mesh"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/mocks"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newHub(t *testing.T) (string, *orch.Orchestrator) {
	t.Helper()
	ctrl := gomock.NewController(t)
	checker := mocks.NewMockMembershipChecker(ctrl)
	checker.EXPECT().IsMember(gomock.Any(), domain.GroupID("g1"), gomock.Any()).Return(true, nil).AnyTimes()
	store := mocks.NewMockMessageStore(ctrl)

	reg := app.NewRegistry()
	o := &orch.Orchestrator{
		Registry: reg,
		Rooms:    app.NewRoomIndex(checker, reg, time.Second),
		Calls:    app.NewCallRegistry(nil),
		Messages: store,
		Policy:   app.SimplePolicy{},
	}
	ctl := &signal.SignalWSController{Orch: o, PingPeriod: time.Minute, SendBuffer: 64}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	ctx, cancel := context.WithCancel(context.Background())
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", o
}

func runClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

type stubPeer struct {
	mu     sync.Mutex
	onICE  func(webrtc.ICECandidateInit)
	closed bool
}

func (p *stubPeer) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer " + time.Now().String()}, nil
}

func (p *stubPeer) AcceptOffer(context.Context, webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.onICE(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 9 typ host"})
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (p *stubPeer) ApplyAnswer(webrtc.SessionDescription) error      { return nil }
func (p *stubPeer) AddICECandidate(webrtc.ICECandidateInit) error    { return nil }
func (p *stubPeer) ConnectionState() webrtc.PeerConnectionState      { return webrtc.PeerConnectionStateNew }
func (p *stubPeer) OnICECandidate(f func(webrtc.ICECandidateInit))   { p.onICE = f }
func (p *stubPeer) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (p *stubPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type stubFactory struct {
	made  atomic.Int32
	mu    sync.Mutex
	peers []*stubPeer
}

func (f *stubFactory) NewPeer(domain.UserID) (core.PeerConnection, error) {
	f.made.Add(1)
	p := &stubPeer{}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *stubFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.peers {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if !closed {
			return false
		}
	}
	return true
}

func newParticipant(t *testing.T, url string, id domain.UserID, name string) (*Participant, *mesh.Engine, *stubFactory) {
	t.Helper()
	c := runClient(t, url)
	self := domain.Identity{ID: id, Name: name}
	f := &stubFactory{}
	e := mesh.New(context.Background(), mesh.Options{
		Self:     id,
		Factory:  f,
		Signaler: Signaler{Client: c, Self: self, Group: "g1"},
	})
	p := NewParticipant(c, self, "g1", e)
	require.NoError(t, p.Join())
	return p, e, f
}

func TestParticipants_Negotiate_Through_Hub_And_End_Call(t *testing.T) {
	req := require.New(t)
	url, o := newHub(t)
	callRoom := domain.CallRoom("g1")

	// Given alice is in the call room and starts a call
	alice, aliceEngine, aliceFactory := newParticipant(t, url, "u1", "Alice")
	req.Eventually(func() bool { return len(o.Rooms.MembersOf(callRoom)) == 1 }, 2*time.Second, 5*time.Millisecond)
	callID, err := alice.StartCall(domain.CallAudio, "Algorithms")
	req.NoError(err)
	req.Eventually(func() bool { return o.Calls.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	// When bob enters
	bob, bobEngine, bobFactory := newParticipant(t, url, "u2", "Bob")

	// Then alice offers, bob answers and both links connect
	req.Eventually(func() bool {
		return aliceEngine.State("u2") == mesh.Connected && bobEngine.State("u1") == mesh.Connected
	}, 2*time.Second, 5*time.Millisecond)
	req.EqualValues(1, aliceFactory.made.Load())
	req.EqualValues(1, bobFactory.made.Load())

	// And bob learned and joined the call from call-started
	req.Eventually(func() bool {
		_, parts, ok := o.Calls.Get(callID)
		return ok && len(parts) == 2
	}, 2*time.Second, 5*time.Millisecond)
	req.Equal(callID, bob.CallID())

	// When alice ends the call
	req.NoError(alice.EndCall())

	// Then both sides release their links
	select {
	case <-bob.Left():
	case <-time.After(2 * time.Second):
		t.Fatal("bob did not leave after call-ended")
	}
	req.True(aliceEngine.Closed())
	req.True(bobEngine.Closed())
	req.True(aliceFactory.allClosed())
	req.True(bobFactory.allClosed())
	req.Zero(o.Calls.Len())
	req.Eventually(func() bool { return len(o.Rooms.MembersOf(callRoom)) == 0 }, 2*time.Second, 5*time.Millisecond)
}

type recordingNegotiator struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNegotiator) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recordingNegotiator) PeerJoined(remote domain.UserID) error {
	r.add("joined:" + string(remote))
	return nil
}

func (r *recordingNegotiator) HandleOffer(from domain.UserID, o webrtc.SessionDescription) error {
	r.add("offer:" + string(from) + ":" + o.SDP)
	return nil
}

func (r *recordingNegotiator) HandleAnswer(from domain.UserID, a webrtc.SessionDescription) error {
	r.add("answer:" + string(from))
	return nil
}

func (r *recordingNegotiator) HandleCandidate(from domain.UserID, c webrtc.ICECandidateInit) error {
	r.add("candidate:" + string(from) + ":" + c.Candidate)
	return nil
}

func (r *recordingNegotiator) PeerLeft(remote domain.UserID) { r.add("left:" + string(remote)) }
func (r *recordingNegotiator) Leave()                        { r.add("leave") }

func (r *recordingNegotiator) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestParticipant_Relays_In_Sender_Order(t *testing.T) {
	req := require.New(t)
	url, o := newHub(t)

	rec := &recordingNegotiator{}
	bobClient := runClient(t, url)
	bob := NewParticipant(bobClient, domain.Identity{ID: "u2", Name: "Bob"}, "g1", rec)
	req.NoError(bob.Join())

	aliceClient := runClient(t, url)
	alice := Signaler{Client: aliceClient, Self: domain.Identity{ID: "u1", Name: "Alice"}, Group: "g1"}
	req.NoError(NewParticipant(aliceClient, alice.Self, "g1", &recordingNegotiator{}).Join())
	req.Eventually(func() bool { return len(o.Rooms.MembersOf(domain.CallRoom("g1"))) == 2 }, 2*time.Second, 5*time.Millisecond)

	// When alice sends an offer followed by candidates
	ctx := context.Background()
	req.NoError(alice.SendOffer(ctx, "u2", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}))
	req.NoError(alice.SendCandidate(ctx, "u2", webrtc.ICECandidateInit{Candidate: "c1"}))
	req.NoError(alice.SendCandidate(ctx, "u2", webrtc.ICECandidateInit{Candidate: "c2"}))

	// Then bob's engine sees them in that order, after alice's arrival
	req.Eventually(func() bool { return len(rec.snapshot()) == 4 }, 2*time.Second, 5*time.Millisecond)
	req.Equal([]string{"joined:u1", "offer:u1:v=0", "candidate:u1:c1", "candidate:u1:c2"}, rec.snapshot())

	// When alice's socket goes away, bob drops the link
	req.NoError(aliceClient.Close())
	req.Eventually(func() bool {
		s := rec.snapshot()
		return s[len(s)-1] == "left:u1"
	}, 2*time.Second, 5*time.Millisecond)
}
