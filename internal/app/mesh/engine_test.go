package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}

func offerSDP(s string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: s}
}

func newTestEngine(self domain.UserID) (*Engine, *fakeFactory, *recorder, *fakeMedia) {
	f := &fakeFactory{local: self}
	r := &recorder{}
	m := newFakeMedia(domain.CallAudio)
	e := New(context.Background(), Options{Self: self, Factory: f, Signaler: r, Media: m})
	return e, f, r, m
}

func TestPeerJoined_Sends_Offer_And_Awaits_Answer(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")

	// When b joins the call
	req.NoError(e.PeerJoined("b"))

	// Then one offer goes to b and the link awaits the answer
	req.Equal([]string{"offer"}, r.kinds())
	req.Equal(domain.UserID("b"), r.last().to)
	req.Equal(AwaitingAnswer, e.State("b"))
	req.Len(f.all(), 1)
}

func TestPeerJoined_Reuses_Live_Link(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))
	req.NoError(e.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}))
	req.Equal(Connected, e.State("b"))

	// When the presence event is delivered again
	req.NoError(e.PeerJoined("b"))
	req.NoError(e.PeerJoined("b"))

	// Then nothing is renegotiated
	req.Equal([]string{"offer"}, r.kinds())
	req.Len(f.all(), 1)
	req.Equal(Connected, e.State("b"))
}

func TestPeerJoined_Ignores_Self(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")

	req.NoError(e.PeerJoined("a"))

	req.Empty(r.kinds())
	req.Empty(f.all())
}

func TestHandleOffer_Answers_And_Connects(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("b")

	req.NoError(e.HandleOffer("a", offerSDP("v=0 o=a-1 offer")))

	req.Equal([]string{"answer"}, r.kinds())
	req.Equal(domain.UserID("a"), r.last().to)
	req.Equal(Connected, e.State("a"))
	req.Len(f.all(), 1)
}

func TestHandleOffer_Duplicate_Is_Dropped(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("b")
	offer := offerSDP("v=0 o=a-1 offer")

	// When the same offer is delivered twice
	req.NoError(e.HandleOffer("a", offer))
	req.NoError(e.HandleOffer("a", offer))

	// Then only one link and one answer exist
	req.Len(f.all(), 1)
	req.Equal([]string{"answer"}, r.kinds())
	req.Equal([]domain.UserID{"a"}, e.Peers())
}

func TestHandleOffer_Retransmit_After_Failed_Answer_Is_Answered(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("b")
	r.failAnswers = 1
	offer := offerSDP("v=0 o=a-1 offer")

	// Given the first answer could not be sent
	req.Error(e.HandleOffer("a", offer))
	req.Empty(r.kinds())
	req.True(f.all()[0].isClosed())

	// When a retransmits the same offer
	req.NoError(e.HandleOffer("a", offer))

	// Then it is answered on a fresh link
	req.Equal([]string{"answer"}, r.kinds())
	req.Equal(Connected, e.State("a"))
	req.Len(f.all(), 2)
	req.False(f.all()[1].isClosed())

	// And a third copy is a duplicate
	req.NoError(e.HandleOffer("a", offer))
	req.Len(f.all(), 2)
}

func TestHandleOffer_Same_Prefix_From_Other_Sender_Is_Answered(t *testing.T) {
	req := require.New(t)
	e, f, _, _ := newTestEngine("b")
	offer := offerSDP("v=0 identical body")

	req.NoError(e.HandleOffer("a", offer))
	req.NoError(e.HandleOffer("c", offer))

	req.Len(f.all(), 2)
	req.ElementsMatch([]domain.UserID{"a", "c"}, e.Peers())
}

func TestHandleOffer_Replaces_Link_Awaiting_Answer(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))
	stale := f.all()[0]

	// When b offers while our own offer is still pending
	req.NoError(e.HandleOffer("b", offerSDP("v=0 o=b-7 offer")))

	// Then the stale link is closed and replaced by the answering one
	req.True(stale.isClosed())
	req.Len(f.all(), 2)
	req.False(f.all()[1].isClosed())
	req.Equal(Connected, e.State("b"))
	req.Equal([]string{"offer", "answer"}, r.kinds())
	req.Equal([]domain.UserID{"b"}, e.Peers())
}

func TestHandleOffer_Renegotiates_Connected_Link(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("b")
	req.NoError(e.HandleOffer("a", offerSDP("v=0 o=a-1 offer")))

	// When a sends a fresh offer on a healthy link
	req.NoError(e.HandleOffer("a", offerSDP("v=0 o=a-1 renegotiation")))

	// Then the same peer connection answers it
	req.Len(f.all(), 1)
	req.False(f.all()[0].isClosed())
	req.Equal([]string{"answer", "answer"}, r.kinds())
	req.Equal(Connected, e.State("a"))
}

func TestHandleAnswer_Only_While_Awaiting(t *testing.T) {
	req := require.New(t)
	e, f, _, _ := newTestEngine("a")

	// Given no link, an answer is ignored
	req.NoError(e.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}))
	req.Equal(Idle, e.State("b"))

	// Given a connected link from answering b's offer
	req.NoError(e.HandleOffer("b", offerSDP("v=0 o=b-1 offer")))

	// When a stray answer arrives
	req.NoError(e.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"}))

	// Then it is not applied
	req.False(f.all()[0].answered)
	req.Equal(Connected, e.State("b"))
}

func TestCandidates_Before_Offer_Are_Applied_After(t *testing.T) {
	req := require.New(t)
	e, f, _, _ := newTestEngine("b")

	// Given candidates that overtake the offer
	req.NoError(e.HandleCandidate("a", candidate("c1")))
	req.NoError(e.HandleCandidate("a", candidate("c2")))

	// When the offer arrives
	req.NoError(e.HandleOffer("a", offerSDP("v=0 o=a-1 offer")))

	// Then both are applied in order
	req.Equal([]webrtc.ICECandidateInit{candidate("c1"), candidate("c2")}, f.all()[0].addedCandidates())

	// And later candidates are applied immediately
	req.NoError(e.HandleCandidate("a", candidate("c3")))
	req.Len(f.all()[0].addedCandidates(), 3)
}

func TestCandidates_Wait_For_Answer_On_Offering_Side(t *testing.T) {
	req := require.New(t)
	e, f, _, _ := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))

	req.NoError(e.HandleCandidate("b", candidate("c1")))
	req.Empty(f.all()[0].addedCandidates())

	req.NoError(e.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}))

	req.Equal([]webrtc.ICECandidateInit{candidate("c1")}, f.all()[0].addedCandidates())
	req.True(f.all()[0].answered)
}

func TestLocal_Candidates_Follow_The_Description(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")
	f.gather = []webrtc.ICECandidateInit{candidate("host"), candidate("srflx")}

	// When candidates are gathered while the offer is being created
	req.NoError(e.PeerJoined("b"))

	// Then they are sent after the offer
	req.Equal([]string{"offer", "candidate", "candidate"}, r.kinds())

	// And candidates gathered later go out directly
	f.all()[0].onICE(candidate("relay"))
	req.Equal("relay", r.last().cand)
}

func TestConnection_Failure_Closes_Link(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))
	req.NoError(e.HandleAnswer("b", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}))
	pc := f.all()[0]

	// When the transport fails
	pc.onState(webrtc.PeerConnectionStateFailed)

	// Then the link is closed as if b had left
	req.Eventually(func() bool { return pc.isClosed() }, time.Second, 5*time.Millisecond)
	req.Eventually(func() bool { return e.State("b") == Idle }, time.Second, 5*time.Millisecond)

	// And a new presence event negotiates a fresh link
	req.NoError(e.PeerJoined("b"))
	req.Len(f.all(), 2)
	req.Equal([]string{"offer", "offer"}, r.kinds())
}

func TestConnection_Failure_Of_Replaced_Link_Is_Ignored(t *testing.T) {
	req := require.New(t)
	e, f, _, _ := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))
	old := f.all()[0]
	req.NoError(e.HandleOffer("b", offerSDP("v=0 o=b-1 offer")))

	old.onState(webrtc.PeerConnectionStateDisconnected)

	req.Never(func() bool { return e.State("b") != Connected }, 50*time.Millisecond, 5*time.Millisecond)
	req.False(f.all()[1].isClosed())
}

func TestPeerLeft_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	e, f, _, _ := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))

	e.PeerLeft("b")
	e.PeerLeft("b")
	e.PeerLeft("nobody")

	req.True(f.all()[0].isClosed())
	req.Equal(Idle, e.State("b"))
	req.Empty(e.Peers())
}

func TestLeave_Closes_Everything(t *testing.T) {
	req := require.New(t)
	e, f, _, m := newTestEngine("a")
	req.NoError(e.PeerJoined("b"))
	req.NoError(e.HandleOffer("c", offerSDP("v=0 o=c-1 offer")))

	// When the local user leaves twice
	e.Leave()
	e.Leave()

	// Then every link and the media are released once
	req.Zero(f.open())
	req.Equal(1, m.closed)
	req.True(e.Closed())
	req.Zero(e.offers.len())

	// And nothing new can be negotiated
	req.ErrorIs(e.PeerJoined("d"), ErrClosed)
	req.ErrorIs(e.HandleOffer("d", offerSDP("v=0 o=d-1 offer")), ErrClosed)
	req.Len(f.all(), 2)
}

func TestFactory_Failure_Leaves_No_Link(t *testing.T) {
	req := require.New(t)
	e, f, r, _ := newTestEngine("a")
	f.fail = true

	req.Error(e.PeerJoined("b"))

	req.Empty(r.kinds())
	req.Equal(Idle, e.State("b"))
}

func TestToggles(t *testing.T) {
	req := require.New(t)
	e, _, _, m := newTestEngine("a")

	muted, err := e.ToggleMute()
	req.NoError(err)
	req.True(muted)
	req.False(m.Enabled(webrtc.RTPCodecTypeAudio))

	muted, err = e.ToggleMute()
	req.NoError(err)
	req.False(muted)

	_, err = e.ToggleCamera()
	req.ErrorIs(err, ErrAudioOnly)

	video := newFakeMedia(domain.CallVideo)
	ve := New(context.Background(), Options{Self: "a", Factory: &fakeFactory{}, Signaler: &recorder{}, Media: video})
	on, err := ve.ToggleCamera()
	req.NoError(err)
	req.False(on)
	req.False(video.Enabled(webrtc.RTPCodecTypeVideo))
}

func TestOfferLog_Evicts_Oldest(t *testing.T) {
	req := require.New(t)
	l := newOfferLog(2)

	req.True(l.record("a"))
	req.True(l.record("b"))
	req.False(l.record("a"))
	req.True(l.record("c"))

	// a was evicted by c
	req.True(l.record("a"))
	req.Equal(2, l.len())
}

func TestFingerprint_Uses_Prefix(t *testing.T) {
	req := require.New(t)
	long := "v=0\r\no=- 4611731400430051336 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

	req.Equal("a-"+long[:50], fingerprint("a", long))
	req.Equal("a-short", fingerprint("a", "short"))
}

func TestFullMesh_Three_Participants(t *testing.T) {
	req := require.New(t)
	b := newBus()
	ids := []domain.UserID{"u1", "u2", "u3"}
	engines := map[domain.UserID]*Engine{}
	factories := map[domain.UserID]*fakeFactory{}
	media := map[domain.UserID]*fakeMedia{}
	for _, id := range ids {
		factories[id] = &fakeFactory{local: id, gather: []webrtc.ICECandidateInit{candidate("host-" + string(id))}}
		media[id] = newFakeMedia(domain.CallAudio)
		engines[id] = New(context.Background(), Options{Self: id, Factory: factories[id], Signaler: busSignaler{b: b, from: id}, Media: media[id]})
		b.attach(id, engines[id])
	}

	// Given u1 is in the call, u2 then u3 join and the others hear about it
	req.NoError(engines["u1"].PeerJoined("u2"))
	req.NoError(engines["u1"].PeerJoined("u3"))
	req.NoError(engines["u2"].PeerJoined("u3"))
	// And duplicate presence events arrive
	req.NoError(engines["u1"].PeerJoined("u2"))
	req.NoError(engines["u2"].PeerJoined("u3"))

	// Then every participant has two connected links
	connected := func() bool {
		for _, id := range ids {
			for _, other := range ids {
				if other != id && engines[id].State(other) != Connected {
					return false
				}
			}
		}
		return true
	}
	req.Eventually(connected, 2*time.Second, 5*time.Millisecond)
	for _, id := range ids {
		req.Len(engines[id].Peers(), 2)
		req.Len(factories[id].all(), 2)
	}
	req.Eventually(func() bool {
		for _, id := range ids {
			for _, p := range factories[id].all() {
				if len(p.addedCandidates()) == 0 {
					return false
				}
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	// When the call ends for everyone
	for _, id := range ids {
		engines[id].Leave()
	}
	b.close()

	// Then all six links and the media are released
	total := 0
	for _, id := range ids {
		total += len(factories[id].all())
		req.Zero(factories[id].open())
		req.Equal(1, media[id].closed)
	}
	req.Equal(6, total)
}
