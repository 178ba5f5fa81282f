package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Negotiator is the part of the negotiation engine driven by hub events.
type Negotiator interface {
	PeerJoined(remote domain.UserID) error
	HandleOffer(from domain.UserID, offer webrtc.SessionDescription) error
	HandleAnswer(from domain.UserID, answer webrtc.SessionDescription) error
	HandleCandidate(from domain.UserID, c webrtc.ICECandidateInit) error
	PeerLeft(remote domain.UserID)
	Leave()
}

// Signaler sends negotiation messages of one user through the hub.
type Signaler struct {
	Client *Client
	Self   domain.Identity
	Group  domain.GroupID
}

func (s Signaler) SendOffer(_ context.Context, to domain.UserID, offer webrtc.SessionDescription) error {
	return s.send(protocol.EventWebRTCOffer, to, offer)
}

func (s Signaler) SendAnswer(_ context.Context, to domain.UserID, answer webrtc.SessionDescription) error {
	return s.send(protocol.EventWebRTCAnswer, to, answer)
}

func (s Signaler) SendCandidate(_ context.Context, to domain.UserID, c webrtc.ICECandidateInit) error {
	return s.send(protocol.EventWebRTCCandidate, to, c)
}

func (s Signaler) send(event string, to domain.UserID, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	p := protocol.Signal{GroupID: s.Group, TargetUserID: to, FromUserID: s.Self.ID, FromUserName: s.Self.Name}
	switch event {
	case protocol.EventWebRTCOffer:
		p.Offer = raw
	case protocol.EventWebRTCAnswer:
		p.Answer = raw
	case protocol.EventWebRTCCandidate:
		p.Candidate = raw
	}
	return s.Client.Emit(event, p)
}

// Participant is one user in one group's call, driving a Negotiator from
// the events the hub sends.
type Participant struct {
	client *Client
	self   domain.Identity
	group  domain.GroupID
	engine Negotiator

	mu     sync.Mutex
	callID domain.CallID

	once sync.Once
	left chan struct{}
}

func NewParticipant(c *Client, self domain.Identity, group domain.GroupID, engine Negotiator) *Participant {
	p := &Participant{client: c, self: self, group: group, engine: engine, left: make(chan struct{})}
	p.bind()
	return p
}

func (p *Participant) bind() {
	p.client.On(protocol.EventWebRTCUserJoined, func(data json.RawMessage) {
		var peer protocol.CallPeer
		if p.decode(protocol.EventWebRTCUserJoined, data, &peer) {
			p.check(protocol.EventWebRTCUserJoined, p.engine.PeerJoined(peer.UserID))
		}
	})
	p.client.On(protocol.EventWebRTCUserLeft, func(data json.RawMessage) {
		var peer protocol.CallPeer
		if p.decode(protocol.EventWebRTCUserLeft, data, &peer) {
			p.engine.PeerLeft(peer.UserID)
		}
	})
	p.client.On(protocol.EventWebRTCOffer, func(data json.RawMessage) {
		var sdp webrtc.SessionDescription
		if from, ok := p.relayed(protocol.EventWebRTCOffer, data, &sdp); ok {
			p.check(protocol.EventWebRTCOffer, p.engine.HandleOffer(from, sdp))
		}
	})
	p.client.On(protocol.EventWebRTCAnswer, func(data json.RawMessage) {
		var sdp webrtc.SessionDescription
		if from, ok := p.relayed(protocol.EventWebRTCAnswer, data, &sdp); ok {
			p.check(protocol.EventWebRTCAnswer, p.engine.HandleAnswer(from, sdp))
		}
	})
	p.client.On(protocol.EventWebRTCCandidate, func(data json.RawMessage) {
		var c webrtc.ICECandidateInit
		if from, ok := p.relayed(protocol.EventWebRTCCandidate, data, &c); ok {
			p.check(protocol.EventWebRTCCandidate, p.engine.HandleCandidate(from, c))
		}
	})
	p.client.On(protocol.EventCallStarted, func(data json.RawMessage) {
		var cs protocol.CallStarted
		if !p.decode(protocol.EventCallStarted, data, &cs) || cs.GroupID != p.group {
			return
		}
		p.mu.Lock()
		known := p.callID != ""
		if !known {
			p.callID = cs.CallID
		}
		p.mu.Unlock()
		if known || cs.CallerID == p.self.ID {
			return
		}
		p.check(protocol.EventUserJoinedCall, p.client.Emit(protocol.EventUserJoinedCall, protocol.JoinedCall{
			GroupID: p.group, CallID: cs.CallID, UserID: p.self.ID, UserName: p.self.Name,
		}))
	})
	p.client.On(protocol.EventCallEnded, func(data json.RawMessage) {
		var ce protocol.CallEnded
		if !p.decode(protocol.EventCallEnded, data, &ce) {
			return
		}
		if id := p.CallID(); id != "" && id != ce.CallID {
			return
		}
		log.Info().Str("module", "wsclient").Str("call", string(ce.CallID)).Msg("call ended")
		p.Leave()
	})
	p.client.On(protocol.EventError, func(data json.RawMessage) {
		var e protocol.ErrorEvent
		if p.decode(protocol.EventError, data, &e) {
			log.Warn().Str("module", "wsclient").Str("code", e.Code).Msg(e.Message)
		}
	})
}

// Join announces the identity, subscribes to the group and enters its call
// room. Peers already in the room send the offers.
func (p *Participant) Join() error {
	if err := p.client.Emit(protocol.EventUserConnect, protocol.UserConnect{
		UserID: p.self.ID, Name: p.self.Name, Email: p.self.Email, College: p.self.College,
	}); err != nil {
		return err
	}
	if err := p.client.Emit(protocol.EventJoinGroup, protocol.GroupRef{GroupID: p.group, UserID: p.self.ID}); err != nil {
		return err
	}
	return p.client.Emit(protocol.EventWebRTCJoin, protocol.CallPresence{GroupID: p.group, UserID: p.self.ID, UserName: p.self.Name})
}

// StartCall announces a new call of the group with a generated id.
func (p *Participant) StartCall(kind domain.CallKind, groupName string) (domain.CallID, error) {
	id := domain.CallID(fmt.Sprintf("call_%s_%s", p.group, uuid.NewString()))
	p.mu.Lock()
	p.callID = id
	p.mu.Unlock()
	err := p.client.Emit(protocol.EventStartCall, protocol.StartCall{
		GroupID: p.group, CallID: id, CallType: string(kind),
		CallerID: p.self.ID, CallerName: p.self.Name, GroupName: groupName,
	})
	return id, err
}

// EndCall ends the call for everyone and leaves it.
func (p *Participant) EndCall() error {
	id := p.CallID()
	if id == "" {
		p.Leave()
		return nil
	}
	err := p.client.Emit(protocol.EventEndCall, protocol.EndCall{GroupID: p.group, CallID: id, CallerName: p.self.Name})
	p.Leave()
	return err
}

// Leave releases every peer link before telling the hub. Idempotent.
func (p *Participant) Leave() {
	p.once.Do(func() {
		p.engine.Leave()
		if err := p.client.Emit(protocol.EventWebRTCLeave, protocol.CallPresence{
			GroupID: p.group, UserID: p.self.ID, UserName: p.self.Name,
		}); err != nil {
			log.Warn().Err(err).Str("module", "wsclient").Msg("send leave")
		}
		close(p.left)
	})
}

// Left is closed once the participant has left the call.
func (p *Participant) Left() <-chan struct{} {
	return p.left
}

func (p *Participant) CallID() domain.CallID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callID
}

func (p *Participant) decode(event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "wsclient").Str("type", event).Msg("bad payload")
		return false
	}
	return true
}

// relayed decodes a relayed signal and its body.
func (p *Participant) relayed(event string, data json.RawMessage, body any) (domain.UserID, bool) {
	var s protocol.RelayedSignal
	if !p.decode(event, data, &s) {
		return "", false
	}
	if !p.decode(event, s.Body(event), body) {
		return "", false
	}
	return s.FromUserID, true
}

func (p *Participant) check(event string, err error) {
	if err != nil {
		log.Warn().Err(err).Str("module", "wsclient").Str("type", event).Msg("handle event")
	}
}
