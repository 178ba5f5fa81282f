package orch

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards an offer, answer or candidate to every connection of the
// target user. An offline target drops the message; the negotiation engine
// recovers through its re-join flow. Messages from one sender keep their
// order because the sender's events are handled one at a time and each
// connection queue is FIFO.
func (o *Orchestrator) Relay(cid core.ConnID, event string, p protocol.Signal) error {
	if !protocol.IsRelay(event) {
		return fmt.Errorf("%w: %s is not a signaling event", domain.ErrInvalidPayload, event)
	}
	from, err := o.actor(cid, p.FromUserID)
	if err != nil {
		return err
	}
	body := p.Body(event)
	if len(body) == 0 {
		return fmt.Errorf("%w: %s without body", domain.ErrInvalidPayload, event)
	}

	targets := o.Registry.FindConnectionsForUser(p.TargetUserID)
	if len(targets) == 0 {
		log.Warn().Str("module", "orch").Str("event", event).Str("from", string(from.ID)).Str("target", string(p.TargetUserID)).Msg("target offline, signal dropped")
		o.Metrics.Signal(event, "offline")
		return nil
	}

	frame := o.encode(event, protocol.NewRelayedSignal(event, from.ID, from.Name, body))
	if frame == nil {
		return nil
	}
	for _, target := range targets {
		sig, ok := o.Registry.Signal(target)
		if !ok {
			continue
		}
		if err := sig.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("event", event).Str("conn", string(target)).Msg("signal not delivered")
			o.Metrics.Signal(event, "dropped")
			continue
		}
		o.Metrics.Signal(event, "relayed")
	}
	return nil
}
