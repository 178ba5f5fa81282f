package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cid core.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump write error")
				return
			}
		}
	}
}

// readPump handles the connection's events one at a time, which keeps the
// order of everything one connection sends. When it returns, the transport
// is closed and the connection's state is unwound.
func (ctl *SignalWSController) readPump(ctx context.Context, cid core.ConnID, c *WsSignalConn, shutdown func()) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		shutdown()
		ctl.Orch.Disconnect(cid)
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	pongWait := ctl.pingPeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, cid, data)
		}
	}
}

// handleSignal reports failures to the originating connection only.
func (ctl *SignalWSController) handleSignal(ctx context.Context, cid core.ConnID, data []byte) {
	env, err := protocol.DecodeEnvelope(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad json")
		ctl.Orch.SendError(cid, err)
		return
	}
	if err := ctl.dispatch(ctx, cid, env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("type", env.Type).Msg("event rejected")
		ctl.Orch.SendError(cid, err)
	}
}

func (ctl *SignalWSController) dispatch(ctx context.Context, cid core.ConnID, env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventPing:
		return ctl.handlePing(cid)
	case protocol.EventUserConnect:
		return ctl.handleUserConnect(cid, env.Data)
	case protocol.EventJoinGroup:
		return ctl.handleJoinGroup(ctx, cid, env.Data)
	case protocol.EventLeaveGroup:
		return ctl.handleLeaveGroup(cid, env.Data)
	case protocol.EventSendMessage:
		return ctl.handleSendMessage(ctx, cid, env.Data)
	case protocol.EventTyping:
		return ctl.handleTyping(cid, env.Data)
	case protocol.EventStopTyping:
		return ctl.handleStopTyping(cid, env.Data)
	case protocol.EventDeleteMessages:
		return ctl.handleDeleteMessages(ctx, cid, env.Data)
	case protocol.EventStartCall:
		return ctl.handleStartCall(ctx, cid, env.Data)
	case protocol.EventUserJoinedCall:
		return ctl.handleJoinCall(ctx, cid, env.Data)
	case protocol.EventEndCall:
		return ctl.handleEndCall(ctx, cid, env.Data)
	case protocol.EventWebRTCJoin:
		return ctl.handleWebRTCJoin(ctx, cid, env.Data)
	case protocol.EventWebRTCLeave:
		return ctl.handleWebRTCLeave(cid, env.Data)
	case protocol.EventWebRTCOffer, protocol.EventWebRTCAnswer, protocol.EventWebRTCCandidate:
		return ctl.handleRelay(cid, env.Type, env.Data)
	}
	return fmt.Errorf("%w: unknown event %q", domain.ErrInvalidPayload, env.Type)
}
