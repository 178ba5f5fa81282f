package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleStartCall(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.StartCall) error {
		return ctl.Orch.StartCall(ctx, cid, p)
	})
}

func (ctl *SignalWSController) handleJoinCall(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.JoinedCall) error {
		return ctl.Orch.JoinCall(ctx, cid, p)
	})
}

func (ctl *SignalWSController) handleEndCall(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.EndCall) error {
		return ctl.Orch.EndCall(ctx, cid, p)
	})
}

func (ctl *SignalWSController) handleWebRTCJoin(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.CallPresence) error {
		return ctl.Orch.WebRTCJoinCall(ctx, cid, p)
	})
}

func (ctl *SignalWSController) handleWebRTCLeave(cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.CallPresence) error {
		return ctl.Orch.WebRTCLeaveCall(cid, p)
	})
}

// handleRelay forwards an offer, answer or candidate without looking into
// the session description.
func (ctl *SignalWSController) handleRelay(cid core.ConnID, event string, data json.RawMessage) error {
	return decoded(data, func(p protocol.Signal) error {
		return ctl.Orch.Relay(cid, event, p)
	})
}
