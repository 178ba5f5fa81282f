package signal

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleJoinGroup(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.GroupRef) error {
		return ctl.Orch.JoinGroup(ctx, cid, p)
	})
}

func (ctl *SignalWSController) handleLeaveGroup(cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.GroupRef) error {
		return ctl.Orch.LeaveGroup(cid, p)
	})
}

func (ctl *SignalWSController) handleSendMessage(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.SendMessage) error {
		if err := ctl.allow(ctl.Limiter, cid); err != nil {
			return err
		}
		return ctl.Orch.SendMessage(ctx, cid, p)
	})
}

func (ctl *SignalWSController) handleTyping(cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.Typing) error {
		if err := ctl.allow(ctl.Typing, cid); err != nil {
			return nil
		}
		return ctl.Orch.Typing(cid, p)
	})
}

func (ctl *SignalWSController) handleStopTyping(cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.Typing) error {
		return ctl.Orch.StopTyping(cid, p)
	})
}

func (ctl *SignalWSController) handleDeleteMessages(ctx context.Context, cid core.ConnID, data json.RawMessage) error {
	return decoded(data, func(p protocol.DeleteMessages) error {
		return ctl.Orch.DeleteMessages(ctx, cid, p)
	})
}

// allow applies rl to the connection's user. Connections without
// identity pass; the orchestrator rejects them.
func (ctl *SignalWSController) allow(rl *RateLimiter, cid core.ConnID) error {
	if rl == nil {
		return nil
	}
	id, ok := ctl.Orch.Registry.Lookup(cid)
	if !ok {
		return nil
	}
	if !rl.Allow(id.ID) {
		return domain.ErrRateLimited
	}
	return nil
}
